package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/classyid/whatsapp-api-frontend/internal/config"
	"github.com/classyid/whatsapp-api-frontend/internal/logging"
	"github.com/classyid/whatsapp-api-frontend/internal/whatsapp"
)

var errRemoteUnavailable = errors.New("remote WhatsApp API is unavailable")

type statusOutput struct {
	whatsapp.Status
	State string `json:"state"`
	URL   string `json:"url"`
}

func runStatus(ctx context.Context, out io.Writer, envFiles []string) error {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	st := whatsapp.NewMonitor(cfg.API, logger).Check(ctx)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(statusOutput{Status: st, State: st.State(), URL: cfg.API.BaseURL()}); err != nil {
		return err
	}
	if !st.Available {
		return errRemoteUnavailable
	}
	return nil
}
