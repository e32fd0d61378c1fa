package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/classyid/whatsapp-api-frontend/internal/media"
	"github.com/classyid/whatsapp-api-frontend/internal/whatsapp"
)

type service struct {
	sender      Sender
	countryCode string
	metrics     *Metrics
	log         zerolog.Logger
}

func NewService(sender Sender, countryCode string, metrics *Metrics, logger zerolog.Logger) Service {
	return &service{
		sender:      sender,
		countryCode: countryCode,
		metrics:     metrics,
		log:         logger.With().Str("component", "proxy_service").Logger(),
	}
}

func (s *service) SendText(ctx context.Context, phone, text string) (json.RawMessage, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, media.Invalid(media.CodeMissingField, "Phone number required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, media.Invalid(media.CodeMissingField, "Message text required")
	}
	normalized, err := media.NormalizePhone(phone, s.countryCode)
	if err != nil {
		return nil, err
	}

	return s.forward(ctx, &whatsapp.Message{
		Phone: normalized,
		Kind:  media.KindText,
		Text:  text,
	})
}

func (s *service) SendMedia(ctx context.Context, req MediaRequest) (json.RawMessage, error) {
	if strings.TrimSpace(req.Phone) == "" {
		return nil, media.Invalid(media.CodeMissingField, "Phone number required")
	}
	if req.Upload == nil {
		return nil, media.ErrMissingFile
	}
	if err := media.Validate(req.Kind, req.Upload.Name, req.Upload.Size); err != nil {
		return nil, err
	}
	normalized, err := media.NormalizePhone(req.Phone, s.countryCode)
	if err != nil {
		return nil, err
	}

	f, err := req.Upload.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	msg := &whatsapp.Message{
		Phone: normalized,
		Kind:  req.Kind,
		File: &whatsapp.File{
			Name:    req.Upload.Name,
			Size:    req.Upload.Size,
			Content: f,
		},
	}
	if req.Kind.AllowsCaption() {
		msg.Caption = req.Caption
	}
	return s.forward(ctx, msg)
}

func (s *service) forward(ctx context.Context, msg *whatsapp.Message) (json.RawMessage, error) {
	start := time.Now()
	raw, err := s.sender.Send(ctx, msg)
	s.metrics.observeDuration(msg.Kind, time.Since(start))

	evt := s.log.Debug()
	if err != nil {
		evt = s.log.Warn().Err(err)
	}
	evt.Str("kind", string(msg.Kind)).
		Str("phone", maskPhone(msg.Phone)).
		Dur("took", time.Since(start)).
		Msg("forward")

	return raw, err
}

// maskPhone keeps the last four digits for logs.
func maskPhone(p string) string {
	if len(p) <= 4 {
		return p
	}
	return strings.Repeat("*", len(p)-4) + p[len(p)-4:]
}
