package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/classyid/whatsapp-api-frontend/internal/config"
)

// StatusPath is the remote health endpoint.
const StatusPath = "/api/status"

// Connection states derived from a Status.
const (
	StateOnline  = "online"
	StateAPIOnly = "api_only"
	StateOffline = "offline"
)

// Status is the result of one status check. It is never cached between
// requests.
type Status struct {
	Available    bool      `json:"available"`
	BotConnected bool      `json:"bot_connected"`
	CheckedAt    time.Time `json:"checked_at"`
}

// State folds the two flags into online / api_only / offline.
func (s Status) State() string {
	switch {
	case s.Available && s.BotConnected:
		return StateOnline
	case s.Available:
		return StateAPIOnly
	default:
		return StateOffline
	}
}

// Monitor checks the remote status endpoint.
type Monitor struct {
	url    string
	apiKey string
	http   *http.Client
	log    zerolog.Logger
	now    func() time.Time
}

func NewMonitor(cfg config.API, logger zerolog.Logger) *Monitor {
	return &Monitor{
		url:    cfg.BaseURL() + StatusPath,
		apiKey: cfg.Key,
		http:   &http.Client{Timeout: cfg.StatusTimeout},
		log:    logger.With().Str("component", "status_monitor").Logger(),
		now:    time.Now,
	}
}

// Check queries the remote once. No answer means neither the API nor the bot
// is available. Any answer means the API is up; the bot only counts as
// connected on a 2xx answer whose body reports bot_connected=true.
func (m *Monitor) Check(ctx context.Context) Status {
	st := Status{CheckedAt: m.now().UTC()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		m.log.Error().Err(err).Msg("build status request")
		return st
	}
	req.Header.Set("Accept", "application/json")
	if m.apiKey != "" {
		req.Header.Set(APIKeyHeader, m.apiKey)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		m.log.Debug().Err(err).Msg("status check failed")
		return st
	}
	defer resp.Body.Close()

	st.Available = true
	if resp.StatusCode >= 300 {
		m.log.Debug().Int("status", resp.StatusCode).Msg("status endpoint returned an error")
		return st
	}

	var payload struct {
		BotConnected bool `json:"bot_connected"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&payload); err != nil {
		m.log.Debug().Err(err).Msg("decode status body")
		return st
	}
	st.BotConnected = payload.BotConnected
	return st
}
