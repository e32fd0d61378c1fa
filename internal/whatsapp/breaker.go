package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// newBreaker opens after maxFailures consecutive transport failures and lets
// one probe through once cooldown has elapsed. Answers from the remote, even
// error answers, count as success: the API is up.
func newBreaker(maxFailures uint32, cooldown time.Duration, logger zerolog.Logger) *gobreaker.CircuitBreaker[json.RawMessage] {
	return gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        "whatsapp-api",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var remote *RemoteError
			return errors.As(err, &remote) || errors.Is(err, ErrBadResponse)
		},
	})
}

// executeBreaker runs fn through cb. A rejected call is reported as
// ErrUnreachable without touching the network.
func executeBreaker(cb *gobreaker.CircuitBreaker[json.RawMessage], fn func() (json.RawMessage, error)) (json.RawMessage, error) {
	out, err := cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return out, err
}
