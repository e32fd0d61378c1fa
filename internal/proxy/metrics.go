package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/classyid/whatsapp-api-frontend/internal/media"
	"github.com/classyid/whatsapp-api-frontend/internal/whatsapp"
)

// Forward outcomes, used as a metric label.
const (
	outcomeOK          = "ok"
	outcomeValidation  = "validation"
	outcomeTooLarge    = "too_large"
	outcomeUnreachable = "unreachable"
	outcomeRemoteError = "remote_error"
	outcomeBadResponse = "bad_response"
	outcomeInternal    = "internal"
)

type Metrics struct {
	forwards     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	remoteUp     prometheus.Gauge
	botConnected prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{}

	forwards := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_proxy_forward_total",
		Help: "Send requests handled, by message kind and outcome",
	}, []string{"kind", "outcome"})
	if err := reg.Register(forwards); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			m.forwards = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, fmt.Errorf("failed to register forwards metric: %v", err)
		}
	} else {
		m.forwards = forwards
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wa_proxy_forward_duration_seconds",
		Help:    "Time spent waiting on the remote WhatsApp API",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	if err := reg.Register(duration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			m.duration = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, fmt.Errorf("failed to register duration metric: %v", err)
		}
	} else {
		m.duration = duration
	}

	remoteUp := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wa_proxy_remote_available",
		Help: "1 when the last status check reached the remote API",
	})
	if err := reg.Register(remoteUp); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			m.remoteUp = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, fmt.Errorf("failed to register remoteUp metric: %v", err)
		}
	} else {
		m.remoteUp = remoteUp
	}

	botConnected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wa_proxy_bot_connected",
		Help: "1 when the last status check reported the bot as connected",
	})
	if err := reg.Register(botConnected); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			m.botConnected = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, fmt.Errorf("failed to register botConnected metric: %v", err)
		}
	} else {
		m.botConnected = botConnected
	}

	return m, nil
}

func (m *Metrics) observe(kind media.Kind, outcome string) {
	m.forwards.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) observeDuration(kind media.Kind, d time.Duration) {
	m.duration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

// SetRemote records the result of a status check.
func (m *Metrics) SetRemote(st whatsapp.Status) {
	m.remoteUp.Set(boolGauge(st.Available))
	m.botConnected.Set(boolGauge(st.BotConnected))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func outcomeOf(err error) string {
	var (
		verr   *media.ValidationError
		remote *whatsapp.RemoteError
		tooBig *http.MaxBytesError
	)
	switch {
	case err == nil:
		return outcomeOK
	case errors.As(err, &tooBig):
		return outcomeTooLarge
	case errors.As(err, &verr):
		return outcomeValidation
	case errors.Is(err, whatsapp.ErrUnreachable):
		return outcomeUnreachable
	case errors.As(err, &remote):
		return outcomeRemoteError
	case errors.Is(err, whatsapp.ErrBadResponse):
		return outcomeBadResponse
	default:
		return outcomeInternal
	}
}
