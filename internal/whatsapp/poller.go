package whatsapp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Poller runs the status check on a cron schedule. It only logs state
// transitions and reports each result to onStatus; request handlers still
// check synchronously.
type Poller struct {
	monitor  *Monitor
	cron     *cron.Cron
	timeout  time.Duration
	onStatus func(Status)
	log      zerolog.Logger

	mu    sync.Mutex
	state string
}

func NewPoller(m *Monitor, spec string, timeout time.Duration, onStatus func(Status), logger zerolog.Logger) (*Poller, error) {
	p := &Poller{
		monitor:  m,
		cron:     cron.New(),
		timeout:  timeout,
		onStatus: onStatus,
		log:      logger.With().Str("component", "status_poller").Logger(),
	}
	if _, err := p.cron.AddFunc(spec, p.poll); err != nil {
		return nil, fmt.Errorf("schedule status poll %q: %w", spec, err)
	}
	return p, nil
}

func (p *Poller) Start() {
	p.log.Info().Msg("status poller started")
	p.cron.Start()
}

// Stop halts the schedule and waits for a running check to finish.
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
	p.log.Info().Msg("status poller stopped")
}

func (p *Poller) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	st := p.monitor.Check(ctx)

	p.mu.Lock()
	prev := p.state
	p.state = st.State()
	p.mu.Unlock()

	if prev != st.State() {
		evt := p.log.Info()
		if st.State() != StateOnline {
			evt = p.log.Warn()
		}
		evt.Str("from", prev).Str("to", st.State()).Msg("whatsapp api state changed")
	}
	if p.onStatus != nil {
		p.onStatus(st)
	}
}
