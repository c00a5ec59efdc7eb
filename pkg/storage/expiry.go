package storage

import (
	"time"

	"github.com/cuemby/lookout/pkg/log"
	"github.com/rs/zerolog"
)

// Expirer periodically removes rows older than the retention window
type Expirer struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	logger    zerolog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewExpirer creates an expirer. A non-positive interval defaults to a
// tenth of the retention, at least one second.
func NewExpirer(store Store, retention, interval time.Duration) *Expirer {
	if interval <= 0 {
		interval = retention / 10
	}
	if interval < time.Second {
		interval = time.Second
	}
	return &Expirer{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    log.WithComponent("expirer"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the expiry loop
func (e *Expirer) Start() {
	go e.run()
}

// Stop stops the expiry loop and waits for it to exit
func (e *Expirer) Stop() {
	close(e.stopCh)
	<-e.doneCh
}

func (e *Expirer) run() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.expireOnce(time.Now())
		case <-e.stopCh:
			return
		}
	}
}

func (e *Expirer) expireOnce(now time.Time) int {
	if e.retention <= 0 {
		return 0
	}
	n, err := e.store.Expire(now.Add(-e.retention))
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to expire rows")
		return 0
	}
	if n > 0 {
		e.logger.Debug().Int("rows", n).Msg("Expired rows")
	}
	return n
}
