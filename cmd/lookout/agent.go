package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/lookout/pkg/api"
	"github.com/cuemby/lookout/pkg/audit"
	"github.com/cuemby/lookout/pkg/config"
	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/inotify"
	"github.com/cuemby/lookout/pkg/log"
	"github.com/cuemby/lookout/pkg/metrics"
	"github.com/cuemby/lookout/pkg/procmon"
	"github.com/cuemby/lookout/pkg/storage"
	"github.com/cuemby/lookout/pkg/subscribers"
	"github.com/rs/zerolog"
)

// agent owns every long-lived component of a running lookout process
type agent struct {
	cfg    *config.Config
	logger zerolog.Logger

	store   *storage.BoltStore
	expirer *storage.Expirer
	bus     *events.Bus
	driver  *audit.Driver

	files      *inotify.Publisher
	fileEvents *subscribers.FileEvents

	health *api.HealthServer
	grpc   *api.Server
	errCh  chan error
}

// newAgent opens the store and registers every enabled publisher and
// subscriber. Nothing runs until Start.
func newAgent(cfg *config.Config) (*agent, error) {
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	a := &agent{
		cfg:    cfg,
		logger: log.WithComponent("agent"),
		store:  store,
		bus:    events.NewBus(events.WithCooldown(cfg.Events.Cooldown)),
		errCh:  make(chan error, 2),
	}

	if err := a.register(); err != nil {
		a.Stop()
		return nil, err
	}
	return a, nil
}

func (a *agent) register() error {
	cfg := a.cfg

	// Filesystem
	a.files = inotify.NewPublisher(
		inotify.WithInterval(cfg.Events.FileInterval),
		inotify.WithMaxWatches(cfg.Events.MaxWatches),
		inotify.WithExclusions(cfg.Exclusions()...),
	)
	a.fileEvents = subscribers.NewFileEvents(a.store, cfg.FilePaths)
	if err := a.add(a.files, a.fileEvents); err != nil {
		return err
	}

	// Kernel audit
	if !cfg.Audit.Disable {
		a.driver = audit.NewDriver(cfg.DriverConfig(), nil)
		pub, err := audit.NewPublisher(a.driver)
		if err != nil {
			return err
		}

		var subs []events.Subscriber
		if cfg.Audit.AllowProcessEvents {
			subs = append(subs, subscribers.NewProcessEvents(a.store))
		}
		if cfg.Audit.AllowSockets {
			subs = append(subs, subscribers.NewSocketEvents(a.store))
		}
		if cfg.Audit.AllowFIMEvents {
			fim, err := subscribers.NewFimEvents(a.store, subscribers.FimConfig{
				Include:      cfg.Audit.FIM.Include,
				Exclude:      cfg.Audit.FIM.Exclude,
				ShowAccesses: cfg.Audit.FIM.ShowAccesses,
			})
			if err != nil {
				return err
			}
			subs = append(subs, fim)
		}
		if err := a.add(pub, subs...); err != nil {
			return err
		}
	}

	// Polling
	if cfg.Process.Enable {
		pub := procmon.NewProcessPublisher(cfg.Process.Interval, nil)
		if err := a.add(pub, subscribers.NewProcessSnapshots(a.store)); err != nil {
			return err
		}
	}
	if cfg.Connections.Enable {
		pub := procmon.NewConnectionsPublisher(cfg.Connections.Interval, nil)
		if err := a.add(pub, subscribers.NewConnectionSnapshots(a.store, cfg.Connections.ListeningOnly)); err != nil {
			return err
		}
	}

	return a.bus.ConfigureAll()
}

func (a *agent) add(pub events.Publisher, subs ...events.Subscriber) error {
	if err := a.bus.RegisterPublisher(pub); err != nil {
		return fmt.Errorf("failed to register publisher %s: %w", pub.Name(), err)
	}
	for _, s := range subs {
		if err := a.bus.RegisterSubscriber(s); err != nil {
			return fmt.Errorf("failed to register subscriber %s: %w", s.Name(), err)
		}
	}
	return nil
}

// Start runs every publisher loop, row expiry and the API servers
func (a *agent) Start(ctx context.Context) error {
	metrics.SetVersion(Version)

	var critical []string
	for _, st := range a.bus.Status() {
		critical = append(critical, st.Name)
	}
	metrics.SetCriticalComponents(critical...)

	a.bus.Start(ctx)

	if a.cfg.Events.Expiry > 0 {
		a.expirer = storage.NewExpirer(a.store, a.cfg.Events.Expiry, a.cfg.Events.ExpiryInterval)
		a.expirer.Start()
	}

	if addr := a.cfg.Server.HTTPAddr; addr != "" {
		a.health = api.NewHealthServer(a.bus, a.store)
		go func() {
			if err := a.health.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.errCh <- fmt.Errorf("health server: %w", err)
			}
		}()
	}
	if addr := a.cfg.Server.GRPCAddr; addr != "" {
		a.grpc = api.NewServer(a.bus)
		go func() {
			if err := a.grpc.Start(addr); err != nil {
				a.errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	a.logger.Info().
		Int("publishers", len(critical)).
		Str("data_dir", a.cfg.DataDir).
		Msg("Agent started")
	return nil
}

// Errors reports fatal server failures
func (a *agent) Errors() <-chan error {
	return a.errCh
}

// Reload applies a changed configuration. The log level, path patterns
// and exclusions apply immediately; everything else needs a restart.
func (a *agent) Reload(cfg *config.Config) {
	log.SetLevel(log.Level(cfg.Log.Level))

	a.files.SetExclusions(cfg.Exclusions())
	a.fileEvents.SetPaths(cfg.FilePaths)

	if err := a.bus.Reload(subscribers.FileEventsName); err != nil {
		a.logger.Error().Err(err).Msg("Failed to reload file subscriptions")
		return
	}
	if err := a.bus.Configure(inotify.PublisherName); err != nil {
		a.logger.Error().Err(err).Msg("Failed to reconfigure file publisher")
		return
	}
	a.cfg = cfg
	a.logger.Info().Int("categories", len(cfg.FilePaths)).Msg("File paths reloaded")
}

// Stop ends every publisher, then the servers and the store
func (a *agent) Stop() {
	a.bus.EndAll(true)
	a.bus.Wait()

	if a.driver != nil {
		a.driver.Close()
	}
	if a.grpc != nil {
		a.grpc.Stop()
	}
	if a.health != nil {
		if err := a.health.Stop(5 * time.Second); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to stop health server")
		}
	}
	if a.expirer != nil {
		a.expirer.Stop()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close store")
	}
}
