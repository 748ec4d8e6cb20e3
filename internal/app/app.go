// Package app wires configuration into the running service: market source,
// depth history, registry, sinks, HTTP surface, and the watch loop.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	awcfg "anchorwatch/internal/config"
	"anchorwatch/internal/depth"
	"anchorwatch/internal/feature"
	"anchorwatch/internal/gateway/binance"
	"anchorwatch/internal/logger"
	"anchorwatch/internal/market"
	"anchorwatch/internal/sink"
	watchhttp "anchorwatch/internal/transport/http"
	"anchorwatch/internal/watcher/registry"
)

type App struct {
	cfg     *awcfg.Config
	reg     *registry.Registry
	source  market.Source
	service *WatchService
	http    *watchhttp.Server
	events  *sink.Multi
}

func NewApp(cfg *awcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	store, err := registry.NewFileStore(cfg.App.StatePath)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}
	reg := registry.New(store, registry.WithEnabled(cfg.Watch.Enabled))
	if err := reg.Rehydrate(); err != nil {
		return nil, fmt.Errorf("rehydrating registry: %w", err)
	}

	source, err := binance.New(binance.Config{
		RESTBaseURL:       cfg.Market.RESTBaseURL,
		HTTPTimeout:       time.Duration(cfg.Market.HTTPTimeoutSeconds) * time.Second,
		ProxyEnabled:      cfg.Market.ProxyEnabled,
		RESTProxyURL:      cfg.Market.RESTProxyURL,
		RequestsPerSecond: cfg.Market.RequestsPerSecond,
		Burst:             cfg.Market.Burst,
		BreakerThreshold:  cfg.Market.BreakerThreshold,
		BreakerCooldown:   time.Duration(cfg.Market.BreakerCooldownSeconds) * time.Second,
		KlineLimit:        cfg.Market.KlineLimit,
		DepthLimit:        cfg.Market.DepthLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("building market source: %w", err)
	}

	extractor := feature.NewExtractor(depth.NewHistory(), feature.Config{
		SlippageNotional: cfg.Watch.SlippageNotionalUSD,
	})

	memory := sink.NewMemorySink(0)
	sinks := []sink.Sink{memory}
	var reader watchhttp.EventReader = memory
	if cfg.Sink.EventsPath != "" {
		fileSink, err := sink.NewFileSink(cfg.Sink.EventsPath)
		if err != nil {
			return nil, fmt.Errorf("opening event file: %w", err)
		}
		sinks = append(sinks, fileSink)
	}
	if cfg.Sink.DBPath != "" {
		gormSink, err := sink.NewGormSink(cfg.Sink.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening event db: %w", err)
		}
		sinks = append(sinks, gormSink)
		reader = gormSink
	}
	events := sink.NewMulti(sinks...)

	service := NewWatchService(reg, source, extractor, events, LogExecutor{}, cfg.Watch.MaxConcurrentTicks)

	httpServer, err := watchhttp.NewServer(watchhttp.ServerConfig{
		Addr:          cfg.App.HTTPAddr,
		Watches:       reg,
		Events:        reader,
		Source:        source,
		DefaultLimits: cfg.Watch.Limits(),
	})
	if err != nil {
		return nil, fmt.Errorf("building http server: %w", err)
	}

	return &App{
		cfg:     cfg,
		reg:     reg,
		source:  source,
		service: service,
		http:    httpServer,
		events:  events,
	}, nil
}

// ApplyRuntimeConfig applies the subset of config that is safe to change
// without a restart: log level and the watch kill switch. Everything else
// (endpoints, limits, sink paths) takes effect on the next start.
func (a *App) ApplyRuntimeConfig(next *awcfg.Config) {
	if a == nil || next == nil {
		return
	}
	logger.SetLevel(next.App.LogLevel)
	a.reg.SetEnabled(next.Watch.Enabled)
}

// Registry exposes the registry for embedding callers and tests.
func (a *App) Registry() *registry.Registry {
	if a == nil {
		return nil
	}
	return a.reg
}

// Run starts the HTTP surface and the watch loop, blocking until ctx is
// cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if !a.cfg.Watch.Enabled {
		logger.Warnf("watch subsystem disabled; serving HTTP only")
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return a.service.Run(ctx)
	})
	err := group.Wait()

	if cerr := a.events.Close(); cerr != nil {
		logger.Warnf("closing event sinks: %v", cerr)
	}
	if cerr := a.source.Close(); cerr != nil {
		logger.Warnf("closing market source: %v", cerr)
	}
	return err
}
