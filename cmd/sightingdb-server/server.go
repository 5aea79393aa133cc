package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sightingdb-go/internal/core/service"
	"github.com/yndnr/sightingdb-go/internal/infra/buildinfo"
	"github.com/yndnr/sightingdb-go/internal/infra/confloader"
	"github.com/yndnr/sightingdb-go/internal/infra/shutdown"
	"github.com/yndnr/sightingdb-go/internal/infra/tlsroots"
	"github.com/yndnr/sightingdb-go/internal/server/config"
	"github.com/yndnr/sightingdb-go/internal/server/httpserver"
	"github.com/yndnr/sightingdb-go/internal/server/httpserver/handler"
	"github.com/yndnr/sightingdb-go/internal/storage"
	"github.com/yndnr/sightingdb-go/internal/storage/snapshot"
	"github.com/yndnr/sightingdb-go/internal/telemetry/logger"
	"github.com/yndnr/sightingdb-go/internal/telemetry/metric"
	"github.com/yndnr/sightingdb-go/pkg/token"
)

// loadConfig layers defaults, the file, the environment and flags. It also
// returns the keys that matched no setting.
func loadConfig(path string, overrides map[string]any) (*config.ServerConfig, []string, error) {
	var opts []confloader.Option
	if path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	loader := confloader.NewLoader(opts...)

	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}
	if len(overrides) > 0 {
		if err := loader.LoadMap(overrides); err != nil {
			return nil, nil, err
		}
		if err := loader.Unmarshal(cfg); err != nil {
			return nil, nil, err
		}
	}
	if err := config.Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loader.Unknown(cfg), nil
}

func serve(c *cli.Context) error {
	cfgPath := c.String("config")
	overrides := flagOverrides(c)
	cfg, unknown, err := loadConfig(cfgPath, overrides)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
		Attrs:  []any{"service", "sightingdb", "version", buildinfo.Version},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)
	log.Info("starting sightingdb-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Get().Commit,
		"config", cfgPath)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))
	if len(unknown) > 0 {
		log.Warn("ignoring unknown configuration keys", "keys", unknown)
	}

	registry := metric.NewRegistry()
	engine, err := openEngine(c.Context, cfg, log, registry)
	if err != nil {
		return err
	}

	shut := shutdown.NewHandler(cfg.Server.HTTP.ShutdownTimeout, log)
	shut.OnShutdown("storage", func(context.Context) error {
		return engine.Close()
	})

	acl := service.NewACLService(engine, service.ACLConfig{
		Authenticate: cfg.Auth.Authenticate,
		Logger:       log,
		Metrics:      registry,
	})
	if err := bootstrap(c.Context, acl, cfg.Auth.BootstrapKey, log); err != nil {
		engine.Close()
		return fmt.Errorf("bootstrap api key: %w", err)
	}
	if !acl.Authenticating() {
		log.Warn("AUTHENTICATION IS DISABLED: every request is allowed")
	}

	api, err := handler.New(handler.Config{
		Sightings: service.NewSightingService(engine, acl, service.SightingConfig{Logger: log, Metrics: registry}),
		ACL:       acl,
		Admin:     engine,
		Logger:    log,
		PostLimit: cfg.Server.HTTP.PostLimit,
	})
	if err != nil {
		engine.Close()
		return err
	}

	httpCfg := cfg.Server.HTTP
	routerCfg := httpserver.DefaultRouterConfig()
	routerCfg.API = api
	routerCfg.Logger = log
	routerCfg.AdminAllowList = httpCfg.AdminAllowList
	routerCfg.CORSAllowedOrigins = httpCfg.CORSAllowedOrigins
	routerCfg.RateLimit = httpCfg.RateLimit
	routerCfg.RateBurst = httpCfg.RateBurst
	routerCfg.EnableAudit = httpCfg.Audit
	if cfg.Telemetry.Metrics.Enabled {
		routerCfg.Metrics = registry
		routerCfg.MetricsPath = cfg.Telemetry.Metrics.Path
	}

	srvCfg := httpserver.ServerConfig{
		Address:      httpCfg.Address,
		ErrorLog:     logger.Std(log.With("component", "http")),
		ReadTimeout:  httpCfg.ReadTimeout,
		WriteTimeout: httpCfg.WriteTimeout,
		IdleTimeout:  httpCfg.IdleTimeout,
	}
	if httpCfg.TLS.Enabled {
		certs, err := tlsroots.NewCertReloader(httpCfg.TLS.CertFile, httpCfg.TLS.KeyFile, tlsroots.WithLogger(log))
		if err != nil {
			engine.Close()
			return err
		}
		if err := certs.Start(); err != nil {
			log.Warn("tls certificate watcher disabled", "error", err)
		}
		shut.OnShutdown("tls-watcher", func(context.Context) error { return certs.Stop() })
		srvCfg.TLSConfig = certs.ServerConfig()
	}
	srv := httpserver.New(srvCfg, httpserver.NewRouter(routerCfg))

	ln, err := net.Listen("tcp", httpCfg.Address)
	if err != nil {
		engine.Close()
		return fmt.Errorf("listen %s: %w", httpCfg.Address, err)
	}

	if cfgPath != "" {
		if stop, err := watchLogLevel(cfgPath, overrides, log); err != nil {
			log.Warn("config watcher disabled", "error", err)
		} else {
			shut.OnShutdown("config-watcher", func(context.Context) error { return stop() })
		}
	}

	shut.OnShutdown("http", srv.Shutdown)
	go func() {
		log.Info("http server listening", "addr", ln.Addr().String(), "tls", srv.TLS())
		if err := srv.Serve(ln); err != nil {
			log.Error("http server failed", "error", err)
			shut.Trigger("http server failed")
		}
	}()

	if err := shut.Wait(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func openEngine(ctx context.Context, cfg *config.ServerConfig, log logger.Logger, registry *metric.Registry) (*storage.Engine, error) {
	engCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	engCfg.Logger = log
	engCfg.OnWALFailure = func(error) { registry.RecordWALFailure() }
	engCfg.OnSnapshot = func(_ *snapshot.Info, err error) {
		if err != nil {
			registry.RecordSnapshot("error")
			return
		}
		registry.RecordSnapshot("ok")
	}

	engine, err := storage.New(engCfg)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if err := engine.Recover(ctx); err != nil {
		engine.Close()
		return nil, fmt.Errorf("storage recovery: %w", err)
	}

	err = registry.RegisterStorage(func() metric.StorageStats {
		st := engine.Stats()
		walBytes, walSegments := engine.WALUsage()
		return metric.StorageStats{
			Namespaces:   st.Namespaces,
			Records:      st.Records,
			ReadOnly:     st.ReadOnly,
			WALBytes:     walBytes,
			WALSegments:  walSegments,
			LastSnapshot: st.LastSnapshot,
		}
	})
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("register storage metrics: %w", err)
	}
	return engine, nil
}

// bootstrap installs key as the trust anchor. Without a key, a fresh data
// directory gets a generated one, printed once on stderr.
func bootstrap(ctx context.Context, acl *service.ACLService, key string, log logger.Logger) error {
	if key != "" {
		return acl.Bootstrap(ctx, key)
	}
	keys, err := acl.Keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		return nil
	}
	if !acl.Authenticating() {
		return nil
	}

	key, err = token.NewAPIKey()
	if err != nil {
		return err
	}
	if err := acl.Bootstrap(ctx, key); err != nil {
		return err
	}
	log.Warn("no api key configured, generated a bootstrap key", "fingerprint", token.Fingerprint(key))
	fmt.Fprintf(os.Stderr, "bootstrap API key (shown once): %s\n", key)
	return nil
}

// watchLogLevel reloads log.level whenever the configuration file changes.
// Command-line overrides keep precedence over the file.
func watchLogLevel(path string, overrides map[string]any, log logger.Logger) (func() error, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		w.Stop()
		return nil, err
	}
	w.OnChange(func(string) { reloadLogLevel(path, overrides, log) })
	w.StartAsync()
	return w.Stop, nil
}

func reloadLogLevel(path string, overrides map[string]any, log logger.Logger) {
	cfg, _, err := loadConfig(path, overrides)
	if err != nil {
		log.Warn("config reload failed", "error", err)
		return
	}
	if cfg.Log.Level != logger.GetLevel() {
		logger.SetLevel(cfg.Log.Level)
		log.Info("log level changed", "level", cfg.Log.Level)
	}
}
