// bogo-ibus is the IBus input method engine for Vietnamese.
//
// ibus-daemon starts it with --ibus once the component file is installed:
//
//	bogo-ibus --install      write bogo.xml to the IBus component directory
//	ibus restart
//	(enable "Bogo" in ibus-setup or the desktop keyboard settings)
//
// Without --ibus the binary claims the bus name itself, which is handy
// when running it from a terminal against an already running daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/joho/godotenv"

	"bogoime/internal/config"
	"bogoime/internal/diag"
	"bogoime/internal/health"
	"bogoime/internal/ibus"
	"bogoime/internal/ime"
	"bogoime/internal/logging"
	"bogoime/internal/metrics"
	"bogoime/internal/translit"
	"bogoime/internal/uinput"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	ibusFlag := flag.Bool("ibus", false, "Started by ibus-daemon")
	installFlag := flag.Bool("install", false, "Install the IBus component file")
	uninstallFlag := flag.Bool("uninstall", false, "Remove the IBus component file")
	configFlag := flag.String("config", "", "Configuration file (default: search the config dir)")
	writeConfigFlag := flag.String("write-config", "", "Write the effective configuration to a file and exit")
	versionFlag := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println("bogo-ibus", Version)
		return
	}

	if err := loadEnvFile(config.EnvFilePath()); err != nil {
		log.Printf("Warning: %v", err)
	}

	path := *configFlag
	if path == "" {
		path = config.FindConfigFile()
	}
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	switch {
	case *writeConfigFlag != "":
		if err := config.Save(cfg, *writeConfigFlag); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		log.Printf("Configuration written to %s", *writeConfigFlag)
		return
	case *installFlag:
		if err := install(cfg); err != nil {
			log.Fatalf("Failed to install: %v", err)
		}
		return
	case *uninstallFlag:
		path, err := ibus.Uninstall(cfg.IBus.ComponentDir)
		if err != nil {
			log.Fatalf("Failed to uninstall: %v", err)
		}
		log.Printf("Removed %s. Run 'ibus restart' to unload.", path)
		return
	}

	if err := run(loader, cfg, *ibusFlag); err != nil {
		slog.Error("bogo-ibus stopped", "error", err)
		os.Exit(1)
	}
}

// loadEnvFile applies the optional dotenv file. Variables already set in
// the environment win.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func install(cfg *config.Config) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	c := ibus.NewComponent(cfg.IBus.BusName, cfg.IBus.EngineName, exe, Version)
	path, err := ibus.Install(cfg.IBus.ComponentDir, c)
	if err != nil {
		return err
	}
	log.Printf("Installed %s. Run 'ibus restart' to load.", path)
	return nil
}

func run(loader *config.Loader, cfg *config.Config, startedByDaemon bool) error {
	logCfg, err := cfg.LoggingConfig()
	if err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	base, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer base.Close()
	logging.SetDefault(base)
	logger := base.Slog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	table, err := cfg.QuirkTable()
	if err != nil {
		return fmt.Errorf("quirk table: %w", err)
	}
	quirks := ime.NewQuirkStore(table)

	loader.OnChange(func(next *config.Config) {
		table, err := next.QuirkTable()
		if err != nil {
			logger.Warn("ignoring quirk rules", "error", err)
			return
		}
		quirks.Swap(table)
		logger.Info("quirk rules reloaded", "rules", table.Len())
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config watch disabled", "path", loader.Path(), "error", err)
	}
	defer loader.Close()
	go func() {
		for err := range loader.Errors() {
			logger.Warn("config reload failed", "error", err)
		}
	}()

	registry := metrics.Default()
	imeMetrics := metrics.NewIMEMetrics(registry)

	backend, err := translit.Open(translit.Options{
		Backend:  cfg.Engine.Backend,
		Command:  cfg.Engine.Command,
		Args:     cfg.Engine.Args,
		Env:      os.Environ(),
		DBusName: cfg.Engine.DBusName,
		DBusPath: dbus.ObjectPath(cfg.Engine.DBusPath),
		Logger:   base.WithComponent("translit").Slog(),
	})
	if err != nil {
		return fmt.Errorf("transliteration engine: %w", err)
	}
	defer backend.Close()
	gateway := ime.NewGateway(backend, ime.GatewayOptions{
		Normalize:   cfg.Engine.Normalize,
		CallTimeout: cfg.Engine.CallTimeout.Duration,
	})

	var injector ime.Injector
	if cfg.Injector.Enabled {
		dev, err := uinput.Open(uinput.Options{
			Path:      cfg.Injector.Path,
			Name:      cfg.Injector.DeviceName,
			ExtraKeys: []uint16{uint16(cfg.Delivery.SentinelKeycode)},
			Logger:    base.WithComponent("uinput").Slog(),
		})
		if err != nil {
			logger.Warn("synthetic key injection unavailable", "path", cfg.Injector.Path, "error", err)
		} else {
			defer dev.Close()
			injector = dev
		}
	}

	panics := logging.NewPanicHandler(logging.PanicHandlerConfig{
		Dir:     logging.DefaultPanicDir(),
		Version: Version,
		Logger:  logger,
	})

	engineOpts := ime.Options{
		MaxRawBytes:      cfg.Delivery.MaxRawBytes,
		MaxPendingEvents: cfg.Delivery.MaxPendingEvents,
		Sentinel:         cfg.Sentinel(),
		Injector:         injector,
		Settler:          ime.SleepSettler{Delay: cfg.Delivery.SettleDelay.Duration},
		Quirks:           quirks,
		Recorder:         imeMetrics,
	}
	build := func(host ime.Host, logger *slog.Logger) *ime.Engine {
		opts := engineOpts
		opts.Logger = logger
		return ime.NewEngine(host, gateway, opts)
	}

	var focus ibus.ApplicationSource
	if cfg.IBus.FocusTracker {
		tracker := ibus.NewFocusTracker(ibus.ExecRunner)
		if tracker.Available() {
			focus = tracker
		} else {
			logger.Info("focus tracker disabled: no X display")
		}
	}

	activeContexts := func(n int) { imeMetrics.ActiveContexts.Set(int64(n)) }
	svc, err := ibus.Start(ctx, ibus.ServiceConfig{
		Address: ibus.ResolveAddress(ctx, cfg.IBus.Address, ibus.ExecRunner),
		BusName: cfg.IBus.BusName,
		Factory: ibus.FactoryOptions{
			EngineName: cfg.IBus.EngineName,
			Build:      build,
			Focus:      focus,
			Panics:     panics,
			OnCreate:   activeContexts,
			OnDestroy:  activeContexts,
		},
		Logger: base.WithComponent("ibus").Slog(),
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	checker := health.NewChecker()
	checker.Register(&health.Component{
		Name:     "engine",
		Critical: true,
		Check:    health.PingCheck(backend.Name(), backend.Ping),
		Timeout:  cfg.Engine.CallTimeout.Duration + time.Second,
	})
	checker.RegisterFunc("ibus", true, health.PingCheck("ibus", svc.Ping))
	checker.RegisterFunc("injector", false, health.EnabledCheck("injector", cfg.Injector.Enabled, func() bool {
		return injector != nil
	}))

	if results := checker.Check(ctx); results["engine"].Status != health.StatusHealthy {
		logger.Warn("transliteration engine not answering yet", "backend", backend.Name(), "error", results["engine"].Error)
	}

	if addr := cfg.Diagnostics.Listen; addr != "" {
		router := diag.NewRouter(diag.Options{
			Registry: registry,
			Health:   checker,
			Quirks:   quirks,
			Sessions: svc.Factory(),
			Config:   func() any { return loader.Config() },
			Logger:   base.WithComponent("diag").Slog(),
		})
		srv, err := diag.Listen(addr, router, base.WithComponent("diag").Slog())
		if err != nil {
			logger.Warn("diagnostics disabled", "addr", addr, "error", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}
	}

	checker.SetReady(true)
	logger.Info("bogo-ibus ready",
		"version", Version,
		"started_by_daemon", startedByDaemon,
		"backend", backend.Name(),
		"injector", injector != nil,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-svc.Done():
		if startedByDaemon {
			logger.Info("ibus connection closed")
			return nil
		}
		return errors.New("ibus connection lost")
	}
	return nil
}
