// The provisioner agent hosts the smart-token provisioning pipeline: it
// boots the secure engine from the bundled firmware, reacts to engine and
// token-module broadcasts, and exposes the per-stage provisioning API over
// HTTP.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/sistema-id/smarttoken-provisioning/cmd/flags"
	"github.com/sistema-id/smarttoken-provisioning/config"
	"github.com/sistema-id/smarttoken-provisioning/engine"
	"github.com/sistema-id/smarttoken-provisioning/events"
	"github.com/sistema-id/smarttoken-provisioning/httpserver"
	"github.com/sistema-id/smarttoken-provisioning/interfaces"
	"github.com/sistema-id/smarttoken-provisioning/pipeline"
	"github.com/sistema-id/smarttoken-provisioning/storage"
	"github.com/sistema-id/smarttoken-provisioning/threatscan"
	"github.com/sistema-id/smarttoken-provisioning/tms"
	"github.com/sistema-id/smarttoken-provisioning/vtap"
)

func main() {
	app := &cli.App{
		Name:  "provisioner",
		Usage: "Smart-token provisioning agent",
		Flags: append([]cli.Flag{
			flags.ConfigFlag,
			flags.ListenAddrFlag,
			flags.AssetDirFlag,
			flags.DataDirFlag,
			flags.TMSBaseFlag,
		}, flags.CommonFlags...),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	cfg, err := loadConfig(cCtx)
	if err != nil {
		logger.Error("Failed to load configuration", "err", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewRouter(logger)

	// The simulator stands in for the vendor token module; it publishes the
	// same broadcasts the vendor SDK would.
	token := vtap.NewSimulator(bus, logger)

	runtime := engine.NewLocalRuntime(cfg.Identity.CustomerID)
	boot := engine.New(runtime, func() ([]byte, error) {
		return engine.ReadFirmware(cfg.AssetDir)
	}, logger)

	collector := threatscan.New(threatscan.SettleDelay, func(reports []interfaces.ThreatReport) {
		for _, report := range reports {
			logger.Warn("Threat detected", "descriptor", report.Descriptor, "detectedAt", report.DetectedAt)
		}
	}, logger)

	monitor := vtap.NewSetupMonitor(token, vtap.CompatibilityHooks{
		OnBlacklisted: func() {
			logger.Error("Device is blacklisted, provisioning will be refused")
		},
	}, logger)

	renewal := vtap.NewRenewalHandler(token, logger)

	subscriptions := []struct {
		kind events.Kind
		fn   events.Handler
	}{
		{events.ProfileLoaded, func(ev events.Event) {
			logger.Info("Profile loaded")
		}},
		{events.EngineReady, boot.OnEngineReady},
		{events.ScanComplete, collector.OnEvent},
		{events.SetupComplete, monitor.OnSetupComplete},
		{events.PushMessage, renewal.OnPushMessage},
	}
	for _, sub := range subscriptions {
		s, err := bus.Subscribe(sub.kind, sub.fn)
		if err != nil {
			logger.Error("Subscription failed", "kind", string(sub.kind), "err", err)
			return err
		}
		defer s.Close()
	}

	store, err := storage.NewPushTokenFileStore(cfg.DataDir, logger)
	if err != nil {
		logger.Error("Failed to open push token store", "err", err)
		return err
	}

	identity := tms.NewClient(cfg.Servers.TMS, logger)

	pipe := pipeline.New(pipeline.Config{
		Identity:     identity,
		Token:        token,
		Engine:       boot,
		Store:        store,
		DownloadPath: cfg.DownloadDir,
		Log:          logger,
	})

	go func() {
		for msg := range pipe.Errors() {
			logger.Warn("Provisioning error surfaced", "msg", msg)
		}
	}()

	handler := httpserver.NewHandler(pipe, token, boot, cfg.Identity, logger)
	serverCfg := flags.ConfigureServer(cCtx, logger, cfg.ListenAddr, cfg.MetricsAddr)
	srv, err := httpserver.New(serverCfg, handler)
	if err != nil {
		logger.Error("Failed to create HTTP server", "err", err)
		return err
	}
	srv.RunInBackground()

	// There is no vendor engine posting broadcasts in this build, so publish
	// the engine-ready event ourselves; its handler reads the firmware and
	// starts the guarded boot.
	bus.Publish(events.Event{Kind: events.EngineReady})

	go func() {
		select {
		case <-boot.Ready():
		case <-ctx.Done():
			return
		}
		logger.Info("Secure engine ready, finishing token module setup")
		if err := token.SetupVTap(ctx); err != nil {
			logger.Error("Token module setup failed", "err", err)
		}
		if _, err := vtap.ReportTroubleshootingLogs(ctx, token, logger); err != nil {
			logger.Error("Troubleshooting log upload failed", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	srv.Shutdown()
	return nil
}

func loadConfig(cCtx *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := cCtx.String(flags.ConfigFlag.Name); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if addr := cCtx.String(flags.ListenAddrFlag.Name); addr != "" {
		cfg.ListenAddr = addr
	}
	if dir := cCtx.String(flags.AssetDirFlag.Name); dir != "" {
		cfg.AssetDir = dir
	}
	if dir := cCtx.String(flags.DataDirFlag.Name); dir != "" {
		cfg.DataDir = dir
	}
	if base := cCtx.String(flags.TMSBaseFlag.Name); base != "" {
		cfg.Servers.TMS = base
	}
	return cfg, nil
}
