package tokenlens

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/igorsilveira/tokenlens/pkg/a2a"
	"github.com/igorsilveira/tokenlens/pkg/config"
	"github.com/igorsilveira/tokenlens/pkg/gateway"
	"github.com/igorsilveira/tokenlens/pkg/telemetry"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the TokenLens A2A server",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg := config.Current()

	if err := config.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format, nil)
	logger.Info("starting tokenlens",
		slog.String("version", version),
		slog.Int("port", cfg.Server.Port),
		slog.String("bind", cfg.Server.Bind),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = telemetry.WithLogger(ctx, logger)

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Version:     version,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = shutdownTracer(sctx)
	}()

	st, al, err := openData(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	reg, provider, err := buildSkills(cfg)
	if err != nil {
		return err
	}
	if provider != nil {
		logger.Info("llm verdicts enabled",
			slog.String("provider", provider.Name()),
			slog.String("model", provider.Model()),
		)
	} else {
		logger.Warn("no llm provider configured, token-health-check will use the fallback verdict")
	}

	dispatcher, err := buildNotifier(cfg, al, logger)
	if err != nil {
		return err
	}
	logger.Info("notifications configured", slog.String("notifier", dispatcher.Name()))
	defer func() {
		dctx, dcancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dcancel()
		if err := dispatcher.Close(dctx); err != nil {
			logger.Warn("notification queue not drained", slog.String("err", err.Error()))
		}
	}()

	retention, err := buildRetention(cfg, st, al)
	if err != nil {
		return err
	}
	retentionDone := make(chan struct{})
	go func() {
		defer close(retentionDone)
		retention.Start(ctx)
	}()
	// Prune jobs use the store; let them finish before it closes.
	defer func() {
		retention.Stop()
		<-retentionDone
	}()

	executor := a2a.NewExecutor(a2a.ExecutorConfig{
		Store:     st,
		Skills:    reg,
		Publisher: dispatcher,
		AuditLog:  al,
		Logger:    logger,
	})

	handler := a2a.NewHandler(a2a.HandlerConfig{
		Card:      a2a.NewAgentCard(cfg.BaseURL(), version, reg.Cards()),
		Executor:  executor,
		Logger:    logger,
		AuthToken: cfg.Server.AuthToken,
	})

	gw := gateway.New(gateway.Config{
		Bind:       cfg.Server.Bind,
		Port:       cfg.Server.Port,
		Logger:     logger,
		A2AHandler: handler,
		Ready:      map[string]gateway.Pinger{"store": st},
	})

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
