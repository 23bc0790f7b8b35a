package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/groupcall/internal/adapters/http"
	"github.com/dkeye/groupcall/internal/adapters/memory"
	"github.com/dkeye/groupcall/internal/adapters/rtc"
	"github.com/dkeye/groupcall/internal/app"
	"github.com/dkeye/groupcall/internal/app/orch"
	"github.com/dkeye/groupcall/internal/config"
	"github.com/dkeye/groupcall/internal/core"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "groupcall",
		Short:        "Group video call signaling server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd.Flags())
		},
	}
	cmd.Flags().Int("port", 8080, "HTTP listen port")
	cmd.Flags().String("mode", "release", "gin mode: debug, release or test")
	cmd.Flags().String("config-env", "", "config environment, reads config/config.<env>.yaml")
	return cmd
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func newMediaEngine(cfg *config.Config) (core.MediaEngine, error) {
	switch cfg.Media.Engine {
	case "memory":
		return memory.NewEngine(), nil
	case "pion":
		return rtc.NewEngine(rtc.Config{
			ICEServers:  cfg.Media.ICEServers,
			PLIInterval: cfg.Media.PLIInterval,
		})
	default:
		return nil, fmt.Errorf("unknown media engine %q", cfg.Media.Engine)
	}
}

func run(ctx context.Context, flags *pflag.FlagSet) error {
	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}
	setupLogger(cfg)

	engine, err := newMediaEngine(cfg)
	if err != nil {
		return err
	}

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(engine),
		Hooks:    orch.Hooks{TestDisable: cfg.Hooks.TestDisable},
	}

	g, ctx := errgroup.WithContext(ctx)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(ctx, cfg, o),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", addr).Str("engine", cfg.Media.Engine).Msg("group call server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		o.Rooms.CloseAll()
		log.Info().Msg("Server exited gracefully")
		return err
	})

	return g.Wait()
}
