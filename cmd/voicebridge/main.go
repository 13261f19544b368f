package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/voicebridge/internal/adapters/http"
	"github.com/dkeye/voicebridge/internal/adapters/rtc"
	"github.com/dkeye/voicebridge/internal/app"
	"github.com/dkeye/voicebridge/internal/config"
	"github.com/dkeye/voicebridge/internal/domain"
	"github.com/dkeye/voicebridge/internal/thread"
)

var _ router.Transport = (*app.Transport)(nil)

type flags struct {
	configPath string
	roomURL    string
	token      string
}

func main() {
	var f flags
	rootCmd := &cobra.Command{
		Use:           "voicebridge",
		Short:         "Voice client transport bridge over WebRTC",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}
	rootCmd.Flags().StringVar(&f.configPath, "config", "", "config file (default config/config.<CONFIG_ENV>.yaml)")
	rootCmd.Flags().StringVar(&f.roomURL, "room-url", "", "room signaling url, overrides room.url")
	rootCmd.Flags().StringVar(&f.token, "token", "", "room token, overrides room.token")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging initializes zerolog global logger early so config.Load can use it.
func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func run(ctx context.Context, f flags) error {
	setupLogging()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}
	if f.roomURL != "" {
		cfg.Room.URL = f.roomURL
	}
	if f.token != "" {
		cfg.Room.Token = f.token
	}

	factory, err := rtc.NewFactory(rtc.SettingsFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("webrtc setup: %w", err)
	}

	th := thread.New("transport", thread.WithStrict(cfg.Strict))
	defer th.Stop()

	tr := app.NewTransport(app.Context{
		Thread:    th,
		Callbacks: logCallbacks{},
		Options: app.Options{
			EnableMic:          cfg.Transport.EnableMic,
			EnableCam:          cfg.Transport.EnableCam,
			AudioLevelInterval: cfg.Transport.AudioLevelInterval,
			SpeakingThreshold:  cfg.Transport.SpeakingThreshold,
			SilenceDelay:       cfg.Transport.SilenceDelay,
		},
	}, factory)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(cfg, tr),
	}

	go func() {
		log.Info().Str("addr", addr).Msg("status api started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	}()

	if cfg.Room.URL != "" {
		go connect(ctx, tr, cfg.Room)
	} else {
		log.Warn().Msg("no room url configured, waiting for shutdown")
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if tr.State(shutdownCtx) == domain.TransportStateConnected {
		if _, err := tr.Disconnect(shutdownCtx).Await(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("disconnect")
		}
	}
	tr.Release(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}

func connect(ctx context.Context, tr *app.Transport, room config.RoomConfig) {
	auth := domain.RoomAuth{RoomURL: room.URL}
	if room.Token != "" {
		auth.Token = &room.Token
	}
	data, err := json.Marshal(auth)
	if err != nil {
		log.Error().Err(err).Msg("encode auth")
		return
	}
	if _, err := tr.Connect(ctx, domain.AuthBundle{Data: string(data)}).Await(ctx); err != nil {
		log.Error().Err(err).Str("room", room.URL).Msg("connect failed")
		return
	}
	log.Info().Str("room", room.URL).Msg("connected")
}
