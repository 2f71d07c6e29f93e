// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/coder/quartz"
	"github.com/jason-s-yu/rummy/internal/auth"
	"github.com/jason-s-yu/rummy/internal/cache"
	"github.com/jason-s-yu/rummy/internal/config"
	"github.com/jason-s-yu/rummy/internal/game"
	"github.com/jason-s-yu/rummy/internal/handlers"
	"github.com/jason-s-yu/rummy/internal/middleware"
	"github.com/jason-s-yu/rummy/internal/rating"
	"github.com/jason-s-yu/rummy/internal/store"
	"github.com/jason-s-yu/rummy/internal/turntimer"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

var CLI struct {
	Config    string `short:"c" long:"config" default:"rummy.hcl" help:"Path to HCL configuration file"`
	EnvFile   string `long:"env-file" help:"Extra .env file to load before reading the environment"`
	Addr      string `short:"a" long:"addr" help:"Address to listen on (overrides config)"`
	LogLevel  string `short:"l" long:"log-level" help:"Log level (overrides config)"`
	RedisAddr string `long:"redis-addr" help:"Redis address (overrides config)"`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("rummy-server"),
		kong.Description("Distributed Rummy session server"),
	)

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if CLI.EnvFile != "" {
		if err := config.LoadEnvFile(CLI.EnvFile); err != nil {
			logger.WithError(err).Fatal("failed to load env file")
		}
	}
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}
	if CLI.Addr != "" {
		cfg.Address = CLI.Addr
	}
	if CLI.LogLevel != "" {
		cfg.LogLevel = CLI.LogLevel
	}
	if CLI.RedisAddr != "" {
		cfg.RedisAddr = CLI.RedisAddr
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid config")
	}
	logger.SetLevel(cfg.Level())

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("server exited")
		kctx.Exit(1)
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.Connect(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()
	logger.WithField("addr", cfg.RedisAddr).Info("connected to Redis")

	st := store.New(rdb,
		store.WithRoomTTL(cfg.RoomTTLDuration()),
		store.WithRatingTTL(cfg.RatingTTLDuration()),
	)

	var iss *auth.Issuer
	if cfg.PrivateKeyPath != "" {
		iss, err = auth.NewIssuerFromFiles(cfg.PrivateKeyPath, cfg.PublicKeyPath, cfg.TokenExpire)
	} else {
		logger.Warn("no signing keys configured, tokens will not survive a restart")
		iss, err = auth.NewIssuer(cfg.TokenExpire)
	}
	if err != nil {
		return err
	}

	timers := turntimer.New(quartz.NewReal(), logger)
	defer timers.Stop()

	hub := handlers.NewHub(st, logger)
	if err := hub.Start(ctx); err != nil {
		return err
	}

	ratings := rating.NewService(st, logger)
	engine := game.NewEngine(st, timers, ratings, hub, logger,
		game.WithTurnDuration(cfg.TurnDuration()),
		game.WithBotDelay(cfg.BotDelay()),
	)

	sweeper := turntimer.NewSweeper(timers, st, cfg.SweepIntervalDuration())
	go func() {
		if err := sweeper.Run(ctx); err != nil {
			logger.WithError(err).Error("deadline sweeper stopped")
		}
	}()

	srv := &handlers.Server{
		Engine:  engine,
		Hub:     hub,
		Ratings: ratings,
		Issuer:  iss,
		Logger:  logger,
	}
	httpServer := &http.Server{
		Addr:              cfg.Address,
		Handler:           middleware.LogMiddleware(logger)(srv.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", cfg.Address)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
