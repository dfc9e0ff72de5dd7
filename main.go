package main

import (
	"flag"
	stdlog "log"

	"go.uber.org/zap"

	"github.com/embedops/flashgate/pkg/api"
	"github.com/embedops/flashgate/pkg/auth"
	"github.com/embedops/flashgate/pkg/config"
	"github.com/embedops/flashgate/pkg/flash"
	"github.com/embedops/flashgate/pkg/ratelimit"
	"github.com/embedops/flashgate/pkg/runner"
	"github.com/embedops/flashgate/pkg/version"
	"github.com/embedops/flashgate/pkg/weather"
)

func main() {
	debug := false
	flag.BoolVar(&debug, "debug", false, "enables debug mode")
	flag.Parse()

	log := setupLogger(debug)
	log.With("version", version.String()).Info("Starting flashgate api")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading flashgate config: %v", err)
	}
	cfg.Defaults()
	if err := cfg.Validate(debug); err != nil {
		log.Fatalf("Invalid flashgate config: %v", err)
	}

	if debug {
		log.Infof("%#v", cfg)
	}

	users, err := newUserRepository(cfg)
	if err != nil {
		log.Fatalf("Error opening user store: %v", err)
	}
	defer func() { _ = users.Close() }()

	authLimiter := ratelimit.NewFixedWindow(ratelimit.WindowConfig{
		Window: cfg.RateLimit.Window.Std(),
		Max:    cfg.RateLimit.AuthMax,
	})
	defer authLimiter.Stop()
	apiLimiter := ratelimit.NewFixedWindow(ratelimit.WindowConfig{
		Window: cfg.RateLimit.Window.Std(),
		Max:    cfg.RateLimit.APIMax,
	})
	defer apiLimiter.Stop()
	throttle := ratelimit.NewCredentialThrottle(ratelimit.ThrottleConfig{
		Window:      cfg.Throttle.Window.Std(),
		MaxFailures: cfg.Throttle.MaxFailures,
	})
	defer throttle.Stop()

	issuer := auth.NewTokenIssuer(cfg.Auth)
	gate := issuer.Middleware()

	flashService := flash.NewService(log, cfg.Flash, runner.New(log))
	weatherClient := weather.NewClient(cfg.Weather)

	server := api.NewServer(log.Desugar(), cfg, debug)
	server.Engine().Use(apiLimiter.Middleware("api"))

	err = server.RegisterAll([]api.APIController{
		auth.NewController(log, users, issuer, authLimiter, throttle),
		flash.NewController(log, flashService, flash.SerialPortLister{}, gate),
		weather.NewController(log, weatherClient, gate),
	})
	if err != nil {
		log.Fatalf("Error registering flashgate controllers: %v", err)
	}

	if err := server.Listen(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}

func newUserRepository(cfg config.Config) (auth.Repository, error) {
	if cfg.Users.Store == "bolt" {
		return auth.NewBoltStore(cfg.Users.BoltPath)
	}
	return auth.NewMemoryStore(), nil
}

func setupLogger(debug bool) *zap.SugaredLogger {
	var zlog *zap.Logger
	var err error
	if debug {
		zlog, err = zap.NewDevelopment()
	} else {
		zlog, err = zap.NewProduction()
	}
	if err != nil {
		stdlog.Fatalf("failed to set up logger: %v", err)
	}
	return zlog.Sugar()
}
