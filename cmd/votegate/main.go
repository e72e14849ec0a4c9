package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"votegate/internal/admin"
	"votegate/internal/config"
	"votegate/internal/dispatch"
	"votegate/internal/forward"
	"votegate/internal/geoip"
	"votegate/internal/keys"
	"votegate/internal/listener"
	"votegate/internal/logging"
	"votegate/internal/metrics"
)

const version = "1.0.0"

func main() {
	var (
		configPath = flag.String("config", "config.yml", "path to configuration file")
		debug      = flag.Bool("debug", false, "force debug logging")
		console    = flag.Bool("console", false, "human-readable log output")
	)
	flag.Parse()

	cfg, created, err := config.LoadOrCreate(*configPath)
	if err != nil {
		bootLog := logging.New(logging.Options{})
		bootLog.Fatal().Err(err).Msg("configuration failed")
	}

	log := logging.New(logging.Options{
		Debug:   cfg.Debug || *debug,
		Console: *console,
	})
	if created {
		log.Info().Str("path", *configPath).Msg("wrote default configuration; add site tokens before accepting structured votes")
	}

	hostKey, generated, err := keys.LoadOrCreate(cfg.RSADir)
	if err != nil {
		log.Fatal().Err(err).Msg("loading host key pair failed")
	}
	if generated {
		log.Info().Str("dir", cfg.RSADir).Msg("generated 2048-bit host key pair; distribute public.pem to legacy site operators")
	}

	tokens, err := keys.NewTokenStore(cfg.Tokens)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid site tokens")
	}
	if tokens.Len() == 0 {
		log.Warn().Msg("no site tokens configured; structured votes will all be rejected")
	}

	registry := dispatch.NewRegistry()
	registry.Register(forward.NewLogConsumer(log))
	if cfg.Forward.Redis.Enabled {
		rf, err := forward.NewRedisForwarder(cfg.Forward.Redis.Addr, cfg.Forward.Redis.Key)
		if err != nil {
			log.Fatal().Err(err).Msg("redis forwarder failed to start")
		}
		defer rf.Close()
		registry.Register(rf)
		log.Info().Str("addr", cfg.Forward.Redis.Addr).Str("key", cfg.Forward.Redis.Key).Msg("redis forwarding enabled")
	}

	var geo *geoip.Resolver
	if cfg.GeoIPDB != "" {
		geo, err = geoip.Open(cfg.GeoIPDB)
		if err != nil {
			log.Fatal().Err(err).Msg("opening GeoIP database failed")
		}
		defer geo.Close()
	}

	m := metrics.New()
	d := dispatch.New(registry, log)

	l, err := listener.NewVoteListener(listener.VoteListenerConfig{
		Addr:            cfg.ListenAddr(),
		HostKey:         hostKey,
		Tokens:          tokens,
		Dispatcher:      d,
		Metrics:         m,
		GeoIP:           geo,
		Log:             log,
		ReadTimeout:     cfg.ReadTimeout,
		DispatchTimeout: cfg.DispatchTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("listener configuration failed")
	}

	ctx := context.Background()
	if err := l.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("listener failed to start")
	}
	log.Info().
		Str("addr", l.Addr()).
		Int("sites", tokens.Len()).
		Int("consumers", registry.Len()).
		Msg("votegate listening")

	var api *admin.API
	if cfg.AdminAddr != "" {
		api = admin.New(admin.Config{
			Addr:         cfg.AdminAddr,
			Metrics:      m,
			Version:      version,
			ListenerAddr: l.Addr,
			Consumers:    registry.Names(),
			Sites:        tokens.Sites(),
		})
		api.Start()
		log.Info().Str("addr", cfg.AdminAddr).Msg("admin API listening")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("listener shutdown incomplete")
	}
	if api != nil {
		if err := api.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("admin API shutdown incomplete")
		}
	}
	log.Info().Msg("votegate stopped")
}
