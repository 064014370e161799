// Package main wires the data layer together against a live record store.
// It is a smoke-test entry point: it signs in with the configured token,
// fetches the current user and the menu, and lists the first page of
// orders while logging every sync-bus announcement.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dinehall/datalayer/internal/api"
	"github.com/dinehall/datalayer/internal/config"
	"github.com/dinehall/datalayer/internal/menu"
	"github.com/dinehall/datalayer/internal/metrics"
	"github.com/dinehall/datalayer/internal/order"
	"github.com/dinehall/datalayer/internal/refresh"
	"github.com/dinehall/datalayer/internal/session"
	"github.com/dinehall/datalayer/internal/syncbus"
	"github.com/dinehall/datalayer/internal/user"
	"github.com/dinehall/datalayer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to optional YAML config file")
	envPath := flag.String("env", ".env", "Path to optional .env file")
	flag.Parse()

	// Missing .env is fine; the environment itself still applies.
	_ = godotenv.Load(*envPath)

	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("posadmin", logger.Config{Level: cfg.LogLevel})
	log.WithField("base_url", cfg.BaseURL).Info("starting data layer")

	sess := session.NewStore()
	if cfg.Token != "" {
		sess.SetToken(cfg.Token)
	}

	collector := metrics.NewCollector("posadmin")
	bus := syncbus.New(log.WithField("component", "syncbus"))

	gateway, err := api.NewGateway(api.GatewayConfig{
		BaseURL:           cfg.BaseURL,
		Timeout:           cfg.RequestTimeout,
		Tokens:            sess,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, log.WithField("component", "gateway"), collector)
	if err != nil {
		log.WithError(err).Error("create gateway")
		os.Exit(1)
	}

	client := api.NewClient(gateway, api.NewCache(cfg.CacheTTL), api.NewInflight(), bus, api.ClientOptions{
		CacheableEndpoints: cfg.CacheableEndpoints,
		Logger:             log.WithField("component", "client"),
		Collector:          collector,
	})

	bus.Subscribe(syncbus.TopicDataRefresh, func(interface{}) {
		log.Debug("data refresh requested")
	})
	bus.Subscribe(syncbus.TopicEntityUpdated, func(payload interface{}) {
		if update, ok := payload.(syncbus.EntityUpdate); ok {
			log.WithField("kind", update.Kind).Debug("entity updated")
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	users := user.NewService(client, log.WithField("component", "user"))
	if u, err := users.Current(ctx); err != nil {
		log.WithError(err).Warn("current user unavailable")
	} else {
		log.WithField("user", u.Email).WithField("role", u.Role).Info("signed in")
	}

	menus := menu.NewService(client, bus, log.WithField("component", "menu"))
	if items, err := menus.List(ctx); err != nil {
		log.WithError(err).Warn("menu unavailable")
	} else {
		log.WithField("items", len(items)).Info("menu loaded")
	}

	orders := order.NewService(client, bus, log.WithField("component", "orders"))
	if page, err := orders.List(ctx, 1, 20); err != nil {
		log.WithError(err).Warn("orders unavailable")
	} else {
		for _, o := range page {
			fmt.Printf("%-12s %-12s %8.2f\n", o.OrderNumber, o.Status, o.Subtotal())
		}
	}

	if cfg.RefreshSpec != "" {
		scheduler, err := refresh.NewScheduler(bus, cfg.RefreshSpec, log.WithField("component", "refresh"))
		if err != nil {
			log.WithError(err).Error("create refresh scheduler")
			os.Exit(1)
		}
		scheduler.Start()
		defer scheduler.Stop()

		log.Info("watching for changes; Ctrl-C to exit")
		<-ctx.Done()
	}
}
