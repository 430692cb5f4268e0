package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/susu3304/tablesplit/internal/api"
	"github.com/susu3304/tablesplit/internal/bot"
	"github.com/susu3304/tablesplit/internal/config"
	"github.com/susu3304/tablesplit/internal/db"
	"github.com/susu3304/tablesplit/internal/events"
	"github.com/susu3304/tablesplit/internal/payments"
	"github.com/susu3304/tablesplit/internal/split"
	"golang.org/x/sync/errgroup"
)

type ledgerStore interface {
	split.Store
	split.Directory
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store ledgerStore
	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		if err := database.RunMigrations(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		store = database
	} else {
		log.Println("DATABASE_URL not set, using in-memory store")
		store = split.NewMemoryStore()
	}

	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			log.Fatalf("Failed to load seed: %v", err)
		}
		if err := split.ApplySeed(ctx, store, seed); err != nil {
			log.Fatalf("Failed to apply seed: %v", err)
		}
	}

	broker := events.NewBroker()
	publishers := events.Multi{broker}

	if cfg.RabbitMQURL != "" {
		rabbit, err := events.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to connect to event bus: %v", err)
		}
		defer rabbit.Close()
		publishers = append(publishers, rabbit)
	}

	var discordBot *bot.Bot
	if cfg.DiscordToken != "" {
		discordBot, err = bot.New(cfg.DiscordToken, cfg.StaffChannelID)
		if err != nil {
			log.Fatalf("Failed to create discord bot: %v", err)
		}
		publishers = append(publishers, discordBot.Notifier())
	}

	var gateway payments.Gateway = payments.Manual{}
	if cfg.MidtransServerKey != "" {
		gateway = payments.NewMidtrans(cfg.MidtransServerKey, cfg.MidtransProduction)
	}

	svc := split.NewService(store, publishers, split.WithPendingTTL(cfg.PendingTTL))
	apiServer := api.New(cfg, svc, store, gateway, broker)
	expiry := split.NewExpiryWorker(svc, cfg.ExpiryInterval)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apiServer.Start(ctx)
	})
	g.Go(func() error {
		return expiry.Run(ctx)
	})
	if discordBot != nil {
		g.Go(func() error {
			return discordBot.Run(ctx, svc, store)
		})
	}

	if err := g.Wait(); err != nil {
		log.Printf("Shutting down: %v", err)
		return
	}
	log.Println("Shutting down...")
}
