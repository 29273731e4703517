package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"waifubot/pkg/bot"
	"waifubot/pkg/cache"
	"waifubot/pkg/catalog"
	"waifubot/pkg/config"
	"waifubot/pkg/ownership"
	"waifubot/pkg/suggest"
	"waifubot/pkg/surreal"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yml", "path to the YAML config file")
	pflag.Parse()

	// Load config.yml
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Load .env for secrets
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	secrets, err := config.LoadSecrets()
	if err != nil {
		log.Fatalf("Failed to load secrets: %v", err)
	}
	if err := secrets.RequireFor(cfg); err != nil {
		log.Fatalf("Missing required environment variable: %v", err)
	}

	// Load the waifu list
	var sources []catalog.Source
	if cfg.Waifu.SourcePath != "" {
		sources = append(sources, catalog.Source{
			Path: cfg.Waifu.SourcePath,
			Mode: catalog.Mode(cfg.Waifu.SourceMode),
		})
	}
	loadCatalog := func() (*catalog.Catalog, error) {
		return catalog.Load(sources, catalog.Options{
			Deduplicate: cfg.Waifu.Deduplicate,
			Franchises:  cfg.Waifu.Franchises,
		})
	}
	waifus, err := loadCatalog()
	if err != nil {
		log.Fatalf("Failed to load waifu list: %v", err)
	}

	// Initialize ownership storage
	backend, cleanup, err := openBackend(cfg, secrets)
	if err != nil {
		log.Fatalf("Failed to open %s storage: %v", cfg.Storage.Backend, err)
	}
	defer cleanup()

	var suggestions *suggest.Log
	if cfg.Waifu.AcceptSuggestions {
		suggestions = suggest.NewLog(cfg.Waifu.SuggestionsPath)
		log.Printf("Accepting waifu suggestions into %s", suggestions.Path())
	}

	// Initialize Bot Handler
	handler := bot.NewHandler(waifus, ownership.NewStore(backend), bot.HandlerConfig{
		FightCooldown: time.Duration(cfg.Waifu.FightCooldownSeconds) * time.Second,
		Admins:        cfg.Waifu.Admins,
		Suggestions:   suggestions,
		Reload:        loadCatalog,
	})

	// Create Discord Session
	dg, err := discordgo.New("Bot " + secrets.DiscordToken)
	if err != nil {
		log.Fatalf("Error creating Discord session: %v", err)
	}
	// Member events and presence checks need the privileged members intent
	dg.Identify.Intents = discordgo.IntentsAllWithoutPrivileged | discordgo.IntentsGuildMembers
	dg.State.TrackMembers = true

	// Register Handlers
	dg.AddHandler(handler.InteractionCreate)
	dg.AddHandler(handler.GuildMemberRemove)
	dg.AddHandler(handler.ChannelDelete)

	// Open Connection
	if err := dg.Open(); err != nil {
		log.Fatalf("Error opening connection: %v", err)
	}

	// Register slash commands (empty string = global, or specify guild ID for faster testing)
	guildID := secrets.DiscordGuildID
	registeredCommands, err := bot.RegisterSlashCommands(dg, guildID)
	if err != nil {
		log.Fatalf("Error registering slash commands: %v", err)
	}

	// Cleanup function to unregister commands on shutdown
	defer func() {
		if err := bot.UnregisterSlashCommands(dg, guildID, registeredCommands); err != nil {
			log.Printf("Error unregistering slash commands: %v", err)
		}
	}()

	log.Printf("Waifu bot is now running with %d waifus. Press CTRL-C to exit.", waifus.Len())

	err = dg.UpdateStatusComplex(discordgo.UpdateStatusData{
		Activities: []*discordgo.Activity{
			{
				Name:  "Custom Status",
				Type:  discordgo.ActivityTypeCustom,
				State: "matchmaking with /waifu",
				Emoji: discordgo.Emoji{
					Name: "💘",
				},
			},
		},
		Status: "online",
	})
	if err != nil {
		log.Printf("Error setting custom status: %v", err)
	}

	// Wait for signal
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	dg.Close()
}

// openBackend builds the configured ownership backend and returns a cleanup
// func that releases its connections. Redis is only dialed when the backend
// kind actually uses it.
func openBackend(cfg *config.Config, secrets *config.Secrets) (ownership.Backend, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	dialRedis := func() (*cache.Cache, error) {
		c, err := cache.NewRedisCache(secrets.RedisURL, cfg.Storage.RedisPrefix)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { c.Close() })
		log.Printf("Connected to Redis (prefix %q)", cfg.Storage.RedisPrefix)
		return c, nil
	}

	var backend ownership.Backend
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		if cfg.Storage.Cache {
			log.Println("Warning: storage.cache only applies to surreal or sqlite, ignoring it")
		}
		log.Println("Storing waifus in memory; they will not survive a restart")
		return ownership.NewMemoryBackend(), cleanup, nil
	case config.BackendRedis:
		c, err := dialRedis()
		if err != nil {
			return nil, cleanup, err
		}
		return ownership.NewRedisBackend(c), cleanup, nil
	case config.BackendSurreal:
		host := surreal.NormalizeHost(secrets.SurrealHost)
		log.Printf("Connecting to SurrealDB at %s (NS: %s, DB: %s)", host, secrets.SurrealNamespace, secrets.SurrealDatabase)
		client, err := surreal.NewClient(host, secrets.SurrealUser, secrets.SurrealPass, secrets.SurrealNamespace, secrets.SurrealDatabase)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, client.Close)
		backend = ownership.NewSurrealBackend(client)
	case config.BackendSQLite:
		db, err := ownership.NewSQLiteBackend(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { db.Close() })
		log.Printf("Storing waifus in %s", cfg.Storage.SQLitePath)
		backend = db
	default:
		return nil, cleanup, &config.ConfigError{Field: "storage.backend", Value: cfg.Storage.Backend, Reason: "unknown backend"}
	}

	if !cfg.UsesRedis() {
		return backend, cleanup, nil
	}
	c, err := dialRedis()
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	log.Println("Caching waifu ownership in Redis")
	return ownership.NewCachedBackend(backend, c), cleanup, nil
}
