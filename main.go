package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/raine/telegram-ebay-bot/internal/bot"
	"github.com/raine/telegram-ebay-bot/internal/config"
	"github.com/raine/telegram-ebay-bot/internal/conversation"
	"github.com/raine/telegram-ebay-bot/internal/ebay"
	"github.com/raine/telegram-ebay-bot/internal/imagehost"
	"github.com/raine/telegram-ebay-bot/internal/listing"
	"github.com/raine/telegram-ebay-bot/internal/llm"
	"github.com/raine/telegram-ebay-bot/internal/server"
	"github.com/raine/telegram-ebay-bot/internal/shipping"
	"github.com/raine/telegram-ebay-bot/internal/storage"
)

func fatal(format string, args ...any) {
	log.Fatal().Msg(fmt.Sprintf(format, args...))
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config.LoadEnvFile()

	configPath := config.DefaultPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal("failed to load config %s: %v", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("%v", err)
	}

	closeLog := setupLogging(cfg.Logging)
	defer closeLog()

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	encryptionKey, err := storage.DeriveKey(cfg.Storage.TokenKey)
	if err != nil {
		fatal("failed to derive encryption key: %v", err)
	}
	store, err := storage.NewSQLiteStore(cfg.Storage.DBPath, encryptionKey)
	if err != nil {
		fatal("failed to initialize store: %v", err)
	}
	defer store.Close()
	log.Info().Str("dbPath", cfg.Storage.DBPath).Msg("store initialized")

	classifier, err := shipping.New(cfg.Shipping)
	if err != nil {
		fatal("invalid shipping config: %v", err)
	}
	catalog, err := listing.NewCatalog(cfg.ProfileList(), cfg.Profiles.Default, cfg.Profiles.Templates)
	if err != nil {
		fatal("invalid profiles config: %v", err)
	}

	credentials := ebay.NewCredentialProvider(cfg.AuthConfig(), store)
	ebayClient := ebay.NewClient(ebay.ClientOpts{
		BaseURL: cfg.Ebay.APIBaseURL,
		Tokens:  credentials,
	})

	classes := make([]string, 0, len(classifier.Classes()))
	for _, c := range classifier.Classes() {
		classes = append(classes, string(c))
	}
	gemini, err := llm.NewGeminiAnalyzer(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, classes)
	if err != nil {
		fatal("failed to initialize gemini vision analyzer: %v", err)
	}
	log.Info().Str("model", cfg.Gemini.Model).Msg("gemini vision analyzer initialized")

	images, err := newImageHost(ctx, cfg.ImageHost)
	if err != nil {
		fatal("failed to initialize image host: %v", err)
	}
	log.Info().Str("backend", cfg.ImageHost.Backend).Msg("image host initialized")

	machine := conversation.NewMachine(conversation.Deps{
		Images:         images,
		Analyzer:       llm.NewCachedAnalyzer(gemini, store),
		Categories:     ebay.NewCategorySuggester(ebayClient, cfg.Ebay.CategoryTreeID, cfg.Ebay.CategoryCacheTTL),
		Publisher:      ebay.NewPublisher(ebayClient, cfg.PublisherConfig()),
		Profiles:       store,
		Listings:       store,
		Catalog:        catalog,
		Classifier:     classifier,
		AnalyzeTimeout: cfg.Gemini.Timeout,
	})

	tg, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		fatal("failed to initialize telegram bot: %v", err)
	}
	tg.Debug = false
	log.Info().Str("username", tg.Self.UserName).Msg("authorized on account")

	// Register bot commands for Telegram's command menu
	bot.RegisterCommands(tg)

	b := bot.NewBot(tg, store, machine, cfg.Telegram.AdminID)
	defer b.Shutdown()

	if token, _ := store.GetRefreshToken(); token == "" && cfg.Ebay.RefreshToken == "" {
		log.Warn().
			Str("url", credentials.AuthCodeURL(cfg.Ebay.CallbackState)).
			Msg("no eBay refresh token stored, open the consent URL to authorize")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runBot(ctx, tg, b)
	})

	srv := server.New(cfg.Server.Addr, credentials, cfg.Ebay.CallbackState)
	g.Go(func() error {
		return srv.Run(ctx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

// setupLogging applies the log level and, outside systemd, mirrors the log
// to a file.
func setupLogging(cfg config.LoggingConfig) func() {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// JOURNAL_STREAM is set by systemd when running as a service.
	// Skip file logging under systemd (journald handles it, and ProtectSystem=strict
	// makes the working directory read-only).
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd || cfg.File == "" {
		return func() {}
	}

	logFile, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fatal("failed to open log file: %v", err)
	}
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
	fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
	log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))
	log.Info().Str("logFile", cfg.File).Msg("logging to file")
	return func() { logFile.Close() }
}

func newImageHost(ctx context.Context, cfg config.ImageHostConfig) (imagehost.Host, error) {
	switch cfg.Backend {
	case config.ImageHostS3:
		return imagehost.NewS3FromEnv(ctx, imagehost.S3Opts{
			Bucket:        cfg.S3.Bucket,
			Prefix:        cfg.S3.Prefix,
			PublicBaseURL: cfg.S3.PublicBaseURL,
			PresignExpiry: cfg.S3.PresignExpiry,
		})
	default:
		return imagehost.NewCloudinary(imagehost.CloudinaryOpts{
			CloudName: cfg.Cloudinary.CloudName,
			APIKey:    cfg.Cloudinary.APIKey,
			APISecret: cfg.Cloudinary.APISecret,
			Folder:    cfg.Cloudinary.Folder,
		})
	}
}

func runBot(ctx context.Context, tg *tgbotapi.BotAPI, b *bot.Bot) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := tg.GetUpdatesChan(updateConfig)

	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping bot update loop")
			tg.StopReceivingUpdates()
			log.Info().Msg("waiting for active handlers to finish")
			wg.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				log.Warn().Msg("updates channel closed")
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func(u tgbotapi.Update) {
				defer wg.Done()
				b.HandleUpdate(ctx, u)
			}(update)
		}
	}
}
