package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ad/go-python-coach/internal/config"
	"github.com/ad/go-python-coach/internal/curriculum"
	"github.com/ad/go-python-coach/internal/handlers"
	"github.com/ad/go-python-coach/internal/llm"
	"github.com/ad/go-python-coach/internal/logging"
	"github.com/ad/go-python-coach/internal/server"
	"github.com/ad/go-python-coach/internal/services"
	"github.com/ad/go-python-coach/internal/storage"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("COACH_CONFIG"))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.LogDevelopment)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	catalog := curriculum.Default()

	store, err := storage.Open(ctx, cfg, catalog.Len())
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer store.Close()

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	opts := []bot.Option{bot.WithHTTPClient(15*time.Second, httpClient)}
	if cfg.WebhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(cfg.WebhookSecret))
	}
	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	// Retry getMe with shorter timeout
	var botInfo *tgmodels.User
	for i := 0; i < 3; i++ {
		logger.Info("connecting to Telegram API", zap.Int("attempt", i+1))
		getMeCtx, getMeCancel := context.WithTimeout(ctx, 10*time.Second)
		botInfo, err = b.GetMe(getMeCtx)
		getMeCancel()
		if err == nil {
			break
		}
		logger.Warn("getMe failed", zap.Int("attempt", i+1), zap.Error(err))
		if i < 2 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		return fmt.Errorf("get bot info after 3 attempts: %w", err)
	}

	coach := buildCoach(cfg, catalog, store, logger)
	lessons := buildLessons(cfg, catalog, coach, store.Lessons(), logger)

	errorManager := services.NewErrorManager(b, cfg.AdminID, logger)
	msgManager := services.NewMessageManager(b, errorManager, logger)
	handler := handlers.NewBotHandler(cfg.AdminID, coach, lessons, catalog, msgManager, errorManager, logger)

	b.RegisterHandlerMatchFunc(func(update *tgmodels.Update) bool {
		return true
	}, handler.HandleUpdate, logMiddleware(logger))

	reminder := services.NewReminder(coach, store, msgManager, cfg.ReminderInterval, logger)
	go reminder.Run(ctx)

	var webhook http.Handler
	if cfg.UseWebhook() {
		webhook = b.WebhookHandler()
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.New(store, catalog.Len(), webhook, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("bot started",
		zap.String("username", botInfo.Username),
		zap.Int64("admin_id", cfg.AdminID),
		zap.String("store", cfg.Store),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Bool("webhook", cfg.UseWebhook()),
	)

	if cfg.UseWebhook() {
		if _, err := b.SetWebhook(ctx, &bot.SetWebhookParams{
			URL:         cfg.WebhookURL,
			SecretToken: cfg.WebhookSecret,
		}); err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
		b.StartWebhook(ctx)
		return nil
	}

	if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		logger.Warn("delete webhook failed", zap.Error(err))
	}
	b.Start(ctx)
	return nil
}

func newLLMClient(cfg config.Config) *llm.Client {
	return llm.NewClient(llm.Config{
		APIKey:      cfg.DeepSeekAPIKey,
		BaseURL:     cfg.DeepSeekBaseURL,
		Model:       cfg.DeepSeekModel,
		Timeout:     cfg.LLMTimeout,
		MaxAttempts: cfg.LLMMaxRetries,
	})
}

func buildCoach(cfg config.Config, catalog *curriculum.Curriculum, store services.ProgressStore, logger *zap.Logger) *services.Coach {
	responder := llm.NewResponder(newLLMClient(cfg), logger)
	engine := services.NewProgressEngine(catalog, services.NewKeywordClassifier(catalog), responder)
	return services.NewCoach(engine, store, logger)
}

func buildLessons(cfg config.Config, catalog *curriculum.Curriculum, coach *services.Coach, cache services.LessonCache, logger *zap.Logger) *services.LessonService {
	writer := llm.NewLessonWriter(newLLMClient(cfg), catalog.Len(), logger)
	return services.NewLessonService(coach, catalog, cache, writer, logger)
}

func logMiddleware(logger *zap.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
			if update.Message != nil && update.Message.From != nil {
				logger.Debug("message received",
					zap.String("from", services.DescribeSender(update.Message.From)),
					zap.String("text", update.Message.Text),
				)
			}
			next(ctx, b, update)
		}
	}
}
