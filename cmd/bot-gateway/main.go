package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tg-combo-bot/internal/adapters/bot"
	"tg-combo-bot/internal/adapters/repo"
	"tg-combo-bot/internal/domain"
	"tg-combo-bot/internal/infra/config"
	"tg-combo-bot/internal/infra/db"
	"tg-combo-bot/internal/infra/log"
	"tg-combo-bot/internal/infra/metrics"
	"tg-combo-bot/internal/infra/queue"
	"tg-combo-bot/internal/usecase/moderation"
	"tg-combo-bot/internal/usecase/notify"
	"tg-combo-bot/internal/usecase/submission"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	metrics.MustRegister(prometheus.DefaultRegisterer)
	metrics.StartServer(ctx, logger, cfg.MetricsAddr)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	client := bot.NewClient(botAPI, cfg.Telegram.ChannelID)

	admins := domain.NewAdminSet(cfg.AdminIDs)
	if len(admins) == 0 {
		logger.Warn().Msg("ADMIN_IDS пуст, заявки некому модерировать")
	}

	notifyQueue := buildQueue(cfg, logger)
	notifyService := notify.NewService(repoAdapter, client, admins, logger)
	if notifyQueue != nil {
		go notifyService.Run(ctx, notifyQueue)
	}

	sources := submission.NewSources(cfg.Sources)
	engine := submission.NewEngine(repoAdapter, repoAdapter, notifyQueue, notifyService, sources, logger)
	moderationService := moderation.NewService(repoAdapter, client, client, admins, logger)

	h := bot.NewHandler(client, logger, engine, moderationService)

	if cfg.Telegram.WebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("некорректный URL вебхука")
		}
		if _, err := botAPI.Request(wh); err != nil {
			logger.Fatal().Err(err).Msg("не удалось установить вебхук")
		}
	}

	r := chi.NewRouter()
	r.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r}
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("бот-гейтвей запущен")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка бота")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// buildQueue выбирает бекенд очереди уведомлений. Без настроенного бекенда
// рассылка выполняется сразу после подтверждения заявки.
func buildQueue(cfg config.AppConfig, logger zerolog.Logger) domain.NotifyQueue {
	switch cfg.Queue.Backend {
	case "rabbitmq":
		if cfg.AMQPURL == "" {
			logger.Warn().Msg("AMQP_URL не задан, очередь уведомлений отключена")
			return nil
		}
		q, err := queue.NewRabbitNotifyQueue(cfg.AMQPURL, cfg.Queue.Notify)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к RabbitMQ")
		}
		return q
	default:
		if cfg.RedisAddr == "" {
			logger.Warn().Msg("REDIS_ADDR не задан, очередь уведомлений отключена")
			return nil
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return queue.NewRedisNotifyQueue(client, cfg.Queue.Notify)
	}
}
