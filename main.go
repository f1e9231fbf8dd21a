package main

import (
	"buddiepay/cache"
	"buddiepay/config"
	"buddiepay/controllers"
	"buddiepay/database"
	"buddiepay/middleware"
	"buddiepay/services"
	"buddiepay/utils"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Ошибка запуска сервера: %v", err)
	}
}

// buildProviders регистрирует только настроенных провайдеров. Банковский перевод доступен всегда.
func buildProviders(cfg *config.Config) []services.PaymentProvider {
	timeout := cfg.Payment.ProviderTimeout
	providers := []services.PaymentProvider{services.NewBankTransferProvider()}

	if cfg.Paystack.SecretKey != "" {
		providers = append(providers, services.NewPaystackProvider(cfg.Paystack, timeout))
	}
	if cfg.Flutterwave.SecretKey != "" {
		providers = append(providers, services.NewFlutterwaveProvider(cfg.Flutterwave, cfg.App.Name, timeout))
	}
	if cfg.Stripe.SecretKey != "" {
		providers = append(providers, services.NewStripeProvider(cfg.Stripe, cfg.App.FrontendURL))
	}
	if cfg.PayPal.ClientID != "" && cfg.PayPal.ClientSecret != "" {
		providers = append(providers, services.NewPayPalProvider(cfg.PayPal, cfg.App.FrontendURL, timeout))
	}

	for _, p := range providers {
		utils.LogInfo("Платежный провайдер подключен: %s", p.Method())
	}
	return providers
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Не удалось прочитать .env: %v", err)
	}

	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	if err := utils.InitLoggers(cfg.Log.Dir, cfg.Log.Level); err != nil {
		return fmt.Errorf("ошибка инициализации логгеров: %w", err)
	}

	db, err := database.NewDatabase(cfg)
	if err != nil {
		return fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}
	defer db.Close()

	var locker services.EventLocker
	if redisClient := cache.New(cfg.Redis); redisClient != nil {
		if err := redisClient.Ping(ctx); err != nil {
			utils.LogError("Redis недоступен, блокировка вебхуков отключена: %v", err)
		} else {
			locker = redisClient
			defer redisClient.Close()
		}
	}

	emailService := services.NewEmailService(cfg)
	smsService := services.NewSMSService(cfg.Twilio)
	notificationService := services.NewNotificationService(db.DB, emailService, smsService, cfg.App)

	debtService := services.NewDebtService(db.DB, notificationService, cfg)
	paymentService := services.NewPaymentService(db.DB, notificationService, locker, cfg, buildProviders(cfg)...)
	userService := services.NewUserService(db.DB)

	scheduler := services.NewPaymentSchedulerService(db.DB, notificationService, cfg)
	if cfg.Scheduler.Enabled {
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("ошибка запуска планировщика: %w", err)
		}
	}

	limiter := utils.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)

	router := mux.NewRouter()
	router.Use(middleware.CORS(cfg.App.FrontendURL))
	// Preflight отвечает CORS-мидлвар, маршрут нужен только для совпадения
	router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := db.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Вебхуки провайдеров без JWT, подлинность проверяется подписью
	webhooks := controllers.NewWebhookController(paymentService)
	router.PathPrefix("/payment/webhook/").Handler(webhooks.Engine(limiter))

	// Защищенные маршруты
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(middleware.LoggingMiddleware)
	protected.Use(middleware.AuthMiddleware([]byte(cfg.JWT.SecretKey)))
	protected.Use(middleware.RateLimitHandler(limiter))

	controllers.NewDebtController(debtService).RegisterRoutes(protected)
	controllers.NewPaymentController(paymentService).RegisterRoutes(protected)
	controllers.NewUserController(userService).RegisterRoutes(protected)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.LogInfo("Сервер запущен на порту %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		utils.LogInfo("Получен сигнал остановки, завершаем работу")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка http-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка остановки сервера: %w", err)
	}
	stop()
	scheduler.Wait()
	utils.LogInfo("Сервер остановлен")
	return nil
}
