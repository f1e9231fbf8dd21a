package controllers

import (
	"buddiepay/config"
	"buddiepay/database"
	"buddiepay/middleware"
	"buddiepay/models"
	"buddiepay/services"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testJWTKey = []byte("controller-test-key")

func init() {
	gin.SetMode(gin.TestMode)
}

type stubEmail struct {
	mu   sync.Mutex
	sent []string
}

func (s *stubEmail) SendEmail(to, subject, html, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, to)
	return nil
}

type testApp struct {
	db       *gorm.DB
	router   *mux.Router
	payments *services.PaymentService
	email    *stubEmail
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)), "silent")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	cfg := &config.Config{
		App:      config.AppConfig{Name: "BuddiePay", FrontendURL: "https://app.buddiepay.test"},
		Debt:     config.DebtConfig{DefaultDeadlineHours: 24, DefaultNagSensitivity: "medium"},
		Payment:  config.PaymentConfig{ReferencePrefix: "MDS", DefaultCurrency: "NGN", ProviderTimeout: time.Second},
		Paystack: config.PaystackConfig{SecretKey: "sk_controller"},
		Redis:    config.RedisConfig{LockTTL: time.Second},
	}

	email := &stubEmail{}
	notifications := services.NewNotificationService(db, email, nil, cfg.App)
	debts := services.NewDebtService(db, notifications, cfg)
	payments := services.NewPaymentService(db, notifications, nil, cfg,
		services.NewBankTransferProvider(),
		services.NewPaystackProvider(cfg.Paystack, time.Second),
	)

	router := mux.NewRouter()
	router.PathPrefix("/payment/webhook/").Handler(NewWebhookController(payments).Engine(nil))

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware(testJWTKey))
	NewDebtController(debts).RegisterRoutes(api)
	NewPaymentController(payments).RegisterRoutes(api)
	NewUserController(services.NewUserService(db)).RegisterRoutes(api)

	return &testApp{db: db, router: router, payments: payments, email: email}
}

func (a *testApp) createUser(t *testing.T, name, email string) *models.User {
	t.Helper()
	user := &models.User{Name: name, Email: email}
	require.NoError(t, a.db.Create(user).Error)
	return user
}

// do выполняет запрос к API от имени userID. Пустой userID означает запрос без токена.
func (a *testApp) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := middleware.GenerateToken(testJWTKey, userID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func requireStatus(t *testing.T, rr *httptest.ResponseRecorder, code int) {
	t.Helper()
	require.Equalf(t, code, rr.Code, "body: %s", rr.Body.String())
}
