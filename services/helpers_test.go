package services

import (
	"buddiepay/config"
	"buddiepay/database"
	"buddiepay/migrations"
	"buddiepay/models"
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// openTestDB открывает отдельную in-memory базу SQLite на каждый тест
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := database.Open(sqlite.Open(dsn), "silent")
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// newTestDB создает схему по моделям через AutoMigrate
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := openTestDB(t)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// sqliteDialect заменяет конструкции Postgres, которых нет в SQLite.
// Ограничения CHECK, внешние ключи и индексы остаются как в миграциях.
var sqliteDialect = strings.NewReplacer(
	"TIMESTAMPTZ", "DATETIME",
	"NOW()", "CURRENT_TIMESTAMP",
)

// newMigratedTestDB создает схему из встроенных SQL-миграций, которые
// выполняются в продакшене
func newMigratedTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := openTestDB(t)

	files, err := fs.Glob(migrations.Files, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	sort.Strings(files)

	for _, file := range files {
		raw, err := migrations.Files.ReadFile(file)
		require.NoError(t, err)
		for _, stmt := range strings.Split(sqliteDialect.Replace(string(raw)), ";") {
			if stmt = strings.TrimSpace(stmt); stmt == "" {
				continue
			}
			require.NoError(t, db.Exec(stmt).Error, "%s: %s", file, stmt)
		}
	}
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "BuddiePay", FrontendURL: "https://app.buddiepay.test"},
		Debt: config.DebtConfig{
			DefaultDeadlineHours:  24,
			DefaultNagSensitivity: "medium",
		},
		Payment: config.PaymentConfig{
			ReferencePrefix: "MDS",
			DefaultCurrency: "NGN",
			ProviderTimeout: 2 * time.Second,
		},
		Redis: config.RedisConfig{LockTTL: time.Second},
		Scheduler: config.SchedulerConfig{
			OverdueSchedule: "0 * * * *",
			NagSchedule:     "15 * * * *",
			Concurrency:     4,
		},
	}
}

func createUser(t *testing.T, db *gorm.DB, name, email string, opts ...func(*models.User)) *models.User {
	t.Helper()
	user := &models.User{Name: name, Email: email}
	for _, opt := range opts {
		opt(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func withBank(bank, accountName, number string) func(*models.User) {
	return func(u *models.User) {
		u.BankAccount = models.BankAccount{BankName: bank, AccountName: accountName, AccountNumber: number}
	}
}

func withSensitivity(s models.NagSensitivity) func(*models.User) {
	return func(u *models.User) { u.NagSensitivity = s }
}

func withPhone(phone string) func(*models.User) {
	return func(u *models.User) { u.Phone = phone }
}

// insertDebt сохраняет долг напрямую, минуя сервис
func insertDebt(t *testing.T, db *gorm.DB, debt *models.Debt) *models.Debt {
	t.Helper()
	if debt.Amount.IsZero() {
		debt.Amount = decimal.NewFromInt(5000)
	}
	if debt.Currency == "" {
		debt.Currency = "NGN"
	}
	if debt.Description == "" {
		debt.Description = "Lunch"
	}
	if debt.PaymentReference == "" {
		debt.PaymentReference = fmt.Sprintf("MDS-TEST-%d", time.Now().UnixNano())
	}
	if debt.DueDate.IsZero() {
		debt.DueDate = testNow.Add(24 * time.Hour)
	}
	require.NoError(t, db.Create(debt).Error)
	return debt
}

func setStatus(t *testing.T, db *gorm.DB, debtID string, status models.DebtStatus) {
	t.Helper()
	require.NoError(t, db.Model(&models.Debt{}).Where("id = ?", debtID).Update("status", status).Error)
}

func reloadDebt(t *testing.T, db *gorm.DB, debtID string) *models.Debt {
	t.Helper()
	var debt models.Debt
	require.NoError(t, db.First(&debt, "id = ?", debtID).Error)
	return &debt
}

func strPtr(s string) *string { return &s }

type dispatchCall struct {
	DebtID string
	Type   models.NotificationType
	Role   models.PartyRole
}

// recordingNotifier запоминает вызовы Dispatch
type recordingNotifier struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (n *recordingNotifier) Dispatch(ctx context.Context, debt *models.Debt, notificationType models.NotificationType, role models.PartyRole) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, dispatchCall{DebtID: debt.ID, Type: notificationType, Role: role})
}

func (n *recordingNotifier) Calls() []dispatchCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]dispatchCall, len(n.calls))
	copy(out, n.calls)
	return out
}

type sentEmail struct {
	To      string
	Subject string
	Body    string
	Text    string
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (f *fakeEmail) SendEmail(to, subject, html, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{To: to, Subject: subject, Body: html, Text: text})
	return nil
}

func (f *fakeEmail) Sent() []sentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentEmail, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeSMS struct {
	mu      sync.Mutex
	enabled bool
	sent    []string
	err     error
}

func (f *fakeSMS) Enabled() bool { return f.enabled }

func (f *fakeSMS) SendSMS(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

// fakeProvider подменяет платежную систему: Initiate и разбор вебхука задаются полями
type fakeProvider struct {
	method      models.PaymentMethod
	initiated   *InitiatedPayment
	initiateErr error
	lastRequest PaymentRequest
	initiations int

	notice   *WebhookNotice
	parseErr error
}

func (p *fakeProvider) Method() models.PaymentMethod { return p.method }

func (p *fakeProvider) Initiate(ctx context.Context, req PaymentRequest) (*InitiatedPayment, error) {
	p.initiations++
	p.lastRequest = req
	if p.initiateErr != nil {
		return nil, p.initiateErr
	}
	if p.initiated != nil {
		return p.initiated, nil
	}
	return &InitiatedPayment{ProviderTransactionID: "prov-" + req.Reference, PaymentURL: "https://pay.test/" + req.Reference}, nil
}

func (p *fakeProvider) ParseWebhook(ctx context.Context, header http.Header, body []byte) (*WebhookNotice, error) {
	if p.parseErr != nil {
		return nil, p.parseErr
	}
	notice := *p.notice
	return &notice, nil
}

// fakeLocker отдает блокировку только один раз на ключ
type fakeLocker struct {
	mu    sync.Mutex
	held  map[string]bool
	err   error
	calls int
}

func (l *fakeLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {}, true, nil
}
