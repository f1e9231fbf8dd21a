package services

import (
	"buddiepay/config"
	"buddiepay/models"
	"buddiepay/utils"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	JobOverdueCheck  = "overdue_check"
	JobNagReminders  = "nag_reminders"
	defaultSemaphore = 8
)

// nagIntervals задает паузу между напоминаниями для каждой чувствительности
var nagIntervals = map[models.NagSensitivity]time.Duration{
	models.NagSensitivityLow:    48 * time.Hour,
	models.NagSensitivityMedium: 24 * time.Hour,
	models.NagSensitivityHigh:   12 * time.Hour,
}

// NagInterval возвращает интервал напоминаний для чувствительности
func NagInterval(sensitivity models.NagSensitivity) time.Duration {
	if d, ok := nagIntervals[sensitivity]; ok {
		return d
	}
	return nagIntervals[models.NagSensitivityMedium]
}

// RunResult содержит итоги одного запуска задачи
type RunResult struct {
	Job       string `json:"job"`
	Skipped   bool   `json:"skipped"`
	Scanned   int    `json:"scanned"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
}

// job защищает задачу от параллельного запуска
type job struct {
	name     string
	schedule string
	running  atomic.Bool
}

// cronLogger направляет сообщения cron в логгеры приложения
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	utils.LogDebug("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	utils.LogError("cron: %s: %v %v", msg, err, keysAndValues)
}

// PaymentSchedulerService запускает фоновые задачи: эскалацию просроченных
// долгов и напоминания должникам
type PaymentSchedulerService struct {
	db                 *gorm.DB
	notifier           Notifier
	defaultSensitivity models.NagSensitivity
	concurrency        int
	overdue            *job
	nag                *job
	cron               *cron.Cron
	metrics            *utils.Metrics
	now                func() time.Time
	wg                 sync.WaitGroup
}

// NewPaymentSchedulerService создает новый экземпляр PaymentSchedulerService
func NewPaymentSchedulerService(db *gorm.DB, notifier Notifier, cfg *config.Config) *PaymentSchedulerService {
	concurrency := cfg.Scheduler.Concurrency
	if concurrency <= 0 {
		concurrency = defaultSemaphore
	}
	sensitivity := models.NagSensitivity(cfg.Debt.DefaultNagSensitivity)
	if !sensitivity.IsValid() {
		sensitivity = models.NagSensitivityMedium
	}

	logger := cronLogger{}
	return &PaymentSchedulerService{
		db:                 db,
		notifier:           notifier,
		defaultSensitivity: sensitivity,
		concurrency:        concurrency,
		overdue:            &job{name: JobOverdueCheck, schedule: cfg.Scheduler.OverdueSchedule},
		nag:                &job{name: JobNagReminders, schedule: cfg.Scheduler.NagSchedule},
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		metrics: utils.GetMetrics(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start регистрирует задачи в cron и запускает их до отмены ctx
func (s *PaymentSchedulerService) Start(ctx context.Context) error {
	for _, j := range []struct {
		job *job
		run func(context.Context) (*RunResult, error)
	}{
		{s.overdue, s.RunOverdueCheck},
		{s.nag, s.RunNagReminders},
	} {
		if _, err := s.cron.AddFunc(j.job.schedule, func() {
			if _, err := j.run(ctx); err != nil {
				utils.LogError("Ошибка при выполнении задачи %s: %v", j.job.name, err)
			}
		}); err != nil {
			return fmt.Errorf("неверное расписание задачи %s %q: %w", j.job.name, j.job.schedule, err)
		}
	}

	s.cron.Start()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-ctx.Done()
		// Stop ждет завершения уже запущенных задач
		<-s.cron.Stop().Done()
	}()

	utils.LogInfo("Планировщик запущен: %s по расписанию %q, %s по расписанию %q",
		s.overdue.name, s.overdue.schedule, s.nag.name, s.nag.schedule)
	return nil
}

// Wait ждет остановки cron и выполняющихся задач после отмены контекста
func (s *PaymentSchedulerService) Wait() {
	s.wg.Wait()
}

// begin отмечает запуск задачи. Если задача уже выполняется, возвращает false.
func (s *PaymentSchedulerService) begin(j *job) bool {
	if !j.running.CompareAndSwap(false, true) {
		utils.LogInfo("Задача %s уже выполняется, запуск пропущен", j.name)
		s.metrics.SchedulerRuns.WithLabelValues(j.name, "skipped").Inc()
		return false
	}
	return true
}

func (s *PaymentSchedulerService) finish(j *job, start time.Time, result *RunResult, err error) {
	j.running.Store(false)
	s.metrics.SchedulerDuration.WithLabelValues(j.name).Observe(time.Since(start).Seconds())
	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}
	s.metrics.SchedulerRuns.WithLabelValues(j.name, outcome).Inc()
	if result != nil {
		utils.LogInfo("Задача %s: найдено %d, обработано %d, ошибок %d", j.name, result.Scanned, result.Processed, result.Failed)
	}
	utils.LogOperation(j.name, start, err)
}

// forEach обрабатывает долги параллельно с ограничением concurrency и ждет завершения
func (s *PaymentSchedulerService) forEach(ctx context.Context, j *job, debts []models.Debt, handle func(context.Context, *models.Debt) (bool, error), result *RunResult) {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, s.concurrency)
	)

loop:
	for i := range debts {
		debt := &debts[i]
		select {
		case <-ctx.Done():
			break loop
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					utils.LogError("Паника при обработке долга %s в задаче %s: %v", debt.ID, j.name, r)
					mu.Lock()
					result.Failed++
					mu.Unlock()
				}
			}()

			done, err := handle(ctx, debt)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed++
				s.metrics.SchedulerItems.WithLabelValues(j.name, "failed").Inc()
				utils.LogError("Ошибка обработки долга %s в задаче %s: %v", debt.ID, j.name, err)
			case done:
				result.Processed++
				s.metrics.SchedulerItems.WithLabelValues(j.name, "processed").Inc()
			}
		}()
	}
	wg.Wait()
}

// RunOverdueCheck переводит просроченные долги в payment_requested и отправляет запрос оплаты
func (s *PaymentSchedulerService) RunOverdueCheck(ctx context.Context) (*RunResult, error) {
	result := &RunResult{Job: s.overdue.name}
	if !s.begin(s.overdue) {
		result.Skipped = true
		return result, nil
	}
	start := time.Now()

	var debts []models.Debt
	err := s.db.WithContext(ctx).
		Where("status = ? AND due_date <= ?", models.DebtStatusPending, s.now()).
		Order("due_date ASC").
		Find(&debts).Error
	if err != nil {
		err = fmt.Errorf("ошибка при получении просроченных долгов: %w", err)
		s.finish(s.overdue, start, nil, err)
		return nil, err
	}
	result.Scanned = len(debts)

	s.forEach(ctx, s.overdue, debts, s.processOverdueDebt, result)
	s.finish(s.overdue, start, result, nil)
	return result, nil
}

// processOverdueDebt отправляет должнику запрос оплаты и переводит долг в payment_requested
func (s *PaymentSchedulerService) processOverdueDebt(ctx context.Context, debt *models.Debt) (bool, error) {
	s.notifier.Dispatch(ctx, debt, models.NotificationPaymentRequest, models.RoleDebtor)

	if err := transitionDebt(s.db.WithContext(ctx), debt, models.DebtStatusPaymentRequested, s.now()); err != nil {
		return false, err
	}
	return true, nil
}

// RunNagReminders напоминает должникам о долгах в статусе payment_requested
func (s *PaymentSchedulerService) RunNagReminders(ctx context.Context) (*RunResult, error) {
	result := &RunResult{Job: s.nag.name}
	if !s.begin(s.nag) {
		result.Skipped = true
		return result, nil
	}
	start := time.Now()

	var debts []models.Debt
	err := s.db.WithContext(ctx).
		Preload("Debtor").
		Where("status = ?", models.DebtStatusPaymentRequested).
		Find(&debts).Error
	if err != nil {
		err = fmt.Errorf("ошибка при получении долгов для напоминаний: %w", err)
		s.finish(s.nag, start, nil, err)
		return nil, err
	}
	result.Scanned = len(debts)

	s.forEach(ctx, s.nag, debts, s.processNagDebt, result)
	s.finish(s.nag, start, result, nil)
	return result, nil
}

// processNagDebt отправляет напоминание, если с последнего прошло не меньше интервала
func (s *PaymentSchedulerService) processNagDebt(ctx context.Context, debt *models.Debt) (bool, error) {
	db := s.db.WithContext(ctx)

	sensitivity := s.defaultSensitivity
	if debt.Debtor != nil && debt.Debtor.NagSensitivity.IsValid() {
		sensitivity = debt.Debtor.NagSensitivity
	}
	interval := NagInterval(sensitivity)

	reference, err := s.lastReminderAt(db, debt)
	if err != nil {
		return false, err
	}

	now := s.now()
	if now.Sub(reference) < interval {
		return false, nil
	}

	s.notifier.Dispatch(ctx, debt, models.NotificationPaymentReminder, models.RoleDebtor)

	err = db.Model(&models.Debt{}).Where("id = ?", debt.ID).Updates(map[string]interface{}{
		"last_reminder_at": now,
		"reminder_count":   gorm.Expr("reminder_count + ?", 1),
		"updated_at":       now,
	}).Error
	if err != nil {
		return false, fmt.Errorf("ошибка обновления счетчика напоминаний: %w", err)
	}
	return true, nil
}

// lastReminderAt возвращает время последнего отправленного напоминания из журнала,
// иначе last_reminder_at, иначе время запроса оплаты, иначе время последнего изменения долга
func (s *PaymentSchedulerService) lastReminderAt(db *gorm.DB, debt *models.Debt) (time.Time, error) {
	query := db.Where("debt_id = ? AND type = ? AND status = ?",
		debt.ID, models.NotificationPaymentReminder, models.NotificationStatusSent)
	if debt.DebtorID != nil {
		query = query.Where("user_id = ?", *debt.DebtorID)
	}

	var last models.Notification
	err := query.Order("sent_at DESC").First(&last).Error
	switch {
	case err == nil && last.SentAt != nil:
		return *last.SentAt, nil
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return time.Time{}, fmt.Errorf("ошибка поиска последнего напоминания: %w", err)
	}

	if debt.LastReminderAt != nil {
		return *debt.LastReminderAt, nil
	}
	if debt.PaymentRequestedAt != nil {
		return *debt.PaymentRequestedAt, nil
	}
	return debt.UpdatedAt, nil
}
