// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: шаг биржи раз в минуту
// и уборку брошенных батлов, мини-игр и котировок каждые 30 секунд.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/ledger"
)

// Расписания задач.
const (
	StockSpec = "@every 1m"
	SweepSpec = "@every 30s"
)

// StockRefresher применяет пропущенные шаги биржи.
type StockRefresher interface {
	Refresh(ctx context.Context) (*ledger.StockSeries, int, error)
}

// TimeoutNotifier завершает брошенные сессии и сообщает о них в чат.
type TimeoutNotifier interface {
	NotifyTimeouts(ctx context.Context) int
}

// QuoteSweeper удаляет просроченные котировки.
type QuoteSweeper interface {
	SweepQuotes() int
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	stock    StockRefresher
	sessions []TimeoutNotifier
	quotes   QuoteSweeper
}

// NewScheduler создаёт планировщик задач в часовом поясе игры.
// sessions — обработчики батлов и мини-игр; nil-элементы пропускаются.
func NewScheduler(loc *time.Location, stock StockRefresher, quotes QuoteSweeper, sessions ...TimeoutNotifier) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	live := make([]TimeoutNotifier, 0, len(sessions))
	for _, n := range sessions {
		if n != nil {
			live = append(live, n)
		}
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		stock:    stock,
		sessions: live,
		quotes:   quotes,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(StockSpec, func() { s.refreshStock(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(SweepSpec, func() { s.sweep(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	log.WithField("tz", s.cron.Location().String()).Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и ждёт завершения текущих задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

func (s *Scheduler) refreshStock(ctx context.Context) {
	if s.stock == nil {
		return
	}
	series, steps, err := s.stock.Refresh(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка обновления биржи")
		return
	}
	if steps > 0 {
		log.WithFields(log.Fields{"steps": steps, "pct": series.CurrentPct}).Debug("[CRON] Шаг биржи")
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	ended := 0
	for _, n := range s.sessions {
		ended += n.NotifyTimeouts(ctx)
	}
	expired := 0
	if s.quotes != nil {
		expired = s.quotes.SweepQuotes()
	}
	if ended > 0 || expired > 0 {
		log.WithFields(log.Fields{
			"sessions": ended,
			"quotes":   expired,
		}).Info("[CRON] Уборка завершена")
	}
}
