// Package stock — service.go: тикер поверх хранилища.
// После шага биржи пересчитывает income_per_day всех бизнесов
// и сохраняет только те счета, где что-то изменилось.
package stock

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/income"
	"serotonyl.ru/bizbattle/internal/ledger"
)

// Snapshot — состояние биржи для показа.
type Snapshot struct {
	Series     ledger.StockSeries
	Factor     float64
	NextTickIn time.Duration
}

// Service — тикер биржи.
type Service struct {
	store  ledger.Store
	rnd    common.Random
	tuning config.StockTuning
	model  income.Model
	now    func() time.Time

	mu        sync.RWMutex
	listeners []func(ledger.StockSeries)
}

// NewService создаёт тикер.
func NewService(store ledger.Store, rnd common.Random, tuning config.StockTuning, model income.Model) *Service {
	return &Service{
		store:  store,
		rnd:    rnd,
		tuning: tuning,
		model:  model,
		now:    time.Now,
	}
}

// SetClock подменяет часы (для тестов и CLI).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// OnTick регистрирует слушателя, которому после каждого шага придёт новая серия.
func (s *Service) OnTick(fn func(ledger.StockSeries)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Refresh применяет пропущенные шаги и рассылает новый процент по всем бизнесам.
// Возвращает серию после обновления и число применённых шагов.
func (s *Service) Refresh(ctx context.Context) (*ledger.StockSeries, int, error) {
	var (
		series  *ledger.StockSeries
		steps   int
		updated int
	)
	now := s.now()

	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		var err error
		series, err = tx.Stock(ctx)
		if err != nil {
			return err
		}
		initialized := Initialize(series, now)
		steps = Advance(series, now, s.rnd, s.tuning)
		if !initialized && steps == 0 {
			return nil
		}
		if err := tx.SaveStock(ctx, series); err != nil {
			return err
		}
		if steps == 0 {
			return nil
		}
		updated, err = s.broadcast(ctx, tx, series.CurrentPct)
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка обновления биржи: %w", err)
	}

	if steps > 0 {
		log.WithFields(log.Fields{
			"steps":    steps,
			"pct":      series.CurrentPct,
			"accounts": updated,
		}).Info("Биржа обновлена")
		s.notify(*series)
	}
	return series, steps, nil
}

// broadcast пересчитывает income_per_day всех бизнесов. Базовый доход не трогается.
func (s *Service) broadcast(ctx context.Context, tx ledger.Tx, pct float64) (int, error) {
	accounts, err := tx.Accounts(ctx)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, a := range accounts {
		changed := false
		for _, b := range a.Slots {
			if b == nil {
				continue
			}
			if next := s.model.StockAdjusted(b.BaseIncomePerDay, pct); next != b.IncomePerDay {
				b.IncomePerDay = next
				changed = true
			}
		}
		if !changed {
			continue
		}
		if err := tx.SaveAccount(ctx, a); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (s *Service) notify(series ledger.StockSeries) {
	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(series)
	}
}

// Current — состояние биржи с попутным обновлением.
func (s *Service) Current(ctx context.Context) (*Snapshot, error) {
	series, _, err := s.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Series:     *series,
		Factor:     s.model.StockFactor(series.CurrentPct),
		NextTickIn: NextTickIn(series, s.now(), s.tuning.StepInterval),
	}, nil
}

// CurrentPct — текущий процент биржи (с попутным обновлением).
func (s *Service) CurrentPct(ctx context.Context) (float64, error) {
	series, _, err := s.Refresh(ctx)
	if err != nil {
		return 0, err
	}
	return series.CurrentPct, nil
}
