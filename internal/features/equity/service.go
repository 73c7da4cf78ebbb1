// Package equity — service.go: операции с долями.
// Каждая покупка и продажа — одна транзакция хранилища: балансы обеих сторон
// и таблица долей меняются вместе или не меняются вовсе.
package equity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/features/economy"
	"serotonyl.ru/bizbattle/internal/income"
	"serotonyl.ru/bizbattle/internal/ledger"
)

// epsilon — погрешность сравнения процентов.
const epsilon = 1e-9

// Service — доли в бизнесах.
type Service struct {
	store  ledger.Store
	model  income.Model
	tuning config.EquityTuning
	now    func() time.Time

	mu     sync.Mutex
	quotes map[int64]*Quote // investor_id → котировка
}

// NewService создаёт сервис долей.
func NewService(store ledger.Store, model income.Model, tuning config.EquityTuning) *Service {
	return &Service{
		store:  store,
		model:  model,
		tuning: tuning,
		now:    time.Now,
		quotes: make(map[int64]*Quote),
	}
}

// SetClock подменяет часы (для тестов).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// position — всё, что нужно для цены доли, прочитанное внутри транзакции.
type position struct {
	owner     *ledger.Account
	business  *ledger.Business
	table     *ledger.EquityTable
	sellValue int64
}

func (s *Service) load(ctx context.Context, tx ledger.Tx, ownerID int64, slot int) (*position, error) {
	owner, err := tx.Account(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	b, err := owner.Business(slot)
	if err != nil {
		return nil, err
	}
	p, err := tx.Purchases(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	table, err := tx.Equity(ctx, ownerID, slot)
	if err != nil {
		return nil, err
	}
	return &position{
		owner:     owner,
		business:  b,
		table:     table,
		sellValue: s.model.SellValue(b, p.ForSlot(slot), s.now().UTC()),
	}, nil
}

// price — round(стоимость продажи × p/100).
func price(sellValue int64, pct float64) int64 {
	return common.RoundInt(float64(sellValue) * pct / 100)
}

func validatePct(pct float64) error {
	if !common.ValidPercent(pct) {
		return common.ErrInvalidPercent
	}
	return nil
}

// checkBuy проверяет условия покупки; возвращает цену.
func checkBuy(pos *position, investorBalance int64, pct float64) (int64, error) {
	if pos.table.Staked()+pct > 100+epsilon {
		return 0, common.ErrOverAllocated
	}
	cost := price(pos.sellValue, pct)
	if investorBalance < cost {
		return cost, common.ErrInsufficientBalance
	}
	return cost, nil
}

// Quote считает цену доли и запоминает её как котировку инвестора.
// Новая котировка заменяет предыдущую.
func (s *Service) Quote(ctx context.Context, ownerID int64, slot int, investorID int64, pct float64) (*Quote, error) {
	if investorID == ownerID {
		return nil, common.ErrSelfTrade
	}
	if err := validatePct(pct); err != nil {
		return nil, err
	}

	var q *Quote
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		pos, err := s.load(ctx, tx, ownerID, slot)
		if err != nil {
			return err
		}
		investor, err := tx.Account(ctx, investorID)
		if err != nil {
			return err
		}
		cost, err := checkBuy(pos, investor.Balance, pct)
		if err != nil {
			return err
		}
		q = &Quote{
			ID:           uuid.NewString(),
			OwnerID:      ownerID,
			Slot:         slot,
			InvestorID:   investorID,
			Pct:          pct,
			Cost:         cost,
			SellValue:    pos.sellValue,
			BusinessName: pos.business.Name,
			Available:    common.RoundTo(100-pos.table.Staked(), 4),
			ExpiresAt:    s.now().Add(s.tuning.QuoteTTL),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.quotes[investorID] = q
	s.mu.Unlock()
	return q, nil
}

// Pending возвращает действующую котировку инвестора (nil, если её нет).
func (s *Service) Pending(investorID int64) *Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.quotes[investorID]
	if q == nil || s.now().After(q.ExpiresAt) {
		return nil
	}
	return q
}

// Confirm исполняет котировку инвестора. Все проверки и цена
// пересчитываются заново на момент исполнения.
func (s *Service) Confirm(ctx context.Context, investorID int64) (*Receipt, error) {
	s.mu.Lock()
	q := s.quotes[investorID]
	delete(s.quotes, investorID)
	s.mu.Unlock()

	if q == nil || s.now().After(q.ExpiresAt) {
		return nil, common.ErrQuoteExpired
	}
	return s.Buy(ctx, q.OwnerID, q.Slot, investorID, q.Pct)
}

// Buy покупает долю pct в бизнесе ownerID/slot.
func (s *Service) Buy(ctx context.Context, ownerID int64, slot int, investorID int64, pct float64) (*Receipt, error) {
	if investorID == ownerID {
		return nil, common.ErrSelfTrade
	}
	if err := validatePct(pct); err != nil {
		return nil, err
	}

	var r *Receipt
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		pos, err := s.load(ctx, tx, ownerID, slot)
		if err != nil {
			return err
		}
		investor, err := tx.Account(ctx, investorID)
		if err != nil {
			return err
		}
		cost, err := checkBuy(pos, investor.Balance, pct)
		if err != nil {
			return err
		}

		investor.Balance -= cost
		pos.owner.Balance += cost
		if err := tx.SaveAccount(ctx, investor); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, pos.owner); err != nil {
			return err
		}

		t := pos.table
		t.OwnerID, t.Slot = ownerID, slot
		i := t.Find(investorID)
		if i < 0 {
			t.Stakes = append(t.Stakes, ledger.Stake{InvestorID: investorID})
			i = len(t.Stakes) - 1
		}
		t.Stakes[i].Pct = common.RoundTo(t.Stakes[i].Pct+pct, 4)
		t.Stakes[i].Paid += cost
		if err := tx.SaveEquity(ctx, t); err != nil {
			return err
		}

		r = &Receipt{
			OwnerID:      ownerID,
			Slot:         slot,
			InvestorID:   investorID,
			BusinessName: pos.business.Name,
			Pct:          pct,
			Amount:       cost,
			Holding:      t.Stakes[i].Pct,
			Staked:       t.Staked(),
			Balance:      investor.Balance,
		}
		desc := fmt.Sprintf("Доля %.2f%% в %s", pct, pos.business.Name)
		return tx.Journal(ctx, economy.Move(investorID, ownerID, cost, economy.TxTypeEquityBuy, desc))
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"owner_id":    ownerID,
		"slot":        slot,
		"investor_id": investorID,
		"pct":         pct,
		"cost":        r.Amount,
	}).Info("Доля куплена")
	return r, nil
}

// Sell продаёт владельцу долю pct. Выкуп оплачивает владелец бизнеса.
func (s *Service) Sell(ctx context.Context, ownerID int64, slot int, sellerID int64, pct float64) (*Receipt, error) {
	if sellerID == ownerID {
		return nil, common.ErrSelfTrade
	}
	if err := validatePct(pct); err != nil {
		return nil, err
	}

	var r *Receipt
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		pos, err := s.load(ctx, tx, ownerID, slot)
		if err != nil {
			return err
		}
		t := pos.table
		i := t.Find(sellerID)
		if i < 0 || t.Stakes[i].Pct+epsilon < pct {
			return common.ErrInsufficientOwnership
		}
		payout := price(pos.sellValue, pct)
		if pos.owner.Balance < payout {
			return common.ErrOwnerInsufficientFunds
		}
		seller, err := tx.Account(ctx, sellerID)
		if err != nil {
			return err
		}

		pos.owner.Balance -= payout
		seller.Balance += payout
		if err := tx.SaveAccount(ctx, pos.owner); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, seller); err != nil {
			return err
		}

		st := &t.Stakes[i]
		remaining := common.RoundTo(st.Pct-pct, 4)
		holding := 0.0
		if remaining <= epsilon {
			t.Stakes = append(t.Stakes[:i], t.Stakes[i+1:]...)
		} else {
			st.Paid -= common.RoundInt(float64(st.Paid) * pct / st.Pct)
			if st.Paid < 0 {
				st.Paid = 0
			}
			st.Pct = remaining
			holding = remaining
		}
		t.OwnerID, t.Slot = ownerID, slot
		if err := tx.SaveEquity(ctx, t); err != nil {
			return err
		}

		r = &Receipt{
			OwnerID:      ownerID,
			Slot:         slot,
			InvestorID:   sellerID,
			BusinessName: pos.business.Name,
			Pct:          pct,
			Amount:       payout,
			Holding:      holding,
			Staked:       t.Staked(),
			Balance:      seller.Balance,
		}
		desc := fmt.Sprintf("Выкуп доли %.2f%% в %s", pct, pos.business.Name)
		return tx.Journal(ctx, economy.Move(ownerID, sellerID, payout, economy.TxTypeEquitySell, desc))
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"owner_id":  ownerID,
		"slot":      slot,
		"seller_id": sellerID,
		"pct":       pct,
		"payout":    r.Amount,
	}).Info("Доля выкуплена владельцем")
	return r, nil
}

// Holdings — таблица долей бизнеса.
func (s *Service) Holdings(ctx context.Context, ownerID int64, slot int) (*ledger.EquityTable, error) {
	var t *ledger.EquityTable
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		var err error
		t, err = tx.Equity(ctx, ownerID, slot)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения долей: %w", err)
	}
	return t, nil
}

// Portfolio — все доли инвестора с текущей стоимостью.
func (s *Service) Portfolio(ctx context.Context, investorID int64) ([]Position, error) {
	var out []Position
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		tables, err := tx.EquityTables(ctx)
		if err != nil {
			return err
		}
		for _, t := range tables {
			i := t.Find(investorID)
			if i < 0 {
				continue
			}
			st := t.Stakes[i]
			p := Position{OwnerID: t.OwnerID, Slot: t.Slot, Pct: st.Pct, Paid: st.Paid}
			if pos, err := s.load(ctx, tx, t.OwnerID, t.Slot); err == nil {
				p.BusinessName = pos.business.Name
				p.Value = price(pos.sellValue, st.Pct)
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения портфеля: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out, nil
}

// SweepQuotes удаляет просроченные котировки.
func (s *Service) SweepQuotes() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, q := range s.quotes {
		if now.After(q.ExpiresAt) {
			delete(s.quotes, id)
			n++
		}
	}
	return n
}
