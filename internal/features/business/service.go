// Package business — service.go: операции над бизнесами игрока.
// Каждая операция — одна транзакция хранилища; счёт перечитывается
// внутри транзакции прямо перед записью.
package business

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/features/economy"
	"serotonyl.ru/bizbattle/internal/income"
	"serotonyl.ru/bizbattle/internal/ledger"
)

// Scorer оценивает идею бизнеса.
type Scorer interface {
	ScoreBusiness(ctx context.Context, name, desc string) ledger.BusinessScores
}

// StockReader отдаёт текущий процент биржи.
type StockReader interface {
	CurrentPct(ctx context.Context) (float64, error)
}

// Service — бизнесы игроков.
type Service struct {
	store  ledger.Store
	scorer Scorer
	stock  StockReader
	model  income.Model
	tuning config.EconomyTuning
	now    func() time.Time
}

// NewService создаёт сервис бизнесов.
func NewService(store ledger.Store, scorer Scorer, stock StockReader, model income.Model, tuning config.EconomyTuning) *Service {
	return &Service{
		store:  store,
		scorer: scorer,
		stock:  stock,
		model:  model,
		tuning: tuning,
		now:    time.Now,
	}
}

// SetClock подменяет часы (для тестов).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) validateText(name, description string) (string, string, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" || description == "" {
		return "", "", common.ErrEmptyName
	}
	if s.tuning.MaxNameRunes > 0 && utf8.RuneCountInString(name) > s.tuning.MaxNameRunes {
		return "", "", common.ErrNameTooLong
	}
	if s.tuning.MaxDescRunes > 0 && utf8.RuneCountInString(description) > s.tuning.MaxDescRunes {
		return "", "", common.ErrDescriptionTooLong
	}
	return name, description, nil
}

// checkEmptySlot проверяет слот до долгого вызова судьи.
func (s *Service) checkEmptySlot(ctx context.Context, userID int64, slot int) error {
	return s.store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.Account(ctx, userID)
		if err != nil {
			return err
		}
		return emptySlot(a, slot)
	})
}

func emptySlot(a *ledger.Account, slot int) error {
	if slot < 0 || slot >= len(a.Slots) {
		return common.ErrInvalidSlot
	}
	if a.Slots[slot] != nil {
		return common.ErrSlotOccupied
	}
	return nil
}

// Create создаёт бизнес в пустом слоте. Судья оценивает идею вне транзакции,
// затем слот проверяется ещё раз: если его успели занять — ErrSlotOccupied.
func (s *Service) Create(ctx context.Context, userID int64, slot int, name, description string) (*ledger.Business, error) {
	name, description, err := s.validateText(name, description)
	if err != nil {
		return nil, err
	}
	if err := s.checkEmptySlot(ctx, userID, slot); err != nil {
		return nil, err
	}

	scores := s.scorer.ScoreBusiness(ctx, name, description)
	pct, err := s.stock.CurrentPct(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	base := int64(scores.Total)
	biz := &ledger.Business{
		Name:             name,
		Description:      description,
		Scores:           scores,
		BaseIncomePerDay: base,
		IncomePerDay:     s.model.StockAdjusted(base, pct),
		Rating:           1.0,
		CreatedAt:        now,
		LastCollectedAt:  now,
	}

	err = s.store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.Account(ctx, userID)
		if err != nil {
			return err
		}
		if err := emptySlot(a, slot); err != nil {
			return err
		}
		a.Slots[slot] = biz
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}

		p, err := tx.Purchases(ctx, userID)
		if err != nil {
			return err
		}
		if len(p.ForSlot(slot)) > 0 {
			p.Clear(slot)
			if err := tx.SavePurchases(ctx, p); err != nil {
				return err
			}
		}
		return tx.SaveEquity(ctx, &ledger.EquityTable{OwnerID: userID, Slot: slot})
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания бизнеса: %w", err)
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"slot":    slot,
		"name":    name,
		"base":    base,
	}).Info("Бизнес создан")
	return biz, nil
}

// collectOne забирает накопленное с бизнеса. Возвращает 0, если собирать нечего.
func collectOne(b *ledger.Business, now time.Time) int64 {
	amount := income.Accrued(b, now)
	if amount <= 0 {
		return 0
	}
	b.TotalEarned += amount
	b.LastCollectedAt = now
	b.PendingCollect = 0
	return amount
}

// Collect собирает доход одного бизнеса.
func (s *Service) Collect(ctx context.Context, userID int64, slot int) (int64, int64, error) {
	var amount, balance int64
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.Account(ctx, userID)
		if err != nil {
			return err
		}
		b, err := a.Business(slot)
		if err != nil {
			return err
		}
		amount = collectOne(b, s.now().UTC())
		balance = a.Balance
		if amount == 0 {
			return nil
		}
		a.Balance += amount
		balance = a.Balance
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		return tx.Journal(ctx, economy.Credit(userID, amount, economy.TxTypeCollect, "Доход: "+b.Name))
	})
	if err != nil {
		return 0, 0, err
	}
	return amount, balance, nil
}

// CollectAll собирает доход со всех бизнесов, у которых что-то накопилось.
func (s *Service) CollectAll(ctx context.Context, userID int64) (int64, int64, error) {
	var total, balance int64
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.Account(ctx, userID)
		if err != nil {
			return err
		}
		if !a.HasBusiness() {
			return common.ErrNoBusiness
		}
		now := s.now().UTC()
		for _, b := range a.Slots {
			if b != nil {
				total += collectOne(b, now)
			}
		}
		balance = a.Balance
		if total == 0 {
			return nil
		}
		a.Balance += total
		balance = a.Balance
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		return tx.Journal(ctx, economy.Credit(userID, total, economy.TxTypeCollect, "Сбор дохода со всех бизнесов"))
	})
	if err != nil {
		return 0, 0, err
	}
	return total, balance, nil
}

// Sell продаёт бизнес. Если у бизнеса есть инвесторы, каждый получает
// trunc(стоимость × доля/100), владелец — остаток.
func (s *Service) Sell(ctx context.Context, userID int64, slot int) (*SaleReceipt, error) {
	var receipt *SaleReceipt
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.Account(ctx, userID)
		if err != nil {
			return err
		}
		b, err := a.Business(slot)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if !b.CreatedAt.IsZero() {
			if held := now.Sub(b.CreatedAt); held < s.tuning.SellHoldPeriod {
				return &TooEarlyError{Remaining: s.tuning.SellHoldPeriod - held}
			}
		}

		p, err := tx.Purchases(ctx, userID)
		if err != nil {
			return err
		}
		value := s.model.SellValue(b, p.ForSlot(slot), now)
		receipt = &SaleReceipt{Name: b.Name, Value: value, OwnerShare: value}

		eq, err := tx.Equity(ctx, userID, slot)
		if err != nil {
			return err
		}
		for _, st := range eq.Stakes {
			share := int64(float64(value) * st.Pct / 100)
			if share <= 0 {
				continue
			}
			inv, err := tx.Account(ctx, st.InvestorID)
			if err != nil {
				return err
			}
			inv.Balance += share
			if err := tx.SaveAccount(ctx, inv); err != nil {
				return err
			}
			desc := fmt.Sprintf("Доля %.2f%% в проданном бизнесе %s", st.Pct, b.Name)
			if err := tx.Journal(ctx, economy.Credit(st.InvestorID, share, economy.TxTypeEquityPayout, desc)); err != nil {
				return err
			}
			receipt.OwnerShare -= share
			receipt.Payouts = append(receipt.Payouts, Payout{InvestorID: st.InvestorID, Pct: st.Pct, Amount: share})
		}
		if len(eq.Stakes) > 0 {
			if err := tx.SaveEquity(ctx, &ledger.EquityTable{OwnerID: userID, Slot: slot}); err != nil {
				return err
			}
		}

		a.Slots[slot] = nil
		a.Balance += receipt.OwnerShare
		receipt.Balance = a.Balance
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		if len(p.ForSlot(slot)) > 0 {
			p.Clear(slot)
			if err := tx.SavePurchases(ctx, p); err != nil {
				return err
			}
		}
		if receipt.OwnerShare > 0 {
			return tx.Journal(ctx, economy.Credit(userID, receipt.OwnerShare, economy.TxTypeSell, "Продажа: "+b.Name))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":   userID,
		"slot":      slot,
		"value":     receipt.Value,
		"investors": len(receipt.Payouts),
	}).Info("Бизнес продан")
	return receipt, nil
}

// BuySlot покупает новый пустой слот. Цена возвращается и при нехватке пленок.
func (s *Service) BuySlot(ctx context.Context, userID int64) (int, int64, error) {
	var slot int
	var cost int64
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.Account(ctx, userID)
		if err != nil {
			return err
		}
		cost = s.model.NextSlotCost(a.PurchasedSlots)
		if a.Balance < cost {
			return common.ErrInsufficientBalance
		}
		a.Balance -= cost
		a.Slots = append(a.Slots, nil)
		a.PurchasedSlots++
		slot = len(a.Slots) - 1
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		return tx.Journal(ctx, economy.Debit(userID, cost, economy.TxTypeSlotPurchase, fmt.Sprintf("Покупка слота %d", slot+1)))
	})
	if err != nil {
		return 0, cost, err
	}
	return slot, cost, nil
}

// Overview собирает обзор бизнесов игрока (доход, накопленное, стоимость продажи).
func (s *Service) Overview(ctx context.Context, userID int64) (*Overview, error) {
	pct, err := s.stock.CurrentPct(ctx)
	if err != nil {
		return nil, err
	}
	var a *ledger.Account
	var p *ledger.Purchases
	err = s.store.InTx(ctx, func(tx ledger.Tx) error {
		var err error
		if a, err = tx.Account(ctx, userID); err != nil {
			return err
		}
		p, err = tx.Purchases(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка получения обзора: %w", err)
	}
	return s.overview(a, p, pct, s.now().UTC()), nil
}

func (s *Service) overview(a *ledger.Account, p *ledger.Purchases, pct float64, now time.Time) *Overview {
	ov := &Overview{
		UserID:       a.UserID,
		Balance:      a.Balance,
		NextSlotCost: s.model.NextSlotCost(a.PurchasedSlots),
		StockPct:     pct,
		Slots:        make([]SlotView, 0, len(a.Slots)),
	}
	for i, b := range a.Slots {
		v := SlotView{Index: i, Business: b}
		if b != nil {
			entries := p.ForSlot(i)
			v.BoostPct = income.TotalBoostPct(b, entries)
			v.Upgrades = len(entries)
			if v.Upgrades == 0 {
				v.Upgrades = len(b.Upgrades)
			}
			v.Effective = income.Effective(b, entries)
			v.Display = s.model.Display(b, entries, pct)
			v.Accrued = income.Accrued(b, now)
			v.SellValue = s.model.SellValue(b, entries, now)
			if held := now.Sub(b.CreatedAt); !b.CreatedAt.IsZero() && held < s.tuning.SellHoldPeriod {
				v.SellableIn = s.tuning.SellHoldPeriod - held
			}

			ov.Businesses++
			ov.CombinedRate += b.IncomePerDay
			ov.Ready += v.Accrued
			ov.TotalRating += clampRating(b.Rating)
		}
		ov.Slots = append(ov.Slots, v)
	}
	ov.TotalRating = common.RoundTo(ov.TotalRating, 2)
	return ov
}

// Leaderboard строит таблицу лидеров: richest или businesses.
func (s *Service) Leaderboard(ctx context.Context, kind string, limit int) ([]LeaderRow, error) {
	var accounts []*ledger.Account
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		var err error
		accounts, err = tx.Accounts(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка построения топа: %w", err)
	}

	var rows []LeaderRow
	switch kind {
	case LeaderboardRichest, "":
		rows = richest(accounts)
	case LeaderboardBusinesses:
		rows = mostValuable(accounts)
	default:
		return nil, errors.New("неизвестный вид топа: " + kind)
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func richest(accounts []*ledger.Account) []LeaderRow {
	rows := make([]LeaderRow, 0, len(accounts))
	for _, a := range accounts {
		row := LeaderRow{UserID: a.UserID}
		for _, b := range a.Slots {
			if b == nil {
				continue
			}
			row.Income += b.IncomePerDay
			row.Rating += clampRating(b.Rating)
			row.Count++
		}
		row.Rating = common.RoundTo(row.Rating, 2)
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Income != rows[j].Income {
			return rows[i].Income > rows[j].Income
		}
		return rows[i].Rating > rows[j].Rating
	})
	return rows
}

func mostValuable(accounts []*ledger.Account) []LeaderRow {
	var rows []LeaderRow
	for _, a := range accounts {
		for _, b := range a.Slots {
			if b == nil {
				continue
			}
			base := b.BaseIncomePerDay
			if base <= 0 {
				base = b.IncomePerDay
			}
			rating := clampRating(b.Rating)
			rows = append(rows, LeaderRow{
				UserID: a.UserID,
				Name:   b.Name,
				Income: b.IncomePerDay,
				Rating: rating,
				Value:  common.RoundTo(float64(base)*rating, 2),
			})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Value > rows[j].Value })
	return rows
}
