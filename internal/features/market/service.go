// Package market — рынок апгрейдов: игроки выставляют апгрейды от имени
// своих бизнесов и покупают чужие для своих слотов.
package market

import (
	"context"
	"fmt"
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

// Scorer оценивает апгрейд.
type Scorer interface {
	ScoreUpgrade(ctx context.Context, name, desc string) ledger.UpgradeRating
}

// Purchase — итог покупки апгрейда.
type Purchase struct {
	Upgrade       ledger.Upgrade `json:"upgrade"`
	Slot          int            `json:"slot"`
	Balance       int64          `json:"balance"`
	TotalBoostPct float64        `json:"total_boost_pct"`
	// Эффективный доход бизнеса покупателя до и после
	IncomeBefore int64 `json:"income_before"`
	IncomeAfter  int64 `json:"income_after"`
}

// Service — рынок апгрейдов.
type Service struct {
	store   ledger.Store
	scorer  Scorer
	tuning  config.MarketTuning
	maxName int
	maxDesc int
	now     func() time.Time
}

// NewService создаёт рынок. Лимиты длины текста берутся из настроек экономики.
func NewService(store ledger.Store, scorer Scorer, tuning config.MarketTuning, eco config.EconomyTuning) *Service {
	return &Service{
		store:   store,
		scorer:  scorer,
		tuning:  tuning,
		maxName: eco.MaxNameRunes,
		maxDesc: eco.MaxDescRunes,
		now:     time.Now,
	}
}

// Price — цена апгрейда по его суммарной оценке.
func (s *Service) Price(total int) int64 {
	return s.tuning.BasePrice + s.tuning.PricePerPoint*int64(total)
}

// CreateUpgrade выставляет апгрейд от имени бизнеса в sellerSlot.
// Буст равен средней оценке, цена — base + perPoint × total.
func (s *Service) CreateUpgrade(ctx context.Context, creatorID int64, sellerSlot int, name, description string) (*ledger.Upgrade, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" || description == "" {
		return nil, common.ErrEmptyName
	}
	if s.maxName > 0 && utf8.RuneCountInString(name) > s.maxName {
		return nil, common.ErrNameTooLong
	}
	if s.maxDesc > 0 && utf8.RuneCountInString(description) > s.maxDesc {
		return nil, common.ErrDescriptionTooLong
	}

	// Проверяем бизнес до вызова судьи, чтобы не ждать зря.
	if err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.Account(ctx, creatorID)
		if err != nil {
			return err
		}
		_, err = a.Business(sellerSlot)
		return err
	}); err != nil {
		return nil, err
	}

	rating := s.scorer.ScoreUpgrade(ctx, name, description)

	var up ledger.Upgrade
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.Account(ctx, creatorID)
		if err != nil {
			return err
		}
		seller, err := a.Business(sellerSlot)
		if err != nil {
			return err
		}
		m, err := tx.Market(ctx)
		if err != nil {
			return err
		}
		m.LastID++
		up = ledger.Upgrade{
			ID:          m.LastID,
			Name:        name,
			Description: description,
			CreatorID:   creatorID,
			SellerSlot:  sellerSlot,
			SellerName:  seller.Name,
			Rating:      rating,
			BoostPct:    rating.Average,
			Price:       s.Price(rating.Total),
			CreatedAt:   s.now().UTC(),
		}
		m.Upgrades = append([]ledger.Upgrade{up}, m.Upgrades...)
		return tx.SaveMarket(ctx, m)
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка выставления апгрейда: %w", err)
	}

	log.WithFields(log.Fields{
		"upgrade_id": up.ID,
		"creator_id": creatorID,
		"boost_pct":  up.BoostPct,
		"price":      up.Price,
	}).Info("Апгрейд выставлен на рынок")
	return &up, nil
}

func applied(entries []ledger.AppliedUpgrade, id int64) bool {
	for _, e := range entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

// BuyUpgrade покупает апгрейд для бизнеса в targetSlot. В одной транзакции:
// запись в журнал покупок, списание, снятие лота, выручка бизнесу-продавцу.
func (s *Service) BuyUpgrade(ctx context.Context, buyerID, upgradeID int64, targetSlot int) (*Purchase, error) {
	var res *Purchase
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		m, err := tx.Market(ctx)
		if err != nil {
			return err
		}
		idx := m.Find(upgradeID)
		if idx < 0 {
			return common.ErrUpgradeNotFound
		}
		up := m.Upgrades[idx]
		if up.CreatorID == buyerID {
			return common.ErrOwnUpgrade
		}

		buyer, err := tx.Account(ctx, buyerID)
		if err != nil {
			return err
		}
		target, err := buyer.Business(targetSlot)
		if err != nil {
			return err
		}
		p, err := tx.Purchases(ctx, buyerID)
		if err != nil {
			return err
		}
		entries := p.ForSlot(targetSlot)
		if applied(entries, up.ID) || (len(entries) == 0 && applied(target.Upgrades, up.ID)) {
			return common.ErrUpgradeAlreadyApplied
		}
		if buyer.Balance < up.Price {
			return common.ErrInsufficientBalance
		}

		before := income.Effective(target, entries)
		if len(entries) == 0 && len(target.Upgrades) > 0 {
			// Старые бусты переезжают в журнал, иначе новая запись их перекроет.
			entries = append(entries, target.Upgrades...)
		}
		entries = append(entries, ledger.AppliedUpgrade{ID: up.ID, Name: up.Name, BoostPct: up.BoostPct})
		if p.Slots == nil {
			p.Slots = map[int][]ledger.AppliedUpgrade{}
		}
		p.UserID = buyerID
		p.Slots[targetSlot] = entries
		if err := tx.SavePurchases(ctx, p); err != nil {
			return err
		}

		buyer.Balance -= up.Price
		if err := tx.SaveAccount(ctx, buyer); err != nil {
			return err
		}

		m.Upgrades = append(m.Upgrades[:idx], m.Upgrades[idx+1:]...)
		if err := tx.SaveMarket(ctx, m); err != nil {
			return err
		}

		seller, err := tx.Account(ctx, up.CreatorID)
		if err != nil {
			return err
		}
		if up.SellerSlot >= 0 && up.SellerSlot < len(seller.Slots) && seller.Slots[up.SellerSlot] != nil {
			sb := seller.Slots[up.SellerSlot]
			sb.ProductsSold++
			sb.PendingCollect += up.Price
			if err := tx.SaveAccount(ctx, seller); err != nil {
				return err
			}
		}

		res = &Purchase{
			Upgrade:       up,
			Slot:          targetSlot,
			Balance:       buyer.Balance,
			TotalBoostPct: income.TotalBoostPct(target, entries),
			IncomeBefore:  before,
			IncomeAfter:   income.Effective(target, entries),
		}
		return tx.Journal(ctx, economy.Debit(buyerID, up.Price, economy.TxTypeUpgradePurchase, "Апгрейд: "+up.Name))
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"buyer_id":   buyerID,
		"upgrade_id": upgradeID,
		"slot":       targetSlot,
	}).Info("Апгрейд куплен")
	return res, nil
}

// List возвращает до limit лотов, новые первыми.
func (s *Service) List(ctx context.Context, limit int) ([]ledger.Upgrade, error) {
	var m *ledger.Market
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		var err error
		m, err = tx.Market(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения рынка: %w", err)
	}
	if limit <= 0 {
		limit = s.tuning.ListLimit
	}
	ups := m.Upgrades
	if limit > 0 && len(ups) > limit {
		ups = ups[:limit]
	}
	return ups, nil
}
