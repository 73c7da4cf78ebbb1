// Package ledger — store.go: транзакционное хранилище документов игры.
//
// Каждый документ (счёт, рынок, журнал покупок, биржа, таблица долей)
// читается и пишется целиком внутри транзакции InTx. Чтение блокирует
// строку документа до конца транзакции, поэтому read-modify-write одного
// документа сериализуется, а разные документы не мешают друг другу.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Виды документов (колонка kind).
const (
	kindAccount   = "account"
	kindMarket    = "market"
	kindPurchases = "purchases"
	kindStock     = "stock"
	kindEquity    = "equity"
	kindMember    = "member"
	kindUsername  = "username"
	kindAdminAuth = "admin_auth"

	globalKey = "global"
)

// Store — хранилище игры.
type Store interface {
	// InTx выполняет fn в одной транзакции. Ошибка fn откатывает всё.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// Transactions возвращает последние движения пленок пользователя.
	Transactions(ctx context.Context, userID int64, limit int) ([]JournalEntry, error)
	Ping(ctx context.Context) error
	Close() error
}

// Tx — операции над документами внутри транзакции.
// Отсутствующий или битый документ читается как значение по умолчанию.
type Tx interface {
	Account(ctx context.Context, userID int64) (*Account, error)
	SaveAccount(ctx context.Context, a *Account) error
	// Accounts возвращает все счета, отсортированные по user_id.
	Accounts(ctx context.Context) ([]*Account, error)

	Market(ctx context.Context) (*Market, error)
	SaveMarket(ctx context.Context, m *Market) error

	Purchases(ctx context.Context, userID int64) (*Purchases, error)
	SavePurchases(ctx context.Context, p *Purchases) error

	Stock(ctx context.Context) (*StockSeries, error)
	SaveStock(ctx context.Context, s *StockSeries) error

	Equity(ctx context.Context, ownerID int64, slot int) (*EquityTable, error)
	// SaveEquity с пустым списком долей удаляет документ.
	SaveEquity(ctx context.Context, e *EquityTable) error
	// EquityTables возвращает все непустые таблицы долей.
	EquityTables(ctx context.Context) ([]*EquityTable, error)

	// Member возвращает nil, если участник не зарегистрирован.
	Member(ctx context.Context, userID int64) (*Member, error)
	SaveMember(ctx context.Context, m *Member) error
	MemberByUsername(ctx context.Context, username string) (*Member, error)

	// AdminAuth возвращает пустую запись, если администратор ещё не входил.
	AdminAuth(ctx context.Context, userID int64) (*AdminAuth, error)
	SaveAdminAuth(ctx context.Context, a *AdminAuth) error

	Journal(ctx context.Context, e *JournalEntry) error
}

// Options — настройки хранилища, общие для драйверов.
type Options struct {
	StartingBalance int64
}

// rawDoc — документ в сыром виде.
type rawDoc struct {
	Key  string
	Body []byte
}

// backend — минимальный набор SQL-операций, который различается у драйверов.
type backend interface {
	get(ctx context.Context, kind, key string) ([]byte, error) // nil = нет документа
	put(ctx context.Context, kind, key string, body []byte) error
	del(ctx context.Context, kind, key string) error
	list(ctx context.Context, kind string) ([]rawDoc, error)
	journal(ctx context.Context, e *JournalEntry) error
}

// docTx реализует Tx поверх любого backend.
type docTx struct {
	b    backend
	opts Options
}

func isEmptyBody(body []byte) bool {
	s := strings.TrimSpace(string(body))
	return s == "" || s == "null"
}

// load читает документ в dst. Возвращает false, если документа нет или он битый.
func (t *docTx) load(ctx context.Context, kind, key string, dst any) (bool, error) {
	body, err := t.b.get(ctx, kind, key)
	if err != nil {
		return false, fmt.Errorf("ошибка чтения %s/%s: %w", kind, key, err)
	}
	if isEmptyBody(body) {
		return false, nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"kind": kind,
			"key":  key,
		}).Warn("Битый документ, используем значение по умолчанию")
		return false, nil
	}
	return true, nil
}

func (t *docTx) store(ctx context.Context, kind, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ошибка сериализации %s/%s: %w", kind, key, err)
	}
	if err := t.b.put(ctx, kind, key, body); err != nil {
		return fmt.Errorf("ошибка записи %s/%s: %w", kind, key, err)
	}
	return nil
}

func userKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func equityKey(ownerID int64, slot int) string {
	return fmt.Sprintf("%d:%d", ownerID, slot)
}

func (t *docTx) Account(ctx context.Context, userID int64) (*Account, error) {
	var a Account
	ok, err := t.load(ctx, kindAccount, userKey(userID), &a)
	if err != nil {
		return nil, err
	}
	if !ok {
		return NewAccount(userID, t.opts.StartingBalance), nil
	}
	a.UserID = userID
	a.Normalize()
	return &a, nil
}

func (t *docTx) SaveAccount(ctx context.Context, a *Account) error {
	a.Normalize()
	return t.store(ctx, kindAccount, userKey(a.UserID), a)
}

func (t *docTx) Accounts(ctx context.Context) ([]*Account, error) {
	docs, err := t.b.list(ctx, kindAccount)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения счетов: %w", err)
	}
	out := make([]*Account, 0, len(docs))
	for _, d := range docs {
		if isEmptyBody(d.Body) {
			continue
		}
		var a Account
		if err := json.Unmarshal(d.Body, &a); err != nil {
			log.WithError(err).WithField("key", d.Key).Warn("Битый счёт пропущен")
			continue
		}
		if id, err := strconv.ParseInt(d.Key, 10, 64); err == nil {
			a.UserID = id
		}
		a.Normalize()
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (t *docTx) Market(ctx context.Context) (*Market, error) {
	var m Market
	if _, err := t.load(ctx, kindMarket, globalKey, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (t *docTx) SaveMarket(ctx context.Context, m *Market) error {
	return t.store(ctx, kindMarket, globalKey, m)
}

func (t *docTx) Purchases(ctx context.Context, userID int64) (*Purchases, error) {
	var p Purchases
	if _, err := t.load(ctx, kindPurchases, userKey(userID), &p); err != nil {
		return nil, err
	}
	p.UserID = userID
	if p.Slots == nil {
		p.Slots = make(map[int][]AppliedUpgrade)
	}
	return &p, nil
}

func (t *docTx) SavePurchases(ctx context.Context, p *Purchases) error {
	return t.store(ctx, kindPurchases, userKey(p.UserID), p)
}

func (t *docTx) Stock(ctx context.Context) (*StockSeries, error) {
	s := DefaultStock()
	ok, err := t.load(ctx, kindStock, globalKey, s)
	if err != nil {
		return nil, err
	}
	if !ok {
		return DefaultStock(), nil
	}
	return s, nil
}

func (t *docTx) SaveStock(ctx context.Context, s *StockSeries) error {
	return t.store(ctx, kindStock, globalKey, s)
}

func (t *docTx) Equity(ctx context.Context, ownerID int64, slot int) (*EquityTable, error) {
	var e EquityTable
	if _, err := t.load(ctx, kindEquity, equityKey(ownerID, slot), &e); err != nil {
		return nil, err
	}
	e.OwnerID = ownerID
	e.Slot = slot
	return &e, nil
}

func (t *docTx) SaveEquity(ctx context.Context, e *EquityTable) error {
	key := equityKey(e.OwnerID, e.Slot)
	if len(e.Stakes) == 0 {
		if err := t.b.del(ctx, kindEquity, key); err != nil {
			return fmt.Errorf("ошибка удаления %s/%s: %w", kindEquity, key, err)
		}
		return nil
	}
	return t.store(ctx, kindEquity, key, e)
}

func (t *docTx) EquityTables(ctx context.Context) ([]*EquityTable, error) {
	docs, err := t.b.list(ctx, kindEquity)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения долей: %w", err)
	}
	out := make([]*EquityTable, 0, len(docs))
	for _, d := range docs {
		if isEmptyBody(d.Body) {
			continue
		}
		var e EquityTable
		if err := json.Unmarshal(d.Body, &e); err != nil {
			log.WithError(err).WithField("key", d.Key).Warn("Битая таблица долей пропущена")
			continue
		}
		if len(e.Stakes) > 0 {
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OwnerID != out[j].OwnerID {
			return out[i].OwnerID < out[j].OwnerID
		}
		return out[i].Slot < out[j].Slot
	})
	return out, nil
}

type usernameRef struct {
	UserID int64 `json:"user_id"`
}

func (t *docTx) Member(ctx context.Context, userID int64) (*Member, error) {
	var m Member
	ok, err := t.load(ctx, kindMember, userKey(userID), &m)
	if err != nil || !ok {
		return nil, err
	}
	m.UserID = userID
	return &m, nil
}

func (t *docTx) SaveMember(ctx context.Context, m *Member) error {
	prev, err := t.Member(ctx, m.UserID)
	if err != nil {
		return err
	}
	if prev != nil && prev.Username != "" && !strings.EqualFold(prev.Username, m.Username) {
		if err := t.b.del(ctx, kindUsername, strings.ToLower(prev.Username)); err != nil {
			return fmt.Errorf("ошибка удаления старого username: %w", err)
		}
	}
	if m.Username != "" {
		if err := t.store(ctx, kindUsername, strings.ToLower(m.Username), usernameRef{UserID: m.UserID}); err != nil {
			return err
		}
	}
	return t.store(ctx, kindMember, userKey(m.UserID), m)
}

func (t *docTx) MemberByUsername(ctx context.Context, username string) (*Member, error) {
	username = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
	if username == "" {
		return nil, nil
	}
	var ref usernameRef
	ok, err := t.load(ctx, kindUsername, username, &ref)
	if err != nil || !ok {
		return nil, err
	}
	return t.Member(ctx, ref.UserID)
}

func (t *docTx) AdminAuth(ctx context.Context, userID int64) (*AdminAuth, error) {
	a := &AdminAuth{}
	if _, err := t.load(ctx, kindAdminAuth, userKey(userID), a); err != nil {
		return nil, err
	}
	a.UserID = userID
	return a, nil
}

func (t *docTx) SaveAdminAuth(ctx context.Context, a *AdminAuth) error {
	return t.store(ctx, kindAdminAuth, userKey(a.UserID), a)
}

func (t *docTx) Journal(ctx context.Context, e *JournalEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := t.b.journal(ctx, e); err != nil {
		return fmt.Errorf("ошибка записи в журнал: %w", err)
	}
	return nil
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
