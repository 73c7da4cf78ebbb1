// Package admin — service.go содержит логику аутентификации, сессий
// и админ-действий: выдача пленок, пересчёт биржи, снятие зависших игр.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/features/battle"
	"serotonyl.ru/bizbattle/internal/features/minigame"
	"serotonyl.ru/bizbattle/internal/ledger"
)

// Granter начисляет пленки.
type Granter interface {
	Grant(ctx context.Context, adminID, userID, amount int64) (int64, error)
}

// StockRefresher применяет пропущенные шаги биржи.
type StockRefresher interface {
	Refresh(ctx context.Context) (*ledger.StockSeries, int, error)
}

// Service управляет админ-панелью.
type Service struct {
	repo      *Repository
	cfg       *config.Config
	economy   Granter
	stock     StockRefresher
	battles   *battle.Engine
	minigames *minigame.Engine
	now       func() time.Time

	states   map[int64]*AdminState // Состояния диалогов (in-memory)
	statesMu sync.RWMutex
}

// NewService создаёт сервис админ-панели.
func NewService(repo *Repository, cfg *config.Config, economy Granter, stock StockRefresher, battles *battle.Engine, minigames *minigame.Engine) *Service {
	return &Service{
		repo:      repo,
		cfg:       cfg,
		economy:   economy,
		stock:     stock,
		battles:   battles,
		minigames: minigames,
		now:       time.Now,
		states:    make(map[int64]*AdminState),
	}
}

// SetClock подменяет часы (для тестов).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// IsAdmin сообщает, входит ли пользователь в ADMIN_IDS.
func (s *Service) IsAdmin(userID int64) bool {
	return s.cfg.IsAdmin(userID)
}

// VerifyPassword проверяет пароль администратора с использованием Argon2id.
// Защита от brute-force: 3 неудачные попытки за час = блокировка.
// Успешный вход открывает сессию на 24 часа.
func (s *Service) VerifyPassword(ctx context.Context, userID int64, password string) error {
	if !s.IsAdmin(userID) {
		return common.ErrNotAdmin
	}
	now := s.now()
	var matched, locked bool
	err := s.repo.Update(ctx, userID, func(a *ledger.AdminAuth) error {
		// старые попытки больше не нужны
		recent := a.FailedAttempts[:0]
		for _, t := range a.FailedAttempts {
			if t.After(now.Add(-AttemptWindow)) {
				recent = append(recent, t)
			}
		}
		a.FailedAttempts = recent
		if len(recent) >= MaxFailedAttempts {
			locked = true
			return nil
		}

		matched = verifyArgon2id(password, s.cfg.AdminPasswordHash)
		if !matched {
			a.FailedAttempts = append(a.FailedAttempts, now)
			return nil
		}
		a.FailedAttempts = nil
		a.SessionToken = generateSecureToken()
		a.AuthenticatedAt = now
		a.LastActivity = now
		a.ExpiresAt = now.Add(SessionTTL)
		return nil
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"success": matched,
		"locked":  locked,
	}).Info("Попытка входа в админ-панель")

	switch {
	case locked:
		return common.ErrTooManyAttempts
	case !matched:
		return common.ErrWrongPassword
	}
	return nil
}

// HasActiveSession проверяет, есть ли у пользователя активная сессия.
func (s *Service) HasActiveSession(ctx context.Context, userID int64) bool {
	if !s.IsAdmin(userID) {
		return false
	}
	a, err := s.repo.Get(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка чтения админ-сессии")
		return false
	}
	return a.Active(s.now())
}

// Touch продлевает отметку активности сессии.
func (s *Service) Touch(ctx context.Context, userID int64) {
	if err := s.repo.Touch(ctx, userID, s.now()); err != nil {
		log.WithError(err).Warn("Не удалось обновить активность админ-сессии")
	}
}

// Logout закрывает сессию.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	return s.repo.Deactivate(ctx, userID)
}

// requireSession возвращает ошибку, если у админа нет активной сессии.
func (s *Service) requireSession(ctx context.Context, adminID int64) error {
	if !s.IsAdmin(adminID) {
		return common.ErrNotAdmin
	}
	if !s.HasActiveSession(ctx, adminID) {
		return common.ErrSessionExpired
	}
	return nil
}

// Grant выдаёт пленки пользователю.
func (s *Service) Grant(ctx context.Context, adminID, userID, amount int64) (int64, error) {
	if err := s.requireSession(ctx, adminID); err != nil {
		return 0, err
	}
	return s.economy.Grant(ctx, adminID, userID, amount)
}

// RefreshStock пересчитывает биржу вне расписания.
func (s *Service) RefreshStock(ctx context.Context, adminID int64) (*ledger.StockSeries, int, error) {
	if err := s.requireSession(ctx, adminID); err != nil {
		return nil, 0, err
	}
	series, steps, err := s.stock.Refresh(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка обновления биржи: %w", err)
	}
	log.WithFields(log.Fields{"admin_id": adminID, "steps": steps}).Info("Биржа пересчитана вручную")
	return series, steps, nil
}

// ReleaseSessions снимает пользователя с батла и мини-игры без записи итогов.
func (s *Service) ReleaseSessions(ctx context.Context, adminID, userID int64) (Released, error) {
	if err := s.requireSession(ctx, adminID); err != nil {
		return Released{}, err
	}
	var r Released
	if s.battles != nil {
		_, r.Battle = s.battles.Release(userID)
	}
	if s.minigames != nil {
		_, r.Minigame = s.minigames.Release(userID)
	}
	log.WithFields(log.Fields{
		"admin_id": adminID,
		"user_id":  userID,
		"battle":   r.Battle,
		"minigame": r.Minigame,
	}).Info("Игры пользователя сняты администратором")
	return r, nil
}

// GetState возвращает текущее состояние диалога.
func (s *Service) GetState(userID int64) *AdminState {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()

	state, ok := s.states[userID]
	if !ok {
		return nil
	}
	if s.now().After(state.ExpiresAt) {
		return nil
	}
	return state
}

// SetState устанавливает состояние диалога с 5-минутным таймаутом.
func (s *Service) SetState(userID int64, stateName string) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	s.states[userID] = &AdminState{
		State:     stateName,
		ExpiresAt: s.now().Add(stateTTL),
	}
}

// ClearState сбрасывает состояние диалога.
func (s *Service) ClearState(userID int64) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	delete(s.states, userID)
}

// --- Криптографические утилиты ---

// verifyArgon2id проверяет пароль по хешу Argon2id.
// Формат хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Сравниваем в постоянном времени
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}

// HashPassword кодирует пароль в формате, который понимает verifyArgon2id.
func HashPassword(password string, salt []byte) string {
	const (
		memory      = 64 * 1024
		iterations  = 3
		parallelism = 2
		keyLen      = 32
	)
	hash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

// generateSecureToken генерирует криптографически безопасный токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}
