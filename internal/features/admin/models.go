// Package admin реализует админ-панель с парольной аутентификацией.
// models.go описывает состояние диалога с администратором.
package admin

import "time"

// AdminState — состояние диалога с админом (конечный автомат).
// Панель работает по шагам: ввод пароля → клавиатура → команда.
type AdminState struct {
	State     string    // Текущее состояние ("", "awaiting_password", ...)
	ExpiresAt time.Time // Когда состояние истекает (5 минут)
}

// Возможные состояния админ-диалога
const (
	StateNone             = ""                  // Нет активного состояния
	StateAwaitingPassword = "awaiting_password" // Ждём пароль
)

// Ограничения входа.
const (
	MaxFailedAttempts = 3
	AttemptWindow     = time.Hour
	SessionTTL        = 24 * time.Hour
	stateTTL          = 5 * time.Minute
)

// Released — какие игры пользователя были сняты.
type Released struct {
	Battle   bool
	Minigame bool
}
