// Package members ведёт справочник участников чата: регистрацию и поиск по @username.
// models.go описывает структуры данных участника.
package members

import "serotonyl.ru/bizbattle/internal/ledger"

// Member — участник чата (документ kind=member в хранилище игры).
type Member = ledger.Member

// UpdateInfo содержит данные для обновления информации о пользователе.
// Используется, когда пользователь возвращается в чат и его имя/username могли измениться.
type UpdateInfo struct {
	Username  string // Новый @username
	FirstName string // Новое имя
	LastName  string // Новая фамилия
}
