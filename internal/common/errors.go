// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отправлять пользователю понятные сообщения.
package common

import "errors"

// Ошибки экономики (баланс, слоты)
var (
	// ErrInsufficientBalance — недостаточно пленок на счёте
	ErrInsufficientBalance = errors.New("недостаточно пленок на счёте")
	// ErrInvalidAmount — некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrUserNotFound — пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
)

// Ошибки бизнесов
var (
	// ErrInvalidSlot — номер слота вне диапазона
	ErrInvalidSlot = errors.New("такого слота нет")
	// ErrSlotEmpty — в слоте нет бизнеса
	ErrSlotEmpty = errors.New("в этом слоте нет бизнеса")
	// ErrSlotOccupied — слот уже занят
	ErrSlotOccupied = errors.New("этот слот уже занят")
	// ErrEmptyName — пустое название или описание
	ErrEmptyName = errors.New("нужны название и описание")
	// ErrNameTooLong — слишком длинное название
	ErrNameTooLong = errors.New("слишком длинное название")
	// ErrDescriptionTooLong — слишком длинное описание
	ErrDescriptionTooLong = errors.New("слишком длинное описание")
	// ErrNoBusiness — у пользователя нет ни одного бизнеса
	ErrNoBusiness = errors.New("нет ни одного бизнеса")
	// ErrSellTooEarly — бизнес ещё нельзя продать (действует период удержания)
	ErrSellTooEarly = errors.New("бизнес пока нельзя продать")
)

// Ошибки рынка апгрейдов
var (
	// ErrUpgradeNotFound — апгрейд уже куплен или не существовал
	ErrUpgradeNotFound = errors.New("апгрейд не найден на рынке")
	// ErrOwnUpgrade — попытка купить собственный апгрейд
	ErrOwnUpgrade = errors.New("нельзя купить собственный апгрейд")
	// ErrUpgradeAlreadyApplied — этот апгрейд уже стоит на бизнесе
	ErrUpgradeAlreadyApplied = errors.New("этот апгрейд уже применён к бизнесу")
)

// Ошибки долей (equity)
var (
	// ErrSelfTrade — попытка купить/продать долю в собственном бизнесе
	ErrSelfTrade = errors.New("нельзя торговать долями своего бизнеса")
	// ErrInvalidPercent — процент вне диапазона (0, 100]
	ErrInvalidPercent = errors.New("процент должен быть больше 0 и не больше 100")
	// ErrOverAllocated — суммарные доли превысят 100%
	ErrOverAllocated = errors.New("в бизнесе не осталось столько свободных долей")
	// ErrInsufficientOwnership — у продавца меньше доли, чем он продаёт
	ErrInsufficientOwnership = errors.New("у вас нет такой доли")
	// ErrOwnerInsufficientFunds — владельцу не хватает пленок на выкуп доли
	ErrOwnerInsufficientFunds = errors.New("у владельца не хватает пленок на выкуп доли")
	// ErrQuoteExpired — нет действующей котировки для подтверждения
	ErrQuoteExpired = errors.New("котировка истекла или не найдена")
)

// Ошибки игровых сессий (батлы, мини-игра)
var (
	// ErrSelfBattle — вызов самого себя
	ErrSelfBattle = errors.New("нельзя вызвать на батл самого себя")
	// ErrAlreadyInBattle — один из игроков уже в батле
	ErrAlreadyInBattle = errors.New("игрок уже участвует в батле")
	// ErrAlreadyInMinigame — у пользователя уже идёт мини-игра
	ErrAlreadyInMinigame = errors.New("мини-игра уже идёт")
	// ErrSessionNotFound — у пользователя нет активной сессии
	ErrSessionNotFound = errors.New("активная игра не найдена")
	// ErrSessionFinished — сессия уже завершена
	ErrSessionFinished = errors.New("игра уже завершена")
	// ErrNotParticipant — пользователь не участник сессии
	ErrNotParticipant = errors.New("вы не участник этой игры")
	// ErrWrongState — действие недоступно на текущем шаге
	ErrWrongState = errors.New("сейчас это действие недоступно")
	// ErrAlreadySubmitted — аргумент в этом раунде уже отправлен
	ErrAlreadySubmitted = errors.New("вы уже отправили аргумент в этом раунде")
	// ErrEmptyText — пустой текст аргумента или питча
	ErrEmptyText = errors.New("текст не может быть пустым")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired — сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
)

// Ошибки функций, отключённых флагами
var (
	// ErrFeatureDisabled — функция отключена в настройках
	ErrFeatureDisabled = errors.New("функция временно отключена")
)

// Cause возвращает самую внутреннюю ошибку цепочки (обычно сигнальную из этого файла),
// чтобы показать пользователю её текст без технических обёрток.
func Cause(err error) error {
	for next := errors.Unwrap(err); next != nil; next = errors.Unwrap(err) {
		err = next
	}
	return err
}
