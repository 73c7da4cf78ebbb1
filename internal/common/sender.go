// Package common — sender.go: то, чем обработчики отправляют ответы.
// *tgbotapi.BotAPI удовлетворяет интерфейсу, в тестах — запись в срез.
package common

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// Sender отправляет сообщения в Telegram.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
