// Package main — bizctl, консоль оператора: миграции, биржа, топы,
// выдача пленок и хеш пароля админки. Работает с любым LEDGER_DRIVER.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	setupLogging()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ошибка: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging: логи в stderr, чтобы stdout оставался для результата команд.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stderr)
	log.SetLevel(log.WarnLevel)
}
