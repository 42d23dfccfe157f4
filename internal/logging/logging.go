// Package logging настраивает журнал приложения.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

// Setup создаёт журнал, пишущий в файл с ротацией.
// Консольный вывод команд идёт отдельно (fmt + прогресс-бары),
// журнал хранит подробную историю операций.
func Setup(path string, verbose bool) (*logrus.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию журнала: %w", err)
	}

	log := logrus.New()
	log.SetOutput(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // мегабайт
		MaxBackups: 3,
		MaxAge:     30, // дней
		Compress:   false,
	})
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	return log, nil
}

// Discard возвращает журнал, отбрасывающий все записи. Используется в тестах.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(nullWriter{})
	return log
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }
