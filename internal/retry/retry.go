// Package retry содержит адаптер повторов для вызовов платформы.
//
// Адаптер - единственное место, где программа намеренно спит. Он не
// хранит состояния между вызовами и может использоваться из любого
// места, где вызов платформы способен упасть из-за флуд-контроля или
// сетевой ошибки.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thiagofdso/chat-cloner/internal/errs"
)

// Config определяет политику повторов.
type Config struct {
	// MaxRetries - максимум повторов после первой попытки для временных
	// ошибок. Ожидания флуд-контроля попытки не расходуют.
	MaxRetries int

	// BaseDelay - базовая задержка экспоненциального отступа.
	BaseDelay time.Duration

	// MaxDelay - потолок задержки отступа.
	MaxDelay time.Duration

	// Jitter - верхняя граница случайной добавки к каждой задержке.
	Jitter time.Duration

	// Sleep подменяет настоящий сон в тестах. nil - спать по-настоящему.
	Sleep func(ctx context.Context, d time.Duration) error

	// Log - журнал повторов. nil - без журналирования.
	Log *logrus.Logger
}

// DefaultConfig возвращает политику повторов для вызовов платформы.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 5,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		Jitter:     time.Second,
	}
}

// Do выполняет fn, повторяя вызов по политике cfg.
//
// Флуд-контроль: спим ровно столько, сколько велел сервер, плюс
// случайная добавка, и повторяем без ограничения количества раз.
// Временные ошибки: до MaxRetries повторов с экспоненциальным отступом;
// после исчерпания ошибка становится постоянной. Постоянные ошибки и
// отмена контекста возвращаются сразу.
func Do(ctx context.Context, cfg Config, name string, fn func() error) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}

		// Флуд-контроль: сервер диктует длительность ожидания,
		// счётчик попыток не трогаем
		if seconds, ok := errs.FloodWait(err); ok {
			wait := time.Duration(seconds)*time.Second + jitter(cfg.Jitter)
			if cfg.Log != nil {
				cfg.Log.Warnf("⏳ Флуд-контроль на %s: ждём %s", name, wait.Round(time.Millisecond))
			}
			if err := sleep(ctx, cfg, wait); err != nil {
				return err
			}
			continue
		}

		if !errs.IsTransient(err) {
			// Постоянные и неклассифицированные ошибки не повторяем
			return err
		}

		if attempt >= cfg.MaxRetries {
			return &errs.PermanentError{
				Err: fmt.Errorf("%s: исчерпаны %d повторов: %w", name, cfg.MaxRetries, err),
			}
		}

		wait := backoffDelay(attempt, cfg) + jitter(cfg.Jitter)
		if cfg.Log != nil {
			cfg.Log.Warnf("🔄 Повтор %s через %s (попытка %d/%d): %v",
				name, wait.Round(time.Millisecond), attempt+1, cfg.MaxRetries, err)
		}
		attempt++
		if err := sleep(ctx, cfg, wait); err != nil {
			return err
		}
	}
}

// backoffDelay вычисляет задержку экспоненциального отступа для попытки
// (нумерация с нуля), ограниченную потолком MaxDelay.
func backoffDelay(attempt int, cfg Config) time.Duration {
	delay := cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	if delay > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return delay
}

// jitter возвращает случайную добавку в диапазоне [0, max).
func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// sleep спит с учётом отмены контекста.
func sleep(ctx context.Context, cfg Config, d time.Duration) error {
	if cfg.Sleep != nil {
		return cfg.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

/*
Возможные расширения:
- Добавить счётчик суммарного времени ожидания для итоговой статистики
- Добавить отдельную политику для файловых операций с меньшими задержками
*/
