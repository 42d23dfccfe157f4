// Package cli содержит CLI интерфейс приложения.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thiagofdso/chat-cloner/internal/errs"
)

var (
	// Version будет установлена при сборке.
	Version = "dev"

	// BuildTime будет установлена при сборке.
	BuildTime = "unknown"
)

// NewRootCmd создаёт корневую команду CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chat-cloner",
		Short: "Утилита для клонирования чатов и публикации папок в каналы",
		Long: `Chat-cloner - клиентская утилита автоматизации поверх платформы чатов.

Три рабочих процесса: клонирование истории чата в другой чат,
пакетное скачивание видео и публикация локальной папки в канал
через многоэтапный медиаконвейер.

Все процессы идемпотентны: повторный запуск продолжает с контрольной
точки и не отправляет уже доставленное.

Примеры:
  # Склонировать канал в новый приватный канал
  chat-cloner sync --origin @somechannel

  # Скачать все видео из чата
  chat-cloner download --origin -1001234567890 --output ./videos

  # Опубликовать папку курса в канал
  chat-cloner publish --folder ./course --yes`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Подробный вывод")

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newPublishCmd())
	rootCmd.AddCommand(newListChatsCmd())
	rootCmd.AddCommand(newListTopicsCmd())
	rootCmd.AddCommand(newTestResolveCmd())
	rootCmd.AddCommand(newInitDatabaseCmd())
	rootCmd.AddCommand(newPresetsCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newVersionCmd создаёт команду version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chat-cloner %s (built %s)\n", Version, BuildTime)
		},
	}
}

// Execute запускает CLI. Сигналы завершения отменяют контекст команд:
// движки фиксируют контрольную точку и выходят с кодом 3.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n⚠️  Получен сигнал завершения, останавливаем...")
		cancel()
	}()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		if errs.IsInterrupted(err) {
			fmt.Fprintln(os.Stderr, "⚠️  Работа прервана, контрольная точка сохранена")
		} else {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		}
		os.Exit(errs.ExitCode(err))
	}
}

/*
Возможные расширения:
- Команда status со сводкой незавершённых задач всех трёх процессов
- Команда retry для повторного прохода по failed-задачам публикации
- Флаг --json для машинного вывода list-chats и list-topics
*/
