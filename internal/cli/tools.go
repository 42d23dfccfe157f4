package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thiagofdso/chat-cloner/internal/config"
	"github.com/thiagofdso/chat-cloner/internal/storage"
)

// newTestResolveCmd создаёт команду test-resolve.
func newTestResolveCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "test-resolve",
		Short: "Разобрать идентификатор чата и проверить доступ",
		Long: `Разбор идентификатора в канонический числовой вид.

Принимаются те же формы, что и у --origin: число, @псевдоним,
ссылка t.me/<имя>, приватная ссылка t.me/c/<id> и ссылки на
конкретные сообщения.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.rsv().Resolve(cmd.Context(), id)
			if err != nil {
				return err
			}

			chat, err := a.client.GetChat(cmd.Context(), res.ChatID)
			if err != nil {
				return err
			}

			fmt.Printf("✅ Идентификатор разобран:\n")
			fmt.Printf("   Чат: %d («%s»)\n", chat.ID, chat.Title)
			if res.MessageID != 0 {
				fmt.Printf("   Сообщение: %d\n", res.MessageID)
			}
			if chat.Protected {
				fmt.Println("   ⚠️  Пересылка содержимого запрещена (download_upload)")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Идентификатор для разбора")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

// newInitDatabaseCmd создаёт команду init-database.
func newInitDatabaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-database",
		Short: "Создать базу данных и схему",
		Long: `Создание файла базы данных со схемой задач.

Команда идемпотентна: существующая база и её данные не изменяются.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("ошибка конфигурации: %w", err)
			}

			store, err := storage.New(cfg.DatabasePath())
			if err != nil {
				return fmt.Errorf("не удалось инициализировать БД: %w", err)
			}
			defer func() { _ = store.Close() }()

			fmt.Printf("✅ База данных готова: %s\n", cfg.DatabasePath())
			return nil
		},
	}
}
