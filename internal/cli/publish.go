package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thiagofdso/chat-cloner/internal/publish"
)

// newPublishCmd создаёт команду publish.
func newPublishCmd() *cobra.Command {
	var folder string
	var restart, yes bool

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Опубликовать папку в канал через медиаконвейер",
		Long: `Публикация локальной папки в канал.

Конвейер этапов: архивация документов, инвентарь видео, нормализация
перекодированием, склейка по лимитам, сводка с таймкодами и выгрузка.
Каждый завершённый этап фиксируется в базе: прерванный запуск повторяет
только незавершённый этап.

Перед перекодированием и перед выгрузкой конвейер ждёт подтверждения;
--yes подтверждает оба шлюза автоматически.

Примеры:
  # Опубликовать папку курса
  chat-cloner publish --folder ./course

  # Без вопросов, с чистого листа
  chat-cloner publish --folder ./course --restart --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			trans, err := a.newTranscoder()
			if err != nil {
				return err
			}

			pipe := publish.New(a.cfg, a.store, a.client, trans, trans, a.retry, a.log)
			if yes {
				pipe.Confirm = func(prompt string) (bool, error) {
					fmt.Printf("%s [y/N]: y (--yes)\n", prompt)
					return true, nil
				}
			}
			return pipe.Run(cmd.Context(), folder, restart)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&folder, "folder", "", "Исходная папка публикации")
	flags.BoolVar(&restart, "restart", false, "Сбросить задачу и рабочее пространство, начать заново")
	flags.BoolVarP(&yes, "yes", "y", false, "Подтверждать шлюзы автоматически")
	_ = cmd.MarkFlagRequired("folder")

	return cmd
}
