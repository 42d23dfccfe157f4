package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thiagofdso/chat-cloner/internal/cloner"
)

// newSyncCmd создаёт команду sync.
func newSyncCmd() *cobra.Command {
	var opts cloner.Options
	var batch bool
	var sourceFile string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Склонировать историю чата в другой чат",
		Long: `Клонирование истории чата в чат-назначение.

Источник проходится строго по возрастанию идентификаторов сообщений.
Контрольная точка продвигается после каждой подтверждённой доставки:
прерванный запуск продолжается с места обрыва, завершённый повторно
ничего не отправляет.

Без --dest создаётся новый приватный канал "[CLONE] <титул источника>".

Примеры:
  # Клонировать канал в новый приватный канал
  chat-cloner sync --origin @somechannel

  # Клонировать в существующий чат с принудительным скачиванием
  chat-cloner sync --origin -1001234567890 --dest -1009876543210 --force-download

  # Пакетный режим: по чату на строку файла
  chat-cloner sync --batch --source channels.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if batch && sourceFile == "" {
				return fmt.Errorf("пакетный режим требует --source <файл>")
			}
			if !batch && opts.Origin == "" {
				return fmt.Errorf("укажите --origin или --batch --source <файл>")
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			engine := cloner.New(a.cfg, a.store, a.client, a.retry, a.log)
			if opts.ExtractAudio {
				trans, err := a.newTranscoder()
				if err != nil {
					return err
				}
				engine.SetTranscoder(trans)
			}

			if batch {
				return engine.RunBatch(cmd.Context(), sourceFile, opts)
			}
			return engine.Run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Origin, "origin", "", "Идентификатор источника: число, @псевдоним или ссылка")
	flags.StringVar(&opts.Dest, "dest", "", "Идентификатор назначения (по умолчанию создаётся новый канал)")
	flags.BoolVar(&opts.ForceDownload, "force-download", false, "Принудительная стратегия download_upload")
	flags.BoolVar(&opts.ExtractAudio, "extract-audio", false, "Писать MP3 рядом с каждым скачанным видео")
	flags.BoolVar(&opts.Restart, "restart", false, "Сбросить задачу и клонировать заново")
	flags.BoolVar(&opts.LeaveOrigin, "leave-origin", false, "Выйти из источника после завершения")
	flags.StringVar(&opts.PublishTo, "publish-to", "", "Чат для публикации ссылки на готовый клон")
	flags.Int64Var(&opts.TopicID, "topic", 0, "Тема форума для --publish-to")
	flags.BoolVar(&batch, "batch", false, "Пакетный режим: клонировать каждый чат из --source")
	flags.StringVar(&sourceFile, "source", "", "Файл идентификаторов для пакетного режима")

	return cmd
}
