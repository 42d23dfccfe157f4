package cli

import (
	"github.com/spf13/cobra"

	"github.com/thiagofdso/chat-cloner/internal/downloader"
)

// newDownloadCmd создаёт команду download.
func newDownloadCmd() *cobra.Command {
	var opts downloader.Options

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Скачать видео из чата с извлечением аудио",
		Long: `Пакетное скачивание видеосообщений чата.

Каждое видео новее контрольной точки скачивается в
<выход>/<титул>/<дата>/<id>-<имя>, рядом пишется MP3-дорожка.
Прерванный запуск продолжается со следующего видео.

Примеры:
  # Скачать все видео канала
  chat-cloner download --origin @somechannel

  # Первые 10 новых видео, видео после MP3 удалять
  chat-cloner download --origin @somechannel --limit 10 --delete-video

  # Перечитать историю начиная с сообщения 500
  chat-cloner download --origin @somechannel --message-id 500`,
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

			engine := downloader.New(a.cfg, a.store, a.client, a.retry, a.log)
			engine.SetTranscoder(trans)
			return engine.Run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Origin, "origin", "", "Идентификатор источника: число, @псевдоним или ссылка")
	flags.IntVar(&opts.Limit, "limit", 0, "Остановиться после N новых видео (0 - без предела)")
	flags.StringVar(&opts.Output, "output", "", "Корень директории скачивания (по умолчанию CLONER_DOWNLOAD_PATH)")
	flags.BoolVar(&opts.Restart, "restart", false, "Сбросить задачу и скачивать заново")
	flags.BoolVar(&opts.DeleteVideo, "delete-video", false, "Удалять видео после готовой аудиодорожки")
	flags.Int64Var(&opts.MessageID, "message-id", 0, "Опустить стартовую контрольную точку до M-1")
	_ = cmd.MarkFlagRequired("origin")

	return cmd
}
