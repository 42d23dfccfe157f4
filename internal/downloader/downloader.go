// Package downloader реализует пакетное скачивание видео из чата.
//
// Вариант цикла клонирования, ограниченный видеосообщениями: каждое
// видео новее контрольной точки скачивается на диск, рядом пишется MP3,
// контрольная точка и счётчики продвигаются в DownloadTask.
package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/thiagofdso/chat-cloner/internal/config"
	"github.com/thiagofdso/chat-cloner/internal/errs"
	"github.com/thiagofdso/chat-cloner/internal/media"
	"github.com/thiagofdso/chat-cloner/internal/processor"
	"github.com/thiagofdso/chat-cloner/internal/progress"
	"github.com/thiagofdso/chat-cloner/internal/resolver"
	"github.com/thiagofdso/chat-cloner/internal/retry"
	"github.com/thiagofdso/chat-cloner/internal/storage"
	"github.com/thiagofdso/chat-cloner/internal/telegram"
)

// historyPageSize - размер страницы при чтении истории.
const historyPageSize = 200

// Options задаёт параметры одного запуска скачивания.
type Options struct {
	// Origin - идентификатор источника в свободной форме.
	Origin string

	// Limit останавливает работу после N новых видео (0 - без предела).
	Limit int

	// Output - корень директории скачивания; пустая строка берёт
	// CLONER_DOWNLOAD_PATH.
	Output string

	// Restart сбрасывает задачу и начинает скачивание заново.
	Restart bool

	// DeleteVideo удаляет видеофайл после готовой аудиодорожки.
	DeleteVideo bool

	// MessageID опускает стартовую контрольную точку до M-1.
	// Поднять контрольную точку этим флагом нельзя.
	MessageID int64
}

// Engine выполняет задачи скачивания.
type Engine struct {
	cfg    *config.Config
	store  *storage.Storage
	client telegram.Client
	rsv    *resolver.Resolver
	retry  retry.Config
	log    *logrus.Logger

	// transcoder - извлечение аудио; nil отключает его.
	transcoder *media.Transcoder

	// noProgress отключает прогресс-бар (тесты).
	noProgress bool
}

// New создаёт движок скачивания.
func New(cfg *config.Config, store *storage.Storage, client telegram.Client, retryCfg retry.Config, log *logrus.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		store:  store,
		client: client,
		rsv:    resolver.New(client, retryCfg, log),
		retry:  retryCfg,
		log:    log,
	}
}

// SetTranscoder включает извлечение аудио.
func (e *Engine) SetTranscoder(t *media.Transcoder) {
	e.transcoder = t
}

// SetNoProgress отключает прогресс-бар.
func (e *Engine) SetNoProgress(v bool) {
	e.noProgress = v
}

// Run выполняет одну задачу скачивания.
func (e *Engine) Run(ctx context.Context, opts Options) error {
	res, err := e.rsv.Resolve(ctx, opts.Origin)
	if err != nil {
		return err
	}
	originID := res.ChatID

	var chat *telegram.Chat
	if err := retry.Do(ctx, e.retry, "get_chat", func() error {
		var err error
		chat, err = e.client.GetChat(ctx, originID)
		return err
	}); err != nil {
		return err
	}

	if opts.Restart {
		if err := e.store.DeleteDownloadTask(originID); err != nil {
			return err
		}
	}

	task, err := e.store.GetDownloadTask(originID)
	if err != nil {
		return err
	}
	if task == nil {
		total, err := e.countVideos(ctx, originID)
		if err != nil {
			return err
		}
		task = &storage.DownloadTask{
			OriginChatID:    originID,
			OriginChatTitle: chat.Title,
			TotalVideos:     total,
		}
		if err := e.store.UpsertDownloadTask(task); err != nil {
			return err
		}
	}

	// --message-id двигает контрольную точку только вниз
	if opts.MessageID > 0 && opts.MessageID-1 < task.LastDownloadedMessageID {
		task.LastDownloadedMessageID = opts.MessageID - 1
		if err := e.store.UpsertDownloadTask(task); err != nil {
			return err
		}
	}

	output := opts.Output
	if output == "" {
		output = e.cfg.DownloadPath
	}

	fmt.Printf("🚀 Скачивание видео из «%s» (%d), контрольная точка %d\n",
		task.OriginChatTitle, task.OriginChatID, task.LastDownloadedMessageID)

	return e.walk(ctx, task, output, opts)
}

// walk идёт по истории и скачивает видео новее контрольной точки.
func (e *Engine) walk(ctx context.Context, task *storage.DownloadTask, output string, opts Options) error {
	head, err := e.headID(ctx, task.OriginChatID)
	if err != nil {
		return err
	}
	if task.LastDownloadedMessageID >= head {
		fmt.Println("✅ Новых видео нет")
		return nil
	}

	bar := progress.New(progress.Options{
		Total:       task.TotalVideos - task.DownloadedVideos,
		Description: "Скачивание",
		Units:       "видео",
		Disabled:    e.noProgress,
	})
	defer bar.Finish()

	fresh := 0
	fromID := task.LastDownloadedMessageID + 1

	for {
		page, err := e.historyPage(ctx, task.OriginChatID, fromID)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}

		for _, msg := range page {
			if msg.Kind != telegram.KindVideo || msg.Media == nil {
				continue
			}

			if err := e.downloadOne(ctx, task, msg, output, opts, bar); err != nil {
				if errs.IsUnsupported(err) {
					if e.log != nil {
						e.log.Infof("видео %d пропущено: %v", msg.ID, err)
					}
					bar.IncrementSkipped()
				} else {
					return err
				}
			} else {
				task.DownloadedVideos++
				fresh++
				bar.Increment()
			}

			if err := e.store.AdvanceDownloadTask(task.OriginChatID, msg.ID, task.DownloadedVideos); err != nil {
				return err
			}
			task.LastDownloadedMessageID = msg.ID

			if opts.Limit > 0 && fresh >= opts.Limit {
				fmt.Printf("📊 Достигнут предел %d видео\n", opts.Limit)
				return nil
			}
		}

		fromID = page[len(page)-1].ID + 1
	}

	// Чистый проход: контрольная точка поднимается до головы чата
	if err := e.store.AdvanceDownloadTask(task.OriginChatID, head, task.DownloadedVideos); err != nil {
		return err
	}

	fmt.Printf("📊 Скачано %d новых видео (всего %d из %d)\n",
		fresh, task.DownloadedVideos, task.TotalVideos)
	return nil
}

// downloadOne скачивает одно видео и пишет рядом аудиодорожку.
// Раскладка: <output>/<титул>/<ГГГГ-ММ-ДД>/<msg_id>-<имя>.
func (e *Engine) downloadOne(ctx context.Context, task *storage.DownloadTask, msg *telegram.Message, output string, opts Options, bar *progress.Bar) error {
	dir := filepath.Join(output,
		processor.SanitizeName(task.OriginChatTitle),
		msg.Date.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("не удалось создать директорию скачивания: %w", err)
	}

	name := msg.Media.FileName
	if name == "" {
		name = "video.mp4"
	}
	name = fmt.Sprintf("%d-%s", msg.ID, processor.SanitizeName(name))
	local := filepath.Join(dir, e.cfg.TruncatePath(dir, name))

	if err := retry.Do(ctx, e.retry, "download_media", func() error {
		return e.client.DownloadMedia(ctx, msg, local)
	}); err != nil {
		return err
	}

	if info, err := os.Stat(local); err == nil && info.Size() == 0 {
		// Пустая загрузка: одна повторная попытка, затем пропуск
		if err := retry.Do(ctx, e.retry, "download_media", func() error {
			return e.client.DownloadMedia(ctx, msg, local)
		}); err != nil {
			return err
		}
		if info, err := os.Stat(local); err == nil && info.Size() == 0 {
			_ = os.Remove(local)
			return &errs.UnsupportedError{Kind: string(msg.Kind), Reason: "пустая загрузка"}
		}
	}

	// Извлечение аудио нефатально: видео уже на диске
	if e.transcoder != nil {
		if _, err := e.transcoder.ExtractAudio(ctx, local); err != nil {
			if errs.IsInterrupted(err) {
				return err
			}
			bar.WriteMessage("⚠️  %s: аудио не извлечено: %v\n", name, err)
			if e.log != nil {
				e.log.Warnf("не удалось извлечь аудио из %s: %v", local, err)
			}
		} else if opts.DeleteVideo {
			// Видео удаляется только после готовой аудиодорожки
			if err := os.Remove(local); err != nil && e.log != nil {
				e.log.Warnf("не удалось удалить %s: %v", local, err)
			}
		}
	}

	return nil
}

// countVideos считает видеосообщения чата для счётчика задачи и
// прогресс-бара.
func (e *Engine) countVideos(ctx context.Context, chatID int64) (int64, error) {
	var total int64
	fromID := int64(1)
	for {
		page, err := e.historyPage(ctx, chatID, fromID)
		if err != nil {
			return 0, err
		}
		if len(page) == 0 {
			return total, nil
		}
		for _, msg := range page {
			if msg.Kind == telegram.KindVideo {
				total++
			}
		}
		fromID = page[len(page)-1].ID + 1
	}
}

// headID читает идентификатор последнего сообщения с повторами.
func (e *Engine) headID(ctx context.Context, chatID int64) (int64, error) {
	var head int64
	err := retry.Do(ctx, e.retry, "head_message_id", func() error {
		var err error
		head, err = e.client.HeadMessageID(ctx, chatID)
		return err
	})
	return head, err
}

// historyPage читает страницу истории с повторами.
func (e *Engine) historyPage(ctx context.Context, chatID, fromID int64) ([]*telegram.Message, error) {
	var page []*telegram.Message
	err := retry.Do(ctx, e.retry, "get_history", func() error {
		var err error
		page, err = e.client.GetHistory(ctx, chatID, fromID, historyPageSize)
		return err
	})
	return page, err
}

/*
Возможные расширения:
- Параллельное скачивание нескольких видео с общим лимитом полосы
- Фильтр по минимальной длительности видео
*/
