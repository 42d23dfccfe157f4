// Package cloner реализует движок клонирования чатов.
//
// Движок ведёт по одной задаче SyncTask на исходный чат: идёт по истории
// строго по возрастанию идентификаторов, доставляет каждое сообщение в
// назначение и продвигает контрольную точку только после подтверждённой
// доставки. Повторный запуск продолжает с места обрыва; завершённая
// задача при повторном запуске не отправляет ничего.
package cloner

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thiagofdso/chat-cloner/internal/config"
	"github.com/thiagofdso/chat-cloner/internal/errs"
	"github.com/thiagofdso/chat-cloner/internal/linkfile"
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

// Options задаёт параметры одного запуска клонирования.
type Options struct {
	// Origin - идентификатор источника в свободной форме.
	Origin string

	// Dest - идентификатор назначения; пустая строка означает
	// «создать новый приватный канал [CLONE] <титул>».
	Dest string

	// ForceDownload принудительно выбирает стратегию download_upload.
	ForceDownload bool

	// ExtractAudio - писать MP3 рядом с каждым скачанным видео.
	ExtractAudio bool

	// Restart сбрасывает задачу и начинает клонирование заново.
	Restart bool

	// LeaveOrigin - выйти из источника после завершения.
	LeaveOrigin bool

	// PublishTo - чат, куда отправить ссылку на готовый клон.
	PublishTo string

	// TopicID - тема форума для PublishTo (0 - без темы).
	TopicID int64
}

// Engine выполняет задачи клонирования.
type Engine struct {
	cfg    *config.Config
	store  *storage.Storage
	client telegram.Client
	rsv    *resolver.Resolver
	retry  retry.Config
	log    *logrus.Logger
	links  *linkfile.Writer

	// transcoder - извлечение аудио; nil отключает его.
	transcoder *media.Transcoder

	// sleep подменяет паузу между исходящими сообщениями в тестах.
	sleep func(ctx context.Context, d time.Duration) error

	// noProgress отключает прогресс-бары (тесты, пакетный режим).
	noProgress bool
}

// New создаёт движок клонирования.
func New(cfg *config.Config, store *storage.Storage, client telegram.Client, retryCfg retry.Config, log *logrus.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		store:  store,
		client: client,
		rsv:    resolver.New(client, retryCfg, log),
		retry:  retryCfg,
		log:    log,
		links:  linkfile.New(cfg.LinksFile),
	}
}

// SetTranscoder включает извлечение аудио из скачиваемых видео.
func (e *Engine) SetTranscoder(t *media.Transcoder) {
	e.transcoder = t
}

// SetSleep подменяет функцию паузы (для тестов).
func (e *Engine) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	e.sleep = fn
}

// SetNoProgress отключает прогресс-бары.
func (e *Engine) SetNoProgress(v bool) {
	e.noProgress = v
}

// Run выполняет одну задачу клонирования от разбора идентификатора до
// пост-действий.
func (e *Engine) Run(ctx context.Context, opts Options) error {
	res, err := e.rsv.Resolve(ctx, opts.Origin)
	if err != nil {
		return err
	}
	return e.runChat(ctx, res.ChatID, opts)
}

// RunBatch читает файл идентификаторов и клонирует каждый чат отдельной
// задачей. Пустые строки и строки с # пропускаются. Неразрешимый или
// недоступный идентификатор логируется и не срывает пакет; прерывание
// пользователем останавливает пакет целиком.
func (e *Engine) RunBatch(ctx context.Context, sourceFile string, opts Options) error {
	f, err := os.Open(sourceFile)
	if err != nil {
		return fmt.Errorf("не удалось открыть файл пакета: %w", err)
	}
	defer func() { _ = f.Close() }()

	var done, skipped int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		batchOpts := opts
		batchOpts.Origin = line
		// Назначение из флага относится к одиночному запуску
		batchOpts.Dest = ""

		if err := e.Run(ctx, batchOpts); err != nil {
			if errs.IsInterrupted(err) {
				return err
			}
			skipped++
			fmt.Printf("⏭️  %s: %v\n", line, err)
			if e.log != nil {
				e.log.Warnf("пакет: %s пропущен: %v", line, err)
			}
			continue
		}
		done++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("не удалось прочитать файл пакета: %w", err)
	}

	fmt.Printf("📊 Пакет завершён: %d склонировано, %d пропущено\n", done, skipped)
	return nil
}

// runChat клонирует один чат по каноническому идентификатору.
func (e *Engine) runChat(ctx context.Context, originID int64, opts Options) error {
	chat, err := e.getChat(ctx, originID)
	if err != nil {
		return err
	}

	if opts.Restart {
		if err := e.store.DeleteSyncTask(originID); err != nil {
			return err
		}
	}

	task, err := e.store.GetSyncTask(originID)
	if err != nil {
		return err
	}
	created := false
	if task == nil {
		task, err = e.createTask(ctx, chat, opts)
		if err != nil {
			return err
		}
		created = true
	} else if opts.ForceDownload && task.Strategy != storage.StrategyDownload {
		// Пользовательский флаг - единственный способ сменить стратегию
		// существующей задачи, и только в сторону download_upload
		task.Strategy = storage.StrategyDownload
		if err := e.store.UpdateSyncStrategy(originID, task.Strategy); err != nil {
			return err
		}
	}

	fmt.Printf("🚀 Клонирование «%s» (%d) -> %d, стратегия %s\n",
		task.OriginChatTitle, task.OriginChatID, task.DestinationChatID, task.Strategy)

	delivered, idMap, err := e.walk(ctx, task, opts)
	if err != nil {
		return err
	}

	if delivered > 0 || created {
		if err := e.replicatePins(ctx, task, idMap); err != nil {
			return err
		}
		if err := e.registerLink(ctx, task); err != nil {
			return err
		}
		if opts.PublishTo != "" {
			if err := e.publishLink(ctx, task, opts); err != nil {
				return err
			}
		}
	} else {
		fmt.Println("✅ Новых сообщений нет")
	}

	if opts.LeaveOrigin {
		if err := retry.Do(ctx, e.retry, "leave_chat", func() error {
			return e.client.LeaveChat(ctx, task.OriginChatID)
		}); err != nil {
			return err
		}
		fmt.Printf("👋 Вышли из «%s»\n", task.OriginChatTitle)
	}

	return nil
}

// createTask создаёт задачу клонирования: выбирает стратегию и
// назначение. Стратегия фиксируется в хранилище до первой доставки.
func (e *Engine) createTask(ctx context.Context, chat *telegram.Chat, opts Options) (*storage.SyncTask, error) {
	strategy := storage.StrategyForward
	if chat.Protected || opts.ForceDownload {
		strategy = storage.StrategyDownload
	}

	var destID int64
	if opts.Dest != "" {
		res, err := e.rsv.Resolve(ctx, opts.Dest)
		if err != nil {
			return nil, err
		}
		destID = res.ChatID
	} else {
		var dest *telegram.Chat
		err := retry.Do(ctx, e.retry, "create_channel", func() error {
			var err error
			dest, err = e.client.CreateChannel(ctx, "[CLONE] "+chat.Title)
			return err
		})
		if err != nil {
			return nil, err
		}
		destID = dest.ID
		// Пометка об источнике; сбой описания не срывает клонирование
		desc := fmt.Sprintf("Клон чата «%s» (%d)", chat.Title, chat.ID)
		if err := e.client.SetChatDescription(ctx, destID, desc); err != nil && e.log != nil {
			e.log.Warnf("не удалось задать описание канала %d: %v", destID, err)
		}
		fmt.Printf("📦 Создан канал назначения %d\n", destID)
	}

	task := &storage.SyncTask{
		OriginChatID:      chat.ID,
		OriginChatTitle:   chat.Title,
		DestinationChatID: destID,
		Strategy:          strategy,
	}
	if err := e.store.UpsertSyncTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// walk идёт по истории источника по возрастанию идентификаторов и
// доставляет сообщения новее контрольной точки. Возвращает количество
// доставленных сообщений и карту идентификаторов источник -> назначение.
func (e *Engine) walk(ctx context.Context, task *storage.SyncTask, opts Options) (int, map[int64]int64, error) {
	head, err := e.headID(ctx, task.OriginChatID)
	if err != nil {
		return 0, nil, err
	}
	if task.LastSyncedMessageID >= head {
		return 0, nil, nil
	}

	proc := processor.New(e.client, e.retry, e.log)
	proc.SetSilent(e.cfg.SilentMode)
	proc.SetScratchDir(e.scratchDir(task))
	if e.transcoder != nil {
		proc.SetTranscoder(e.transcoder, opts.ExtractAudio)
	}

	bar := progress.New(progress.Options{
		Total:       head - task.LastSyncedMessageID,
		Description: "Клонирование",
		Units:       "сообщение",
		Disabled:    e.noProgress,
	})
	defer bar.Finish()

	delivered := 0
	idMap := make(map[int64]int64)
	fromID := task.LastSyncedMessageID + 1

	for {
		page, err := e.historyPage(ctx, task.OriginChatID, fromID)
		if err != nil {
			return delivered, idMap, err
		}
		if len(page) == 0 {
			break
		}

		for _, msg := range page {
			destID, err := proc.Process(ctx, task.Strategy, msg, task.DestinationChatID)

			// Скрытый запрет пересылки понижает стратегию ровно один раз;
			// то же сообщение сразу доставляется повторной загрузкой
			if errs.IsRestricted(err) && task.Strategy == storage.StrategyForward {
				if e.log != nil {
					e.log.Warnf("чат %d запрещает пересылку, переходим на download_upload", task.OriginChatID)
				}
				bar.WriteMessage("⚠️  Пересылка запрещена, переходим на download_upload\n")
				task.Strategy = storage.StrategyDownload
				if serr := e.store.UpdateSyncStrategy(task.OriginChatID, task.Strategy); serr != nil {
					return delivered, idMap, serr
				}
				destID, err = proc.Process(ctx, task.Strategy, msg, task.DestinationChatID)
			}

			switch {
			case err == nil:
				idMap[msg.ID] = destID
				delivered++
				bar.Increment()
			case errs.IsUnsupported(err):
				if e.log != nil {
					e.log.Infof("сообщение %d пропущено: %v", msg.ID, err)
				}
				bar.IncrementSkipped()
			default:
				// Контрольная точка остаётся на последнем доставленном
				return delivered, idMap, err
			}

			if err := e.store.AdvanceSyncTask(task.OriginChatID, msg.ID); err != nil {
				return delivered, idMap, err
			}
			task.LastSyncedMessageID = msg.ID

			if err := e.pause(ctx); err != nil {
				return delivered, idMap, err
			}
		}

		fromID = page[len(page)-1].ID + 1
	}

	// Чистый проход: дыры от удалённых сообщений не перечитываются
	if err := e.store.AdvanceSyncTask(task.OriginChatID, head); err != nil {
		return delivered, idMap, err
	}
	task.LastSyncedMessageID = head

	return delivered, idMap, nil
}

// replicatePins закрепляет в назначении аналоги закреплённых сообщений
// источника, старые первыми. Непереведённые идентификаторы логируются.
func (e *Engine) replicatePins(ctx context.Context, task *storage.SyncTask, idMap map[int64]int64) error {
	var pinned []*telegram.Message
	err := retry.Do(ctx, e.retry, "get_pinned", func() error {
		var err error
		pinned, err = e.client.GetPinnedMessages(ctx, task.OriginChatID)
		return err
	})
	if err != nil {
		if errs.IsInterrupted(err) {
			return err
		}
		if e.log != nil {
			e.log.Warnf("не удалось прочитать закреплённые сообщения: %v", err)
		}
		return nil
	}

	for _, msg := range pinned {
		destID, ok := idMap[msg.ID]
		if !ok {
			if e.log != nil {
				e.log.Warnf("закреплённое сообщение %d не переведено в назначение", msg.ID)
			}
			continue
		}
		err := retry.Do(ctx, e.retry, "pin_message", func() error {
			return e.client.PinMessage(ctx, task.DestinationChatID, destID, e.cfg.SilentMode)
		})
		if err != nil {
			if errs.IsInterrupted(err) {
				return err
			}
			if e.log != nil {
				e.log.Warnf("не удалось закрепить сообщение %d: %v", destID, err)
			}
		}
	}
	return nil
}

// registerLink дописывает в файл ссылок две строки: титул источника и
// ссылку на клон. При REGISTER_INVITE_LINK ссылка пригласительная,
// иначе или при её недоступности - deep link на первое сообщение.
func (e *Engine) registerLink(ctx context.Context, task *storage.SyncTask) error {
	link := e.destLink(ctx, task.DestinationChatID)
	if err := e.links.Append(task.OriginChatTitle, link); err != nil {
		return err
	}
	fmt.Printf("🔗 %s\n", link)
	return nil
}

// destLink возвращает ссылку на назначение для файла ссылок.
func (e *Engine) destLink(ctx context.Context, destID int64) string {
	if e.cfg.RegisterInviteLink {
		var invite string
		err := retry.Do(ctx, e.retry, "export_invite_link", func() error {
			var err error
			invite, err = e.client.ExportInviteLink(ctx, destID)
			return err
		})
		if err == nil && invite != "" {
			return invite
		}
		if e.log != nil {
			e.log.Warnf("не удалось получить инвайт-ссылку %d: %v", destID, err)
		}
	}
	return linkfile.DeepLink(destID)
}

// publishLink отправляет титул и ссылку клона в настроенный чат/тему.
func (e *Engine) publishLink(ctx context.Context, task *storage.SyncTask, opts Options) error {
	res, err := e.rsv.Resolve(ctx, opts.PublishTo)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("%s\n%s", task.OriginChatTitle, e.destLink(ctx, task.DestinationChatID))
	return retry.Do(ctx, e.retry, "publish_link", func() error {
		_, err := e.client.SendText(ctx, res.ChatID, text, &telegram.SendOptions{
			TopicID: opts.TopicID,
			Silent:  e.cfg.SilentMode,
		})
		return err
	})
}

// scratchDir возвращает директорию скачивания задачи:
// <download_root>/<chat_id> - <титул>.
func (e *Engine) scratchDir(task *storage.SyncTask) string {
	name := fmt.Sprintf("%d - %s", task.OriginChatID, processor.SanitizeName(task.OriginChatTitle))
	return filepath.Join(e.cfg.DownloadPath, e.cfg.TruncatePath(e.cfg.DownloadPath, name))
}

// getChat читает чат с повторами.
func (e *Engine) getChat(ctx context.Context, chatID int64) (*telegram.Chat, error) {
	var chat *telegram.Chat
	err := retry.Do(ctx, e.retry, "get_chat", func() error {
		var err error
		chat, err = e.client.GetChat(ctx, chatID)
		return err
	})
	return chat, err
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

// pause выдерживает настроенную паузу между исходящими сообщениями.
func (e *Engine) pause(ctx context.Context) error {
	d := e.cfg.Delay()
	if d <= 0 {
		return nil
	}
	if e.sleep != nil {
		return e.sleep(ctx, d)
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
- Параллельное скачивание при download_upload с сохранением порядка отправки
- Продолжение клонирования в реальном времени после достижения головы
*/
