// Package publish реализует конвейер публикации папки в канал.
//
// Конвейер - детерминированная машина этапов:
//
//	init -> zip -> report -> reencode_auth -> reencode -> join ->
//	timestamp -> upload_auth -> upload -> done
//
// Каждый этап идемпотентен относительно состояния рабочего пространства
// и завершается монотонной защёлкой is_* в PublishTask. Защёлка
// взводится только после появления артефактов этапа на диске; обрыв
// между записью артефактов и фиксацией повторяет этап, поэтому этапы
// терпимы к уже существующим полным выходам и зачищают временные *.tmp.
package publish

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
	"github.com/thiagofdso/chat-cloner/internal/linkfile"
	"github.com/thiagofdso/chat-cloner/internal/retry"
	"github.com/thiagofdso/chat-cloner/internal/storage"
	"github.com/thiagofdso/chat-cloner/internal/telegram"
	"github.com/thiagofdso/chat-cloner/internal/watcher"
	"github.com/thiagofdso/chat-cloner/internal/worker"
)

// settleWindow - окно затишья исходной папки перед началом работы.
// Публикация папки, которую ещё копируют, даёт неполные архивы.
const settleWindow = 2 * time.Second

// maxProjectName ограничивает длину имени проекта в путях.
const maxProjectName = 64

// errDeclined - пользователь не подтвердил шлюз; конвейер
// останавливается без ошибки и возобновляется со шлюза.
var errDeclined = fmt.Errorf("шлюз не подтверждён")

// Transcoder - операции ffmpeg, нужные конвейеру. Реализуется
// media.Transcoder; в тестах подменяется заглушкой.
type Transcoder interface {
	Reencode(ctx context.Context, src, dst string, preset config.PresetConfig) error
	Remux(ctx context.Context, src, dst string) error
	Concat(ctx context.Context, parts []string, dst string) error
}

// Pipeline выполняет задачи публикации.
type Pipeline struct {
	cfg    *config.Config
	store  *storage.Storage
	client telegram.Client
	trans  Transcoder
	prober worker.Prober
	retry  retry.Config
	log    *logrus.Logger
	links  *linkfile.Writer

	// Confirm запрашивает подтверждение шлюза. nil - интерактивный
	// вопрос в терминале; флаг --yes подставляет автоподтверждение.
	Confirm func(prompt string) (bool, error)

	// sleep подменяет паузу между исходящими сообщениями в тестах.
	sleep func(ctx context.Context, d time.Duration) error

	// noProgress отключает прогресс-бары (тесты).
	noProgress bool

	// skipSettle пропускает пробу затишья исходной папки (тесты).
	skipSettle bool
}

// New создаёт конвейер публикации.
func New(cfg *config.Config, store *storage.Storage, client telegram.Client, trans Transcoder, prober worker.Prober, retryCfg retry.Config, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		store:  store,
		client: client,
		trans:  trans,
		prober: prober,
		retry:  retryCfg,
		log:    log,
		links:  linkfile.New(cfg.LinksFile),
	}
}

// SetSleep подменяет функцию паузы (для тестов).
func (p *Pipeline) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	p.sleep = fn
}

// SetNoProgress отключает прогресс-бары.
func (p *Pipeline) SetNoProgress(v bool) {
	p.noProgress = v
}

// SetSkipSettle пропускает пробу затишья исходной папки.
func (p *Pipeline) SetSkipSettle(v bool) {
	p.skipSettle = v
}

// stage связывает этап машины с защёлкой и обработчиком.
type stage struct {
	step storage.Step
	flag storage.StageFlag
	run  func(ctx context.Context, task *storage.PublishTask, ws *Workspace) error
}

// stages возвращает этапы конвейера в порядке выполнения.
func (p *Pipeline) stages() []stage {
	return []stage{
		{storage.StepInit, storage.FlagStarted, p.stageInit},
		{storage.StepZip, storage.FlagZipped, p.stageZip},
		{storage.StepReport, storage.FlagReported, p.stageReport},
		{storage.StepReencodeAuth, storage.FlagReencodeAuth, p.stageReencodeAuth},
		{storage.StepReencode, storage.FlagReencoded, p.stageReencode},
		{storage.StepJoin, storage.FlagJoined, p.stageJoin},
		{storage.StepTimestamp, storage.FlagTimestamped, p.stageTimestamp},
		{storage.StepUploadAuth, storage.FlagUploadAuth, p.stageUploadAuth},
		{storage.StepUpload, storage.FlagPublished, p.stageUpload},
	}
}

// Run выполняет конвейер публикации для папки. Возобновление после
// обрыва повторяет только незавершённый этап: завершённые этапы
// пропускаются по защёлкам.
func (p *Pipeline) Run(ctx context.Context, folder string, restart bool) error {
	source, err := filepath.Abs(folder)
	if err != nil {
		return fmt.Errorf("не удалось определить путь %s: %w", folder, err)
	}
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("исходная папка недоступна: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s не является папкой", source)
	}

	project := DeriveProject(source, maxProjectName)
	ws := NewWorkspace(p.cfg.WorkspaceRoot(), project, source)

	if restart {
		if err := p.store.DeletePublishTask(source); err != nil {
			return err
		}
		if err := os.RemoveAll(ws.Root); err != nil {
			return fmt.Errorf("не удалось очистить рабочее пространство: %w", err)
		}
		fmt.Println("🧹 Задача публикации сброшена")
	}

	task, err := p.store.GetOrCreatePublishTask(source, project)
	if err != nil {
		return err
	}
	if task.IsPublished {
		fmt.Printf("✅ Проект «%s» уже опубликован\n", task.ProjectName)
		return nil
	}

	fmt.Printf("🚀 Публикация «%s»\n", task.ProjectName)

	for _, st := range p.stages() {
		if task.StageDone(st.flag) {
			continue
		}

		fmt.Printf("▶️  Этап %s\n", st.step)
		if err := p.store.SetPublishStep(task.SourceFolderPath, st.step, storage.StatusInProgress); err != nil {
			return err
		}

		err := st.run(ctx, task, ws)
		if err == errDeclined {
			// Отказ на шлюзе - не ошибка: конвейер возобновится с него
			if serr := p.store.SetPublishStep(task.SourceFolderPath, st.step, storage.StatusPending); serr != nil {
				return serr
			}
			fmt.Println("⏸️  Публикация приостановлена")
			return nil
		}
		if err != nil {
			// Останов строго на границе этапа: защёлка не взведена
			if serr := p.store.SetPublishStep(task.SourceFolderPath, st.step, storage.StatusFailed); serr != nil && p.log != nil {
				p.log.Warnf("не удалось отметить сбой этапа: %v", serr)
			}
			return err
		}

		if err := p.store.CompleteStage(task.SourceFolderPath, st.flag); err != nil {
			return err
		}
		task, err = p.store.GetPublishTask(task.SourceFolderPath)
		if err != nil {
			return err
		}
		if task == nil {
			return fmt.Errorf("задача публикации исчезла из хранилища")
		}
	}

	if err := p.store.SetPublishStep(task.SourceFolderPath, storage.StepDone, storage.StatusDone); err != nil {
		return err
	}
	fmt.Printf("✅ Проект «%s» опубликован\n", task.ProjectName)
	return nil
}

// stageInit готовит рабочее пространство и ждёт затишья исходной папки.
func (p *Pipeline) stageInit(ctx context.Context, task *storage.PublishTask, ws *Workspace) error {
	if err := ws.Ensure(); err != nil {
		return err
	}
	if p.skipSettle {
		return nil
	}
	fmt.Printf("⏳ Ждём затишья в %s\n", ws.Source)
	return watcher.WaitSettle(ctx, ws.Source, settleWindow)
}

// confirm запрашивает подтверждение шлюза у пользователя.
func (p *Pipeline) confirm(prompt string) (bool, error) {
	if p.Confirm != nil {
		return p.Confirm(prompt)
	}
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("не удалось прочитать ответ: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes" || answer == "д" || answer == "да", nil
}

// pause выдерживает паузу между исходящими сообщениями.
func (p *Pipeline) pause(ctx context.Context) error {
	d := p.cfg.Delay()
	if d <= 0 {
		return nil
	}
	if p.sleep != nil {
		return p.sleep(ctx, d)
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

// atomicWrite пишет данные во временный файл и переименовывает его.
func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("не удалось записать %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("не удалось переименовать %s: %w", tmp, err)
	}
	return nil
}

// fileExists сообщает, что файл существует и непуст.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// sendMedia отправляет файл с повторами и возвращает сообщение.
func (p *Pipeline) sendMedia(ctx context.Context, chatID int64, kind telegram.Kind, path string, media *telegram.Media, opts *telegram.SendOptions) (*telegram.Message, error) {
	var sent *telegram.Message
	err := retry.Do(ctx, p.retry, "send_media", func() error {
		var err error
		sent, err = p.client.SendMedia(ctx, chatID, kind, path, media, opts)
		return err
	})
	return sent, err
}

/*
Возможные расширения:
- Команда статуса, показывающая этапы всех незавершённых публикаций
- Параллельное перекодирование нескольких видео с общим лимитом CPU
*/
