package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/thiagofdso/chat-cloner/internal/linkfile"
	"github.com/thiagofdso/chat-cloner/internal/progress"
	"github.com/thiagofdso/chat-cloner/internal/retry"
	"github.com/thiagofdso/chat-cloner/internal/storage"
	"github.com/thiagofdso/chat-cloner/internal/telegram"
	"github.com/thiagofdso/chat-cloner/internal/worker"
)

// stageUploadAuth показывает план выгрузки и ждёт подтверждения перед
// отправкой в канал. Отказ приостанавливает конвейер без ошибки.
func (p *Pipeline) stageUploadAuth(ctx context.Context, task *storage.PublishTask, ws *Workspace) error {
	plan, err := loadUploadPlan(filepath.Join(ws.Summary, uploadPlanName))
	if err != nil {
		return err
	}

	var videos, docs int
	var total int64
	for _, entry := range plan {
		full := filepath.Join(ws.Root, filepath.FromSlash(entry.File))
		if info, err := os.Stat(full); err == nil {
			total += info.Size()
		}
		if p.cfg.HasVideoExtension(path.Ext(entry.File)) {
			videos++
		} else {
			docs++
		}
	}

	fmt.Printf("📤 План выгрузки «%s»: %d видео, %d документов, %s\n",
		task.ProjectName, videos, docs, worker.FormatBytes(total))
	fmt.Printf("   Назначение: %s\n", p.describeDestination(task))

	ok, err := p.confirm("Начать выгрузку?")
	if err != nil {
		return err
	}
	if !ok {
		return errDeclined
	}
	return nil
}

// describeDestination описывает канал-назначение для шлюза выгрузки.
func (p *Pipeline) describeDestination(task *storage.PublishTask) string {
	switch {
	case task.DestinationChatID != 0:
		return fmt.Sprintf("канал %d", task.DestinationChatID)
	case p.cfg.MocChatID != 0:
		return fmt.Sprintf("тестовый канал %d", p.cfg.MocChatID)
	case !p.cfg.CreateNewChannel:
		return fmt.Sprintf("канал %d", p.cfg.ChatID)
	default:
		return fmt.Sprintf("новый канал «%s %s»", p.cfg.ChannelLabelPrefix, task.ProjectName)
	}
}

// stageUpload отправляет файлы плана в канал-назначение в
// лексикографическом порядке. Маркер last_uploaded_file двигается после
// каждой подтверждённой отправки: возобновление после обрыва продолжает
// со следующего файла, не дублируя уже отправленные.
func (p *Pipeline) stageUpload(ctx context.Context, task *storage.PublishTask, ws *Workspace) error {
	plan, err := loadUploadPlan(filepath.Join(ws.Summary, uploadPlanName))
	if err != nil {
		return err
	}
	groups, err := loadJoinPlan(filepath.Join(ws.Report, joinPlanName))
	if err != nil {
		return err
	}
	durations := make(map[string]time.Duration, len(groups))
	for i := range groups {
		durations[groups[i].Name] = groups[i].Duration()
	}

	// Суммарный размер считается до выгрузки: AUTODEL_VIDEO_TEMP
	// удаляет промежуточные видео по ходу
	var totalSize int64
	for _, entry := range plan {
		full := filepath.Join(ws.Root, filepath.FromSlash(entry.File))
		if info, err := os.Stat(full); err == nil {
			totalSize += info.Size()
		}
	}

	destID, err := p.destination(ctx, task)
	if err != nil {
		return err
	}

	bar := progress.New(progress.Options{
		Total:       int64(len(plan)),
		Description: "Выгрузка",
		Units:       "файл",
		Disabled:    p.noProgress,
	})
	defer bar.Finish()

	sentAny := false
	for _, entry := range plan {
		if task.LastUploadedFile != "" && entry.File <= task.LastUploadedFile {
			bar.IncrementSkipped()
			continue
		}
		if sentAny {
			if err := p.pause(ctx); err != nil {
				return err
			}
		}

		if err := p.uploadEntry(ctx, destID, ws, entry, durations); err != nil {
			return err
		}
		if err := p.store.SetLastUploadedFile(task.SourceFolderPath, entry.File); err != nil {
			return err
		}
		task.LastUploadedFile = entry.File
		sentAny = true
		bar.Increment()
	}

	if err := p.finishUpload(ctx, task, ws, destID, totalSize, durations); err != nil {
		return err
	}

	fmt.Printf("📤 Выгружено файлов: %d\n", len(plan))
	return nil
}

// destination выбирает канал-назначение. Выбор фиксируется в задаче:
// повторный запуск продолжает выгрузку в тот же канал, даже если
// конфигурация с тех пор изменилась.
func (p *Pipeline) destination(ctx context.Context, task *storage.PublishTask) (int64, error) {
	if task.DestinationChatID != 0 {
		return task.DestinationChatID, nil
	}

	var destID int64
	switch {
	case p.cfg.MocChatID != 0:
		destID = p.cfg.MocChatID
	case !p.cfg.CreateNewChannel:
		if p.cfg.ChatID == 0 {
			return 0, fmt.Errorf("CREATE_NEW_CHANNEL выключен, но CHAT_ID не задан")
		}
		destID = p.cfg.ChatID
	default:
		title := fmt.Sprintf("%s %s", p.cfg.ChannelLabelPrefix, task.ProjectName)
		var chat *telegram.Chat
		err := retry.Do(ctx, p.retry, "create_channel", func() error {
			var err error
			chat, err = p.client.CreateChannel(ctx, title)
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("не удалось создать канал «%s»: %w", title, err)
		}
		destID = chat.ID
		fmt.Printf("📣 Создан канал «%s» (%d)\n", title, destID)
	}

	if err := p.store.SetPublishDestination(task.SourceFolderPath, destID); err != nil {
		return 0, err
	}
	task.DestinationChatID = destID
	return destID, nil
}

// uploadEntry отправляет один файл плана: видео с длительностью из плана
// склейки, остальное документом.
func (p *Pipeline) uploadEntry(ctx context.Context, destID int64, ws *Workspace, entry PlanEntry, durations map[string]time.Duration) error {
	full := filepath.Join(ws.Root, filepath.FromSlash(entry.File))
	info, err := os.Stat(full)
	if err != nil {
		return fmt.Errorf("файл плана %s недоступен: %w", entry.File, err)
	}

	kind := telegram.KindDocument
	media := &telegram.Media{
		FileName: path.Base(entry.File),
		Size:     info.Size(),
	}
	if p.cfg.HasVideoExtension(path.Ext(entry.File)) {
		kind = telegram.KindVideo
		if d, ok := durations[path.Base(entry.File)]; ok {
			media.Duration = int(d.Seconds())
		}
	}

	opts := &telegram.SendOptions{
		Caption: entry.Description,
		Silent:  p.cfg.SilentMode,
	}
	if _, err := p.sendMedia(ctx, destID, kind, full, media, opts); err != nil {
		return fmt.Errorf("не удалось выгрузить %s: %w", entry.File, err)
	}

	if kind == telegram.KindVideo && p.cfg.AutodelVideoTemp {
		if err := os.Remove(full); err != nil && p.log != nil {
			p.log.Warnf("не удалось удалить промежуточное видео %s: %v", full, err)
		}
	}
	return nil
}

// finishUpload завершает публикацию: отправляет и закрепляет сводку,
// получает пригласительную ссылку, заполняет описание канала и
// регистрирует проект в файле ссылок.
func (p *Pipeline) finishUpload(ctx context.Context, task *storage.PublishTask, ws *Workspace, destID int64, totalSize int64, durations map[string]time.Duration) error {
	if err := p.sendSummary(ctx, destID, ws); err != nil {
		return err
	}

	link := task.InviteLink
	if link == "" {
		err := retry.Do(ctx, p.retry, "export_invite", func() error {
			var err error
			link, err = p.client.ExportInviteLink(ctx, destID)
			return err
		})
		if err != nil {
			// Без права на инвайты публикация всё равно состоялась
			if p.log != nil {
				p.log.Warnf("не удалось получить пригласительную ссылку: %v", err)
			}
			link = linkfile.DeepLink(destID)
		}
		if err := p.store.SetPublishInviteLink(task.SourceFolderPath, link); err != nil {
			return err
		}
		task.InviteLink = link
	}

	description := p.channelDescription(task.ProjectName, link, totalSize, durations)
	if err := p.client.SetChatDescription(ctx, destID, description); err != nil && p.log != nil {
		p.log.Warnf("не удалось обновить описание канала: %v", err)
	}

	if err := p.links.Append(task.ProjectName, link); err != nil {
		return err
	}
	fmt.Printf("🔗 %s\n", link)
	return nil
}

// sendSummary отправляет сводку проекта: текстом, если помещается в
// лимит сообщения, иначе документом. Отправленная сводка закрепляется.
func (p *Pipeline) sendSummary(ctx context.Context, destID int64, ws *Workspace) error {
	summaryPath := filepath.Join(ws.Summary, summaryName)
	data, err := os.ReadFile(summaryPath)
	if err != nil {
		return fmt.Errorf("не удалось прочитать сводку: %w", err)
	}
	text := string(data)

	var sent *telegram.Message
	if len([]rune(text)) <= telegram.TextLimit {
		err = retry.Do(ctx, p.retry, "send_summary", func() error {
			var err error
			sent, err = p.client.SendText(ctx, destID, text, &telegram.SendOptions{Silent: p.cfg.SilentMode})
			return err
		})
	} else {
		media := &telegram.Media{FileName: summaryName, Size: int64(len(data))}
		sent, err = p.sendMedia(ctx, destID, telegram.KindDocument, summaryPath, media, &telegram.SendOptions{Silent: p.cfg.SilentMode})
	}
	if err != nil {
		return fmt.Errorf("не удалось отправить сводку: %w", err)
	}

	if err := p.client.PinMessage(ctx, destID, sent.ID, p.cfg.SilentMode); err != nil && p.log != nil {
		p.log.Warnf("не удалось закрепить сводку: %v", err)
	}
	return nil
}

// channelDescription собирает описание канала: размер, длительность и
// пригласительная ссылка с настраиваемыми метками.
func (p *Pipeline) channelDescription(project, link string, total int64, durations map[string]time.Duration) string {
	var dur time.Duration
	for _, d := range durations {
		dur += d
	}

	var sb strings.Builder
	sb.WriteString(project)
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%s: %s\n", p.cfg.ChannelLabelSize, worker.FormatBytes(total))
	fmt.Fprintf(&sb, "%s: %s\n", p.cfg.ChannelLabelDuration, formatClock(dur))
	fmt.Fprintf(&sb, "%s: %s", p.cfg.ChannelLabelInvite, link)
	return sb.String()
}
