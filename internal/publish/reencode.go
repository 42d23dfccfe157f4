package publish

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/thiagofdso/chat-cloner/internal/config"
	"github.com/thiagofdso/chat-cloner/internal/progress"
	"github.com/thiagofdso/chat-cloner/internal/storage"
)

// stageReencodeAuth показывает сводку отчёта и ждёт подтверждения
// пользователя перед перекодированием. Отказ приостанавливает конвейер
// без ошибки: повторный запуск возвращается к этому шлюзу.
func (p *Pipeline) stageReencodeAuth(ctx context.Context, task *storage.PublishTask, ws *Workspace) error {
	rows, err := loadReport(filepath.Join(ws.Report, reportName))
	if err != nil {
		return err
	}

	var single, join, reencode int
	for _, row := range rows {
		switch row.Action {
		case ActionReencode:
			reencode++
		case ActionJoin:
			join++
		default:
			single++
		}
	}

	fmt.Printf("📊 План обработки «%s»:\n", task.ProjectName)
	fmt.Printf("   Перекодировать: %d\n", reencode)
	fmt.Printf("   Склеить: %d\n", join)
	fmt.Printf("   Опубликовать как есть: %d\n", single)
	fmt.Printf("   Пресет: %s, план: %s\n", p.cfg.ReencodePreset, p.cfg.ReencodePlan)

	ok, err := p.confirm("Продолжить обработку видео?")
	if err != nil {
		return err
	}
	if !ok {
		return errDeclined
	}
	return nil
}

// stageReencode перекодирует видео со строкой action=reencode в
// нормализованный MP4. Готовые выходы при повторном входе пропускаются,
// недописанные *.tmp зачищены на входе этапа.
func (p *Pipeline) stageReencode(ctx context.Context, task *storage.PublishTask, ws *Workspace) error {
	if err := ws.CleanTmp(ws.Reencoded); err != nil {
		return err
	}

	rows, err := loadReport(filepath.Join(ws.Report, reportName))
	if err != nil {
		return err
	}

	preset, ok := config.ReencodePresetByName(p.cfg.ReencodePreset)
	if !ok {
		return fmt.Errorf("неизвестный пресет перекодирования: %s", p.cfg.ReencodePreset)
	}

	var pending []ReportRow
	for _, row := range rows {
		if row.Action == ActionReencode {
			pending = append(pending, row)
		}
	}
	if len(pending) == 0 {
		fmt.Println("⏭️  Перекодирование не требуется")
		return nil
	}

	bar := progress.New(progress.Options{
		Total:       int64(len(pending)),
		Description: "Перекодирование",
		Units:       "видео",
		Disabled:    p.noProgress,
	})
	defer bar.Finish()

	for _, row := range pending {
		dst := filepath.Join(ws.Reencoded, reencodedName(row.File))
		if fileExists(dst) {
			bar.IncrementSkipped()
			continue
		}
		src := filepath.Join(ws.Source, filepath.FromSlash(row.File))
		if err := p.trans.Reencode(ctx, src, dst, preset); err != nil {
			return err
		}
		bar.Increment()
	}
	return nil
}

// reencodedName строит имя нормализованного выхода: относительный путь
// сплющивается в одно имя, расширение заменяется на .mp4.
func reencodedName(rel string) string {
	flat := strings.ReplaceAll(filepath.ToSlash(rel), "/", "_")
	ext := filepath.Ext(flat)
	return strings.TrimSuffix(flat, ext) + ".mp4"
}
