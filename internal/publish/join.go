package publish

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/thiagofdso/chat-cloner/internal/progress"
	"github.com/thiagofdso/chat-cloner/internal/scanner"
	"github.com/thiagofdso/chat-cloner/internal/storage"
)

// joinPlanHeader - колонки join_plan.csv.
var joinPlanHeader = []string{"file_output", "segment", "duration_seconds"}

// segment - одно видео в плане склейки.
type segment struct {
	// Path - эффективный файл: перекодированный выход, если он есть,
	// иначе исходник.
	Path string

	// Rel - исходный относительный путь (для сводки).
	Rel string

	// Duration - длительность по отчёту; перекодирование её не меняет.
	Duration time.Duration

	// Size - размер эффективного файла.
	Size int64

	// Single - строка отчёта велела публиковать отдельно.
	Single bool
}

// joinedGroup - один выходной файл склейки.
type joinedGroup struct {
	// Name - имя выхода в joined/.
	Name string

	// Segments - части в порядке склейки.
	Segments []segment
}

// Duration возвращает суммарную длительность частей.
func (g *joinedGroup) Duration() time.Duration {
	var d time.Duration
	for _, s := range g.Segments {
		d += s.Duration
	}
	return d
}

// stageJoin режет видео на группы по DURATION_LIMIT и FILE_SIZE_LIMIT_MB
// и склеивает каждую группу в joined/<проект>-NNN.mp4. План склейки
// пишется в report/join_plan.csv до сборки выходов: сводка и выгрузка
// читают его, а не пересчитывают группировку.
func (p *Pipeline) stageJoin(ctx context.Context, task *storage.PublishTask, ws *Workspace) error {
	if err := ws.CleanTmp(ws.Joined); err != nil {
		return err
	}

	rows, err := loadReport(filepath.Join(ws.Report, reportName))
	if err != nil {
		return err
	}

	segments, err := p.effectiveSegments(rows, ws)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		fmt.Println("⏭️  Видео нет, склейка не нужна")
		return writeJoinPlan(filepath.Join(ws.Report, joinPlanName), nil)
	}

	durationLimit, err := p.cfg.DurationLimitValue()
	if err != nil {
		return err
	}
	groups := buildGroups(segments, durationLimit, p.cfg.FileSizeLimitBytes())
	for i := range groups {
		groups[i].Name = fmt.Sprintf("%s-%03d.mp4", task.ProjectName, p.cfg.StartIndex+i)
	}

	if err := writeJoinPlan(filepath.Join(ws.Report, joinPlanName), groups); err != nil {
		return err
	}

	transition := p.transitionClip(ws)

	bar := progress.New(progress.Options{
		Total:       int64(len(groups)),
		Description: "Склейка",
		Units:       "файл",
		Disabled:    p.noProgress,
	})
	defer bar.Finish()

	for _, group := range groups {
		out := filepath.Join(ws.Joined, group.Name)
		if fileExists(out) {
			bar.IncrementSkipped()
			continue
		}
		if err := p.buildGroup(ctx, group, transition, out); err != nil {
			return err
		}
		bar.Increment()
	}

	fmt.Printf("🎬 Склеено файлов: %d (из %d видео)\n", len(groups), len(segments))
	return nil
}

// effectiveSegments превращает строки отчёта в сегменты склейки,
// подставляя перекодированные выходы вместо исходников.
func (p *Pipeline) effectiveSegments(rows []ReportRow, ws *Workspace) ([]segment, error) {
	segments := make([]segment, 0, len(rows))
	for _, row := range rows {
		seg := segment{
			Rel:      row.File,
			Duration: row.Duration,
			Size:     row.Size,
			Single:   row.Action == ActionSingle,
		}
		if row.Action == ActionReencode {
			seg.Path = filepath.Join(ws.Reencoded, reencodedName(row.File))
			info, err := os.Stat(seg.Path)
			if err != nil {
				return nil, fmt.Errorf("перекодированный выход %s недоступен: %w", seg.Path, err)
			}
			seg.Size = info.Size()
		} else {
			seg.Path = filepath.Join(ws.Source, filepath.FromSlash(row.File))
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// buildGroups жадно режет сегменты на группы: очередной сегмент попадает
// в текущую группу, пока суммарные длительность и размер в пределах
// лимитов. Сегмент со строкой single образует собственную группу.
func buildGroups(segments []segment, durationLimit time.Duration, sizeLimit int64) []joinedGroup {
	var groups []joinedGroup
	var current []segment
	var dur time.Duration
	var size int64

	flush := func() {
		if len(current) > 0 {
			groups = append(groups, joinedGroup{Segments: current})
			current = nil
			dur = 0
			size = 0
		}
	}

	for _, seg := range segments {
		if seg.Single {
			flush()
			groups = append(groups, joinedGroup{Segments: []segment{seg}})
			continue
		}
		if len(current) > 0 && (dur+seg.Duration > durationLimit || size+seg.Size > sizeLimit) {
			flush()
		}
		current = append(current, seg)
		dur += seg.Duration
		size += seg.Size
	}
	flush()
	return groups
}

// buildGroup собирает один выход: группа из одного сегмента
// ремультиплексируется без перекодирования, группа из нескольких
// склеивается concat-демультиплексором; переходный клип вставляется
// между частями, если он настроен.
func (p *Pipeline) buildGroup(ctx context.Context, group joinedGroup, transition, out string) error {
	if len(group.Segments) == 1 {
		return p.trans.Remux(ctx, group.Segments[0].Path, out)
	}

	parts := make([]string, 0, len(group.Segments)*2)
	for i, seg := range group.Segments {
		if i > 0 && transition != "" {
			parts = append(parts, transition)
		}
		parts = append(parts, seg.Path)
	}
	return p.trans.Concat(ctx, parts, out)
}

// transitionClip возвращает путь переходного клипа, если он включён и
// существует в корне исходной папки.
func (p *Pipeline) transitionClip(ws *Workspace) string {
	if !p.cfg.ActivateTransition {
		return ""
	}
	path := filepath.Join(ws.Source, scanner.TransitionName)
	if !fileExists(path) {
		if p.log != nil {
			p.log.Warnf("переход включён, но %s не найден", path)
		}
		return ""
	}
	return path
}

// writeJoinPlan пишет план склейки атомарно.
func writeJoinPlan(path string, groups []joinedGroup) error {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(joinPlanHeader); err != nil {
		return fmt.Errorf("не удалось записать заголовок плана склейки: %w", err)
	}
	for _, group := range groups {
		for _, seg := range group.Segments {
			record := []string{
				group.Name,
				seg.Rel,
				strconv.FormatFloat(seg.Duration.Seconds(), 'f', 3, 64),
			}
			if err := w.Write(record); err != nil {
				return fmt.Errorf("не удалось записать строку плана склейки: %w", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("не удалось сериализовать план склейки: %w", err)
	}
	return atomicWrite(path, []byte(sb.String()))
}

// loadJoinPlan читает план склейки, сохраняя порядок групп.
func loadJoinPlan(path string) ([]joinedGroup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть план склейки: %w", err)
	}
	defer func() { _ = f.Close() }()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать план склейки: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var groups []joinedGroup
	index := make(map[string]int)
	for _, rec := range records[1:] {
		if len(rec) != len(joinPlanHeader) {
			return nil, fmt.Errorf("строка плана склейки имеет %d колонок вместо %d", len(rec), len(joinPlanHeader))
		}
		seconds, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("длительность %q не распознана: %w", rec[2], err)
		}
		seg := segment{Rel: rec[1], Duration: time.Duration(seconds * float64(time.Second))}

		i, ok := index[rec[0]]
		if !ok {
			i = len(groups)
			index[rec[0]] = i
			groups = append(groups, joinedGroup{Name: rec[0]})
		}
		groups[i].Segments = append(groups[i].Segments, seg)
	}
	return groups, nil
}
