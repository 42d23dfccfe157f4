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

	"github.com/thiagofdso/chat-cloner/internal/cache"
	"github.com/thiagofdso/chat-cloner/internal/config"
	"github.com/thiagofdso/chat-cloner/internal/media"
	"github.com/thiagofdso/chat-cloner/internal/progress"
	"github.com/thiagofdso/chat-cloner/internal/scanner"
	"github.com/thiagofdso/chat-cloner/internal/storage"
	"github.com/thiagofdso/chat-cloner/internal/worker"
)

// Action - рекомендованное действие над видео из отчёта. Колонка
// авторитетна для последующих этапов: перекодирование и склейка следуют
// ей, а не пересчитывают эвристику.
type Action string

const (
	// ActionSingle - видео публикуется отдельным файлом.
	ActionSingle Action = "single"
	// ActionJoin - видео участвует в жадной склейке по лимитам.
	ActionJoin Action = "join"
	// ActionReencode - видео сначала нормализуется перекодированием.
	ActionReencode Action = "reencode"
)

// reportHeader - колонки video_details.csv.
var reportHeader = []string{
	"file", "duration_seconds", "width", "height",
	"video_codec", "audio_codec", "bitrate_kbps", "size_bytes", "action",
}

// ReportRow - строка инвентаря видео.
type ReportRow struct {
	// File - путь видео относительно исходной папки.
	File string

	// Duration - длительность контейнера.
	Duration time.Duration

	// Width, Height - размеры кадра.
	Width  int
	Height int

	// VideoCodec, AudioCodec - кодеки дорожек.
	VideoCodec string
	AudioCodec string

	// BitrateKbps - средний битрейт контейнера.
	BitrateKbps int64

	// Size - размер файла в байтах.
	Size int64

	// Action - рекомендованное действие.
	Action Action
}

// stageReport опрашивает каждое видео исходной папки и пишет CSV-инвентарь
// report/video_details.csv. Результаты опроса кэшируются на диске:
// повторный вход этапа не перечитывает неизменившиеся файлы.
func (p *Pipeline) stageReport(ctx context.Context, task *storage.PublishTask, ws *Workspace) error {
	if err := ws.CleanTmp(ws.Report); err != nil {
		return err
	}

	listing, err := scanner.New(p.cfg).Scan(ctx, ws.Source)
	if err != nil {
		return err
	}

	rows, err := p.probeRows(ctx, listing.Videos, "Опрос видео")
	if err != nil {
		return err
	}

	if err := writeReport(filepath.Join(ws.Report, reportName), rows); err != nil {
		return err
	}
	fmt.Printf("📊 Отчёт готов: %d видео, %s\n", len(rows), worker.FormatBytes(listing.VideosSize()))
	return nil
}

// probeRows опрашивает файлы пулом воркеров и строит строки отчёта.
func (p *Pipeline) probeRows(ctx context.Context, videos []scanner.File, title string) ([]ReportRow, error) {
	if len(videos) == 0 {
		return nil, nil
	}

	c, err := cache.New(p.cacheDirFor(videos))
	if err != nil {
		return nil, err
	}

	bar := progress.New(progress.Options{
		Total:       int64(len(videos)),
		Description: title,
		Units:       "видео",
		Disabled:    p.noProgress,
	})
	defer bar.Finish()

	pool := worker.New(p.prober, c, p.cfg.ProbeWorkers())
	pool.SetProgressBar(bar)
	results := pool.Process(ctx, videos)

	rows := make([]ReportRow, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			return nil, fmt.Errorf("не удалось опросить %s: %w", res.File.RelPath, res.Err)
		}
		rows = append(rows, p.rowFromProbe(res.File, res.Probe))
	}
	return rows, nil
}

// cacheDirFor возвращает директорию кэша проб. Кэш живёт в рабочем
// пространстве и сбрасывается вместе с ним при --restart.
func (p *Pipeline) cacheDirFor(videos []scanner.File) string {
	if len(videos) == 0 {
		return ""
	}
	// Рабочее пространство определяется по проекту на этапе Run;
	// пробам достаточно общей директории кэша под корнем данных.
	return filepath.Join(p.cfg.WorkspaceRoot(), dirCache)
}

// rowFromProbe строит строку отчёта по результату опроса.
func (p *Pipeline) rowFromProbe(file scanner.File, probe *media.ProbeResult) ReportRow {
	row := ReportRow{
		File:       file.RelPath,
		Duration:   probe.Duration,
		Width:      probe.Width,
		Height:     probe.Height,
		VideoCodec: probe.VideoCodec,
		AudioCodec: probe.AudioCodec,
		Size:       file.Size,
	}
	if probe.Duration > 0 {
		row.BitrateKbps = int64(float64(file.Size) * 8 / probe.Duration.Seconds() / 1000)
	}
	row.Action = chooseAction(probe, p.cfg.ReencodePlan)
	return row
}

// chooseAction выбирает действие над видео: всё, что не h264/aac в
// mp4-контейнере, нормализуется перекодированием; остальное склеивается
// при плане group и публикуется как есть при плане single.
func chooseAction(probe *media.ProbeResult, plan config.ReencodePlan) Action {
	if probe.VideoCodec != "h264" {
		return ActionReencode
	}
	if probe.AudioCodec != "" && probe.AudioCodec != "aac" {
		return ActionReencode
	}
	if !strings.Contains(probe.FormatName, "mp4") {
		return ActionReencode
	}
	if plan == config.PlanGroup {
		return ActionJoin
	}
	return ActionSingle
}

// writeReport пишет CSV-инвентарь атомарно.
func writeReport(path string, rows []ReportRow) error {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(reportHeader); err != nil {
		return fmt.Errorf("не удалось записать заголовок отчёта: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.File,
			strconv.FormatFloat(row.Duration.Seconds(), 'f', 3, 64),
			strconv.Itoa(row.Width),
			strconv.Itoa(row.Height),
			row.VideoCodec,
			row.AudioCodec,
			strconv.FormatInt(row.BitrateKbps, 10),
			strconv.FormatInt(row.Size, 10),
			string(row.Action),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("не удалось записать строку отчёта: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("не удалось сериализовать отчёт: %w", err)
	}
	return atomicWrite(path, []byte(sb.String()))
}

// loadReport читает CSV-инвентарь.
func loadReport(path string) ([]ReportRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть отчёт: %w", err)
	}
	defer func() { _ = f.Close() }()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать отчёт: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	rows := make([]ReportRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != len(reportHeader) {
			return nil, fmt.Errorf("строка отчёта имеет %d колонок вместо %d", len(rec), len(reportHeader))
		}
		seconds, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("длительность %q не распознана: %w", rec[1], err)
		}
		width, _ := strconv.Atoi(rec[2])
		height, _ := strconv.Atoi(rec[3])
		bitrate, _ := strconv.ParseInt(rec[6], 10, 64)
		size, _ := strconv.ParseInt(rec[7], 10, 64)
		rows = append(rows, ReportRow{
			File:        rec[0],
			Duration:    time.Duration(seconds * float64(time.Second)),
			Width:       width,
			Height:      height,
			VideoCodec:  rec[4],
			AudioCodec:  rec[5],
			BitrateKbps: bitrate,
			Size:        size,
			Action:      Action(rec[8]),
		})
	}
	return rows, nil
}
