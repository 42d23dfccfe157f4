package publish

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/thiagofdso/chat-cloner/internal/storage"
)

// uploadPlanHeader - колонки upload_plan.csv.
var uploadPlanHeader = []string{"file_output", "description"}

// PlanEntry - строка плана загрузки.
type PlanEntry struct {
	// File - путь файла относительно корня рабочего пространства,
	// с прямыми слэшами. Порядок выгрузки - лексикографический по
	// этому полю; им же оперирует маркер возобновления.
	File string

	// Description - подпись, отправляемая вместе с файлом.
	Description string
}

// stageTimestamp строит две сводки: человекочитаемую summary/summary.txt
// с хэштегами и смещениями сегментов внутри склеек и машинный
// summary/upload_plan.csv с порядком выгрузки.
func (p *Pipeline) stageTimestamp(ctx context.Context, task *storage.PublishTask, ws *Workspace) error {
	if err := ws.CleanTmp(ws.Summary); err != nil {
		return err
	}

	groups, err := loadJoinPlan(filepath.Join(ws.Report, joinPlanName))
	if err != nil {
		return err
	}
	zips, err := listZips(ws.Zipped)
	if err != nil {
		return err
	}

	transDur, err := p.transitionDuration(ctx, ws)
	if err != nil {
		return err
	}

	hashtags := p.videoHashtags(len(groups))

	top := readOptional(resolveAux(p.cfg.PathSummaryTop, ws.Source))
	bot := readOptional(resolveAux(p.cfg.PathSummaryBot, ws.Source))
	summary := p.buildSummary(groups, hashtags, zips, transDur, top, bot)
	if err := atomicWrite(filepath.Join(ws.Summary, summaryName), []byte(summary)); err != nil {
		return err
	}

	plan := p.buildUploadPlan(groups, hashtags, zips)
	if err := writeUploadPlan(filepath.Join(ws.Summary, uploadPlanName), plan); err != nil {
		return err
	}

	fmt.Printf("📝 Сводка готова: %d видео, %d томов\n", len(groups), len(zips))
	return nil
}

// videoHashtags строит хэштеги видео: #<HASHTAG_INDEX><NNN> от START_INDEX.
func (p *Pipeline) videoHashtags(count int) []string {
	tags := make([]string, count)
	for i := range tags {
		tags[i] = fmt.Sprintf("#%s%03d", p.cfg.HashtagIndex, p.cfg.StartIndex+i)
	}
	return tags
}

// buildSummary собирает summary.txt: шапка из PATH_SUMMARY_TOP, блок на
// каждую склейку со смещениями сегментов, раздел документов и подвал из
// PATH_SUMMARY_BOT.
func (p *Pipeline) buildSummary(groups []joinedGroup, hashtags []string, zips []string, transDur time.Duration, top, bot string) string {
	var sb strings.Builder

	if top != "" {
		sb.WriteString(top)
		if !strings.HasSuffix(top, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	for i, group := range groups {
		fmt.Fprintf(&sb, "%s %s\n", hashtags[i], group.Name)
		offset := time.Duration(0)
		for j, seg := range group.Segments {
			if j > 0 {
				offset += transDur
			}
			fmt.Fprintf(&sb, "  %s %s\n", formatClock(offset), segmentTitle(seg.Rel))
			offset += seg.Duration
		}
		sb.WriteString("\n")
	}

	if len(zips) > 0 {
		fmt.Fprintf(&sb, "%s\n#%s\n", p.cfg.DocumentTitle, p.cfg.DocumentHashtag)
		for _, name := range zips {
			fmt.Fprintf(&sb, "  %s\n", name)
		}
		sb.WriteString("\n")
	}

	if bot != "" {
		sb.WriteString(bot)
		if !strings.HasSuffix(bot, "\n") {
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// buildUploadPlan строит план выгрузки: склейки и тома архивов,
// отсортированные лексикографически по пути. При DESCRIPTIONS_AUTO_ADAPT
// хэштеги видео перенумеровываются по фактическому порядку выгрузки.
func (p *Pipeline) buildUploadPlan(groups []joinedGroup, hashtags []string, zips []string) []PlanEntry {
	plan := make([]PlanEntry, 0, len(groups)+len(zips))
	for i, group := range groups {
		plan = append(plan, PlanEntry{
			File:        path.Join(dirJoined, group.Name),
			Description: fmt.Sprintf("%s %s", hashtags[i], group.Name),
		})
	}
	for _, name := range zips {
		plan = append(plan, PlanEntry{
			File:        path.Join(dirZipped, name),
			Description: fmt.Sprintf("#%s %s", p.cfg.DocumentHashtag, name),
		})
	}

	sort.Slice(plan, func(i, j int) bool { return plan[i].File < plan[j].File })

	if p.cfg.DescriptionsAutoAdapt {
		n := 0
		for i := range plan {
			if strings.HasPrefix(plan[i].File, dirJoined+"/") {
				name := path.Base(plan[i].File)
				plan[i].Description = fmt.Sprintf("#%s%03d %s", p.cfg.HashtagIndex, p.cfg.StartIndex+n, name)
				n++
			}
		}
	}

	return plan
}

// transitionDuration возвращает длительность переходного клипа для
// расчёта смещений. Клип опрашивается один раз; без перехода ноль.
func (p *Pipeline) transitionDuration(ctx context.Context, ws *Workspace) (time.Duration, error) {
	clip := p.transitionClip(ws)
	if clip == "" {
		return 0, nil
	}
	probe, err := p.prober.Probe(ctx, clip)
	if err != nil {
		return 0, fmt.Errorf("не удалось опросить переходный клип: %w", err)
	}
	return probe.Duration, nil
}

// listZips возвращает имена томов архива в лексикографическом порядке.
func listZips(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("не удалось прочитать %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".zip") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// segmentTitle возвращает человекочитаемое имя сегмента: имя файла без
// расширения.
func segmentTitle(rel string) string {
	base := path.Base(filepath.ToSlash(rel))
	return strings.TrimSuffix(base, path.Ext(base))
}

// formatClock форматирует длительность как ЧЧ:ММ:СС.
func formatClock(d time.Duration) string {
	total := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}

// resolveAux возвращает путь вспомогательного файла сводки:
// относительные имена ищутся сначала как есть, затем в исходной папке.
func resolveAux(p, sourceRoot string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if fileExists(p) {
		return p
	}
	return filepath.Join(sourceRoot, p)
}

// readOptional читает содержимое файла; отсутствие файла - пустая строка.
func readOptional(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

// writeUploadPlan пишет план выгрузки атомарно.
func writeUploadPlan(path string, plan []PlanEntry) error {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(uploadPlanHeader); err != nil {
		return fmt.Errorf("не удалось записать заголовок плана выгрузки: %w", err)
	}
	for _, entry := range plan {
		if err := w.Write([]string{entry.File, entry.Description}); err != nil {
			return fmt.Errorf("не удалось записать строку плана выгрузки: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("не удалось сериализовать план выгрузки: %w", err)
	}
	return atomicWrite(path, []byte(sb.String()))
}

// loadUploadPlan читает план выгрузки.
func loadUploadPlan(path string) ([]PlanEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть план выгрузки: %w", err)
	}
	defer func() { _ = f.Close() }()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать план выгрузки: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	plan := make([]PlanEntry, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != len(uploadPlanHeader) {
			return nil, fmt.Errorf("строка плана выгрузки имеет %d колонок вместо %d", len(rec), len(uploadPlanHeader))
		}
		plan = append(plan, PlanEntry{File: rec[0], Description: rec[1]})
	}
	return plan, nil
}
