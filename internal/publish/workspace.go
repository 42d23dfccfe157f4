// Package publish реализует конвейер публикации папки в канал.
package publish

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/thiagofdso/chat-cloner/internal/processor"
)

// Поддиректории рабочего пространства проекта.
const (
	dirZipped    = "zipped"
	dirReport    = "report"
	dirReencoded = "reencoded"
	dirJoined    = "joined"
	dirSummary   = "summary"
	dirCache     = ".probe_cache"
)

// Имена артефактов этапов.
const (
	reportName     = "video_details.csv"
	joinPlanName   = "join_plan.csv"
	summaryName    = "summary.txt"
	uploadPlanName = "upload_plan.csv"
)

// Workspace описывает раскладку рабочего пространства одного проекта:
// data/project_workspace/<проект>/{zipped,report,reencoded,joined,summary}.
type Workspace struct {
	// Source - исходная папка с материалами.
	Source string

	// Root - корень рабочего пространства проекта.
	Root string

	// Zipped, Report, Reencoded, Joined, Summary - директории этапов.
	Zipped    string
	Report    string
	Reencoded string
	Joined    string
	Summary   string

	// Cache - дисковый кэш результатов опроса видео.
	Cache string
}

// NewWorkspace строит раскладку рабочего пространства проекта.
func NewWorkspace(workspaceRoot, project, source string) *Workspace {
	root := filepath.Join(workspaceRoot, project)
	return &Workspace{
		Source:    source,
		Root:      root,
		Zipped:    filepath.Join(root, dirZipped),
		Report:    filepath.Join(root, dirReport),
		Reencoded: filepath.Join(root, dirReencoded),
		Joined:    filepath.Join(root, dirJoined),
		Summary:   filepath.Join(root, dirSummary),
		Cache:     filepath.Join(root, dirCache),
	}
}

// Ensure создаёт все директории рабочего пространства.
func (w *Workspace) Ensure() error {
	for _, dir := range []string{w.Root, w.Zipped, w.Report, w.Reencoded, w.Joined, w.Summary} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
		}
	}
	return nil
}

// CleanTmp удаляет недописанные временные файлы директории. Вызывается
// на входе каждого этапа: обрыв между записью артефакта и фиксацией в
// БД оставляет *.tmp, которые иначе попали бы в повторный проход.
func (w *Workspace) CleanTmp(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("не удалось прочитать директорию %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("не удалось удалить %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Rel возвращает путь файла относительно корня рабочего пространства.
// Этими путями оперируют план загрузки и маркер возобновления.
func (w *Workspace) Rel(path string) string {
	rel, err := filepath.Rel(w.Root, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

// DeriveProject выводит имя проекта из имени исходной папки.
func DeriveProject(source string, maxLen int) string {
	name := processor.SanitizeName(filepath.Base(filepath.Clean(source)))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "project"
	}
	if maxLen > 0 {
		r := []rune(name)
		if len(r) > maxLen {
			name = string(r[:maxLen])
		}
	}
	return name
}
