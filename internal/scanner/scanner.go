// Package scanner отвечает за обход исходной папки публикации.
//
// Файлы классифицируются на видео (по VIDEO_EXTENSIONS) и документы:
// видео идут в отчёт и склейку, документы - в многотомные архивы.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/thiagofdso/chat-cloner/internal/config"
)

// TransitionName - имя переходного клипа в корне исходной папки.
// Клип вставляется между склеиваемыми видео и контентом не считается.
const TransitionName = "transition.mp4"

// File представляет файл исходной папки.
type File struct {
	// Path - абсолютный путь к файлу.
	Path string

	// RelPath - путь относительно корня исходной папки.
	RelPath string

	// Size - размер файла в байтах.
	Size int64
}

// Listing содержит классифицированный результат обхода.
type Listing struct {
	// Videos - файлы с расширениями из VIDEO_EXTENSIONS.
	Videos []File

	// Documents - все остальные файлы.
	Documents []File
}

// VideosSize возвращает суммарный размер видео в байтах.
func (l *Listing) VideosSize() int64 {
	var size int64
	for _, f := range l.Videos {
		size += f.Size
	}
	return size
}

// DocumentsSize возвращает суммарный размер документов в байтах.
func (l *Listing) DocumentsSize() int64 {
	var size int64
	for _, f := range l.Documents {
		size += f.Size
	}
	return size
}

// Scanner обходит исходную папку публикации.
type Scanner struct {
	cfg *config.Config
}

// New создаёт новый Scanner.
func New(cfg *config.Config) *Scanner {
	return &Scanner{cfg: cfg}
}

// Scan обходит папку и классифицирует найденные файлы. Порядок внутри
// каждого класса - лексикографический по относительному пути, чтобы
// упаковка и отчёты были воспроизводимы между запусками.
func (s *Scanner) Scan(ctx context.Context, root string) (*Listing, error) {
	listing := &Listing{}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		// Проверяем контекст
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			// Логируем ошибку, но продолжаем
			fmt.Fprintf(os.Stderr, "Предупреждение: не удалось прочитать %s: %v\n", path, err)
			return nil
		}

		if d.IsDir() {
			// Пропускаем скрытые директории
			name := d.Name()
			if path != root && len(name) > 0 && name[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}

		// Пропускаем macOS metadata файлы (начинаются с ._*)
		baseName := filepath.Base(path)
		if len(baseName) >= 2 && baseName[0] == '.' && baseName[1] == '_' {
			return nil
		}

		relPath, rerr := filepath.Rel(root, path)
		if rerr != nil {
			relPath = baseName
		}

		// Переходный клип - служебный файл этапа склейки, не контент
		if relPath == TransitionName {
			return nil
		}

		info, ierr := d.Info()
		if ierr != nil {
			fmt.Fprintf(os.Stderr, "Предупреждение: не удалось получить info %s: %v\n", path, ierr)
			return nil
		}

		absPath, aerr := filepath.Abs(path)
		if aerr != nil {
			absPath = path
		}

		file := File{Path: absPath, RelPath: relPath, Size: info.Size()}
		if s.cfg.HasVideoExtension(filepath.Ext(path)) {
			listing.Videos = append(listing.Videos, file)
		} else {
			listing.Documents = append(listing.Documents, file)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("не удалось обойти %s: %w", root, err)
	}

	sortFiles(listing.Videos)
	sortFiles(listing.Documents)
	return listing, nil
}

func sortFiles(files []File) {
	sort.Slice(files, func(i, j int) bool {
		return files[i].RelPath < files[j].RelPath
	})
}

/*
Возможные расширения:
- Добавить поддержку exclude-паттернов
- Добавить поддержку symlinks
*/
