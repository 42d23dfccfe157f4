package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mholt/archives"

	"github.com/thiagofdso/chat-cloner/internal/scanner"
	"github.com/thiagofdso/chat-cloner/internal/storage"
)

// stageZip упаковывает все не-видео файлы исходной папки в многотомные
// zip-архивы. Тома режутся жадно по суммарному размеру исходников до
// FILE_SIZE_LIMIT_MB; файл крупнее лимита уходит отдельным томом.
// Уже собранные тома при повторном входе не пересобираются.
func (p *Pipeline) stageZip(ctx context.Context, task *storage.PublishTask, ws *Workspace) error {
	if err := ws.CleanTmp(ws.Zipped); err != nil {
		return err
	}

	listing, err := scanner.New(p.cfg).Scan(ctx, ws.Source)
	if err != nil {
		return err
	}
	if len(listing.Documents) == 0 {
		fmt.Println("📦 Документов нет, архивы не нужны")
		return nil
	}

	limit := p.cfg.FileSizeLimitBytes()
	volumes := packVolumes(listing.Documents, limit)

	for i, volume := range volumes {
		name := volumeName(task.ProjectName, p.cfg.StartIndex+i)
		out := filepath.Join(ws.Zipped, name)
		if fileExists(out) {
			continue
		}
		if len(volume) == 1 && volume[0].Size > limit {
			fmt.Printf("⚠️  %s больше лимита тома, уходит отдельным архивом\n", volume[0].RelPath)
		}
		if err := buildZip(ctx, volume, out); err != nil {
			return err
		}
	}

	fmt.Printf("📦 Собрано томов: %d (документов: %d)\n", len(volumes), len(listing.Documents))
	return nil
}

// volumeName строит имя тома архива.
func volumeName(project string, index int) string {
	return fmt.Sprintf("%s-%03d.zip", project, index)
}

// packVolumes жадно режет отсортированный список файлов на тома, каждый
// не больше limit байт по исходникам. Файл крупнее лимита образует
// собственный том.
func packVolumes(files []scanner.File, limit int64) [][]scanner.File {
	var volumes [][]scanner.File
	var current []scanner.File
	var size int64

	for _, f := range files {
		if len(current) > 0 && size+f.Size > limit {
			volumes = append(volumes, current)
			current = nil
			size = 0
		}
		current = append(current, f)
		size += f.Size
		if f.Size > limit {
			// Негабаритный файл закрывает свой том сразу
			volumes = append(volumes, current)
			current = nil
			size = 0
		}
	}
	if len(current) > 0 {
		volumes = append(volumes, current)
	}
	return volumes
}

// buildZip собирает один том: пишет во временный файл и атомарно
// переименовывает готовый архив.
func buildZip(ctx context.Context, files []scanner.File, out string) error {
	names := make(map[string]string, len(files))
	for _, f := range files {
		names[f.Path] = f.RelPath
	}

	infos, err := archives.FilesFromDisk(ctx, nil, names)
	if err != nil {
		return fmt.Errorf("не удалось подготовить файлы тома: %w", err)
	}

	tmp := out + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("не удалось создать том %s: %w", tmp, err)
	}

	format := archives.Zip{}
	if err := format.Archive(ctx, f, infos); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("не удалось собрать том %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("не удалось закрыть том %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, out); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("не удалось переименовать том %s: %w", out, err)
	}
	return nil
}
