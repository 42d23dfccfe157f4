// Package ffmpegfinder отвечает за поиск бинарников ffmpeg и ffprobe.
package ffmpegfinder

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/thiagofdso/chat-cloner/internal/errs"
)

// Tools содержит пути к найденным инструментам.
type Tools struct {
	// FFmpeg - абсолютный путь к бинарнику ffmpeg.
	FFmpeg string

	// FFprobe - абсолютный путь к бинарнику ffprobe.
	FFprobe string

	// Version - версия ffmpeg (например, "6.1.1").
	Version string
}

// Finder ищет бинарники ffmpeg и ffprobe.
type Finder struct {
	// CustomPath - пользовательский путь (из FFMPEG_PATH или флага):
	// путь к бинарнику ffmpeg либо к директории с обоими инструментами.
	CustomPath string

	// EnvVar - имя переменной окружения для пути к ffmpeg.
	EnvVar string
}

// NewFinder создаёт новый Finder.
func NewFinder(customPath string) *Finder {
	return &Finder{
		CustomPath: customPath,
		EnvVar:     "FFMPEG_PATH",
	}
}

// Find ищет ffmpeg в следующем порядке:
// 1. CustomPath (если задан; директория или бинарник)
// 2. Переменная окружения FFMPEG_PATH
// 3. PATH
// 4. Рядом с исполняемым файлом в ./bin/<os-arch>/
// ffprobe ищется сначала рядом с найденным ffmpeg, затем по тем же местам.
func (f *Finder) Find() (*Tools, error) {
	var candidates []string

	// 1. Пользовательский путь
	if f.CustomPath != "" {
		candidates = append(candidates, expandCandidate(f.CustomPath, binaryName("ffmpeg")))
	}

	// 2. Переменная окружения
	if envPath := os.Getenv(f.EnvVar); envPath != "" {
		candidates = append(candidates, expandCandidate(envPath, binaryName("ffmpeg")))
	}

	// 3. PATH
	if pathFfmpeg, err := exec.LookPath("ffmpeg"); err == nil {
		candidates = append(candidates, pathFfmpeg)
	}

	// 4. Рядом с бинарником
	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		platformDir := fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)
		candidates = append(candidates,
			filepath.Join(execDir, "bin", platformDir, binaryName("ffmpeg")),
			filepath.Join(execDir, "bin", binaryName("ffmpeg")),
			filepath.Join(execDir, binaryName("ffmpeg")),
		)
	}

	var ffmpegPath, version string
	for _, path := range candidates {
		abs, ver, err := checkTool(path)
		if err == nil {
			ffmpegPath, version = abs, ver
			break
		}
	}
	if ffmpegPath == "" {
		return nil, &errs.ToolMissingError{Tool: "ffmpeg"}
	}

	// ffprobe: сначала рядом с найденным ffmpeg
	probeCandidates := []string{
		filepath.Join(filepath.Dir(ffmpegPath), binaryName("ffprobe")),
	}
	if pathProbe, err := exec.LookPath("ffprobe"); err == nil {
		probeCandidates = append(probeCandidates, pathProbe)
	}

	var ffprobePath string
	for _, path := range probeCandidates {
		if abs, _, err := checkTool(path); err == nil {
			ffprobePath = abs
			break
		}
	}
	if ffprobePath == "" {
		return nil, &errs.ToolMissingError{Tool: "ffprobe"}
	}

	return &Tools{
		FFmpeg:  ffmpegPath,
		FFprobe: ffprobePath,
		Version: version,
	}, nil
}

// expandCandidate дополняет путь именем бинарника, если путь указывает
// на директорию.
func expandCandidate(path, binary string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, binary)
	}
	return path
}

// checkTool проверяет, что путь указывает на рабочий инструмент,
// и извлекает его версию.
func checkTool(path string) (string, string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", "", fmt.Errorf("файл не найден: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("не удалось получить абсолютный путь: %w", err)
	}

	cmd := exec.Command(absPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", "", fmt.Errorf("не удалось выполнить %s -version: %w", absPath, err)
	}

	return absPath, parseVersion(string(output)), nil
}

// parseVersion извлекает версию из первой строки вывода "-version".
// Пример: "ffmpeg version 6.1.1-3ubuntu5 Copyright ..."
func parseVersion(output string) string {
	line := output
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	for i, field := range fields {
		if field == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return strings.TrimSpace(line)
}

// binaryName возвращает имя бинарника для текущей ОС.
func binaryName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}

/*
Возможные расширения:
- Кэширование результата поиска
- Проверка минимальной версии ffmpeg
- Автоматическое скачивание portable-сборки
*/
