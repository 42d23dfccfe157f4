// Package media содержит операции над видео и аудио через внешний ffmpeg.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	ffmpeg_go "github.com/u2takey/ffmpeg-go"

	"github.com/thiagofdso/chat-cloner/internal/config"
	"github.com/thiagofdso/chat-cloner/internal/errs"
	"github.com/thiagofdso/chat-cloner/internal/ffmpegfinder"
)

// Transcoder выполняет операции над медиафайлами через внешний ffmpeg.
// Аргументы командной строки собираются через ffmpeg-go, запуск идёт
// собственным процессом ради таймаута и контроля stderr.
type Transcoder struct {
	tools *ffmpegfinder.Tools

	// timeout - лимит времени на одну операцию (0 - без лимита).
	timeout time.Duration

	log *logrus.Logger
}

// New создаёт новый Transcoder.
func New(tools *ffmpegfinder.Tools, log *logrus.Logger) *Transcoder {
	return &Transcoder{tools: tools, log: log}
}

// SetTimeout устанавливает лимит времени на одну операцию.
func (t *Transcoder) SetTimeout(d time.Duration) {
	t.timeout = d
}

// ExtractAudio извлекает аудиодорожку видео в MP3 рядом с исходным
// файлом и возвращает путь к нему. Уже существующая дорожка не
// перекодируется повторно.
func (t *Transcoder) ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	mp3Path := strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".mp3"
	if _, err := os.Stat(mp3Path); err == nil {
		return mp3Path, nil
	}

	tmp := tmpPath(mp3Path)
	args := ffmpeg_go.Input(videoPath).
		Output(tmp, ffmpeg_go.KwArgs{
			"vn":     "",
			"acodec": "libmp3lame",
			"q:a":    2,
			"f":      "mp3",
		}).
		OverWriteOutput().
		GetArgs()

	if err := t.runInto(ctx, args, tmp, mp3Path); err != nil {
		return "", err
	}
	return mp3Path, nil
}

// Reencode перекодирует видео под заданный пресет в MP4.
func (t *Transcoder) Reencode(ctx context.Context, src, dst string, preset config.PresetConfig) error {
	tmp := tmpPath(dst)
	args := ffmpeg_go.Input(src).
		Output(tmp, ffmpeg_go.KwArgs{
			"c:v":      preset.VideoCodec,
			"crf":      preset.CRF,
			"preset":   preset.Speed,
			"c:a":      preset.AudioCodec,
			"b:a":      preset.AudioBitrate,
			"movflags": "+faststart",
			"f":        "mp4",
		}).
		OverWriteOutput().
		GetArgs()

	return t.runInto(ctx, args, tmp, dst)
}

// Remux переупаковывает видео в MP4 без перекодирования потоков.
func (t *Transcoder) Remux(ctx context.Context, src, dst string) error {
	tmp := tmpPath(dst)
	args := ffmpeg_go.Input(src).
		Output(tmp, ffmpeg_go.KwArgs{
			"c":        "copy",
			"movflags": "+faststart",
			"f":        "mp4",
		}).
		OverWriteOutput().
		GetArgs()

	return t.runInto(ctx, args, tmp, dst)
}

// Concat склеивает части в один MP4 без перекодирования
// (concat-демультиплексор ffmpeg).
func (t *Transcoder) Concat(ctx context.Context, parts []string, dst string) error {
	if len(parts) == 0 {
		return fmt.Errorf("нечего склеивать: пустой список частей")
	}

	listPath := dst + "." + shortID() + ".list.txt"
	var list bytes.Buffer
	for _, part := range parts {
		// Одинарные кавычки внутри пути экранируются по правилам ffmpeg
		escaped := strings.ReplaceAll(part, "'", `'\''`)
		fmt.Fprintf(&list, "file '%s'\n", escaped)
	}
	if err := os.WriteFile(listPath, list.Bytes(), 0644); err != nil {
		return fmt.Errorf("не удалось записать список склейки: %w", err)
	}
	defer os.Remove(listPath)

	tmp := tmpPath(dst)
	args := ffmpeg_go.Input(listPath, ffmpeg_go.KwArgs{
		"f":    "concat",
		"safe": "0",
	}).
		Output(tmp, ffmpeg_go.KwArgs{
			"c":        "copy",
			"movflags": "+faststart",
			"f":        "mp4",
		}).
		OverWriteOutput().
		GetArgs()

	return t.runInto(ctx, args, tmp, dst)
}

// runInto выполняет ffmpeg, пишущий во временный файл, и атомарно
// переименовывает результат в dst.
func (t *Transcoder) runInto(ctx context.Context, args []string, tmp, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", filepath.Dir(dst), err)
	}

	if err := t.run(ctx, args); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("не удалось переименовать %s -> %s: %w", tmp, dst, err)
	}
	return nil
}

// run запускает ffmpeg с собранными аргументами.
func (t *Transcoder) run(ctx context.Context, args []string) error {
	runCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, t.tools.FFmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if t.log != nil {
		t.log.Debugf("ffmpeg %s", strings.Join(args, " "))
	}

	if err := cmd.Run(); err != nil {
		// Прерывание пользователем не маскируем под ошибку инструмента
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return &errs.ExternalToolError{
			Tool:   "ffmpeg",
			Killed: errors.Is(runCtx.Err(), context.DeadlineExceeded),
			Stderr: tailOf(stderr.String(), 2048),
			Err:    err,
		}
	}
	return nil
}

// tmpPath возвращает путь временного файла для атомарной записи.
// Формат всегда задаётся ffmpeg явно, поэтому расширение не важно.
func tmpPath(dst string) string {
	return dst + "." + shortID() + ".tmp"
}

// shortID возвращает короткий уникальный суффикс.
func shortID() string {
	return uuid.NewString()[:8]
}

// tailOf возвращает хвост строки не длиннее limit байт.
func tailOf(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}

/*
Возможные расширения:
- Добавить аппаратное ускорение (nvenc, qsv) как отдельные пресеты
- Добавить прогресс перекодирования через -progress pipe:1
*/
