package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/thiagofdso/chat-cloner/internal/errs"
)

// probeTimeout ограничивает время опроса одного файла. Опрос не
// подчиняется лимиту перекодирования: он всегда короткий.
const probeTimeout = 60 * time.Second

// ProbeResult содержит сведения о медиафайле.
type ProbeResult struct {
	// Path - путь к файлу.
	Path string

	// Duration - длительность контейнера.
	Duration time.Duration

	// Size - размер файла в байтах.
	Size int64

	// FormatName - имена формата контейнера через запятую
	// (например, "mov,mp4,m4a,3gp,3g2,mj2").
	FormatName string

	// VideoCodec - кодек первой видеодорожки (пусто, если её нет).
	VideoCodec string

	// AudioCodec - кодек первой аудиодорожки (пусто, если её нет).
	AudioCodec string

	// Width, Height - размеры кадра видеодорожки.
	Width  int
	Height int
}

// HasVideo сообщает, есть ли в файле видеодорожка.
func (p *ProbeResult) HasVideo() bool {
	return p.VideoCodec != ""
}

// probeJSON отражает интересующую часть вывода ffprobe.
type probeJSON struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe опрашивает медиафайл через ffprobe.
func (t *Transcoder) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.tools.FFprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, &errs.ExternalToolError{
			Tool:   "ffprobe",
			Killed: errors.Is(runCtx.Err(), context.DeadlineExceeded),
			Stderr: tailOf(stderr.String(), 2048),
			Err:    err,
		}
	}

	var raw probeJSON
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("не удалось разобрать вывод ffprobe: %w", err)
	}

	result := &ProbeResult{
		Path:       path,
		FormatName: raw.Format.FormatName,
	}
	if seconds, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil {
		result.Duration = time.Duration(seconds * float64(time.Second))
	}
	if size, err := strconv.ParseInt(raw.Format.Size, 10, 64); err == nil {
		result.Size = size
	}
	for _, stream := range raw.Streams {
		switch stream.CodecType {
		case "video":
			if result.VideoCodec == "" {
				result.VideoCodec = stream.CodecName
				result.Width = stream.Width
				result.Height = stream.Height
			}
		case "audio":
			if result.AudioCodec == "" {
				result.AudioCodec = stream.CodecName
			}
		}
	}
	return result, nil
}

/*
Возможные расширения:
- Добавить битрейт и частоту кадров для более точного отчёта
- Различать обложку (attached_pic) и настоящую видеодорожку
*/
