// Package processor доставляет одно сообщение источника в чат-назначение.
//
// Диспетчеризация идёт по виду сообщения и стратегии клонирования:
// forward пересылает сообщение одним вызовом платформы, download_upload
// скачивает вложение на диск и отправляет его заново. Процессор либо
// возвращает идентификатор доставленного сообщения, либо типизированную
// ошибку из пакета errs; состоянием задач он не владеет.
package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/thiagofdso/chat-cloner/internal/errs"
	"github.com/thiagofdso/chat-cloner/internal/media"
	"github.com/thiagofdso/chat-cloner/internal/retry"
	"github.com/thiagofdso/chat-cloner/internal/storage"
	"github.com/thiagofdso/chat-cloner/internal/telegram"
)

// Processor обрабатывает сообщения одной задачи клонирования.
type Processor struct {
	client telegram.Client
	retry  retry.Config
	log    *logrus.Logger

	// scratchDir - директория скачивания для стратегии download_upload.
	scratchDir string

	// transcoder - извлечение аудио из видео; nil отключает извлечение.
	transcoder *media.Transcoder

	// extractAudio - писать MP3 рядом с каждым скачанным видео.
	extractAudio bool

	// silent - отправлять без уведомления получателей.
	silent bool
}

// New создаёт процессор поверх клиента платформы.
func New(client telegram.Client, retryCfg retry.Config, log *logrus.Logger) *Processor {
	return &Processor{client: client, retry: retryCfg, log: log}
}

// SetScratchDir задаёт директорию скачивания вложений.
func (p *Processor) SetScratchDir(dir string) {
	p.scratchDir = dir
}

// SetTranscoder включает извлечение MP3 из скачиваемых видео.
func (p *Processor) SetTranscoder(t *media.Transcoder, extractAudio bool) {
	p.transcoder = t
	p.extractAudio = extractAudio
}

// SetSilent задаёт отправку без уведомлений.
func (p *Processor) SetSilent(silent bool) {
	p.silent = silent
}

// Process доставляет сообщение в чат-назначение выбранной стратегией и
// возвращает идентификатор сообщения в назначении.
//
// Ошибка UnsupportedError означает «пропустить и продвинуть контрольную
// точку», RestrictedError - «источник запрещает пересылку», остальные
// ошибки - сбой доставки, контрольная точка не продвигается.
func (p *Processor) Process(ctx context.Context, strategy storage.Strategy, msg *telegram.Message, destChatID int64) (int64, error) {
	switch msg.Kind {
	case telegram.KindService:
		return 0, &errs.UnsupportedError{Kind: string(msg.Kind), Reason: "служебное сообщение"}
	case telegram.KindUnsupported:
		// Open Question спецификации: сообщение неподдерживаемого вида с
		// подписью пропускается целиком, подпись отдельно не отправляется.
		return 0, &errs.UnsupportedError{Kind: string(msg.Kind)}
	}

	if strategy == storage.StrategyForward {
		return p.forward(ctx, msg, destChatID)
	}
	return p.reupload(ctx, msg, destChatID)
}

// forward пересылает сообщение одним вызовом платформы.
func (p *Processor) forward(ctx context.Context, msg *telegram.Message, destChatID int64) (int64, error) {
	var sent *telegram.Message
	err := retry.Do(ctx, p.retry, "forward_message", func() error {
		var err error
		sent, err = p.client.ForwardMessage(ctx, msg.ChatID, destChatID, msg.ID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return sent.ID, nil
}

// reupload доставляет сообщение стратегией download_upload: текст, опрос
// и геометка отправляются соответствующими примитивами, вложения
// скачиваются на диск и загружаются заново.
func (p *Processor) reupload(ctx context.Context, msg *telegram.Message, destChatID int64) (int64, error) {
	switch msg.Kind {
	case telegram.KindText:
		return p.sendText(ctx, destChatID, msg.Text)

	case telegram.KindPoll:
		if msg.Poll == nil {
			return 0, &errs.UnsupportedError{Kind: string(msg.Kind), Reason: "опрос без содержимого"}
		}
		if msg.Poll.Quiz {
			// Правильный ответ викторины недоступен для чтения
			return 0, &errs.UnsupportedError{Kind: string(msg.Kind), Reason: "викторина"}
		}
		return p.send(ctx, "send_poll", func() (*telegram.Message, error) {
			return p.client.SendPoll(ctx, destChatID, msg.Poll, p.opts(""))
		})

	case telegram.KindLocation:
		if msg.Location == nil {
			return 0, &errs.UnsupportedError{Kind: string(msg.Kind), Reason: "геометка без координат"}
		}
		return p.send(ctx, "send_location", func() (*telegram.Message, error) {
			return p.client.SendLocation(ctx, destChatID, msg.Location, p.opts(""))
		})
	}

	if msg.Media == nil {
		return 0, &errs.UnsupportedError{Kind: string(msg.Kind), Reason: "вложение отсутствует"}
	}
	return p.reuploadMedia(ctx, msg, destChatID)
}

// sendText отправляет текст, усекая его до лимита платформы.
func (p *Processor) sendText(ctx context.Context, destChatID int64, text string) (int64, error) {
	return p.send(ctx, "send_text", func() (*telegram.Message, error) {
		return p.client.SendText(ctx, destChatID, Truncate(text, telegram.TextLimit), p.opts(""))
	})
}

// reuploadMedia скачивает вложение и загружает его заново.
func (p *Processor) reuploadMedia(ctx context.Context, msg *telegram.Message, destChatID int64) (int64, error) {
	if err := os.MkdirAll(p.scratchDir, 0755); err != nil {
		return 0, fmt.Errorf("не удалось создать директорию скачивания: %w", err)
	}
	local := filepath.Join(p.scratchDir, localName(msg))

	if err := p.download(ctx, msg, local); err != nil {
		return 0, err
	}

	// Извлечение аудио нефатально: видео выгружается в любом случае
	if msg.Kind == telegram.KindVideo && p.extractAudio && p.transcoder != nil {
		if _, err := p.transcoder.ExtractAudio(ctx, local); err != nil {
			if errs.IsInterrupted(err) {
				return 0, err
			}
			if p.log != nil {
				p.log.Warnf("не удалось извлечь аудио из %s: %v", local, err)
			}
		}
	}

	destID, err := p.send(ctx, "send_media", func() (*telegram.Message, error) {
		return p.client.SendMedia(ctx, destChatID, msg.Kind, local, msg.Media, p.opts(msg.Text))
	})
	if err != nil {
		return 0, err
	}

	// Видео и документы после подтверждённой выгрузки не нужны,
	// извлечённая аудиодорожка остаётся
	if msg.Kind == telegram.KindVideo || msg.Kind == telegram.KindDocument {
		if err := os.Remove(local); err != nil && p.log != nil {
			p.log.Warnf("не удалось удалить %s: %v", local, err)
		}
	}

	return destID, nil
}

// download скачивает вложение с повторами. Файл нулевого размера
// трактуется как временный сбой и скачивается ещё раз; повторный ноль -
// пропуск сообщения.
func (p *Processor) download(ctx context.Context, msg *telegram.Message, local string) error {
	fetch := func() error {
		return retry.Do(ctx, p.retry, "download_media", func() error {
			return p.client.DownloadMedia(ctx, msg, local)
		})
	}

	if err := fetch(); err != nil {
		return err
	}
	if !isEmptyFile(local) {
		return nil
	}

	if p.log != nil {
		p.log.Warnf("пустая загрузка сообщения %d, пробуем ещё раз", msg.ID)
	}
	if err := fetch(); err != nil {
		return err
	}
	if isEmptyFile(local) {
		_ = os.Remove(local)
		return &errs.UnsupportedError{Kind: string(msg.Kind), Reason: "пустая загрузка"}
	}
	return nil
}

// send выполняет отправку с повторами и возвращает идентификатор
// доставленного сообщения.
func (p *Processor) send(ctx context.Context, name string, fn func() (*telegram.Message, error)) (int64, error) {
	var sent *telegram.Message
	err := retry.Do(ctx, p.retry, name, func() error {
		var err error
		sent, err = fn()
		return err
	})
	if err != nil {
		return 0, err
	}
	return sent.ID, nil
}

// opts собирает параметры отправки с усечённой подписью.
func (p *Processor) opts(caption string) *telegram.SendOptions {
	return &telegram.SendOptions{
		Caption: Truncate(caption, telegram.CaptionLimit),
		Silent:  p.silent,
	}
}

// kindExt задаёт расширение файла по виду сообщения, когда платформа
// не сообщила имя файла.
var kindExt = map[telegram.Kind]string{
	telegram.KindPhoto:     ".jpg",
	telegram.KindVideo:     ".mp4",
	telegram.KindAudio:     ".mp3",
	telegram.KindVoice:     ".ogg",
	telegram.KindSticker:   ".webp",
	telegram.KindAnimation: ".mp4",
	telegram.KindVideoNote: ".mp4",
	telegram.KindDocument:  ".bin",
}

// localName строит имя локального файла вложения: <msg_id>-<имя>.
func localName(msg *telegram.Message) string {
	name := msg.Media.FileName
	if name == "" {
		name = string(msg.Kind) + kindExt[msg.Kind]
	}
	return fmt.Sprintf("%d-%s", msg.ID, SanitizeName(name))
}

// Truncate усекает строку до limit рун, помечая усечение многоточием.
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

// SanitizeName заменяет в имени файла символы, недопустимые в путях.
func SanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, name)
}

// isEmptyFile сообщает, что файл существует и пуст.
func isEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() == 0
}

/*
Возможные расширения:
- Собирать альбомы обратно в медиагруппы одним вызовом отправки
- Пере-сжимать фотографии, превышающие лимит платформы
*/
