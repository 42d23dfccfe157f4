// Package telegram определяет клиент платформы обмена сообщениями.
//
// Пакет не привязан к конкретной библиотеке платформы: реализации
// регистрируются как драйверы по имени, а остальная программа работает
// через интерфейс Client. Встроенный драйвер "memory" реализует
// платформу в памяти и используется в тестах и для локальной отладки.
package telegram

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/thiagofdso/chat-cloner/internal/config"
)

// Лимиты платформы на длину текста.
const (
	// TextLimit - максимальная длина текстового сообщения.
	TextLimit = 4096
	// CaptionLimit - максимальная длина подписи к медиафайлу.
	CaptionLimit = 1024
)

// Kind определяет вид сообщения.
type Kind string

const (
	KindText      Kind = "text"
	KindPhoto     Kind = "photo"
	KindVideo     Kind = "video"
	KindDocument  Kind = "document"
	KindAudio     Kind = "audio"
	KindVoice     Kind = "voice"
	KindSticker   Kind = "sticker"
	KindAnimation Kind = "animation"
	KindVideoNote Kind = "video_note"
	KindPoll      Kind = "poll"
	KindLocation  Kind = "location"
	// KindService - служебное сообщение (вход участника, смена названия).
	KindService Kind = "service"
	// KindUnsupported - сообщение вида, который программа не переносит.
	KindUnsupported Kind = "unsupported"
)

// FileRef - непрозрачный идентификатор файла на платформе.
type FileRef string

// Chat описывает чат или канал.
type Chat struct {
	// ID - канонический идентификатор чата.
	ID int64

	// Title - название чата.
	Title string

	// Username - публичный псевдоним без @ (пустой для приватных).
	Username string

	// Protected - чат запрещает пересылку содержимого.
	Protected bool

	// IsForum - чат разбит на темы (форум).
	IsForum bool

	// Description - описание чата.
	Description string
}

// Media описывает файловое вложение сообщения.
type Media struct {
	// Ref - идентификатор файла на платформе.
	Ref FileRef

	// FileName - исходное имя файла (может быть пустым).
	FileName string

	// MimeType - тип содержимого.
	MimeType string

	// Size - размер в байтах.
	Size int64

	// Duration - длительность в секундах (аудио и видео).
	Duration int

	// Width, Height - размеры кадра (фото и видео).
	Width  int
	Height int

	// Title, Performer - метаданные аудио.
	Title     string
	Performer string
}

// Poll описывает опрос.
type Poll struct {
	// Question - текст вопроса.
	Question string

	// Options - варианты ответа.
	Options []string

	// Quiz - опрос-викторина с правильным ответом. Викторины не
	// переносятся: правильный ответ недоступен для чтения.
	Quiz bool
}

// Location описывает геометку.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Message описывает сообщение чата.
type Message struct {
	// ID - идентификатор сообщения внутри чата. Монотонно растёт.
	ID int64

	// ChatID - чат, которому принадлежит сообщение.
	ChatID int64

	// Kind - вид сообщения.
	Kind Kind

	// Text - текст сообщения или подпись к вложению.
	Text string

	// Media - файловое вложение (nil для текста, опросов, геометок).
	Media *Media

	// Poll - опрос (только для KindPoll).
	Poll *Poll

	// Location - геометка (только для KindLocation).
	Location *Location

	// GroupID - идентификатор альбома, если сообщение входит в группу.
	GroupID int64

	// Date - время отправки сообщения.
	Date time.Time
}

// Dialog описывает элемент списка диалогов пользователя.
type Dialog struct {
	// ChatID - идентификатор чата.
	ChatID int64

	// Title - название чата.
	Title string

	// Kind - вид чата: channel, group, user.
	Kind string
}

// Topic описывает тему форума.
type Topic struct {
	// ID - идентификатор темы.
	ID int64

	// Title - название темы.
	Title string
}

// SendOptions задаёт параметры отправки.
type SendOptions struct {
	// Caption - подпись к медиафайлу.
	Caption string

	// TopicID - тема форума, в которую идёт отправка (0 - без темы).
	TopicID int64

	// Silent - отправка без звукового уведомления получателей.
	Silent bool
}

// Client - клиент платформы. Все методы блокирующие и принимают
// контекст; повторами по флуд-контролю занимается вызывающая сторона.
type Client interface {
	// GetChat возвращает чат по каноническому идентификатору.
	GetChat(ctx context.Context, chatID int64) (*Chat, error)

	// ResolveUsername возвращает чат по публичному псевдониму без @.
	ResolveUsername(ctx context.Context, username string) (*Chat, error)

	// HeadMessageID возвращает идентификатор последнего сообщения чата.
	HeadMessageID(ctx context.Context, chatID int64) (int64, error)

	// GetHistory возвращает страницу истории чата по возрастанию
	// идентификаторов, начиная с fromID включительно. Пустой результат
	// означает, что сообщений с такими идентификаторами больше нет.
	GetHistory(ctx context.Context, chatID, fromID int64, limit int) ([]*Message, error)

	// SendText отправляет текстовое сообщение.
	SendText(ctx context.Context, chatID int64, text string, opts *SendOptions) (*Message, error)

	// SendMedia загружает локальный файл и отправляет его указанным видом.
	SendMedia(ctx context.Context, chatID int64, kind Kind, path string, media *Media, opts *SendOptions) (*Message, error)

	// SendPoll отправляет опрос.
	SendPoll(ctx context.Context, chatID int64, poll *Poll, opts *SendOptions) (*Message, error)

	// SendLocation отправляет геометку.
	SendLocation(ctx context.Context, chatID int64, loc *Location, opts *SendOptions) (*Message, error)

	// ForwardMessage пересылает сообщение между чатами. Для чатов с
	// защищённым содержимым возвращает ошибку запрета пересылки.
	ForwardMessage(ctx context.Context, fromChatID, toChatID, messageID int64) (*Message, error)

	// DownloadMedia скачивает вложение сообщения в локальный файл.
	DownloadMedia(ctx context.Context, msg *Message, path string) error

	// CreateChannel создаёт приватный канал и возвращает его.
	CreateChannel(ctx context.Context, title string) (*Chat, error)

	// ExportInviteLink возвращает пригласительную ссылку чата.
	ExportInviteLink(ctx context.Context, chatID int64) (string, error)

	// SetChatDescription меняет описание чата.
	SetChatDescription(ctx context.Context, chatID int64, description string) error

	// GetPinnedMessages возвращает закреплённые сообщения чата
	// в хронологическом порядке (старые первыми).
	GetPinnedMessages(ctx context.Context, chatID int64) ([]*Message, error)

	// PinMessage закрепляет сообщение.
	PinMessage(ctx context.Context, chatID, messageID int64, silent bool) error

	// LeaveChat выходит из чата.
	LeaveChat(ctx context.Context, chatID int64) error

	// ListDialogs возвращает список диалогов пользователя.
	ListDialogs(ctx context.Context) ([]*Dialog, error)

	// ListTopics возвращает темы форума.
	ListTopics(ctx context.Context, chatID int64) ([]*Topic, error)

	// Close завершает сессию.
	Close() error
}

// Dialer открывает подключение к платформе по конфигурации.
type Dialer func(ctx context.Context, cfg *config.Config) (Client, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Dialer)
)

// Register регистрирует драйвер платформы под именем. Повторная
// регистрация имени - ошибка программирования.
func Register(name string, dial Dialer) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if dial == nil {
		panic("telegram: Register с nil-драйвером")
	}
	if _, dup := drivers[name]; dup {
		panic("telegram: повторная регистрация драйвера " + name)
	}
	drivers[name] = dial
}

// Drivers возвращает имена зарегистрированных драйверов.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open открывает подключение через драйвер из конфигурации.
func Open(ctx context.Context, cfg *config.Config) (Client, error) {
	driversMu.RLock()
	dial, ok := drivers[cfg.Driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("неизвестный драйвер платформы %q (доступны: %v)", cfg.Driver, Drivers())
	}
	client, err := dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к платформе: %w", err)
	}
	return client, nil
}

/*
Возможные расширения:
- Добавить драйвер поверх MTProto-библиотеки для работы с настоящим Telegram
- Добавить пакетную пересылку альбомов одним вызовом
*/
