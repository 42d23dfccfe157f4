package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/thiagofdso/chat-cloner/internal/config"
	"github.com/thiagofdso/chat-cloner/internal/errs"
)

func init() {
	Register("memory", func(ctx context.Context, cfg *config.Config) (Client, error) {
		return NewMemoryClient(), nil
	})
}

// memoryChat хранит состояние одного чата в памяти.
type memoryChat struct {
	chat       Chat
	messages   map[int64]*Message
	nextMsgID  int64
	pinned     []int64
	topics     []*Topic
	inviteLink string
	left       bool
}

// MemoryClient реализует платформу в памяти (для тестов и отладки).
type MemoryClient struct {
	mu         sync.Mutex
	chats      map[int64]*memoryChat
	usernames  map[string]int64
	payloads   map[FileRef][]byte
	nextChatID int64
	nextRef    int64
	calls      map[string]int

	// Intercept вызывается перед каждой операцией платформы и позволяет
	// подсунуть ошибку (флуд-контроль, обрыв сети). Ненулевая ошибка
	// отменяет операцию до изменения состояния. Вызывается под
	// блокировкой клиента: не обращайтесь к клиенту изнутри.
	Intercept func(op string, chatID int64) error
}

// NewMemoryClient создаёт пустую платформу в памяти.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		chats:      make(map[int64]*memoryChat),
		usernames:  make(map[string]int64),
		payloads:   make(map[FileRef][]byte),
		nextChatID: -1002000000000,
		calls:      make(map[string]int),
	}
}

// enter учитывает вызов операции и даёт перехватчику шанс её сорвать.
// Вызывается с уже взятой блокировкой.
func (m *MemoryClient) enter(ctx context.Context, op string, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.calls[op]++
	if m.Intercept != nil {
		return m.Intercept(op, chatID)
	}
	return nil
}

// --- Наполнение состоянием (для тестов и отладки) ---

// AddChat регистрирует чат. Возвращает его идентификатор.
func (m *MemoryClient) AddChat(chat Chat) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addChatLocked(chat)
	return chat.ID
}

func (m *MemoryClient) addChatLocked(chat Chat) *memoryChat {
	mc := &memoryChat{
		chat:     chat,
		messages: make(map[int64]*Message),
	}
	m.chats[chat.ID] = mc
	if chat.Username != "" {
		m.usernames[strings.ToLower(chat.Username)] = chat.ID
	}
	return mc
}

// AddMessage добавляет сообщение в чат. Нулевой msg.ID заменяется
// следующим по порядку; ненулевой сохраняется как есть, что позволяет
// моделировать дыры от удалённых сообщений.
func (m *MemoryClient) AddMessage(chatID int64, msg *Message) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc := m.chats[chatID]
	if mc == nil {
		mc = m.addChatLocked(Chat{ID: chatID})
	}
	if msg.ID == 0 {
		msg.ID = mc.nextMsgID + 1
	}
	if msg.ID > mc.nextMsgID {
		mc.nextMsgID = msg.ID
	}
	msg.ChatID = chatID
	if msg.Date.IsZero() {
		msg.Date = time.Now()
	}
	mc.messages[msg.ID] = msg
	return msg.ID
}

// SetPayload задаёт содержимое файла, отдаваемое при скачивании.
func (m *MemoryClient) SetPayload(ref FileRef, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads[ref] = data
}

// AddTopic добавляет тему форума.
func (m *MemoryClient) AddTopic(chatID int64, topic *Topic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mc := m.chats[chatID]; mc != nil {
		mc.topics = append(mc.topics, topic)
	}
}

// --- Доступ к состоянию из тестов ---

// Messages возвращает сообщения чата по возрастанию идентификаторов.
func (m *MemoryClient) Messages(chatID int64) []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc := m.chats[chatID]
	if mc == nil {
		return nil
	}
	return mc.ascendingLocked(0, len(mc.messages))
}

// ChatState возвращает копию чата (nil, если чата нет).
func (m *MemoryClient) ChatState(chatID int64) *Chat {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc := m.chats[chatID]
	if mc == nil {
		return nil
	}
	chat := mc.chat
	return &chat
}

// Left сообщает, вышел ли клиент из чата.
func (m *MemoryClient) Left(chatID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc := m.chats[chatID]
	return mc != nil && mc.left
}

// PinnedIDs возвращает идентификаторы закреплённых сообщений чата.
func (m *MemoryClient) PinnedIDs(chatID int64) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc := m.chats[chatID]
	if mc == nil {
		return nil
	}
	ids := make([]int64, len(mc.pinned))
	copy(ids, mc.pinned)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CallCount возвращает количество вызовов операции.
func (m *MemoryClient) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// ascendingLocked возвращает до limit сообщений с id >= fromID
// по возрастанию. Вызывается с уже взятой блокировкой.
func (mc *memoryChat) ascendingLocked(fromID int64, limit int) []*Message {
	ids := make([]int64, 0, len(mc.messages))
	for id := range mc.messages {
		if id >= fromID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	msgs := make([]*Message, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, mc.messages[id])
	}
	return msgs
}

// --- Реализация Client ---

// GetChat возвращает чат по идентификатору.
func (m *MemoryClient) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "get_chat", chatID); err != nil {
		return nil, err
	}
	mc := m.chats[chatID]
	if mc == nil {
		return nil, errs.NotFound(fmt.Sprintf("%d", chatID))
	}
	chat := mc.chat
	return &chat, nil
}

// ResolveUsername ищет чат по публичному псевдониму.
func (m *MemoryClient) ResolveUsername(ctx context.Context, username string) (*Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "resolve_username", 0); err != nil {
		return nil, err
	}
	id, ok := m.usernames[strings.ToLower(username)]
	if !ok {
		return nil, errs.NotFound("@" + username)
	}
	chat := m.chats[id].chat
	return &chat, nil
}

// HeadMessageID возвращает идентификатор последнего сообщения чата.
func (m *MemoryClient) HeadMessageID(ctx context.Context, chatID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "head_message_id", chatID); err != nil {
		return 0, err
	}
	mc := m.chats[chatID]
	if mc == nil {
		return 0, errs.NotFound(fmt.Sprintf("%d", chatID))
	}
	var head int64
	for id := range mc.messages {
		if id > head {
			head = id
		}
	}
	return head, nil
}

// GetHistory возвращает страницу истории по возрастанию идентификаторов.
func (m *MemoryClient) GetHistory(ctx context.Context, chatID, fromID int64, limit int) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "get_history", chatID); err != nil {
		return nil, err
	}
	mc := m.chats[chatID]
	if mc == nil {
		return nil, errs.NotFound(fmt.Sprintf("%d", chatID))
	}
	return mc.ascendingLocked(fromID, limit), nil
}

// SendText отправляет текстовое сообщение.
func (m *MemoryClient) SendText(ctx context.Context, chatID int64, text string, opts *SendOptions) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "send_text", chatID); err != nil {
		return nil, err
	}
	return m.appendLocked(chatID, &Message{Kind: KindText, Text: text})
}

// SendMedia загружает локальный файл и отправляет его указанным видом.
func (m *MemoryClient) SendMedia(ctx context.Context, chatID int64, kind Kind, path string, media *Media, opts *SendOptions) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "send_media", chatID); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errs.Permanentf("файл для отправки недоступен: %v", err)
	}

	m.nextRef++
	sent := Media{
		Ref:      FileRef(fmt.Sprintf("upload-%d", m.nextRef)),
		FileName: filepath.Base(path),
		Size:     info.Size(),
	}
	if media != nil {
		sent.MimeType = media.MimeType
		sent.Duration = media.Duration
		sent.Width = media.Width
		sent.Height = media.Height
		sent.Title = media.Title
		sent.Performer = media.Performer
		if media.FileName != "" {
			sent.FileName = media.FileName
		}
	}

	msg := &Message{Kind: kind, Media: &sent}
	if opts != nil {
		msg.Text = opts.Caption
	}
	return m.appendLocked(chatID, msg)
}

// SendPoll отправляет опрос.
func (m *MemoryClient) SendPoll(ctx context.Context, chatID int64, poll *Poll, opts *SendOptions) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "send_poll", chatID); err != nil {
		return nil, err
	}
	copied := *poll
	return m.appendLocked(chatID, &Message{Kind: KindPoll, Poll: &copied})
}

// SendLocation отправляет геометку.
func (m *MemoryClient) SendLocation(ctx context.Context, chatID int64, loc *Location, opts *SendOptions) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "send_location", chatID); err != nil {
		return nil, err
	}
	copied := *loc
	return m.appendLocked(chatID, &Message{Kind: KindLocation, Location: &copied})
}

// ForwardMessage пересылает сообщение между чатами.
func (m *MemoryClient) ForwardMessage(ctx context.Context, fromChatID, toChatID, messageID int64) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "forward_message", fromChatID); err != nil {
		return nil, err
	}
	from := m.chats[fromChatID]
	if from == nil {
		return nil, errs.NotFound(fmt.Sprintf("%d", fromChatID))
	}
	if from.chat.Protected {
		return nil, &errs.RestrictedError{ChatID: fromChatID}
	}
	src := from.messages[messageID]
	if src == nil {
		return nil, errs.Permanentf("сообщение %d не найдено в чате %d", messageID, fromChatID)
	}
	copied := *src
	return m.appendLocked(toChatID, &copied)
}

// DownloadMedia скачивает вложение сообщения в локальный файл.
// Вложение без заданного содержимого даёт файл нулевого размера.
func (m *MemoryClient) DownloadMedia(ctx context.Context, msg *Message, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "download_media", msg.ChatID); err != nil {
		return err
	}
	if msg.Media == nil {
		return errs.Permanentf("сообщение %d не содержит вложения", msg.ID)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("не удалось создать директорию скачивания: %w", err)
	}
	if err := os.WriteFile(path, m.payloads[msg.Media.Ref], 0644); err != nil {
		return fmt.Errorf("не удалось записать скачанный файл: %w", err)
	}
	return nil
}

// CreateChannel создаёт приватный канал.
func (m *MemoryClient) CreateChannel(ctx context.Context, title string) (*Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "create_channel", 0); err != nil {
		return nil, err
	}
	m.nextChatID--
	chat := Chat{ID: m.nextChatID, Title: title}
	m.addChatLocked(chat)
	return &chat, nil
}

// ExportInviteLink возвращает пригласительную ссылку чата.
func (m *MemoryClient) ExportInviteLink(ctx context.Context, chatID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "export_invite_link", chatID); err != nil {
		return "", err
	}
	mc := m.chats[chatID]
	if mc == nil {
		return "", errs.NotFound(fmt.Sprintf("%d", chatID))
	}
	if mc.inviteLink == "" {
		mc.inviteLink = fmt.Sprintf("https://t.me/+mem%d", -chatID)
	}
	return mc.inviteLink, nil
}

// SetChatDescription меняет описание чата.
func (m *MemoryClient) SetChatDescription(ctx context.Context, chatID int64, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "set_chat_description", chatID); err != nil {
		return err
	}
	mc := m.chats[chatID]
	if mc == nil {
		return errs.NotFound(fmt.Sprintf("%d", chatID))
	}
	mc.chat.Description = description
	return nil
}

// GetPinnedMessages возвращает закреплённые сообщения чата,
// старые первыми.
func (m *MemoryClient) GetPinnedMessages(ctx context.Context, chatID int64) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "get_pinned", chatID); err != nil {
		return nil, err
	}
	mc := m.chats[chatID]
	if mc == nil {
		return nil, errs.NotFound(fmt.Sprintf("%d", chatID))
	}
	ids := make([]int64, len(mc.pinned))
	copy(ids, mc.pinned)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	msgs := make([]*Message, 0, len(ids))
	for _, id := range ids {
		if msg := mc.messages[id]; msg != nil {
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

// PinMessage закрепляет сообщение.
func (m *MemoryClient) PinMessage(ctx context.Context, chatID, messageID int64, silent bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "pin_message", chatID); err != nil {
		return err
	}
	mc := m.chats[chatID]
	if mc == nil {
		return errs.NotFound(fmt.Sprintf("%d", chatID))
	}
	if mc.messages[messageID] == nil {
		return errs.Permanentf("сообщение %d не найдено в чате %d", messageID, chatID)
	}
	for _, id := range mc.pinned {
		if id == messageID {
			return nil
		}
	}
	mc.pinned = append(mc.pinned, messageID)
	return nil
}

// LeaveChat выходит из чата.
func (m *MemoryClient) LeaveChat(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "leave_chat", chatID); err != nil {
		return err
	}
	mc := m.chats[chatID]
	if mc == nil {
		return errs.NotFound(fmt.Sprintf("%d", chatID))
	}
	mc.left = true
	return nil
}

// ListDialogs возвращает все чаты клиента как диалоги.
func (m *MemoryClient) ListDialogs(ctx context.Context) ([]*Dialog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "list_dialogs", 0); err != nil {
		return nil, err
	}
	dialogs := make([]*Dialog, 0, len(m.chats))
	for _, mc := range m.chats {
		if mc.left {
			continue
		}
		kind := "user"
		if mc.chat.ID < 0 {
			kind = "channel"
		}
		dialogs = append(dialogs, &Dialog{ChatID: mc.chat.ID, Title: mc.chat.Title, Kind: kind})
	}
	sort.Slice(dialogs, func(i, j int) bool { return dialogs[i].ChatID > dialogs[j].ChatID })
	return dialogs, nil
}

// ListTopics возвращает темы форума.
func (m *MemoryClient) ListTopics(ctx context.Context, chatID int64) ([]*Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "list_topics", chatID); err != nil {
		return nil, err
	}
	mc := m.chats[chatID]
	if mc == nil {
		return nil, errs.NotFound(fmt.Sprintf("%d", chatID))
	}
	if !mc.chat.IsForum {
		return nil, errs.Permanentf("чат %d не является форумом", chatID)
	}
	topics := make([]*Topic, len(mc.topics))
	copy(topics, mc.topics)
	return topics, nil
}

// Close завершает сессию.
func (m *MemoryClient) Close() error {
	return nil
}

// appendLocked добавляет сообщение чату-назначению и возвращает его.
// Вызывается с уже взятой блокировкой.
func (m *MemoryClient) appendLocked(chatID int64, msg *Message) (*Message, error) {
	mc := m.chats[chatID]
	if mc == nil {
		return nil, errs.NotFound(fmt.Sprintf("%d", chatID))
	}
	if mc.left {
		return nil, errs.Permanentf("клиент вышел из чата %d", chatID)
	}
	mc.nextMsgID++
	msg.ID = mc.nextMsgID
	msg.ChatID = chatID
	if msg.Date.IsZero() {
		msg.Date = time.Now()
	}
	mc.messages[msg.ID] = msg
	return msg, nil
}

/*
Возможные расширения:
- Добавить задержку отправки для имитации медленной сети
- Добавить лимит размера файла для имитации ограничений платформы
*/
