// Package resolver разбирает пользовательские идентификаторы чатов.
//
// На входе свободная форма: числовой идентификатор, @псевдоним,
// публичная ссылка t.me/<имя>, приватная ссылка t.me/c/<id> или ссылка
// на конкретное сообщение. На выходе канонический числовой идентификатор
// чата и, если ссылка вела на сообщение, его идентификатор.
package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/thiagofdso/chat-cloner/internal/errs"
	"github.com/thiagofdso/chat-cloner/internal/retry"
	"github.com/thiagofdso/chat-cloner/internal/telegram"
)

// Result - разобранный идентификатор.
type Result struct {
	// ChatID - канонический идентификатор чата.
	ChatID int64

	// MessageID - идентификатор сообщения из ссылки (0, если ссылка
	// вела на чат целиком).
	MessageID int64
}

// Resolver переводит свободную форму идентификатора в канонический вид.
type Resolver struct {
	client telegram.Client
	retry  retry.Config
	log    *logrus.Logger

	// mu защищает cache. Разрешённые псевдонимы кэшируются на время
	// процесса: пакетный режим не дёргает платформу повторно.
	mu    sync.Mutex
	cache map[string]int64
}

// New создаёт резолвер поверх клиента платформы.
func New(client telegram.Client, retryCfg retry.Config, log *logrus.Logger) *Resolver {
	return &Resolver{
		client: client,
		retry:  retryCfg,
		log:    log,
		cache:  make(map[string]int64),
	}
}

// Resolve разбирает идентификатор. Правила применяются по порядку:
//
//  1. Чистое число проходит без изменений.
//  2. Строка с @ - псевдоним, разрешается запросом к платформе.
//  3. Ссылка с /c/<id>/... восстанавливается в форму -100<id>,
//     хвостовой числовой сегмент становится идентификатором сообщения.
//  4. t.me/<имя>[/<сообщение>] - публичный псевдоним.
//  5. Всё остальное трактуется как псевдоним.
//
// Локально неразборчивая строка отличается от отсутствия доступа:
// первая ошибка распознаётся errors.Is(err, errs.ErrUnresolvable) и не
// требует сетевого вызова, вторая приходит от платформы.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*Result, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("%w: пустая строка", errs.ErrUnresolvable)
	}

	// Правило 1: чистое число
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &Result{ChatID: id}, nil
	}

	// Правило 2: @псевдоним
	if strings.HasPrefix(s, "@") {
		return r.lookup(ctx, strings.TrimPrefix(s, "@"))
	}

	// Обрезаем query и fragment у ссылок
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}

	// Правило 3: приватная ссылка /c/<id>/...
	if i := strings.Index(s, "/c/"); i >= 0 {
		return parsePrivateLink(s[i+len("/c/"):])
	}

	// Правило 4: публичная ссылка t.me/<имя>[/<сообщение>]
	if rest, ok := stripLinkPrefix(s); ok {
		return r.parsePublicLink(ctx, rest)
	}

	// Правило 5: всё остальное - псевдоним
	if !validUsername(s) {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnresolvable, raw)
	}
	return r.lookup(ctx, s)
}

// lookup разрешает псевдоним запросом к платформе.
func (r *Resolver) lookup(ctx context.Context, username string) (*Result, error) {
	if !validUsername(username) {
		return nil, fmt.Errorf("%w: недопустимый псевдоним %q", errs.ErrUnresolvable, username)
	}

	key := strings.ToLower(username)
	r.mu.Lock()
	id, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return &Result{ChatID: id}, nil
	}

	var chat *telegram.Chat
	err := retry.Do(ctx, r.retry, "resolve_username", func() error {
		var err error
		chat, err = r.client.ResolveUsername(ctx, username)
		return err
	})
	if err != nil {
		return nil, err
	}
	if r.log != nil {
		r.log.Debugf("псевдоним @%s разрешён в %d", username, chat.ID)
	}

	r.mu.Lock()
	r.cache[key] = chat.ID
	r.mu.Unlock()
	return &Result{ChatID: chat.ID}, nil
}

// parsePrivateLink разбирает хвост приватной ссылки после /c/.
// Первый сегмент - внутренний идентификатор, последний числовой
// сегмент (если есть) - идентификатор сообщения.
func parsePrivateLink(rest string) (*Result, error) {
	segs := splitSegments(rest)
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: ссылка /c/ без идентификатора", errs.ErrUnresolvable)
	}

	internal, err := strconv.ParseInt(segs[0], 10, 64)
	if err != nil || internal <= 0 {
		return nil, fmt.Errorf("%w: внутренний идентификатор %q", errs.ErrUnresolvable, segs[0])
	}

	// Восстанавливаем каноническую форму -100<id>
	chatID, err := strconv.ParseInt(fmt.Sprintf("-100%d", internal), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: идентификатор %q слишком велик", errs.ErrUnresolvable, segs[0])
	}

	result := &Result{ChatID: chatID}
	if len(segs) > 1 {
		if msgID, err := strconv.ParseInt(segs[len(segs)-1], 10, 64); err == nil && msgID > 0 {
			result.MessageID = msgID
		}
	}
	return result, nil
}

// parsePublicLink разбирает хвост публичной ссылки после t.me/.
func (r *Resolver) parsePublicLink(ctx context.Context, rest string) (*Result, error) {
	segs := splitSegments(rest)
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: ссылка без имени чата", errs.ErrUnresolvable)
	}
	name := segs[0]
	if strings.HasPrefix(name, "+") {
		return nil, fmt.Errorf("%w: пригласительные ссылки не поддерживаются", errs.ErrUnresolvable)
	}

	result, err := r.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(segs) > 1 {
		if msgID, err := strconv.ParseInt(segs[len(segs)-1], 10, 64); err == nil && msgID > 0 {
			result.MessageID = msgID
		}
	}
	return result, nil
}

// stripLinkPrefix срезает схему и хост ссылки t.me. Возвращает хвост
// после хоста и признак, что строка была такой ссылкой.
func stripLinkPrefix(s string) (string, bool) {
	lower := strings.ToLower(s)
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/", "https://telegram.me/", "telegram.me/"} {
		if strings.HasPrefix(lower, prefix) {
			return s[len(prefix):], true
		}
	}
	return "", false
}

// splitSegments режет путь на непустые сегменты.
func splitSegments(s string) []string {
	var segs []string
	for _, seg := range strings.Split(s, "/") {
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	return segs
}

// validUsername грубо проверяет, что строка похожа на псевдоним:
// буквы, цифры и подчёркивания, без пробелов и разделителей.
func validUsername(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}

/*
Возможные расширения:
- Поддержать пригласительные ссылки t.me/+hash через вступление в чат
- Сбрасывать кэш псевдонимов по TTL для долгоживущих процессов
*/
