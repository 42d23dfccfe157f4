package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/thiagofdso/chat-cloner/internal/errs"
	"github.com/thiagofdso/chat-cloner/internal/retry"
	"github.com/thiagofdso/chat-cloner/internal/telegram"
)

func newTestResolver() (*Resolver, *telegram.MemoryClient) {
	client := telegram.NewMemoryClient()
	client.AddChat(telegram.Chat{ID: -1001234567, Title: "Публичный", Username: "publicchannel"})
	rcfg := retry.DefaultConfig()
	rcfg.Jitter = 0
	return New(client, rcfg, nil), client
}

func TestResolve(t *testing.T) {
	r, _ := newTestResolver()
	ctx := context.Background()

	tests := []struct {
		name   string
		input  string
		chatID int64
		msgID  int64
	}{
		{name: "positive numeric id", input: "123456", chatID: 123456},
		{name: "negative numeric id", input: "-1009876", chatID: -1009876},
		{name: "numeric with spaces", input: "  42  ", chatID: 42},
		{name: "at handle", input: "@publicchannel", chatID: -1001234567},
		{name: "bare handle", input: "publicchannel", chatID: -1001234567},
		{name: "private link", input: "https://t.me/c/1234567", chatID: -1001234567},
		{name: "private link with message", input: "https://t.me/c/1234567/89", chatID: -1001234567, msgID: 89},
		{name: "private forum link takes last segment", input: "https://t.me/c/1234567/4/89", chatID: -1001234567, msgID: 89},
		{name: "private link without scheme", input: "t.me/c/1234567/5", chatID: -1001234567, msgID: 5},
		{name: "public link", input: "https://t.me/publicchannel", chatID: -1001234567},
		{name: "public link with message", input: "https://t.me/publicchannel/42", chatID: -1001234567, msgID: 42},
		{name: "public link with query", input: "https://t.me/publicchannel/42?single", chatID: -1001234567, msgID: 42},
		{name: "public link uppercase host", input: "T.ME/publicchannel", chatID: -1001234567},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.input)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.input, err)
			}
			if got.ChatID != tt.chatID {
				t.Errorf("ChatID = %d, want %d", got.ChatID, tt.chatID)
			}
			if got.MessageID != tt.msgID {
				t.Errorf("MessageID = %d, want %d", got.MessageID, tt.msgID)
			}
		})
	}
}

func TestResolve_NumericSkipsPlatform(t *testing.T) {
	r, client := newTestResolver()

	if _, err := r.Resolve(context.Background(), "-100777"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if n := client.CallCount("resolve_username"); n != 0 {
		t.Errorf("числовой идентификатор вызвал платформу %d раз, want 0", n)
	}
}

func TestResolve_Unresolvable(t *testing.T) {
	r, client := newTestResolver()
	ctx := context.Background()

	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "spaces only", input: "   "},
		{name: "garbage with spaces", input: "не пойми что"},
		{name: "invite link", input: "https://t.me/+AbCdEf123"},
		{name: "private link without id", input: "https://t.me/c/"},
		{name: "private link non numeric", input: "https://t.me/c/abc/5"},
		{name: "handle with dash", input: "bad-handle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, tt.input)
			if !errors.Is(err, errs.ErrUnresolvable) {
				t.Errorf("Resolve(%q) error = %v, want ErrUnresolvable", tt.input, err)
			}
		})
	}

	// Локальные отказы не ходят в сеть
	if n := client.CallCount("resolve_username"); n != 0 {
		t.Errorf("локально неразборчивые строки вызвали платформу %d раз, want 0", n)
	}
}

func TestResolve_CachesUsernames(t *testing.T) {
	r, client := newTestResolver()
	ctx := context.Background()

	for _, input := range []string{"@publicchannel", "publicchannel", "@PublicChannel"} {
		got, err := r.Resolve(ctx, input)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", input, err)
		}
		if got.ChatID != -1001234567 {
			t.Errorf("ChatID = %d, want -1001234567", got.ChatID)
		}
	}

	// Один псевдоним в разных формах - один запрос к платформе
	if n := client.CallCount("resolve_username"); n != 1 {
		t.Errorf("resolve_username вызван %d раз, want 1", n)
	}
}

func TestResolve_NoAccessIsNotUnresolvable(t *testing.T) {
	r, _ := newTestResolver()

	_, err := r.Resolve(context.Background(), "@nosuchchannel")
	if err == nil {
		t.Fatal("Resolve() неизвестного псевдонима должен вернуть ошибку")
	}
	if errors.Is(err, errs.ErrUnresolvable) {
		t.Error("отказ платформы перепутан с локально неразборчивой строкой")
	}
	if !errs.IsNotFound(err) {
		t.Errorf("Resolve() error = %v, want «не найден»", err)
	}
}
