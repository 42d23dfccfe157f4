package cloner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/thiagofdso/chat-cloner/internal/config"
	"github.com/thiagofdso/chat-cloner/internal/errs"
	"github.com/thiagofdso/chat-cloner/internal/retry"
	"github.com/thiagofdso/chat-cloner/internal/storage"
	"github.com/thiagofdso/chat-cloner/internal/telegram"
)

// testEnv - движок поверх платформы в памяти и временного хранилища.
type testEnv struct {
	engine *Engine
	client *telegram.MemoryClient
	store  *storage.Storage
	cfg    *config.Config

	// retrySleeps копит паузы, предписанные ретрай-адаптером.
	retrySleeps *[]time.Duration
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DelaySeconds = 0
	cfg.LinksFile = filepath.Join(t.TempDir(), "links.txt")
	cfg.DownloadPath = t.TempDir()

	store, err := storage.New(filepath.Join(t.TempDir(), "clonechat.db"))
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	var sleeps []time.Duration
	retryCfg := retry.Config{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		},
	}

	client := telegram.NewMemoryClient()
	engine := New(cfg, store, client, retryCfg, nil)
	engine.SetNoProgress(true)
	engine.SetSleep(func(ctx context.Context, d time.Duration) error { return nil })

	return &testEnv{
		engine:      engine,
		client:      client,
		store:       store,
		cfg:         cfg,
		retrySleeps: &sleeps,
	}
}

// fillSource наполняет источник текстовыми сообщениями 1..n.
func fillSource(client *telegram.MemoryClient, chatID int64, n int) {
	for i := 1; i <= n; i++ {
		client.AddMessage(chatID, &telegram.Message{
			Kind: telegram.KindText,
			Text: fmt.Sprintf("сообщение %d", i),
		})
	}
}

func TestRun_FreshCloneInOrder(t *testing.T) {
	env := newTestEnv(t)
	env.client.AddChat(telegram.Chat{ID: -1001, Title: "Курс"})
	fillSource(env.client, -1001, 50)

	if err := env.engine.Run(context.Background(), Options{Origin: "-1001"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	task, err := env.store.GetSyncTask(-1001)
	if err != nil || task == nil {
		t.Fatalf("GetSyncTask() = %v, %v", task, err)
	}
	if task.Strategy != storage.StrategyForward {
		t.Errorf("Strategy = %q, want %q", task.Strategy, storage.StrategyForward)
	}
	if task.LastSyncedMessageID != 50 {
		t.Errorf("LastSyncedMessageID = %d, want 50", task.LastSyncedMessageID)
	}

	got := env.client.Messages(task.DestinationChatID)
	if len(got) != 50 {
		t.Fatalf("назначение содержит %d сообщений, want 50", len(got))
	}
	for i, msg := range got {
		want := fmt.Sprintf("сообщение %d", i+1)
		if msg.Text != want {
			t.Fatalf("сообщение %d = %q, want %q (нарушен порядок)", i, msg.Text, want)
		}
	}

	// Назначение - новый канал [CLONE] с пометкой об источнике
	dest := env.client.ChatState(task.DestinationChatID)
	if dest == nil || dest.Title != "[CLONE] Курс" {
		t.Errorf("канал назначения = %+v, want титул «[CLONE] Курс»", dest)
	}
}

func TestRun_RestrictedDowngradesOnce(t *testing.T) {
	env := newTestEnv(t)
	env.client.AddChat(telegram.Chat{ID: -1001, Title: "Закрытый"})
	fillSource(env.client, -1001, 5)

	// Скрытый запрет: get-chat не сообщает Protected, пересылка падает
	env.client.Intercept = func(op string, chatID int64) error {
		if op == "forward_message" {
			return &errs.RestrictedError{ChatID: chatID}
		}
		return nil
	}

	if err := env.engine.Run(context.Background(), Options{Origin: "-1001"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	task, _ := env.store.GetSyncTask(-1001)
	if task.Strategy != storage.StrategyDownload {
		t.Errorf("Strategy = %q, want %q", task.Strategy, storage.StrategyDownload)
	}
	if got := len(env.client.Messages(task.DestinationChatID)); got != 5 {
		t.Errorf("назначение содержит %d сообщений, want 5", got)
	}
	// Понижение происходит ровно один раз: пересылка пробовалась только
	// на первом сообщении
	if got := env.client.CallCount("forward_message"); got != 1 {
		t.Errorf("forward_message вызван %d раз, want 1", got)
	}
}

func TestRun_CrashResumeExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	env.client.AddChat(telegram.Chat{ID: -1001, Title: "Курс"})
	fillSource(env.client, -1001, 10)

	// Обрыв после седьмой подтверждённой доставки
	delivered := 0
	env.client.Intercept = func(op string, chatID int64) error {
		if op == "forward_message" {
			if delivered >= 7 {
				return errs.Permanentf("обрыв сети")
			}
			delivered++
		}
		return nil
	}

	if err := env.engine.Run(context.Background(), Options{Origin: "-1001"}); err == nil {
		t.Fatal("Run() при обрыве должен вернуть ошибку")
	}

	task, _ := env.store.GetSyncTask(-1001)
	if task.LastSyncedMessageID != 7 {
		t.Fatalf("контрольная точка после обрыва = %d, want 7", task.LastSyncedMessageID)
	}

	// Повторный запуск доставляет остаток ровно один раз
	env.client.Intercept = nil
	if err := env.engine.Run(context.Background(), Options{Origin: "-1001"}); err != nil {
		t.Fatalf("повторный Run() error = %v", err)
	}

	task, _ = env.store.GetSyncTask(-1001)
	if task.LastSyncedMessageID != 10 {
		t.Errorf("LastSyncedMessageID = %d, want 10", task.LastSyncedMessageID)
	}
	got := env.client.Messages(task.DestinationChatID)
	if len(got) != 10 {
		t.Fatalf("назначение содержит %d сообщений, want ровно 10", len(got))
	}
	for i, msg := range got {
		want := fmt.Sprintf("сообщение %d", i+1)
		if msg.Text != want {
			t.Fatalf("сообщение %d = %q, want %q", i, msg.Text, want)
		}
	}
}

func TestRun_FloodWaitHonoured(t *testing.T) {
	env := newTestEnv(t)
	env.client.AddChat(telegram.Chat{ID: -1001, Title: "Курс"})
	fillSource(env.client, -1001, 3)

	// Флуд-контроль на каждой первой попытке пересылки
	flooded := map[int64]bool{}
	var next int64 = 1
	env.client.Intercept = func(op string, chatID int64) error {
		if op == "forward_message" && !flooded[next] {
			flooded[next] = true
			return &errs.FloodWaitError{Seconds: 4}
		}
		if op == "forward_message" {
			next++
		}
		return nil
	}

	if err := env.engine.Run(context.Background(), Options{Origin: "-1001"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	task, _ := env.store.GetSyncTask(-1001)
	if got := len(env.client.Messages(task.DestinationChatID)); got != 3 {
		t.Errorf("назначение содержит %d сообщений, want 3", got)
	}
	// Каждое предписание сервера выдержано: пауза не меньше 4 секунд
	if len(*env.retrySleeps) != 3 {
		t.Fatalf("пауз флуд-контроля %d, want 3", len(*env.retrySleeps))
	}
	for _, d := range *env.retrySleeps {
		if d < 4*time.Second {
			t.Errorf("пауза %s короче предписанных 4s", d)
		}
	}
}

func TestRun_RerunIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.client.AddChat(telegram.Chat{ID: -1001, Title: "Курс"})
	fillSource(env.client, -1001, 5)

	if err := env.engine.Run(context.Background(), Options{Origin: "-1001"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	forwards := env.client.CallCount("forward_message")

	if err := env.engine.Run(context.Background(), Options{Origin: "-1001"}); err != nil {
		t.Fatalf("повторный Run() error = %v", err)
	}
	if got := env.client.CallCount("forward_message"); got != forwards {
		t.Errorf("повторный запуск отправил %d сообщений, want 0", got-forwards)
	}

	// Файл ссылок не пополняется при пустом прогоне
	data, err := os.ReadFile(env.cfg.LinksFile)
	if err != nil {
		t.Fatalf("не удалось прочитать файл ссылок: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Errorf("файл ссылок содержит %d строк, want 2:\n%s", len(lines), data)
	}
	if lines[0] != "Курс" {
		t.Errorf("первая строка файла ссылок = %q, want титул", lines[0])
	}
	if !strings.HasPrefix(lines[1], "https://") {
		t.Errorf("вторая строка файла ссылок = %q, want ссылку", lines[1])
	}
}

func TestRun_ReplicatesPinsInOrder(t *testing.T) {
	env := newTestEnv(t)
	env.client.AddChat(telegram.Chat{ID: -1001, Title: "Курс"})
	fillSource(env.client, -1001, 5)
	ctx := context.Background()
	_ = env.client.PinMessage(ctx, -1001, 2, true)
	_ = env.client.PinMessage(ctx, -1001, 4, true)

	if err := env.engine.Run(ctx, Options{Origin: "-1001"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	task, _ := env.store.GetSyncTask(-1001)
	pinned := env.client.PinnedIDs(task.DestinationChatID)
	if len(pinned) != 2 {
		t.Fatalf("закреплено %d сообщений, want 2", len(pinned))
	}
}

func TestRun_PublishLinkAndLeave(t *testing.T) {
	env := newTestEnv(t)
	env.client.AddChat(telegram.Chat{ID: -1001, Title: "Курс"})
	env.client.AddChat(telegram.Chat{ID: -1002, Title: "Анонсы"})
	fillSource(env.client, -1001, 2)

	opts := Options{Origin: "-1001", PublishTo: "-1002", LeaveOrigin: true}
	if err := env.engine.Run(context.Background(), opts); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	announce := env.client.Messages(-1002)
	if len(announce) != 1 {
		t.Fatalf("в чате анонсов %d сообщений, want 1", len(announce))
	}
	if !strings.Contains(announce[0].Text, "Курс") {
		t.Errorf("анонс = %q, want титул источника", announce[0].Text)
	}
	if !env.client.Left(-1001) {
		t.Error("после --leave-origin клиент должен выйти из источника")
	}
}

func TestRunBatch_SkipsBadEntries(t *testing.T) {
	env := newTestEnv(t)
	env.client.AddChat(telegram.Chat{ID: -1001, Title: "Первый"})
	env.client.AddChat(telegram.Chat{ID: -1002, Title: "Второй"})
	fillSource(env.client, -1001, 2)
	fillSource(env.client, -1002, 3)

	batch := filepath.Join(t.TempDir(), "batch.txt")
	content := "# комментарий\n-1001\n\n@nosuchchannel\n-1002\n"
	if err := os.WriteFile(batch, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if err := env.engine.RunBatch(context.Background(), batch, Options{}); err != nil {
		t.Fatalf("RunBatch() error = %v, want nil (плохие строки пропускаются)", err)
	}

	for _, id := range []int64{-1001, -1002} {
		task, _ := env.store.GetSyncTask(id)
		if task == nil {
			t.Errorf("задача для %d не создана", id)
		}
	}
}

func TestRun_RestartRedelivers(t *testing.T) {
	env := newTestEnv(t)
	env.client.AddChat(telegram.Chat{ID: -1001, Title: "Курс"})
	fillSource(env.client, -1001, 3)

	if err := env.engine.Run(context.Background(), Options{Origin: "-1001"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	first, _ := env.store.GetSyncTask(-1001)

	if err := env.engine.Run(context.Background(), Options{Origin: "-1001", Restart: true}); err != nil {
		t.Fatalf("Run(--restart) error = %v", err)
	}
	second, _ := env.store.GetSyncTask(-1001)

	if second.DestinationChatID == first.DestinationChatID {
		t.Error("после --restart должен быть создан новый канал назначения")
	}
	if got := len(env.client.Messages(second.DestinationChatID)); got != 3 {
		t.Errorf("новое назначение содержит %d сообщений, want 3", got)
	}
}
