package publish

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
	"github.com/thiagofdso/chat-cloner/internal/media"
	"github.com/thiagofdso/chat-cloner/internal/retry"
	"github.com/thiagofdso/chat-cloner/internal/storage"
	"github.com/thiagofdso/chat-cloner/internal/telegram"
)

// fakeTranscoder пишет маркерные файлы вместо настоящих вызовов ffmpeg.
type fakeTranscoder struct {
	reencodes int
	remuxes   int
	concats   int
}

func (f *fakeTranscoder) Reencode(ctx context.Context, src, dst string, preset config.PresetConfig) error {
	f.reencodes++
	return os.WriteFile(dst, []byte("reencoded "+filepath.Base(src)), 0644)
}

func (f *fakeTranscoder) Remux(ctx context.Context, src, dst string) error {
	f.remuxes++
	return os.WriteFile(dst, []byte("remuxed "+filepath.Base(src)), 0644)
}

func (f *fakeTranscoder) Concat(ctx context.Context, parts []string, dst string) error {
	f.concats++
	return os.WriteFile(dst, []byte(fmt.Sprintf("concat %d", len(parts))), 0644)
}

// fakeProber классифицирует видео по расширению: mp4 считается
// нормализованным, остальное требует перекодирования.
type fakeProber struct{}

func (fakeProber) Probe(ctx context.Context, path string) (*media.ProbeResult, error) {
	if filepath.Ext(path) == ".mp4" {
		return &media.ProbeResult{
			Duration:   5 * time.Minute,
			FormatName: "mov,mp4,m4a,3gp,3g2,mj2",
			VideoCodec: "h264",
			AudioCodec: "aac",
			Width:      1280,
			Height:     720,
		}, nil
	}
	return &media.ProbeResult{
		Duration:   2 * time.Minute,
		FormatName: "avi",
		VideoCodec: "mpeg4",
		AudioCodec: "mp3",
		Width:      640,
		Height:     480,
	}, nil
}

// testPipe - конвейер поверх платформы в памяти и поддельного ffmpeg.
type testPipe struct {
	pipe   *Pipeline
	client *telegram.MemoryClient
	store  *storage.Storage
	trans  *fakeTranscoder
	cfg    *config.Config
	source string
}

func newTestPipe(t *testing.T) *testPipe {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataPath = t.TempDir()
	cfg.DelaySeconds = 0
	cfg.Workers = 1
	cfg.LinksFile = filepath.Join(cfg.DataPath, "links.txt")

	store, err := storage.New(filepath.Join(t.TempDir(), "clonechat.db"))
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	source := filepath.Join(t.TempDir(), "Курс Го")
	if err := os.MkdirAll(source, 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"01 введение.mp4": "кадры введения",
		"02 основы.avi":   "кадры основ",
		"конспект.pdf":    "страницы конспекта",
		"задания.txt":     "список заданий",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(source, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	client := telegram.NewMemoryClient()
	trans := &fakeTranscoder{}
	retryCfg := retry.Config{
		MaxRetries: 2,
		Sleep:      func(ctx context.Context, d time.Duration) error { return nil },
	}

	pipe := New(cfg, store, client, trans, fakeProber{}, retryCfg, nil)
	pipe.Confirm = func(prompt string) (bool, error) { return true, nil }
	pipe.SetNoProgress(true)
	pipe.SetSkipSettle(true)
	pipe.SetSleep(func(ctx context.Context, d time.Duration) error { return nil })

	return &testPipe{pipe: pipe, client: client, store: store, trans: trans, cfg: cfg, source: source}
}

func TestPipeline_FullRun(t *testing.T) {
	env := newTestPipe(t)

	if err := env.pipe.Run(context.Background(), env.source, false); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	task, err := env.store.GetPublishTask(env.source)
	if err != nil || task == nil {
		t.Fatalf("GetPublishTask() = %v, %v", task, err)
	}
	if !task.IsPublished {
		t.Error("задача не помечена опубликованной")
	}
	if task.DestinationChatID == 0 {
		t.Fatal("канал назначения не зафиксирован в задаче")
	}

	// Один avi перекодирован, обе группы из одного сегмента собраны
	// ремультиплексированием
	if env.trans.reencodes != 1 || env.trans.remuxes != 2 || env.trans.concats != 0 {
		t.Errorf("транскодер: reencode=%d remux=%d concat=%d, want 1/2/0",
			env.trans.reencodes, env.trans.remuxes, env.trans.concats)
	}

	dest := env.client.ChatState(task.DestinationChatID)
	if dest == nil || dest.Title != "Academy Курс Го" {
		t.Errorf("канал назначения = %+v, want титул «Academy Курс Го»", dest)
	}

	// Порядок выгрузки лексикографический: склейки, затем тома, затем
	// сводка текстом
	msgs := env.client.Messages(task.DestinationChatID)
	if len(msgs) != 4 {
		t.Fatalf("в канале %d сообщений, want 4", len(msgs))
	}
	wantCaptions := []string{
		"#F001 Курс Го-001.mp4",
		"#F002 Курс Го-002.mp4",
		"#Материалы Курс Го-001.zip",
	}
	for i, want := range wantCaptions {
		if msgs[i].Text != want {
			t.Errorf("подпись %d = %q, want %q", i, msgs[i].Text, want)
		}
	}
	if msgs[0].Kind != telegram.KindVideo || msgs[2].Kind != telegram.KindDocument {
		t.Errorf("виды сообщений = %s/%s, want video/document", msgs[0].Kind, msgs[2].Kind)
	}

	// Сводка отправлена текстом и закреплена
	summary := msgs[3]
	if summary.Kind != telegram.KindText || !strings.Contains(summary.Text, "#F001") {
		t.Errorf("сводка = %+v, want текст с хэштегами", summary)
	}
	pinned := env.client.PinnedIDs(task.DestinationChatID)
	if len(pinned) != 1 || pinned[0] != summary.ID {
		t.Errorf("закреплено %v, want сводка %d", pinned, summary.ID)
	}

	// Проект зарегистрирован в файле ссылок
	data, err := os.ReadFile(env.cfg.LinksFile)
	if err != nil {
		t.Fatalf("не удалось прочитать файл ссылок: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 || lines[0] != "Курс Го" {
		t.Errorf("файл ссылок = %q, want титул и ссылку", lines)
	}
	if task.InviteLink == "" || lines[1] != task.InviteLink {
		t.Errorf("ссылка в файле = %q, в задаче = %q", lines[1], task.InviteLink)
	}

	// AUTODEL_VIDEO_TEMP убрал промежуточные склейки после выгрузки
	ws := NewWorkspace(env.cfg.WorkspaceRoot(), "Курс Го", env.source)
	if _, err := os.Stat(filepath.Join(ws.Joined, "Курс Го-001.mp4")); err == nil {
		t.Error("промежуточное видео не удалено после выгрузки")
	}
	// Тома архива остаются на месте
	if _, err := os.Stat(filepath.Join(ws.Zipped, "Курс Го-001.zip")); err != nil {
		t.Errorf("том архива исчез: %v", err)
	}

	// Повторный запуск завершённой задачи ничего не отправляет
	sends := env.client.CallCount("send_media")
	if err := env.pipe.Run(context.Background(), env.source, false); err != nil {
		t.Fatalf("повторный Run() error = %v", err)
	}
	if got := env.client.CallCount("send_media"); got != sends {
		t.Errorf("повторный запуск отправил %d файлов, want 0", got-sends)
	}
}

func TestPipeline_DeclinePausesWithoutError(t *testing.T) {
	env := newTestPipe(t)
	env.pipe.Confirm = func(prompt string) (bool, error) { return false, nil }

	if err := env.pipe.Run(context.Background(), env.source, false); err != nil {
		t.Fatalf("Run() при отказе на шлюзе error = %v, want nil", err)
	}

	task, _ := env.store.GetPublishTask(env.source)
	if !task.StageDone(storage.FlagReported) {
		t.Error("этапы до шлюза должны быть завершены")
	}
	if task.StageDone(storage.FlagReencodeAuth) {
		t.Error("защёлка шлюза не должна взводиться при отказе")
	}
	if got := env.client.CallCount("send_media"); got != 0 {
		t.Errorf("при отказе отправлено %d файлов, want 0", got)
	}

	// Возобновление начинается со шлюза, не повторяя опрос видео
	probesBefore := env.trans.reencodes
	env.pipe.Confirm = func(prompt string) (bool, error) { return true, nil }
	if err := env.pipe.Run(context.Background(), env.source, false); err != nil {
		t.Fatalf("возобновление error = %v", err)
	}
	task, _ = env.store.GetPublishTask(env.source)
	if !task.IsPublished {
		t.Error("после подтверждения публикация должна завершиться")
	}
	if env.trans.reencodes != probesBefore+1 {
		t.Errorf("reencodes = %d, want %d", env.trans.reencodes, probesBefore+1)
	}
}

func TestPipeline_UploadResumesAfterCrash(t *testing.T) {
	env := newTestPipe(t)

	// Обрыв на второй отправке файла плана
	sends := 0
	env.client.Intercept = func(op string, chatID int64) error {
		if op == "send_media" {
			sends++
			if sends == 2 {
				return errs.Permanentf("обрыв сети")
			}
		}
		return nil
	}

	if err := env.pipe.Run(context.Background(), env.source, false); err == nil {
		t.Fatal("Run() при обрыве должен вернуть ошибку")
	}

	task, _ := env.store.GetPublishTask(env.source)
	if task.IsPublished {
		t.Fatal("задача не должна быть опубликована после обрыва")
	}
	if task.LastUploadedFile != "joined/Курс Го-001.mp4" {
		t.Fatalf("маркер возобновления = %q, want первый файл плана", task.LastUploadedFile)
	}
	firstDest := task.DestinationChatID
	if firstDest == 0 {
		t.Fatal("канал назначения должен быть зафиксирован до обрыва")
	}

	// Повторный запуск продолжает с маркера в тот же канал
	env.client.Intercept = nil
	if err := env.pipe.Run(context.Background(), env.source, false); err != nil {
		t.Fatalf("повторный Run() error = %v", err)
	}

	task, _ = env.store.GetPublishTask(env.source)
	if !task.IsPublished {
		t.Error("после возобновления задача должна быть опубликована")
	}
	if task.DestinationChatID != firstDest {
		t.Errorf("канал сменился: %d -> %d", firstDest, task.DestinationChatID)
	}

	// Каждый файл плана доставлен ровно один раз
	msgs := env.client.Messages(firstDest)
	seen := map[string]int{}
	for _, msg := range msgs {
		if msg.Media != nil {
			seen[msg.Media.FileName]++
		}
	}
	for name, count := range seen {
		if count != 1 {
			t.Errorf("файл %s доставлен %d раз, want 1", name, count)
		}
	}
	if len(msgs) != 4 {
		t.Errorf("в канале %d сообщений, want 4", len(msgs))
	}
}

func TestPipeline_RestartClearsWorkspace(t *testing.T) {
	env := newTestPipe(t)

	if err := env.pipe.Run(context.Background(), env.source, false); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	first, _ := env.store.GetPublishTask(env.source)

	if err := env.pipe.Run(context.Background(), env.source, true); err != nil {
		t.Fatalf("Run(--restart) error = %v", err)
	}
	second, _ := env.store.GetPublishTask(env.source)

	if !second.IsPublished {
		t.Error("повторная публикация должна завершиться")
	}
	// Сброшенная задача публикуется в новый канал
	if second.DestinationChatID == first.DestinationChatID {
		t.Error("после --restart должен быть создан новый канал")
	}
}

func TestPipeline_MocChannelOverridesDestination(t *testing.T) {
	env := newTestPipe(t)
	env.cfg.MocChatID = -42
	env.client.AddChat(telegram.Chat{ID: -42, Title: "Песочница"})

	if err := env.pipe.Run(context.Background(), env.source, false); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	task, _ := env.store.GetPublishTask(env.source)
	if task.DestinationChatID != -42 {
		t.Errorf("DestinationChatID = %d, want тестовый канал -42", task.DestinationChatID)
	}
	if got := env.client.CallCount("create_channel"); got != 0 {
		t.Errorf("create_channel вызван %d раз, want 0", got)
	}
	if got := len(env.client.Messages(-42)); got != 4 {
		t.Errorf("в тестовом канале %d сообщений, want 4", got)
	}
}
