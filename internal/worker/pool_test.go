package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/thiagofdso/chat-cloner/internal/cache"
	"github.com/thiagofdso/chat-cloner/internal/media"
	"github.com/thiagofdso/chat-cloner/internal/scanner"
)

// fakeProber считает вызовы и может имитировать сбой для отдельных путей.
type fakeProber struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
}

func newFakeProber() *fakeProber {
	return &fakeProber{calls: map[string]int{}, fail: map[string]bool{}}
}

func (f *fakeProber) Probe(ctx context.Context, path string) (*media.ProbeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[path]++
	if f.fail[path] {
		return nil, errors.New("повреждённый файл")
	}
	return &media.ProbeResult{
		Path:       path,
		Duration:   time.Duration(len(path)) * time.Second,
		VideoCodec: "h264",
	}, nil
}

func (f *fakeProber) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func makeFiles(t *testing.T, dir string, n int) []scanner.File {
	t.Helper()
	files := make([]scanner.File, n)
	for i := range files {
		path := filepath.Join(dir, fmt.Sprintf("video-%02d.mp4", i))
		if err := os.WriteFile(path, []byte("payload"), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		files[i] = scanner.File{Path: path, RelPath: filepath.Base(path), Size: 7}
	}
	return files
}

func TestProcess_OrderPreserved(t *testing.T) {
	dir := t.TempDir()
	files := makeFiles(t, dir, 10)
	prober := newFakeProber()

	pool := New(prober, nil, 4)
	results := pool.Process(context.Background(), files)

	if len(results) != len(files) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(files))
	}
	for i, r := range results {
		if r.File.Path != files[i].Path {
			t.Errorf("results[%d].File = %s, want %s", i, r.File.Path, files[i].Path)
		}
		if r.Err != nil {
			t.Errorf("results[%d].Err = %v", i, r.Err)
		}
		if r.Probe == nil || r.Probe.Path != files[i].Path {
			t.Errorf("results[%d].Probe не соответствует файлу", i)
		}
	}

	stats := pool.GetStats()
	if stats.Probed != 10 || stats.Total != 10 || stats.Failed != 0 {
		t.Errorf("GetStats() = %+v, want Probed=10 Total=10", stats)
	}
}

func TestProcess_CacheHit(t *testing.T) {
	dir := t.TempDir()
	files := makeFiles(t, dir, 3)
	prober := newFakeProber()

	c, err := cache.New(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}

	// Первый файл уже в кэше
	cached := &media.ProbeResult{Path: files[0].Path, Duration: 42 * time.Second, VideoCodec: "hevc"}
	if err := c.Put(files[0].Path, cached); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	pool := New(prober, c, 2)
	results := pool.Process(context.Background(), files)

	if got := prober.callCount(files[0].Path); got != 0 {
		t.Errorf("закэшированный файл опрошен %d раз, want 0", got)
	}
	if results[0].Probe == nil || results[0].Probe.VideoCodec != "hevc" {
		t.Errorf("results[0].Probe = %+v, want из кэша", results[0].Probe)
	}

	stats := pool.GetStats()
	if stats.Cached != 1 || stats.Probed != 2 {
		t.Errorf("GetStats() = %+v, want Cached=1 Probed=2", stats)
	}

	// Повторный проход берёт всё из кэша
	pool2 := New(newFakeProber(), c, 2)
	pool2.Process(context.Background(), files)
	if got := pool2.GetStats().Cached; got != 3 {
		t.Errorf("Cached при повторном проходе = %d, want 3", got)
	}
}

func TestProcess_FailureCounted(t *testing.T) {
	dir := t.TempDir()
	files := makeFiles(t, dir, 3)
	prober := newFakeProber()
	prober.fail[files[1].Path] = true

	pool := New(prober, nil, 1)
	results := pool.Process(context.Background(), files)

	if results[1].Err == nil {
		t.Error("results[1].Err = nil, want ошибку")
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("соседние файлы не должны падать")
	}

	stats := pool.GetStats()
	if stats.Failed != 1 || stats.Probed != 2 {
		t.Errorf("GetStats() = %+v, want Failed=1 Probed=2", stats)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.bytes); got != tt.want {
			t.Errorf("FormatBytes(%d) = %s, want %s", tt.bytes, got, tt.want)
		}
	}
}
