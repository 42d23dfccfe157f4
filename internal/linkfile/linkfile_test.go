package linkfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInternalID(t *testing.T) {
	tests := []struct {
		chatID int64
		want   int64
	}{
		{-1001234567890, 1234567890},
		{-1009999999999, 9999999999},
		{-1000000000001, 1},
		{-12345, 12345},
		{777000, 777000},
	}

	for _, tt := range tests {
		if got := InternalID(tt.chatID); got != tt.want {
			t.Errorf("InternalID(%d) = %d, want %d", tt.chatID, got, tt.want)
		}
	}
}

func TestDeepLink(t *testing.T) {
	if got := DeepLink(-1001234567890); got != "https://t.me/c/1234567890/1" {
		t.Errorf("DeepLink() = %s, want https://t.me/c/1234567890/1", got)
	}
}

func TestAppend_TwoLinesPerRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links", "links_canais.txt")
	w := New(path)

	if err := w.Append("Курс по Go", "https://t.me/c/1234567890/1"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := w.Append("Второй канал", "https://t.me/+AbCdEf"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	want := []string{
		"Курс по Go",
		"https://t.me/c/1234567890/1",
		"Второй канал",
		"https://t.me/+AbCdEf",
	}
	if len(lines) != len(want) {
		t.Fatalf("строк = %d, want %d: %q", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("строка %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestAppend_NeverRewrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links_canais.txt")

	// Существующее содержимое остаётся нетронутым
	if err := os.WriteFile(path, []byte("старая запись\nhttps://t.me/c/1/1\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if err := New(path).Append("новая", "https://t.me/c/2/1"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	got := string(data)
	if !strings.HasPrefix(got, "старая запись\nhttps://t.me/c/1/1\n") {
		t.Errorf("существующие строки перезаписаны: %q", got)
	}
	if !strings.HasSuffix(got, "новая\nhttps://t.me/c/2/1\n") {
		t.Errorf("новая запись не дописана: %q", got)
	}
}
