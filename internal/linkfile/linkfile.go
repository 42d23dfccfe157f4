// Package linkfile ведёт файл ссылок на опубликованные каналы.
//
// Файл append-only: каждая успешная операция добавляет ровно две строки
// (титул, затем ссылка); существующие строки никогда не переписываются.
package linkfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// DeepLink строит ссылку на первое сообщение приватного канала.
// Внутренний идентификатор - канонический без префикса -100.
func DeepLink(chatID int64) string {
	return fmt.Sprintf("https://t.me/c/%d/1", InternalID(chatID))
}

// InternalID возвращает внутренний идентификатор канала: для канонических
// идентификаторов вида -100XXXXXXXXXX отбрасывается префикс -100.
func InternalID(chatID int64) int64 {
	if chatID < -1000000000000 {
		return -chatID - 1000000000000
	}
	if chatID < 0 {
		return -chatID
	}
	return chatID
}

// Writer добавляет записи в файл ссылок.
type Writer struct {
	// path - путь файла ссылок.
	path string
}

// New создаёт Writer для указанного файла.
func New(path string) *Writer {
	return &Writer{path: path}
}

// Path возвращает путь файла ссылок.
func (w *Writer) Path() string {
	return w.path
}

// Append дописывает запись: строку титула и строку ссылки.
// Запись выполняется одним системным вызовом в режиме O_APPEND.
func (w *Writer) Append(title, link string) error {
	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("не удалось создать директорию файла ссылок: %w", err)
		}
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("не удалось открыть файл ссылок: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintf(f, "%s\n%s\n", title, link); err != nil {
		return fmt.Errorf("не удалось записать в файл ссылок: %w", err)
	}
	return nil
}

/*
Возможные расширения:
- Добавить метку времени записи
- Добавить команду вывода содержимого файла ссылок
*/
