// Package watcher предоставляет пробу затишья директории.
//
// Перед публикацией папки нужно убедиться, что в неё никто не пишет:
// публикация папки, которую ещё копируют, даёт неполные архивы и отчёты.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher следит за директорией и определяет момент затишья.
type Watcher struct {
	// watcher - fsnotify watcher.
	watcher *fsnotify.Watcher
}

// New создаёт новый Watcher.
func New() (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("не удалось создать watcher: %w", err)
	}
	return &Watcher{watcher: w}, nil
}

// WaitSettle блокируется, пока в директории продолжается запись.
// Возвращает nil, когда в течение window не произошло ни одного события
// создания, записи или переименования. Отмена контекста прерывает
// ожидание с ctx.Err().
func (w *Watcher) WaitSettle(ctx context.Context, dir string, window time.Duration) error {
	if err := w.addRecursive(dir); err != nil {
		return err
	}

	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher закрыт во время ожидания")
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			// Новая директория - добавляем в watcher
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				_ = w.watcher.Add(event.Name)
			}

			// Любая запись перезапускает окно
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(window)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher закрыт во время ожидания")
			}
			fmt.Fprintf(os.Stderr, "Ошибка watcher: %v\n", err)
		}
	}
}

// addRecursive добавляет директорию и все поддиректории в watcher.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("не удалось добавить директорию %s: %w", path, err)
			}
		}
		return nil
	})
}

// Close закрывает watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// WaitSettle - удобная обёртка: создаёт watcher, ждёт затишья, закрывает.
func WaitSettle(ctx context.Context, dir string, window time.Duration) error {
	w, err := New()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	return w.WaitSettle(ctx, dir, window)
}

/*
Возможные расширения:
- Добавить фильтрацию служебных файлов (*.tmp, .DS_Store)
- Добавить верхний предел общего времени ожидания
*/
