// Package cache реализует дисковый кэш результатов опроса медиафайлов.
//
// Опрос больших видео через ffprobe занимает заметное время, а этап
// отчёта перезапускается при каждом возобновлении конвейера. Кэш
// привязывает результат к пути, размеру и времени модификации файла:
// изменившийся файл опрашивается заново.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/thiagofdso/chat-cloner/internal/media"
)

// Cache управляет кэшем результатов опроса.
type Cache struct {
	// dir - директория для кэша.
	dir string

	// enabled - включён ли кэш.
	enabled bool
}

// New создаёт новый Cache в указанной директории. Пустая директория
// выключает кэширование.
func New(dir string) (*Cache, error) {
	if dir == "" {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию кэша: %w", err)
	}

	return &Cache{dir: dir, enabled: true}, nil
}

// IsEnabled возвращает true если кэш включён.
func (c *Cache) IsEnabled() bool {
	return c.enabled
}

// Key генерирует ключ кэша из пути, размера и времени модификации файла.
func (c *Cache) Key(path string, size, mtime int64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d", path, size, mtime)
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Get возвращает закэшированный результат опроса файла.
// Возвращает nil, если записи нет или файл изменился.
func (c *Cache) Get(path string) *media.ProbeResult {
	if !c.enabled {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil
	}

	key := c.Key(path, info.Size(), info.ModTime().Unix())
	data, err := os.ReadFile(filepath.Join(c.dir, key+".json"))
	if err != nil {
		return nil
	}

	var result media.ProbeResult
	if err := json.Unmarshal(data, &result); err != nil {
		// Повреждённая запись просто не используется
		return nil
	}
	return &result
}

// Put сохраняет результат опроса файла.
func (c *Cache) Put(path string, result *media.ProbeResult) error {
	if !c.enabled {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("не удалось сериализовать результат опроса: %w", err)
	}

	key := c.Key(path, info.Size(), info.ModTime().Unix())
	return os.WriteFile(filepath.Join(c.dir, key+".json"), data, 0644)
}

// Clear очищает весь кэш.
func (c *Cache) Clear() error {
	if !c.enabled || c.dir == "" {
		return nil
	}
	return os.RemoveAll(c.dir)
}

// Size возвращает общий размер кэша в байтах.
func (c *Cache) Size() (int64, error) {
	if !c.enabled || c.dir == "" {
		return 0, nil
	}

	var size int64
	err := filepath.WalkDir(c.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			size += info.Size()
		}
		return nil
	})

	return size, err
}

/*
Возможные расширения:
- LRU eviction при превышении лимита размера
- TTL для записей кэша
*/
