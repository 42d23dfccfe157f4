// Package config содержит конфигурацию приложения.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileConfig представляет структуру конфигурационного файла YAML.
// Все поля опциональны - если не указаны, действуют переменные окружения
// и значения по умолчанию.
type FileConfig struct {
	// Platform - настройки клиента платформы.
	Platform *PlatformConfig `yaml:"platform,omitempty"`

	// Cloner - настройки клонирования и загрузки.
	Cloner *ClonerConfig `yaml:"cloner,omitempty"`

	// Publish - настройки конвейера публикации.
	Publish *PublishConfig `yaml:"publish,omitempty"`

	// Paths - настройки путей.
	Paths *PathsConfig `yaml:"paths,omitempty"`
}

// PlatformConfig содержит настройки клиента платформы.
type PlatformConfig struct {
	// APIID - идентификатор приложения.
	APIID int `yaml:"api_id,omitempty"`

	// APIHash - секрет приложения.
	APIHash string `yaml:"api_hash,omitempty"`

	// Driver - имя зарегистрированного драйвера.
	Driver string `yaml:"driver,omitempty"`
}

// ClonerConfig содержит настройки клонирования.
type ClonerConfig struct {
	// DelaySeconds - пауза между исходящими сообщениями.
	DelaySeconds *float64 `yaml:"delay_seconds,omitempty"`

	// DownloadPath - корень временных загрузок.
	DownloadPath string `yaml:"download_path,omitempty"`

	// LinksFile - путь файла ссылок.
	LinksFile string `yaml:"links_file,omitempty"`

	// RegisterInviteLink - регистрировать инвайт-ссылку.
	RegisterInviteLink *bool `yaml:"register_invite_link,omitempty"`

	// SilentMode - отправка без уведомлений.
	SilentMode *bool `yaml:"silent_mode,omitempty"`
}

// PublishConfig содержит настройки конвейера публикации.
type PublishConfig struct {
	// FileSizeLimitMB - лимит размера томов и склеек.
	FileSizeLimitMB int `yaml:"file_size_limit_mb,omitempty"`

	// VideoExtensions - расширения видео.
	VideoExtensions []string `yaml:"video_extensions,omitempty"`

	// ReencodePlan - single или group.
	ReencodePlan string `yaml:"reencode_plan,omitempty"`

	// ReencodePreset - пресет перекодирования.
	ReencodePreset string `yaml:"reencode_preset,omitempty"`

	// DurationLimit - предел длительности склейки (ЧЧ:ММ:СС.ммм).
	DurationLimit string `yaml:"duration_limit,omitempty"`

	// CreateNewChannel - создавать новый канал.
	CreateNewChannel *bool `yaml:"create_new_channel,omitempty"`

	// ChatID - канал публикации.
	ChatID int64 `yaml:"chat_id,omitempty"`

	// MocChatID - тестовый канал.
	MocChatID int64 `yaml:"moc_chat_id,omitempty"`

	// TimeLimitMinutes - лимит стены транскодера.
	TimeLimitMinutes int `yaml:"time_limit_minutes,omitempty"`

	// Workers - количество воркеров опроса видео.
	Workers int `yaml:"workers,omitempty"`
}

// PathsConfig содержит настройки путей.
type PathsConfig struct {
	// Data - корень служебных данных.
	Data string `yaml:"data,omitempty"`

	// FFmpeg - путь к бинарнику ffmpeg.
	FFmpeg string `yaml:"ffmpeg,omitempty"`
}

// DefaultConfigPaths возвращает список путей поиска конфигурационного файла.
// Поиск выполняется в следующем порядке:
// 1. ./clonechat.yaml (текущая директория)
// 2. ./clonechat.yml
// 3. ~/.config/clonechat/config.yaml
// 4. ~/.config/clonechat/config.yml
func DefaultConfigPaths() []string {
	paths := []string{
		"clonechat.yaml",
		"clonechat.yml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "clonechat", "config.yaml"),
			filepath.Join(home, ".config", "clonechat", "config.yml"),
		)
	}

	return paths
}

// FindConfigFile возвращает первый существующий файл из стандартных путей,
// либо пустую строку.
func FindConfigFile() string {
	for _, path := range DefaultConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// LoadFile загружает конфигурацию из указанного YAML-файла.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("ошибка разбора YAML в %s: %w", path, err)
	}

	return &fc, nil
}

// Apply накладывает настройки из файла на основную конфигурацию.
// Файл имеет приоритет над переменными окружения; флаги CLI - над файлом.
func (fc *FileConfig) Apply(cfg *Config) {
	if fc == nil {
		return
	}

	if fc.Platform != nil {
		if fc.Platform.APIID != 0 {
			cfg.APIID = fc.Platform.APIID
		}
		if fc.Platform.APIHash != "" {
			cfg.APIHash = fc.Platform.APIHash
		}
		if fc.Platform.Driver != "" {
			cfg.Driver = fc.Platform.Driver
		}
	}

	if fc.Cloner != nil {
		if fc.Cloner.DelaySeconds != nil {
			cfg.DelaySeconds = *fc.Cloner.DelaySeconds
		}
		if fc.Cloner.DownloadPath != "" {
			cfg.DownloadPath = fc.Cloner.DownloadPath
		}
		if fc.Cloner.LinksFile != "" {
			cfg.LinksFile = fc.Cloner.LinksFile
		}
		if fc.Cloner.RegisterInviteLink != nil {
			cfg.RegisterInviteLink = *fc.Cloner.RegisterInviteLink
		}
		if fc.Cloner.SilentMode != nil {
			cfg.SilentMode = *fc.Cloner.SilentMode
		}
	}

	if fc.Publish != nil {
		if fc.Publish.FileSizeLimitMB > 0 {
			cfg.FileSizeLimitMB = fc.Publish.FileSizeLimitMB
		}
		if len(fc.Publish.VideoExtensions) > 0 {
			cfg.VideoExtensions = fc.Publish.VideoExtensions
		}
		if fc.Publish.ReencodePlan != "" {
			cfg.ReencodePlan = ReencodePlan(fc.Publish.ReencodePlan)
		}
		if fc.Publish.ReencodePreset != "" {
			cfg.ReencodePreset = fc.Publish.ReencodePreset
		}
		if fc.Publish.DurationLimit != "" {
			cfg.DurationLimit = fc.Publish.DurationLimit
		}
		if fc.Publish.CreateNewChannel != nil {
			cfg.CreateNewChannel = *fc.Publish.CreateNewChannel
		}
		if fc.Publish.ChatID != 0 {
			cfg.ChatID = fc.Publish.ChatID
		}
		if fc.Publish.MocChatID != 0 {
			cfg.MocChatID = fc.Publish.MocChatID
		}
		if fc.Publish.TimeLimitMinutes > 0 {
			cfg.TimeLimitMinutes = fc.Publish.TimeLimitMinutes
		}
		if fc.Publish.Workers > 0 {
			cfg.Workers = fc.Publish.Workers
		}
	}

	if fc.Paths != nil {
		if fc.Paths.Data != "" {
			cfg.DataPath = fc.Paths.Data
		}
		if fc.Paths.FFmpeg != "" {
			cfg.FFmpegPath = fc.Paths.FFmpeg
		}
	}
}

/*
Возможные расширения:
- Добавить команду 'config init' для генерации примера файла
- Добавить поддержку нескольких профилей в одном файле
*/
