// Package config содержит конфигурацию приложения.
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ReencodePlan определяет план перекодирования видео в конвейере публикации.
type ReencodePlan string

const (
	// PlanSingle - каждое видео публикуется отдельным файлом.
	PlanSingle ReencodePlan = "single"
	// PlanGroup - видео группируются и склеиваются по лимитам.
	PlanGroup ReencodePlan = "group"
)

// ArchiveMode определяет алгоритм архивации документов.
type ArchiveMode string

const (
	// ModeZip - многотомные zip-архивы.
	ModeZip ArchiveMode = "zip"
)

// Config содержит все настройки приложения.
// Значения берутся из переменных окружения (включая файл .env),
// необязательного YAML-файла и флагов CLI.
type Config struct {
	// APIID - идентификатор приложения платформы.
	APIID int `env:"TELEGRAM_API_ID"`

	// APIHash - секрет приложения платформы.
	APIHash string `env:"TELEGRAM_API_HASH"`

	// Driver - имя зарегистрированного драйвера платформы.
	Driver string `env:"CLONECHAT_DRIVER" envDefault:"memory"`

	// DataPath - корень служебных данных (база, журнал, рабочие папки).
	DataPath string `env:"CLONECHAT_DATA_PATH" envDefault:"./data"`

	// DelaySeconds - пауза между исходящими сообщениями.
	DelaySeconds float64 `env:"CLONER_DELAY_SECONDS" envDefault:"2"`

	// DownloadPath - корень временных загрузок.
	DownloadPath string `env:"CLONER_DOWNLOAD_PATH" envDefault:"./data/downloads"`

	// LinksFile - путь файла ссылок на склонированные каналы.
	LinksFile string `env:"LINKS_FILE" envDefault:"./links_canais.txt"`

	// FileSizeLimitMB - верхняя граница томов архива и склеенных видео.
	FileSizeLimitMB int `env:"FILE_SIZE_LIMIT_MB" envDefault:"1000"`

	// Mode - алгоритм архивации документов.
	Mode ArchiveMode `env:"MODE" envDefault:"zip"`

	// VideoExtensions - расширения, считающиеся видео в конвейере.
	VideoExtensions []string `env:"VIDEO_EXTENSIONS" envSeparator:"," envDefault:"mp4,avi,webm,ts,vob,mov,mkv,wmv,3gp,flv,m4v,mpg,mpeg,rmvb,m2ts,mts"`

	// ReencodePlan - single или group.
	ReencodePlan ReencodePlan `env:"REENCODE_PLAN" envDefault:"single"`

	// ReencodePreset - имя пресета перекодирования (см. presets.go).
	ReencodePreset string `env:"REENCODE_PRESET" envDefault:"balanced"`

	// DurationLimit - предел длительности склейки, формат ЧЧ:ММ:СС.ммм.
	DurationLimit string `env:"DURATION_LIMIT" envDefault:"02:00:00.00"`

	// ActivateTransition - вставлять переходный клип между склеиваемыми.
	ActivateTransition bool `env:"ACTIVATE_TRANSITION" envDefault:"false"`

	// StartIndex - первый номер в генерируемых именах файлов.
	StartIndex int `env:"START_INDEX" envDefault:"1"`

	// HashtagIndex - буква хэштегов видео в сводке (#F001, #F002...).
	HashtagIndex string `env:"HASHTAG_INDEX" envDefault:"F"`

	// DocumentHashtag - хэштег раздела документов в сводке.
	DocumentHashtag string `env:"DOCUMENT_HASHTAG" envDefault:"Материалы"`

	// DocumentTitle - заголовок раздела документов в сводке.
	DocumentTitle string `env:"DOCUMENT_TITLE" envDefault:"Материалы"`

	// PathSummaryTop - файл с шапкой, вставляемой в начало summary.txt.
	PathSummaryTop string `env:"PATH_SUMMARY_TOP" envDefault:"summary_top.txt"`

	// PathSummaryBot - файл с подвалом summary.txt.
	PathSummaryBot string `env:"PATH_SUMMARY_BOT" envDefault:"summary_bot.txt"`

	// DescriptionsAutoAdapt - перенумеровать подписи по порядку выгрузки.
	DescriptionsAutoAdapt bool `env:"DESCRIPTIONS_AUTO_ADAPT" envDefault:"true"`

	// SilentMode - отправка без уведомлений подписчикам.
	SilentMode bool `env:"SILENT_MODE" envDefault:"true"`

	// RegisterInviteLink - писать в файл ссылок инвайт вместо deep link.
	RegisterInviteLink bool `env:"REGISTER_INVITE_LINK" envDefault:"true"`

	// MaxPath - предел длины генерируемых путей (ограничение Windows).
	MaxPath int `env:"MAX_PATH" envDefault:"260"`

	// CreateNewChannel - создавать новый канал при публикации.
	CreateNewChannel bool `env:"CREATE_NEW_CHANNEL" envDefault:"true"`

	// ChatID - канал публикации при CreateNewChannel=false.
	ChatID int64 `env:"CHAT_ID"`

	// MocChatID - тестовый канал; если задан, публикация идёт в него.
	MocChatID int64 `env:"MOC_CHAT_ID"`

	// AutodelVideoTemp - удалять промежуточные видео после выгрузки.
	AutodelVideoTemp bool `env:"AUTODEL_VIDEO_TEMP" envDefault:"true"`

	// TimeLimitMinutes - лимит стены на один вызов транскодера.
	TimeLimitMinutes int `env:"TIME_LIMIT" envDefault:"99"`

	// Workers - количество параллельных воркеров опроса видео.
	// 0 означает «по числу процессоров».
	Workers int `env:"PROBE_WORKERS" envDefault:"0"`

	// FFmpegPath - явный путь к бинарнику ffmpeg.
	FFmpegPath string `env:"FFMPEG_PATH"`

	// ChannelLabelPrefix - префикс названия создаваемого канала публикации.
	ChannelLabelPrefix string `env:"CHANNEL_LABEL_PREFIX" envDefault:"Academy"`

	// ChannelLabelSize - метка размера в описании канала.
	ChannelLabelSize string `env:"CHANNEL_LABEL_SIZE" envDefault:"Размер"`

	// ChannelLabelDuration - метка длительности в описании канала.
	ChannelLabelDuration string `env:"CHANNEL_LABEL_DURATION" envDefault:"Длительность"`

	// ChannelLabelInvite - метка инвайт-ссылки в описании канала.
	ChannelLabelInvite string `env:"CHANNEL_LABEL_INVITE" envDefault:"Приглашение"`

	// Verbose - подробный вывод (только флаг CLI).
	Verbose bool `env:"-"`

	// Yes - подтверждать шлюзы публикации автоматически (только флаг CLI).
	Yes bool `env:"-"`
}

// DefaultConfig возвращает конфигурацию со значениями по умолчанию,
// не читая окружение процесса.
func DefaultConfig() *Config {
	cfg := &Config{}
	// Пустое окружение: применяются только envDefault-теги.
	_ = env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

// Load собирает конфигурацию: .env -> окружение -> YAML-файл.
// Флаги CLI накладываются командами поверх результата.
func Load() (*Config, error) {
	// Отсутствие .env не считается ошибкой.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("не удалось разобрать переменные окружения: %w", err)
	}

	path := FindConfigFile()
	if path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("не удалось прочитать %s: %w", path, err)
		}
		fc.Apply(cfg)
	}

	return cfg, nil
}

// Validate проверяет согласованность конфигурации.
func (c *Config) Validate() error {
	if c.DelaySeconds < 0 {
		return fmt.Errorf("CLONER_DELAY_SECONDS должен быть неотрицательным, получено %g", c.DelaySeconds)
	}
	if c.FileSizeLimitMB <= 0 {
		return fmt.Errorf("FILE_SIZE_LIMIT_MB должен быть положительным, получено %d", c.FileSizeLimitMB)
	}
	if c.Mode != ModeZip {
		return fmt.Errorf("неподдерживаемый режим архивации: %s (доступен только zip)", c.Mode)
	}
	if c.ReencodePlan != PlanSingle && c.ReencodePlan != PlanGroup {
		return fmt.Errorf("неизвестный план перекодирования: %s (ожидается single или group)", c.ReencodePlan)
	}
	if _, ok := ReencodePresetByName(c.ReencodePreset); !ok {
		return fmt.Errorf("неизвестный пресет перекодирования: %s (доступны: %s)",
			c.ReencodePreset, strings.Join(ValidPresets(), ", "))
	}
	if _, err := c.DurationLimitValue(); err != nil {
		return err
	}
	if c.StartIndex < 0 {
		return fmt.Errorf("START_INDEX должен быть неотрицательным, получено %d", c.StartIndex)
	}
	if c.MaxPath < 60 {
		return fmt.Errorf("MAX_PATH слишком мал: %d (минимум 60)", c.MaxPath)
	}
	if c.TimeLimitMinutes <= 0 {
		return fmt.Errorf("TIME_LIMIT должен быть положительным, получено %d", c.TimeLimitMinutes)
	}
	if len(c.VideoExtensions) == 0 {
		return fmt.Errorf("VIDEO_EXTENSIONS не может быть пустым")
	}
	if c.Workers < 0 {
		return fmt.Errorf("PROBE_WORKERS должен быть неотрицательным, получено %d", c.Workers)
	}
	return nil
}

// ProbeWorkers возвращает эффективное количество воркеров опроса.
func (c *Config) ProbeWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// ValidateCredentials проверяет учётные данные платформы.
// Вызывается драйверами, которым нужна авторизация.
func (c *Config) ValidateCredentials() error {
	if c.APIID == 0 || c.APIHash == "" {
		return fmt.Errorf("не заданы TELEGRAM_API_ID и TELEGRAM_API_HASH")
	}
	return nil
}

// DatabasePath возвращает путь файла базы данных.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataPath, "clonechat.db")
}

// LogPath возвращает путь файла журнала.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataPath, "app.log")
}

// WorkspaceRoot возвращает корень рабочих папок публикации.
func (c *Config) WorkspaceRoot() string {
	return filepath.Join(c.DataPath, "project_workspace")
}

// FileSizeLimitBytes возвращает лимит размера в байтах.
func (c *Config) FileSizeLimitBytes() int64 {
	return int64(c.FileSizeLimitMB) * 1024 * 1024
}

// Delay возвращает паузу между исходящими сообщениями.
func (c *Config) Delay() time.Duration {
	return time.Duration(c.DelaySeconds * float64(time.Second))
}

// TimeLimit возвращает лимит стены транскодера.
func (c *Config) TimeLimit() time.Duration {
	return time.Duration(c.TimeLimitMinutes) * time.Minute
}

// DurationLimitValue разбирает DURATION_LIMIT формата ЧЧ:ММ:СС.ммм.
func (c *Config) DurationLimitValue() (time.Duration, error) {
	return ParseClock(c.DurationLimit)
}

// ParseClock разбирает строку ЧЧ:ММ:СС или ЧЧ:ММ:СС.ммм в длительность.
func ParseClock(s string) (time.Duration, error) {
	var h, m int
	var sec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d:%f", &h, &m, &sec); err != nil {
		return 0, fmt.Errorf("не удалось разобрать длительность %q (ожидается ЧЧ:ММ:СС.ммм)", s)
	}
	if h < 0 || m < 0 || m > 59 || sec < 0 || sec >= 60 {
		return 0, fmt.Errorf("длительность %q вне допустимых границ", s)
	}
	d := time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second))
	return d, nil
}

// HasVideoExtension сообщает, относится ли расширение файла к видео.
// Расширение может быть с точкой или без, в любом регистре.
func (c *Config) HasVideoExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, e := range c.VideoExtensions {
		if strings.ToLower(strings.TrimPrefix(e, ".")) == ext {
			return true
		}
	}
	return false
}

// TruncatePath усекает имя так, чтобы полный путь не превышал MaxPath.
// Расширение сохраняется.
func (c *Config) TruncatePath(dir, name string) string {
	full := filepath.Join(dir, name)
	over := len(full) - c.MaxPath
	if over <= 0 {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if over >= len(stem) {
		return name // усечение невозможно, оставляем как есть
	}
	return stem[:len(stem)-over] + ext
}

/*
Возможные расширения:
- Добавить ключ лимита подписи (сейчас берётся лимит платформы)
- Добавить per-command профили конфигурации
*/
