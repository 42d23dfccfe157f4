// Package config содержит конфигурацию приложения.
package config

// Preset определяет профиль перекодирования видео.
type Preset string

const (
	// PresetFast - быстрое перекодирование: crf 28, veryfast.
	PresetFast Preset = "fast"
	// PresetBalanced - баланс скорости и качества: crf 23, medium.
	PresetBalanced Preset = "balanced"
	// PresetQuality - максимальное качество: crf 18, slow.
	PresetQuality Preset = "quality"
)

// PresetConfig содержит параметры транскодера для пресета.
type PresetConfig struct {
	// VideoCodec - видеокодек выхода.
	VideoCodec string
	// AudioCodec - аудиокодек выхода.
	AudioCodec string
	// CRF - постоянный фактор качества x264 (меньше - лучше).
	CRF int
	// Speed - пресет скорости x264 (veryfast, medium, slow).
	Speed string
	// AudioBitrate - битрейт аудио.
	AudioBitrate string
}

// Presets содержит все доступные пресеты перекодирования.
var Presets = map[Preset]PresetConfig{
	PresetFast: {
		VideoCodec:   "libx264",
		AudioCodec:   "aac",
		CRF:          28,
		Speed:        "veryfast",
		AudioBitrate: "128k",
	},
	PresetBalanced: {
		VideoCodec:   "libx264",
		AudioCodec:   "aac",
		CRF:          23,
		Speed:        "medium",
		AudioBitrate: "128k",
	},
	PresetQuality: {
		VideoCodec:   "libx264",
		AudioCodec:   "aac",
		CRF:          18,
		Speed:        "slow",
		AudioBitrate: "192k",
	},
}

// ReencodePresetByName возвращает пресет по имени.
func ReencodePresetByName(name string) (PresetConfig, bool) {
	p, ok := Presets[Preset(name)]
	return p, ok
}

// ValidPresets возвращает список доступных пресетов.
func ValidPresets() []string {
	return []string{
		string(PresetFast),
		string(PresetBalanced),
		string(PresetQuality),
	}
}

/*
Возможные расширения:
- Добавить пресет с аппаратным кодированием (h264_nvenc, h264_qsv)
- Добавить пользовательские пресеты из конфигурационного файла
*/
