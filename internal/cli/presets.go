package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/thiagofdso/chat-cloner/internal/config"
)

// newPresetsCmd создаёт команду presets.
func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "Показать пресеты перекодирования видео",
		Long: `Список пресетов перекодирования конвейера публикации.

Пресет выбирается переменной REENCODE_PRESET или ключом
publish.reencode_preset конфигурационного файла.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("🎞️  Пресеты перекодирования (%d):\n\n", len(config.ValidPresets()))

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ИМЯ\tВИДЕО\tАУДИО\tCRF\tСКОРОСТЬ\tБИТРЕЙТ АУДИО")
			fmt.Fprintln(w, "---\t-----\t-----\t---\t--------\t-------------")
			for _, name := range config.ValidPresets() {
				p, _ := config.ReencodePresetByName(name)
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					name, p.VideoCodec, p.AudioCodec, p.CRF, p.Speed, p.AudioBitrate)
			}
			return w.Flush()
		},
	}
}
