package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/thiagofdso/chat-cloner/internal/errs"
)

// newListChatsCmd создаёт команду list-chats.
func newListChatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-chats",
		Short: "Показать диалоги аккаунта",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			dialogs, err := a.client.ListDialogs(cmd.Context())
			if err != nil {
				return err
			}
			if len(dialogs) == 0 {
				fmt.Println("Диалогов нет.")
				return nil
			}

			fmt.Printf("💬 Диалоги (%d):\n\n", len(dialogs))
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tВИД\tНАЗВАНИЕ")
			fmt.Fprintln(w, "--\t---\t--------")
			for _, d := range dialogs {
				fmt.Fprintf(w, "%d\t%s\t%s\n", d.ChatID, d.Kind, d.Title)
			}
			return w.Flush()
		},
	}
}

// newListTopicsCmd создаёт команду list-topics.
func newListTopicsCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "list-topics",
		Short: "Показать темы форума",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.rsv().Resolve(cmd.Context(), id)
			if err != nil {
				return err
			}

			topics, err := a.client.ListTopics(cmd.Context(), res.ChatID)
			if err != nil {
				if errs.IsPermanent(err) {
					fmt.Println("💡 Темы есть только у групп-форумов; проверьте, что группа является форумом")
				}
				return err
			}

			fmt.Printf("🧵 Темы чата %d (%d):\n\n", res.ChatID, len(topics))
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tНАЗВАНИЕ")
			fmt.Fprintln(w, "--\t--------")
			for _, t := range topics {
				fmt.Fprintf(w, "%d\t%s\n", t.ID, t.Title)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Идентификатор группы-форума")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}
