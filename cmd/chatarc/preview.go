package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chat-archive/internal/render"
)

func previewCmd() *cobra.Command {
	var hit, query string
	var context, width int
	var noColor bool

	cmd := &cobra.Command{
		Use:   "preview <chatId>",
		Short: "Print a chat with context around a hit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if width == 0 {
				width = termWidth(os.Stdout)
			}
			out, _, err := render.RenderChat(cmd.Context(), db, args[0], render.Options{
				HitMessageID: hit,
				Context:      context,
				Width:        width,
				Query:        query,
				Color:        !noColor,
			})
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&hit, "hit", "", "Message ID to highlight")
	cmd.Flags().IntVar(&context, "context", 10, "Messages before/after hit to show (-1 = all)")
	cmd.Flags().StringVar(&query, "query", "", "Search query for keyword highlighting")
	cmd.Flags().IntVar(&width, "width", 0, "Wrap width (default terminal width)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Plain output")

	return cmd
}
