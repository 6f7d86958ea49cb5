package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chat-archive/internal/search"
)

const (
	sColorReset   = "\033[0m"
	sColorBoldRed = "\033[1;31m"
	sColorBlue    = "\033[1;34m"
	sColorDim     = "\033[2m"
)

func colorizeSnippet(snippet string) string {
	snippet = strings.ReplaceAll(snippet, ">>>", sColorBoldRed)
	return strings.ReplaceAll(snippet, "<<<", sColorReset)
}

func searchCmd() *cobra.Command {
	var chat, sender, since string
	var limit int
	var noColor bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search across archived messages",
		Long: `Search archived messages using FTS5. Output is TSV for fzf integration:
  messageId, chatId, createdAt, chat, sender, snippet

Recommended shell function (add to .zshrc):
  chatf() {
    chatarc search "$*" | fzf \
      --ansi \
      --delimiter='\t' --with-nth=3.. \
      --preview 'chatarc preview {2} --hit {1} --context 5 --query {q}' \
      --preview-window=right:60%:wrap \
      --bind 'enter:execute(chatarc open {1})'
  }`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			results, err := search.Search(cmd.Context(), db, search.Options{
				Query:  args[0],
				Chat:   chat,
				Sender: sender,
				Since:  since,
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(os.Stderr, "No results found.")
				return nil
			}

			color := !noColor
			width := termWidth(os.Stdout)
			for _, r := range results {
				fields := tsvFields([]string{r.CreatedAt, r.ChatName, r.Sender, r.Snippet})
				created, chatName, who, snippet := fields[0], fields[1], fields[2], fields[3]
				if width > 0 {
					// the snippet gets whatever the other columns leave
					used := runewidth.StringWidth(created+chatName+who) + 4
					snippet = runewidth.Truncate(snippet, max(width-used, 20), "...")
				}
				if color {
					created = sColorDim + created + sColorReset
					who = sColorBlue + who + sColorReset
					snippet = colorizeSnippet(snippet)
				} else {
					snippet = strings.NewReplacer(">>>", "", "<<<", "").Replace(snippet)
				}
				// first two fields (messageId, chatId) stay plain for fzf {1} {2}
				fmt.Printf("%s\t%s\t%s\t%s\t%s\t%s\n", r.MessageID, r.ChatID, created, chatName, who, snippet)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&chat, "chat", "", "Filter by chat name or id")
	cmd.Flags().StringVar(&sender, "sender", "", "Filter by sender display name")
	cmd.Flags().StringVar(&since, "since", "", "Filter messages sent since date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 100, "Max results")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Plain output without highlight markers")

	return cmd
}
