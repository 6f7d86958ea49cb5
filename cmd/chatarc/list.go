package main

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived chats, most recently active first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			chats, err := db.ListChats(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(chats))
			for _, c := range chats {
				rows = append(rows, []string{c.ID, c.Name, strconv.Itoa(c.Messages), c.First, c.Last, c.Topic})
			}
			printRows(os.Stdout, []string{"ID", "CHAT", "MESSAGES", "FIRST", "LAST", "TOPIC"}, rows)
			return nil
		},
	}
}
