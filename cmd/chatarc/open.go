package main

import (
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chat-archive/internal/open"
)

func openCmd() *cobra.Command {
	var copyLoc bool

	cmd := &cobra.Command{
		Use:   "open <messageId>",
		Short: "Open the source transcript in $EDITOR at the message's line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if copyLoc {
				return open.CopyLocation(cmd.Context(), db, args[0])
			}
			return open.OpenMessage(cmd.Context(), db, args[0])
		},
	}

	cmd.Flags().BoolVar(&copyLoc, "copy", false, "Copy path:line to the clipboard instead")

	return cmd
}
