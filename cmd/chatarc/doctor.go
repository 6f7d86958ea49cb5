package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chat-archive/internal/files"
	"github.com/Zuo-Peng/chat-archive/internal/scan"
	"github.com/Zuo-Peng/chat-archive/internal/sidecar"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Self-check: verify roots, sidecar, DB, FTS5, and show stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("=== Roots ===")
			checkDir("Input", cfg.Input())
			checkDir("Archive", cfg.Archive())

			fmt.Println("\n=== Transcripts ===")
			found, err := scan.ScanRoot(cfg.Input(), cfg.Archive())
			if err != nil {
				fmt.Printf("  scan error: %v\n", err)
			} else {
				fmt.Printf("  Transcript files: %d\n", len(found))
			}

			fmt.Println("\n=== Sidecar ===")
			fmt.Printf("  Path: %s\n", cfg.Sidecar())
			doc, err := sidecar.Load(cfg.Sidecar())
			switch {
			case err != nil:
				fmt.Printf("  Status: INVALID (%v)\n", err)
			case !doc.Found():
				fmt.Println("  Status: none")
			default:
				fmt.Printf("  Chats: %d, users: %d\n", len(doc.Chats), len(doc.Users))
			}

			fmt.Println("\n=== Database ===")
			fmt.Printf("  Path: %s\n", cfg.Database())
			if _, err := os.Stat(cfg.Database()); os.IsNotExist(err) {
				fmt.Println("  Status: NOT FOUND (run 'chatarc ingest' first)")
				return nil
			}
			if _, err := os.Stat(filepath.Join(cfg.Archive(), files.ManifestName)); err != nil {
				fmt.Println("  Manifest: MISSING")
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			c, err := db.Counts(cmd.Context())
			if err != nil {
				return fmt.Errorf("count rows: %w", err)
			}
			fmt.Printf("  Chats:    %d\n", c.Chats)
			fmt.Printf("  Users:    %d\n", c.Users)
			fmt.Printf("  Messages: %d\n", c.Messages)

			fmt.Println("\n=== FTS5 ===")
			switch {
			case c.Indexed < 0:
				fmt.Println("  Status: NOT BUILT (run 'chatarc ingest')")
			case c.Indexed == c.Messages:
				fmt.Printf("  FTS5 entries: %d\n", c.Indexed)
				fmt.Println("  Status: OK (synced)")
			default:
				fmt.Printf("  Status: MISMATCH (messages=%d, fts=%d)\n", c.Messages, c.Indexed)
			}

			if info, err := os.Stat(cfg.Database()); err == nil {
				sizeMB := float64(info.Size()) / 1024 / 1024
				fmt.Printf("\n=== DB Size: %.1f MB ===\n", sizeMB)
			}
			return nil
		},
	}
}

func checkDir(name, path string) {
	if info, err := os.Stat(path); err != nil {
		fmt.Printf("  %s: %s (NOT FOUND)\n", name, path)
	} else if !info.IsDir() {
		fmt.Printf("  %s: %s (NOT A DIRECTORY)\n", name, path)
	} else {
		fmt.Printf("  %s: %s (OK)\n", name, path)
	}
}
