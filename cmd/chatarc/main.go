package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chat-archive/internal/config"
	"github.com/Zuo-Peng/chat-archive/internal/index"
	"github.com/Zuo-Peng/chat-archive/internal/logging"
)

var version = "dev"

// exitConflicts marks an ingest that finished with identity conflicts left
// unresolved.
const exitConflicts = 3

// cfg is loaded once by the root command before any subcommand runs.
var cfg *config.Config

func rootCmd() *cobra.Command {
	var configPath, input, archive, dbPath, logLevel string
	var verbose bool

	root := &cobra.Command{
		Use:           "chatarc",
		Short:         "Chat archiver - turn exported chat transcripts into a searchable archive",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if configPath != "" {
				cfg, err = config.LoadFile(configPath)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			flags := cmd.Flags()
			if flags.Changed("input") {
				cfg.InputRoot = input
			}
			if flags.Changed("archive") {
				cfg.ArchiveRoot = archive
			}
			if flags.Changed("db") {
				cfg.DBPath = dbPath
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := logging.Setup(cfg.LogLevel, verbose); err != nil {
				return err
			}
			return cfg.Validate()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default ~/.config/chatarc/config.toml)")
	pf.StringVar(&input, "input", "", "Directory holding the transcripts")
	pf.StringVar(&archive, "archive", "", "Archive output directory")
	pf.StringVar(&dbPath, "db", "", "Archive database (default <archive>/backup.db)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug/info/warn/error)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	root.AddCommand(ingestCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(previewCmd())
	root.AddCommand(listCmd())
	root.AddCommand(openCmd())
	root.AddCommand(doctorCmd())
	return root
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, index.ErrUnresolvedConflicts) {
			os.Exit(exitConflicts)
		}
		os.Exit(1)
	}
}

func openDB() (*index.DB, error) {
	db, err := index.OpenDB(cfg.Database())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}
