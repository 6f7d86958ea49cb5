package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Zuo-Peng/chat-archive/internal/identity"
	"github.com/Zuo-Peng/chat-archive/internal/index"
	"github.com/Zuo-Peng/chat-archive/internal/metrics"
	"github.com/Zuo-Peng/chat-archive/internal/parse"
	"github.com/Zuo-Peng/chat-archive/internal/prompt"
	"github.com/Zuo-Peng/chat-archive/internal/sidecar"
)

func ingestCmd() *cobra.Command {
	var force, prune bool
	var workers int
	var reportPath, metricsFile, policy string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Parse transcripts under the input root into the archive",
		Long: `Ingest every *.txt transcript under the input root. Unchanged transcripts
are skipped unless --force is given. Exits with status 3 when identity
conflicts were left unresolved; the archive is still written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("workers") {
				cfg.Workers = workers
			}
			if flags.Changed("policy") {
				cfg.ConflictPolicy = policy
			}
			if flags.Changed("metrics-file") {
				cfg.MetricsFile = metricsFile
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			pol, err := conflictPolicy(cfg.ConflictPolicy)
			if err != nil {
				return err
			}
			order, err := parse.ParseDateOrder(cfg.DateOrder)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			doc, err := sidecar.Load(cfg.Sidecar())
			if err != nil {
				return err
			}
			if doc.Found() {
				log.Info("using sidecar", "path", cfg.Sidecar(), "chats", len(doc.Chats), "users", len(doc.Users))
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := metrics.New()
			start := time.Now()
			report, runErr := index.Ingest(ctx, db, index.Options{
				InputRoot:   cfg.Input(),
				ArchiveRoot: cfg.Archive(),
				Sidecar:     doc,
				Registry:    identity.NewRegistry(pol),
				Classifier:  parse.NewClassifier(order, loc),
				Workers:     cfg.Workers,
				Force:       force,
				Prune:       prune,
				Metrics:     m,
			})
			if report != nil {
				printReport(os.Stdout, report)
				fmt.Fprintf(os.Stderr, "Done in %s. %s pruned=%d users=%d\n",
					time.Since(start).Round(time.Millisecond), report.Totals(), report.Pruned, report.Users)
				if reportPath != "" {
					if err := writeReport(reportPath, report); err != nil {
						return err
					}
				}
			}
			if path := cfg.Metrics(); path != "" {
				if err := m.WriteFile(path); err != nil {
					return fmt.Errorf("write metrics: %w", err)
				}
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-ingest unchanged transcripts")
	cmd.Flags().BoolVar(&prune, "prune", false, "Delete chats whose transcript is gone")
	cmd.Flags().IntVarP(&workers, "workers", "j", 4, "Transcripts ingested in parallel")
	cmd.Flags().StringVar(&policy, "policy", "", "Identity conflict policy (reject/keep/replace/prompt)")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write the run report as YAML to this file")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write prometheus metrics to this file")

	return cmd
}

func conflictPolicy(name string) (identity.ConflictPolicy, error) {
	if !strings.EqualFold(name, "prompt") {
		return identity.PolicyByName(name)
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("conflict policy prompt needs a terminal on stdin")
	}
	return prompt.New(os.Stdin, os.Stderr), nil
}

func printReport(w *os.File, r *index.Report) {
	headers := []string{"CHAT", "STATUS", "MESSAGES", "ATTACHMENTS", "MISSING", "CONFLICTS", "TOOK"}
	rows := make([][]string, 0, len(r.Transcripts))
	for _, tr := range r.Transcripts {
		status := tr.Status
		if tr.Err != nil && tr.Status == index.StatusFailed {
			status += ": " + tr.Err.Error()
		}
		rows = append(rows, []string{
			tr.Chat,
			status,
			strconv.Itoa(tr.Messages),
			strconv.Itoa(tr.Attachments),
			strconv.Itoa(tr.MissingAttachments),
			strconv.Itoa(tr.Conflicts),
			tr.Duration.Round(time.Millisecond).String(),
		})
	}
	printRows(w, headers, rows)
}

func writeReport(path string, r *index.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := r.WriteYAML(f); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
