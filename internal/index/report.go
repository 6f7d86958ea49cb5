package index

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StatusIngested  = "ingested"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// TranscriptResult is the outcome of one transcript.
type TranscriptResult struct {
	Path               string        `yaml:"path"`
	Chat               string        `yaml:"chat"`
	ChatID             string        `yaml:"chat_id"`
	Status             string        `yaml:"status"`
	Messages           int           `yaml:"messages"`
	Attachments        int           `yaml:"attachments"`
	MissingAttachments int           `yaml:"missing_attachments,omitempty"`
	Conflicts          int           `yaml:"conflicts,omitempty"`
	Duplicates         int           `yaml:"duplicates,omitempty"`
	Duration           time.Duration `yaml:"-"`
	Err                error         `yaml:"-"`
}

type Report struct {
	Transcripts []TranscriptResult `yaml:"transcripts"`
	Pruned      int                `yaml:"pruned"`
	Users       int                `yaml:"users"`
}

type Totals struct {
	Scanned     int
	Ingested    int
	Skipped     int
	Failed      int
	Cancelled   int
	Messages    int
	Attachments int
	Missing     int
	Conflicts   int
}

func (t Totals) String() string {
	return fmt.Sprintf("scanned=%d ingested=%d skipped=%d failed=%d cancelled=%d messages=%d attachments=%d missing=%d conflicts=%d",
		t.Scanned, t.Ingested, t.Skipped, t.Failed, t.Cancelled, t.Messages, t.Attachments, t.Missing, t.Conflicts)
}

func (r *Report) Totals() Totals {
	t := Totals{Scanned: len(r.Transcripts)}
	for _, tr := range r.Transcripts {
		switch tr.Status {
		case StatusIngested:
			t.Ingested++
		case StatusSkipped:
			t.Skipped++
		case StatusFailed:
			t.Failed++
		case StatusCancelled:
			t.Cancelled++
		}
		t.Messages += tr.Messages
		t.Attachments += tr.Attachments
		t.Missing += tr.MissingAttachments
		t.Conflicts += tr.Conflicts
	}
	return t
}

// Conflicts is the number of identity conflicts the policy rejected.
func (r *Report) Conflicts() int {
	return r.Totals().Conflicts
}

type yamlResult struct {
	TranscriptResult `yaml:",inline"`
	Seconds          float64 `yaml:"seconds"`
	Error            string  `yaml:"error,omitempty"`
}

// WriteYAML writes the report for tooling that consumes ingest runs.
func (r *Report) WriteYAML(w io.Writer) error {
	out := struct {
		Transcripts []yamlResult `yaml:"transcripts"`
		Pruned      int          `yaml:"pruned"`
		Users       int          `yaml:"users"`
		Totals      struct {
			Messages    int `yaml:"messages"`
			Attachments int `yaml:"attachments"`
			Conflicts   int `yaml:"conflicts"`
			Failed      int `yaml:"failed"`
		} `yaml:"totals"`
	}{Pruned: r.Pruned, Users: r.Users}

	for _, tr := range r.Transcripts {
		yr := yamlResult{TranscriptResult: tr, Seconds: tr.Duration.Seconds()}
		if tr.Err != nil {
			yr.Error = tr.Err.Error()
		}
		out.Transcripts = append(out.Transcripts, yr)
	}
	t := r.Totals()
	out.Totals.Messages = t.Messages
	out.Totals.Attachments = t.Attachments
	out.Totals.Conflicts = t.Conflicts
	out.Totals.Failed = t.Failed

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}
