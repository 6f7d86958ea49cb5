package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Zuo-Peng/chat-archive/internal/files"
	"github.com/Zuo-Peng/chat-archive/internal/identity"
	"github.com/Zuo-Peng/chat-archive/internal/metrics"
	"github.com/Zuo-Peng/chat-archive/internal/parse"
	"github.com/Zuo-Peng/chat-archive/internal/scan"
	"github.com/Zuo-Peng/chat-archive/internal/sidecar"
)

// ErrUnresolvedConflicts is returned by Ingest, along with the full report,
// when at least one identity conflict was rejected.
var ErrUnresolvedConflicts = errors.New("unresolved identity conflicts")

type Options struct {
	InputRoot   string
	ArchiveRoot string
	Sidecar     *sidecar.Document
	Registry    *identity.Registry
	Classifier  *parse.Classifier
	Workers     int
	Force       bool // re-ingest unchanged transcripts
	Prune       bool // delete chats whose transcript is gone
	Metrics     *metrics.Ingest
}

// Ingest discovers transcripts under opts.InputRoot and writes each one as a
// chat, opts.Workers at a time. Transcripts fail independently. When all are
// done the search index is rebuilt, also after cancellation, so it matches
// whatever was written.
func Ingest(ctx context.Context, db *DB, opts Options) (*Report, error) {
	report := &Report{}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Sidecar == nil {
		opts.Sidecar = &sidecar.Document{}
	}
	if opts.Registry == nil {
		opts.Registry = identity.NewRegistry(nil)
	}
	if opts.Classifier == nil {
		opts.Classifier = parse.NewClassifier(parse.DayMonthYear, nil)
	}

	archive := files.Archive{Root: opts.ArchiveRoot}
	if err := archive.Init(); err != nil {
		return report, err
	}
	archived, err := seedRegistry(ctx, db, opts)
	if err != nil {
		return report, fmt.Errorf("seed identities: %w", err)
	}

	found, err := scan.ScanRoot(opts.InputRoot, opts.ArchiveRoot)
	if err != nil {
		return report, fmt.Errorf("scan: %w", err)
	}
	log.Info("found transcripts", "count", len(found), "root", opts.InputRoot)

	w := &worker{db: db, archive: archive, opts: opts, archived: archived}
	report.Transcripts = make([]TranscriptResult, len(found))

	var g errgroup.Group
	g.SetLimit(opts.Workers)
	for i, fi := range found {
		if ctx.Err() != nil {
			report.Transcripts[i] = TranscriptResult{Path: fi.Path, Chat: fi.ChatName, ChatID: fi.ChatID, Status: StatusCancelled}
			continue
		}
		i, fi := i, fi
		g.Go(func() error {
			report.Transcripts[i] = w.ingest(ctx, fi)
			return nil
		})
	}
	g.Wait()

	if opts.Prune && ctx.Err() == nil {
		seen := make(map[string]struct{}, len(found))
		for _, fi := range found {
			seen[fi.ChatID] = struct{}{}
		}
		report.Pruned, err = pruneChats(ctx, db, seen)
		if err != nil {
			return report, fmt.Errorf("prune: %w", err)
		}
	}

	if err := db.RebuildSearch(context.WithoutCancel(ctx)); err != nil {
		return report, err
	}
	report.Users = len(opts.Registry.Users())
	opts.Metrics.Users(report.Users)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if report.Conflicts() > 0 {
		return report, ErrUnresolvedConflicts
	}
	return report, nil
}

// seedRegistry loads archived users and sidecar hints into the registry and
// returns the ids already in the archive.
func seedRegistry(ctx context.Context, db *DB, opts Options) (map[string]bool, error) {
	users, err := db.Users(ctx)
	if err != nil {
		return nil, err
	}
	bindings, err := db.Bindings(ctx)
	if err != nil {
		return nil, err
	}
	opts.Registry.Seed(users, bindings)
	for _, p := range opts.Sidecar.Hints() {
		opts.Registry.Hint(p)
	}
	archived := make(map[string]bool, len(users))
	for _, u := range users {
		archived[u.ID] = true
	}
	return archived, nil
}

type worker struct {
	db       *DB
	archive  files.Archive
	opts     Options
	archived map[string]bool // read-only once workers start

	avatars singleflight.Group
	copied  sync.Map // user id -> avatarCopy
}

type avatarCopy struct {
	name string
	err  error
}

func (w *worker) ingest(ctx context.Context, fi scan.FileInfo) TranscriptResult {
	start := time.Now()
	res := TranscriptResult{Path: fi.Path, Chat: fi.ChatName, ChatID: fi.ChatID}
	logger := log.With("chat", fi.ChatName)

	err := w.ingestChat(ctx, fi, &res, logger)
	res.Duration = time.Since(start)
	switch {
	case err == nil && res.Status == StatusSkipped:
		w.opts.Metrics.Transcript(metrics.Skipped, res.Duration)
	case err == nil:
		res.Status = StatusIngested
		w.opts.Metrics.Transcript(metrics.Ingested, res.Duration)
		w.opts.Metrics.Messages(res.Messages)
		logger.Info("transcript ingested", "messages", res.Messages, "attachments", res.Attachments, "took", res.Duration.Round(time.Millisecond))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		w.opts.Registry.DropScope(fi.ChatID)
		res.Status = StatusCancelled
		res.Err = err
	default:
		w.opts.Registry.DropScope(fi.ChatID)
		res.Status = StatusFailed
		res.Err = err
		w.opts.Metrics.Transcript(metrics.Failed, res.Duration)
		logger.Error("transcript failed", "path", fi.Path, "err", err)
	}
	w.opts.Metrics.Attachments(res.Attachments, res.MissingAttachments)
	w.opts.Metrics.Conflicts(res.Conflicts)
	return res
}

func (w *worker) ingestChat(ctx context.Context, fi scan.FileInfo, res *TranscriptResult, logger *log.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !w.opts.Force {
		unchanged, err := w.unchanged(ctx, fi)
		if err != nil {
			return err
		}
		if unchanged {
			res.Status = StatusSkipped
			logger.Debug("transcript unchanged")
			return nil
		}
	}

	reg := w.opts.Registry
	for _, p := range w.opts.Sidecar.ChatProfiles(fi.ChatName) {
		if _, err := reg.Register(fi.ChatID, p); err != nil {
			if !errors.Is(err, identity.ErrConflict) {
				return err
			}
			res.Conflicts++
			logger.Warn("identity conflict", "err", err)
		}
	}

	resolver := parse.SenderResolverFunc(func(name string) (string, error) {
		id, err := reg.Resolve(fi.ChatID, name)
		if !errors.Is(err, identity.ErrConflict) {
			return id, err
		}
		res.Conflicts++
		logger.Warn("identity conflict, sender kept apart", "sender", name, "err", err)
		return reg.Register(fi.ChatID, identity.Profile{Name: name})
	})
	asm := parse.NewAssembler(fi.ChatID, filepath.Dir(fi.Path), w.opts.Classifier, resolver)
	msgs, stats, err := asm.ParseFile(ctx, fi.Path)
	if err != nil {
		return err
	}
	logger.Debug("transcript parsed", "lines", stats.Lines, "headers", stats.Headers,
		"notices", stats.Notices, "captions", stats.Captions, "orphans", stats.Orphans)

	if err := w.copyAttachments(ctx, msgs, res, logger); err != nil {
		return err
	}

	chat := parse.Chat{
		ID:         fi.ChatID,
		Name:       fi.ChatName,
		SourcePath: fi.Path,
		Mtime:      time.Unix(0, fi.Mtime),
		Size:       fi.Size,
	}
	meta := w.opts.Sidecar.Chat(fi.ChatName)
	if meta.Topic != "" {
		chat.Topic = &meta.Topic
	}
	if meta.Avatar != "" {
		name, err := w.archive.CopyAvatar(fi.ChatID, meta.Avatar)
		if err != nil {
			logger.Warn("chat avatar not copied", "err", err)
		} else {
			chat.Avatar = &name
		}
	}

	users, err := w.users(msgs, logger)
	if err != nil {
		return err
	}
	written, err := w.db.WriteChat(ctx, chat, users, msgs)
	if err != nil {
		return fmt.Errorf("write chat: %w", err)
	}
	for _, dup := range written.Duplicates {
		logger.Error("message not written", "err", dup)
	}
	res.Messages = written.Messages
	res.Duplicates = len(written.Duplicates)
	return nil
}

func (w *worker) unchanged(ctx context.Context, fi scan.FileInfo) (bool, error) {
	info, err := w.db.GetChatInfo(ctx, fi.ChatID)
	if err != nil || info == nil {
		return false, err
	}
	return info.SourcePath == fi.Path && info.Mtime == fi.Mtime && info.Size == fi.Size, nil
}

// copyAttachments relocates every referenced file. A missing file only costs
// its message the reference.
func (w *worker) copyAttachments(ctx context.Context, msgs []parse.Message, res *TranscriptResult, logger *log.Logger) error {
	for i := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		m := &msgs[i]
		kept := m.Attachments[:0]
		for _, att := range m.Attachments {
			err := w.archive.CopyAttachment(att)
			var missing *files.AttachmentNotFoundError
			switch {
			case errors.As(err, &missing):
				res.MissingAttachments++
				logger.Warn("attachment missing", "line", m.LineNumber, "file", missing.Path)
			case err != nil:
				return fmt.Errorf("copy attachment: %w", err)
			default:
				res.Attachments++
				kept = append(kept, att)
			}
		}
		m.Attachments = kept
	}
	return nil
}

// users collects the senders of msgs with their avatars copied into the
// archive. Users archived by an earlier run keep the row they have.
func (w *worker) users(msgs []parse.Message, logger *log.Logger) ([]identity.User, error) {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.SenderID)
	}
	users := w.opts.Registry.Lookup(ids...)
	for i := range users {
		u := &users[i]
		if w.archived[u.ID] {
			continue
		}
		name, err := w.avatar(*u)
		var missing *files.AttachmentNotFoundError
		switch {
		case errors.As(err, &missing):
			logger.Warn("avatar missing", "user", u.Name, "file", missing.Path)
			name = files.DefaultAvatar
		case err != nil:
			return nil, fmt.Errorf("copy avatar: %w", err)
		}
		u.Avatar = name
	}
	return users, nil
}

// avatar copies the avatar of u at most once per run, however many chats
// u speaks in.
func (w *worker) avatar(u identity.User) (string, error) {
	if c, ok := w.copied.Load(u.ID); ok {
		done := c.(avatarCopy)
		return done.name, done.err
	}
	v, err, _ := w.avatars.Do(u.ID, func() (any, error) {
		name, err := w.archive.CopyAvatar(u.ID, u.Avatar)
		w.copied.Store(u.ID, avatarCopy{name: name, err: err})
		return name, err
	})
	name, _ := v.(string)
	return name, err
}

func pruneChats(ctx context.Context, db *DB, seen map[string]struct{}) (int, error) {
	all, err := db.AllChatIDs(ctx)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for id := range all {
		if _, ok := seen[id]; !ok {
			if err := db.DeleteChat(ctx, id); err != nil {
				return pruned, err
			}
			pruned++
		}
	}
	return pruned, nil
}
