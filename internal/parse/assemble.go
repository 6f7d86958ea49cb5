package parse

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/Zuo-Peng/chat-archive/internal/markup"
)

const maxLineSize = 10 * 1024 * 1024 // 10MB

const attachedSuffix = " (file attached)"

var deletionMarkers = map[string]bool{
	"This message was deleted": true,
	"You deleted this message": true,
}

// Media files named by the exporting phone, e.g. IMG-20230101-WA0001.jpg,
// possibly preceded by text on the same line.
var mediaFile = regexp.MustCompile(`^(.*?)((?:IMG|VID|AUD|PTT|STK|DOC)-\S+\.[0-9A-Za-z]+) \(file attached\)$`)

var bom = []byte{0xEF, 0xBB, 0xBF}

// SenderResolver maps a display name to a user id within one chat.
type SenderResolver interface {
	ResolveSender(name string) (string, error)
}

type SenderResolverFunc func(name string) (string, error)

func (f SenderResolverFunc) ResolveSender(name string) (string, error) { return f(name) }

// Assembler rebuilds the messages of one transcript. It is not safe for
// concurrent use; run one per transcript.
type Assembler struct {
	chatID     string
	sourceDir  string
	classifier *Classifier
	resolver   SenderResolver
	NewID      func() string
}

func NewAssembler(chatID, sourceDir string, c *Classifier, r SenderResolver) *Assembler {
	return &Assembler{
		chatID:     chatID,
		sourceDir:  sourceDir,
		classifier: c,
		resolver:   r,
		NewID:      uuid.NewString,
	}
}

// ParseFile assembles the transcript at filePath.
func (a *Assembler) ParseFile(ctx context.Context, filePath string) ([]Message, Stats, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, Stats{}, &TranscriptUnreadableError{Path: filePath, Err: err}
	}
	defer f.Close()

	msgs, stats, err := a.Assemble(ctx, f)
	var tu *TranscriptUnreadableError
	if errors.As(err, &tu) {
		tu.Path = filePath
	}
	return msgs, stats, err
}

// Assemble reads transcript lines from r and returns its messages in order.
// On a read or encoding error no messages are returned. Cancellation is
// checked before each message is started.
func (a *Assembler) Assemble(ctx context.Context, r io.Reader) ([]Message, Stats, error) {
	lr := newLineReader(r)
	var (
		stats   Stats
		msgs    []Message
		pending *draft
	)

	emit := func() error {
		if pending == nil {
			return nil
		}
		m, err := a.finish(pending, len(msgs))
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
		pending = nil
		return nil
	}

	for {
		ln, ok := lr.next()
		if !ok {
			break
		}
		stats.Lines++

		line := a.classifier.Classify(ln.text)
		switch line.Kind {
		case SystemNotice:
			stats.Notices++

		case Continuation:
			switch {
			case pending == nil:
				stats.Orphans++
				log.Debug("continuation before first message", "line", ln.num)
			case pending.msg.Type == MessageRedacted:
				stats.Dropped++
			default:
				stats.Continuations++
				pending.appendLine(ln.text)
			}

		case MessageHeader:
			stats.Headers++
			if err := emit(); err != nil {
				return nil, stats, err
			}
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
			pending = a.start(line, ln.num)
			a.lookahead(lr, pending, &stats)
		}
	}
	if err := lr.Err(); err != nil {
		return nil, stats, err
	}
	if err := emit(); err != nil {
		return nil, stats, err
	}
	return msgs, stats, nil
}

// lookahead consumes the line after an attachment-only header when it is the
// file name repeated or the attachment's caption.
func (a *Assembler) lookahead(lr *lineReader, d *draft, stats *Stats) {
	if d.msg.Type == MessageRedacted || len(d.msg.Attachments) == 0 || d.body != "" {
		return
	}
	next, ok := lr.peek()
	if !ok || a.classifier.Classify(next.text).Kind != Continuation {
		return
	}
	if d.echo != "" && strings.TrimSpace(next.text) == d.echo {
		lr.next()
		stats.Lines++
		stats.Echoes++
		next, ok = lr.peek()
		if !ok || a.classifier.Classify(next.text).Kind != Continuation {
			return
		}
	}
	lr.next()
	stats.Lines++
	stats.Captions++
	d.appendLine(next.text)
}

func (a *Assembler) start(h Line, num int) *draft {
	d := &draft{msg: Message{
		ChatID:     a.chatID,
		SenderName: h.Sender,
		CreatedAt:  h.Time,
		Type:       MessageDefault,
		LineNumber: num,
	}}
	if deletionMarkers[h.Body] {
		d.msg.Type = MessageRedacted
		return d
	}

	body := h.Body
	if name, rest, embedded, ok := attachmentMarker(body); ok {
		d.msg.Attachments = append(d.msg.Attachments, Attachment{
			ChatID:     a.chatID,
			StoredName: path.Join(a.chatID, name),
			Source:     filepath.Join(a.sourceDir, name),
		})
		body = rest
		if !embedded {
			d.echo = name
		}
	}
	d.body = strings.TrimSpace(body)
	d.refresh()
	return d
}

func (a *Assembler) finish(d *draft, seq int) (Message, error) {
	senderID, err := a.resolver.ResolveSender(d.msg.SenderName)
	if err != nil {
		return Message{}, fmt.Errorf("resolve sender %q at line %d: %w", d.msg.SenderName, d.msg.LineNumber, err)
	}
	m := d.msg
	m.ID = a.NewID()
	m.SenderID = senderID
	m.Seq = seq
	for i := range m.Attachments {
		m.Attachments[i].MessageID = m.ID
	}
	return m, nil
}

// attachmentMarker splits a body carrying " (file attached)". For the embedded
// media form, rest is the text before the file name; for the bare form, the
// whole body names the file.
func attachmentMarker(body string) (name, rest string, embedded, ok bool) {
	if m := mediaFile.FindStringSubmatch(body); m != nil {
		return m[2], m[1], true, true
	}
	if !strings.HasSuffix(body, attachedSuffix) {
		return "", "", false, false
	}
	name = filepath.Base(strings.TrimSpace(strings.TrimSuffix(body, attachedSuffix)))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", "", false, false
	}
	return name, "", false, true
}

type draft struct {
	msg  Message
	body string
	echo string
}

func (d *draft) appendLine(s string) {
	if d.body == "" {
		d.body = s
	} else {
		d.body += "\n" + s
	}
	d.refresh()
}

// refresh recomputes content and formatting from the whole body, since a span
// may open on one line and close on a later one.
func (d *draft) refresh() {
	d.msg.Content, d.msg.Format, d.msg.FormattedContent = nil, nil, nil
	text := strings.TrimSpace(d.body)
	if text == "" {
		return
	}
	d.msg.Content = &text
	if dialect, formatted, ok := markup.Format(text); ok {
		d.msg.Format = &dialect
		d.msg.FormattedContent = &formatted
	}
}

type rawLine struct {
	text string
	num  int
}

// lineReader yields normalized lines with one line of lookahead.
type lineReader struct {
	sc     *bufio.Scanner
	num    int
	err    error
	peeked bool
	buf    rawLine
	bufOK  bool
}

func newLineReader(r io.Reader) *lineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &lineReader{sc: sc}
}

func (lr *lineReader) next() (rawLine, bool) {
	if lr.peeked {
		lr.peeked = false
		return lr.buf, lr.bufOK
	}
	return lr.fetch()
}

func (lr *lineReader) peek() (rawLine, bool) {
	if !lr.peeked {
		lr.buf, lr.bufOK = lr.fetch()
		lr.peeked = true
	}
	return lr.buf, lr.bufOK
}

func (lr *lineReader) fetch() (rawLine, bool) {
	if lr.err != nil || !lr.sc.Scan() {
		return rawLine{}, false
	}
	lr.num++
	b := lr.sc.Bytes()
	if lr.num == 1 {
		b = bytes.TrimPrefix(b, bom)
	}
	b = bytes.TrimSuffix(b, []byte("\r"))
	if !utf8.Valid(b) {
		lr.err = &TranscriptUnreadableError{Line: lr.num, Err: ErrInvalidEncoding}
		return rawLine{}, false
	}
	return rawLine{text: string(b), num: lr.num}, true
}

func (lr *lineReader) Err() error {
	if lr.err != nil {
		return lr.err
	}
	if err := lr.sc.Err(); err != nil {
		return &TranscriptUnreadableError{Line: lr.num + 1, Err: err}
	}
	return nil
}
