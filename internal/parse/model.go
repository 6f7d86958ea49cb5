package parse

import "time"

type MessageType string

const (
	MessageDefault  MessageType = "default"
	MessageRedacted MessageType = "redacted"
)

type Chat struct {
	ID         string
	Name       string
	Topic      *string
	Avatar     *string // file name under avatars/
	SourcePath string
	Mtime      time.Time
	Size       int64
}

type Attachment struct {
	ChatID     string
	MessageID  string
	StoredName string // "<chat id>/<file name>" under attachments/
	Source     string // file next to the transcript
}

type Message struct {
	ID               string
	ChatID           string
	SenderID         string
	SenderName       string
	Seq              int // position within the chat
	CreatedAt        time.Time
	EditedAt         *time.Time
	Type             MessageType
	Content          *string
	Format           *string
	FormattedContent *string
	Reference        *string
	Attachments      []Attachment
	LineNumber       int // line of the header in the transcript
}

// Stats counts what the assembler did with each transcript line.
type Stats struct {
	Lines         int
	Headers       int
	Notices       int
	Continuations int
	Captions      int // lines consumed as an attachment caption
	Echoes        int // lines repeating an attachment's file name
	Orphans       int // continuation lines before the first header
	Dropped       int // continuation lines after a deleted message
}
