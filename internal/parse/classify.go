package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type LineKind int

const (
	Continuation LineKind = iota
	MessageHeader
	SystemNotice
)

func (k LineKind) String() string {
	switch k {
	case MessageHeader:
		return "header"
	case SystemNotice:
		return "notice"
	default:
		return "continuation"
	}
}

// DateOrder selects how the two leading date fields of a header are read.
type DateOrder string

const (
	DayMonthYear DateOrder = "dmy"
	MonthDayYear DateOrder = "mdy"
)

func ParseDateOrder(s string) (DateOrder, error) {
	switch DateOrder(strings.ToLower(s)) {
	case "", DayMonthYear:
		return DayMonthYear, nil
	case MonthDayYear:
		return MonthDayYear, nil
	default:
		return "", fmt.Errorf("unknown date order %q (want dmy or mdy)", s)
	}
}

type Line struct {
	Kind   LineKind
	Time   time.Time
	Sender string
	Body   string
}

// "DD/MM/YY, HH:MM - " followed by the rest of the line.
var headerPrefix = regexp.MustCompile(`^(\d\d)/(\d\d)/(\d\d), (\d\d):(\d\d) - (.+)$`)

type Classifier struct {
	order DateOrder
	loc   *time.Location
}

func NewClassifier(order DateOrder, loc *time.Location) *Classifier {
	if order == "" {
		order = DayMonthYear
	}
	if loc == nil {
		loc = time.Local
	}
	return &Classifier{order: order, loc: loc}
}

// Classify categorizes one transcript line. A line with a valid timestamp
// prefix is a header when the rest reads "SENDER: BODY", otherwise a system
// notice. Anything else, including lines whose timestamp does not form a real
// date, continues the previous message.
func (c *Classifier) Classify(raw string) Line {
	m := headerPrefix.FindStringSubmatch(raw)
	if m == nil {
		return Line{Kind: Continuation}
	}
	ts, ok := c.timestamp(m[1], m[2], m[3], m[4], m[5])
	if !ok {
		return Line{Kind: Continuation}
	}

	rest := m[6]
	i := strings.IndexByte(rest, ':')
	if i <= 0 || !strings.HasPrefix(rest[i+1:], " ") || len(rest) <= i+2 {
		return Line{Kind: SystemNotice, Time: ts}
	}
	return Line{
		Kind:   MessageHeader,
		Time:   ts,
		Sender: rest[:i],
		Body:   rest[i+2:],
	}
}

func (c *Classifier) timestamp(a, b, yy, hh, mm string) (time.Time, bool) {
	day, month := a, b
	if c.order == MonthDayYear {
		day, month = b, a
	}
	d, _ := strconv.Atoi(day)
	mo, _ := strconv.Atoi(month)
	y, _ := strconv.Atoi(yy)
	h, _ := strconv.Atoi(hh)
	mi, _ := strconv.Atoi(mm)
	if mo < 1 || mo > 12 || d < 1 || h > 23 || mi > 59 {
		return time.Time{}, false
	}
	t := time.Date(2000+y, time.Month(mo), d, h, mi, 0, 0, c.loc)
	// time.Date normalizes 31/02 into March
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}
