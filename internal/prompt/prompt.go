// Package prompt settles identity conflicts by asking on the terminal.
package prompt

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/Zuo-Peng/chat-archive/internal/identity"
)

// Policy is an identity.ConflictPolicy that shows each conflict and waits
// for a decision. Ingestion pauses while it waits.
type Policy struct {
	in     io.Reader
	out    io.Writer
	always map[identity.ConflictKind]identity.Decision
	run    func(model) (model, error)
}

func New(in io.Reader, out io.Writer) *Policy {
	p := &Policy{in: in, out: out, always: make(map[identity.ConflictKind]identity.Decision)}
	p.run = p.program
	return p
}

// ResolveConflict implements identity.ConflictPolicy. A prompt that cannot
// run rejects. The registry calls it under its lock, so calls never overlap.
func (p *Policy) ResolveConflict(c identity.Conflict) identity.Decision {
	if d, ok := p.always[c.Kind]; ok {
		return d
	}
	m, err := p.run(newModel(c))
	if err != nil {
		log.Warn("conflict prompt failed, rejecting", "err", err)
		return identity.Reject
	}
	if m.always {
		p.always[c.Kind] = m.decision
	}
	log.Info("identity conflict settled", "chat", c.Scope, "name", c.Incoming.Name, "decision", m.decision)
	return m.decision
}

func (p *Policy) program(m model) (model, error) {
	final, err := tea.NewProgram(m, tea.WithInput(p.in), tea.WithOutput(p.out)).Run()
	if err != nil {
		return m, fmt.Errorf("prompt: %w", err)
	}
	return final.(model), nil
}

var choices = []identity.Decision{identity.Keep, identity.Replace, identity.Reject}

type model struct {
	conflict identity.Conflict
	cursor   int
	decision identity.Decision
	always   bool
	done     bool
	width    int
}

func newModel(c identity.Conflict) model {
	return model{conflict: c, cursor: len(choices) - 1, decision: identity.Reject}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m.choose(identity.Reject)
		case key.Matches(msg, keys.Keep):
			return m.choose(identity.Keep)
		case key.Matches(msg, keys.Replace):
			return m.choose(identity.Replace)
		case key.Matches(msg, keys.Reject):
			return m.choose(identity.Reject)
		case key.Matches(msg, keys.Enter):
			return m.choose(choices[m.cursor])
		case key.Matches(msg, keys.Always):
			m.always = !m.always
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(choices)-1 {
				m.cursor++
			}
		}
	}
	return m, nil
}

func (m model) choose(d identity.Decision) (tea.Model, tea.Cmd) {
	m.decision = d
	m.done = true
	return m, tea.Quit
}

// describe says what each decision does to this conflict.
func (m model) describe(d identity.Decision) string {
	c := m.conflict
	ex, in := c.Existing, c.Incoming
	switch c.Kind {
	case identity.KeyRenamed:
		switch d {
		case identity.Keep:
			return fmt.Sprintf("treat %q as %q (%s), keep the profile", in.Name, ex.Name, ex.ID)
		case identity.Replace:
			return fmt.Sprintf("rename %s from %q to %q", ex.ID, ex.Name, in.Name)
		}
		return fmt.Sprintf("keep %q apart from %s", in.Name, ex.ID)
	default:
		switch d {
		case identity.Keep:
			return fmt.Sprintf("keep %q as %s, ignore key %s", in.Name, ex.ID, in.Key)
		case identity.Replace:
			return fmt.Sprintf("rebind %q from %s to %s", in.Name, ex.ID, in.Key)
		}
		return fmt.Sprintf("refuse key %s for %q", in.Key, in.Name)
	}
}

func (m model) View() string {
	if m.done {
		return ""
	}
	c := m.conflict

	var b strings.Builder
	b.WriteString(styleTitle.Render("Identity conflict: "+c.Kind.String()) + "\n")
	row := func(label, value string) {
		b.WriteString(styleLabel.Render(label) + styleValue.Render(value) + "\n")
	}
	row("chat", c.Scope)
	row("existing", fmt.Sprintf("%s (%s)", c.Existing.Name, c.Existing.ID))
	incoming := c.Incoming.Name
	if c.Incoming.Key != "" {
		incoming += " (" + c.Incoming.Key + ")"
	}
	row("incoming", incoming)
	b.WriteString("\n")

	for i, d := range choices {
		line := fmt.Sprintf("%-8s %s", d, m.describe(d))
		if i == m.cursor {
			b.WriteString(styleSelected.Render("> "+line) + "\n")
		} else {
			b.WriteString(styleNormal.Render("  "+line) + "\n")
		}
	}

	panel := stylePanel
	if m.width > 4 {
		panel = panel.MaxWidth(m.width)
	}
	return lipgloss.JoinVertical(lipgloss.Left, panel.Render(strings.TrimRight(b.String(), "\n")), m.statusBar())
}

func (m model) statusBar() string {
	always := "off"
	if m.always {
		always = "on"
	}
	help := []string{
		keys.Keep.Help().Key + " " + keys.Keep.Help().Desc,
		keys.Replace.Help().Key + " " + keys.Replace.Help().Desc,
		keys.Reject.Help().Key + " " + keys.Reject.Help().Desc,
		keys.Enter.Help().Key + " " + keys.Enter.Help().Desc,
		keys.Always.Help().Key + " " + keys.Always.Help().Desc + " [" + always + "]",
	}
	return styleStatusBar.Render(strings.Join(help, " | "))
}
