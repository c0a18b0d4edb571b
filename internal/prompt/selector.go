package prompt

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Interactive renders a bubbletea list on the terminal. In and Out default
// to the process's stdin and stdout.
type Interactive struct {
	In  io.Reader
	Out io.Writer
}

func (i *Interactive) ChooseOneOf(ctx context.Context, title string, options []Option) (string, error) {
	if len(enabledValues(options)) == 0 {
		return "", fmt.Errorf("%w: %s: every option is disabled", ErrNoChoice, title)
	}

	var opts []tea.ProgramOption
	opts = append(opts, tea.WithContext(ctx))
	if i.In != nil {
		opts = append(opts, tea.WithInput(i.In))
	}
	if i.Out != nil {
		opts = append(opts, tea.WithOutput(i.Out))
	}

	final, err := tea.NewProgram(newSelector(title, options), opts...).Run()
	if err != nil {
		return "", fmt.Errorf("prompt: %w", err)
	}
	s := final.(selector)
	if !s.submitted {
		return "", ErrCancelled
	}
	return s.options[s.cursor].Value, nil
}

type selectorKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Quit   key.Binding
}

type selectorStyles struct {
	Title    lipgloss.Style
	Selected lipgloss.Style
	Enabled  lipgloss.Style
	Disabled lipgloss.Style
	Detail   lipgloss.Style
	Help     lipgloss.Style
}

// selector is the tea.Model. The cursor only ever rests on enabled options.
type selector struct {
	title     string
	options   []Option
	cursor    int
	keys      selectorKeyMap
	styles    selectorStyles
	submitted bool
	cancelled bool
}

func newSelector(title string, options []Option) selector {
	s := selector{
		title:   title,
		options: options,
		cursor:  -1,
		keys: selectorKeyMap{
			Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
			Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
			Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
			Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q/esc", "quit")),
		},
		styles: selectorStyles{
			Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).MarginBottom(1),
			Selected: lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
			Enabled:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
			Disabled: lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Strikethrough(true),
			Detail:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginLeft(4),
			Help:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1),
		},
	}
	s.cursor = s.next(-1, 1)
	return s
}

// next finds the nearest enabled option from the cursor in direction dir,
// staying put when there is none.
func (s selector) next(from, dir int) int {
	for i := from + dir; i >= 0 && i < len(s.options); i += dir {
		if !s.options[i].Disabled {
			return i
		}
	}
	return from
}

func (s selector) Init() tea.Cmd { return nil }

func (s selector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return s, nil
	}
	switch {
	case key.Matches(km, s.keys.Up):
		s.cursor = s.next(s.cursor, -1)
	case key.Matches(km, s.keys.Down):
		s.cursor = s.next(s.cursor, 1)
	case key.Matches(km, s.keys.Select):
		if s.cursor >= 0 && !s.options[s.cursor].Disabled {
			s.submitted = true
			return s, tea.Quit
		}
	case key.Matches(km, s.keys.Quit):
		s.cancelled = true
		return s, tea.Quit
	}
	return s, nil
}

func (s selector) View() string {
	var b strings.Builder
	b.WriteString(s.styles.Title.Render(s.title))
	b.WriteString("\n")

	for i, o := range s.options {
		prefix, style := "  ○ ", s.styles.Enabled
		switch {
		case o.Disabled:
			prefix, style = "  ✗ ", s.styles.Disabled
		case i == s.cursor:
			prefix, style = "› ● ", s.styles.Selected
		}
		b.WriteString(style.Render(prefix + o.Label))
		b.WriteString("\n")

		detail := o.Description
		if o.Disabled && o.Reason != "" {
			detail = strings.TrimSpace(detail + " (" + o.Reason + ")")
		}
		if detail != "" {
			b.WriteString(s.styles.Detail.Render(detail))
			b.WriteString("\n")
		}
	}

	b.WriteString(s.styles.Help.Render("↑/↓ navigate • enter select • q quit"))
	return b.String()
}
