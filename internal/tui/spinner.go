package tui

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrInterrupted is returned by RunSpinner when the user aborts the wait.
var ErrInterrupted = errors.New("interrupted")

// Spinner shows a message while a blocking task such as bootstrap runs.
type Spinner struct {
	message string
	spin    spinner.Model
	started time.Time
	elapsed time.Duration
	done    bool
	result  string
	err     error
	colors  ThemeColors
}

// SpinnerDoneMsg is sent when the spinner task is complete.
type SpinnerDoneMsg struct {
	Result string
	Err    error
}

// NewSpinner creates a new spinner with the given message.
func NewSpinner(message string, colors ThemeColors) *Spinner {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = lipgloss.NewStyle().Foreground(colors.Accent)
	return &Spinner{
		message: message,
		spin:    s,
		started: time.Now(),
		colors:  colors,
	}
}

// Init starts the animation.
func (m *Spinner) Init() tea.Cmd {
	return m.spin.Tick
}

// Update handles messages and updates the model.
func (m *Spinner) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.finish("", ErrInterrupted)
			return m, tea.Quit
		}
		return m, nil

	case SpinnerDoneMsg:
		m.finish(msg.Result, msg.Err)
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Spinner) finish(result string, err error) {
	if m.done {
		return
	}
	m.done = true
	m.result = result
	m.err = err
	m.elapsed = time.Since(m.started).Round(time.Millisecond)
}

// View renders the spinner.
func (m *Spinner) View() string {
	if !m.done {
		return m.spin.View() + " " + lipgloss.NewStyle().Foreground(m.colors.Text).Render(m.message) + "\n"
	}
	if m.err != nil {
		return lipgloss.NewStyle().Foreground(m.colors.Error).
			Render(fmt.Sprintf("✗ %s: %v", m.message, m.err)) + "\n"
	}
	line := "✓ " + m.message
	if m.result != "" {
		line += ": " + m.result
	}
	dim := lipgloss.NewStyle().Foreground(m.colors.Dim).Render(fmt.Sprintf(" (%v)", m.elapsed))
	return lipgloss.NewStyle().Foreground(m.colors.Success).Render(line) + dim + "\n"
}

// RunSpinner shows a spinner on the terminal while task runs. The task keeps
// running in the background if the user interrupts.
func RunSpinner(message string, colors ThemeColors, task func() (string, error)) (string, error) {
	m := NewSpinner(message, colors)
	p := tea.NewProgram(m)

	go func() {
		result, err := task()
		p.Send(SpinnerDoneMsg{Result: result, Err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	s := finalModel.(*Spinner)
	if s.err != nil {
		return "", s.err
	}
	return s.result, nil
}
