package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/dialog"
	"github.com/dongho-jung/pwmcfg/internal/i18n"
)

const (
	headerHeight = 1
	footerHeight = 2
	minWidth     = 40
	minHeight    = 10
)

// View renders the console.
func (m *Console) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.width < minWidth || m.height < minHeight {
		return lipgloss.NewStyle().Foreground(m.colors.Dim).Render("terminal too small")
	}

	if modal, ok := m.dialogs.Current(); ok {
		return m.zones.Scan(m.renderModal(modal))
	}

	bodyHeight := m.height - headerHeight - footerHeight
	view := lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderBody(bodyHeight),
		m.renderFooter(),
	)
	return m.zones.Scan(view)
}

func (m *Console) renderHeader() string {
	title := lipgloss.NewStyle().Foreground(m.colors.Accent).Bold(true).Render("pwmcfg")
	dim := lipgloss.NewStyle().Foreground(m.colors.Dim)

	parts := []string{title}
	if crumb := m.breadcrumb(); crumb != "" {
		parts = append(parts, crumb)
	}
	if p := m.app.Session.Profile(); p != "" {
		parts = append(parts, dim.Render(i18n.T("tui.profile", map[string]any{"Profile": p})))
	}

	f := m.app.Session.Filter()
	filter := i18n.T("tui.filter.all")
	if f.ModifiedOnly {
		filter = i18n.T("tui.filter.modified")
	}
	filter += " · " + i18n.T("tui.filter.level", map[string]any{"Level": f.MaxLevel})
	parts = append(parts, dim.Render(filter))

	if m.dialogs.Waiting() {
		parts = append(parts, m.spinner.View()+" "+dim.Render(i18n.T("dialog.wait")))
	}
	line := strings.Join(parts, dim.Render("  │  "))
	return constants.TruncateWithWidth(line, m.width)
}

func (m *Console) paneStyle(p pane, width, height int) lipgloss.Style {
	border := m.colors.Border
	if m.focus == p {
		border = m.colors.Accent
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Width(width).
		Height(height)
}

func (m *Console) renderBody(height int) string {
	// borders take two cells in each direction
	inner := max(1, height-2)
	treeWidth := max(16, m.width*3/10) - 2
	rest := m.width - treeWidth - 4

	tree := m.paneStyle(paneTree, treeWidth, inner).Render(m.renderTree(treeWidth, inner))

	if m.focus == paneSearch {
		results := m.paneStyle(paneSearch, rest-2, inner).Render(m.renderSearch(rest-2, inner))
		return lipgloss.JoinHorizontal(lipgloss.Top, tree, results)
	}

	settingsWidth := max(16, rest*45/100) - 2
	detailWidth := rest - settingsWidth - 4
	focus := m.focus
	if focus == panePrompt {
		focus = m.back
	}
	settings := m.paneStyle(paneSettings, settingsWidth, inner)
	detail := m.paneStyle(paneDetail, detailWidth, inner)
	if focus != m.focus {
		settings = settings.BorderForeground(m.borderFor(paneSettings, focus))
		detail = detail.BorderForeground(m.borderFor(paneDetail, focus))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		tree,
		settings.Render(m.renderSettings(settingsWidth, inner)),
		detail.Render(m.renderDetail(detailWidth, inner)),
	)
}

func (m *Console) borderFor(p, focus pane) lipgloss.Color {
	if p == focus {
		return m.colors.Accent
	}
	return m.colors.Border
}

func (m *Console) renderFooter() string {
	dim := lipgloss.NewStyle().Foreground(m.colors.Dim)
	status := lipgloss.NewStyle().Foreground(m.colors.Success)

	var first, second string
	switch m.focus {
	case panePrompt:
		title := ""
		if m.pending != nil {
			title = m.pending.title
		}
		first = lipgloss.NewStyle().Foreground(m.colors.Accent).Render(title) + "  " + dim.Render(i18n.T("tui.prompt.hint"))
		second = m.prompt.View()
	case paneSearch:
		first = dim.Render(i18n.T("tui.search.hint"))
		second = m.search.View()
	default:
		if m.status != "" {
			first = status.Render(m.status)
		} else {
			first = dim.Render(m.tip)
		}
		second = dim.Render(i18n.T("tui.help"))
	}
	return constants.TruncateWithWidth(first, m.width) + "\n" + constants.TruncateWithWidth(second, m.width)
}

func (m *Console) renderModal(modal dialog.Modal) string {
	color := m.colors.Accent
	if modal.Kind == dialog.KindError {
		color = m.colors.Error
	}
	width := min(m.width-4, 60)

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Foreground(color).Bold(true).Render(modal.Title))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.NewStyle().Foreground(m.colors.Text).Width(width - 4).Render(modal.Message))
	if modal.Detail != "" {
		b.WriteString("\n\n")
		b.WriteString(lipgloss.NewStyle().Foreground(m.colors.Dim).Width(width - 4).Render(modal.Detail))
	}
	b.WriteString("\n\n")

	buttons := make([]string, 0, len(modal.Buttons))
	for _, btn := range modal.Buttons {
		hint := "enter"
		if btn == dialog.ButtonCancel {
			hint = "esc"
		}
		buttons = append(buttons, lipgloss.NewStyle().
			Foreground(m.colors.Text).
			Background(m.colors.Selection).
			Padding(0, 1).
			Render(btn.Label()+" ("+hint+")"))
	}
	b.WriteString(strings.Join(buttons, "  "))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(1, 2).
		Width(width).
		Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
