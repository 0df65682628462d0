package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/editor"
	"github.com/dongho-jung/pwmcfg/internal/i18n"
	"github.com/dongho-jung/pwmcfg/internal/logging"
	"github.com/dongho-jung/pwmcfg/internal/nav"
	"github.com/dongho-jung/pwmcfg/internal/setting"
)

func treeZoneID(i int) string    { return fmt.Sprintf("tree-%d", i) }
func settingZoneID(i int) string { return fmt.Sprintf("setting-%d", i) }

func (m *Console) rebuildRows() {
	if m.app.Tree == nil {
		m.rows = nil
		return
	}
	m.rows = m.app.Tree.Visible(m.expanded)
	if m.treeCursor >= len(m.rows) {
		m.treeCursor = max(0, len(m.rows)-1)
	}
}

func (m *Console) moveTreeCursorTo(id string) {
	for i, r := range m.rows {
		if r.ID == id {
			m.treeCursor = i
			return
		}
	}
}

func (m *Console) moveTree(delta int) {
	if len(m.rows) == 0 {
		return
	}
	m.treeCursor = max(0, min(len(m.rows)-1, m.treeCursor+delta))
}

func (m *Console) handleTreeKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveTree(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveTree(1)
	case key.Matches(msg, m.keys.Enter), key.Matches(msg, m.keys.Toggle):
		return m.activateTreeRow()
	case key.Matches(msg, m.keys.Right):
		if r, ok := m.currentRow(); ok && r.HasChildren && !r.Expanded {
			m.expanded.Toggle(r.ID)
			m.rebuildRows()
		}
	case key.Matches(msg, m.keys.Left):
		r, ok := m.currentRow()
		if !ok {
			return nil
		}
		if r.HasChildren && r.Expanded {
			m.expanded.Toggle(r.ID)
			m.rebuildRows()
		} else if r.Parent != "" {
			m.moveTreeCursorTo(r.Parent)
		}
	}
	return nil
}

func (m *Console) currentRow() (nav.Row, bool) {
	if m.treeCursor < 0 || m.treeCursor >= len(m.rows) {
		return nav.Row{}, false
	}
	return m.rows[m.treeCursor], true
}

// activateTreeRow toggles the row's children and shows its settings.
func (m *Console) activateTreeRow() tea.Cmd {
	r, ok := m.currentRow()
	if !ok {
		return nil
	}
	if r.HasChildren {
		m.expanded.Toggle(r.ID)
		m.rebuildRows()
		m.moveTreeCursorTo(r.ID)
	}
	if !r.Selectable() {
		return nil
	}
	m.focus = paneSettings
	return m.selectNode(r.ID)
}

// settingsFor returns the settings shown for a navigation node. A profiled
// category lists its profile setting; each profile node lists the rest.
func settingsFor(c *setting.Catalog, n nav.Node) []setting.Descriptor {
	if c == nil {
		return nil
	}
	category := n.Category
	if category == "" {
		category = n.ID
	}
	if n.Type == nav.TypeDisplayText && n.Key != "" {
		if d, err := c.Setting(n.Key); err == nil {
			return []setting.Descriptor{d}
		}
		return nil
	}
	all := c.SettingsInCategory(category)
	cat, _ := c.Category(category)
	if !cat.Profiled {
		return all
	}
	profileNode := n.Type == nav.TypeProfile || n.Profile != ""
	var out []setting.Descriptor
	for _, d := range all {
		if (d.Syntax == setting.SyntaxProfile) != profileNode {
			out = append(out, d)
		}
	}
	return out
}

// selectNode switches the active profile and loads the node's editors.
func (m *Console) selectNode(id string) tea.Cmd {
	n, ok := m.app.Tree.Node(id)
	if !ok {
		return nil
	}
	if m.selected != id {
		m.settingCursor = 0
		m.settingOffset = 0
		m.itemCursor = 0
	}
	m.selected = id
	m.app.Session.SetProfile(m.app.Tree.ProfileOf(id))
	m.persist()

	descs := settingsFor(m.app.Session.Catalog(), n)
	editors := make([]editor.Editor, 0, len(descs))
	for _, d := range descs {
		e, err := editor.New(m.app.Session, d)
		if err != nil {
			logging.Warn("console: %v", err)
			continue
		}
		editors = append(editors, e)
	}
	m.loading = true

	ctx := m.ctx
	return func() tea.Msg {
		return editorsMsg{node: id, editors: editors, err: loadAll(ctx, editors)}
	}
}

// loadAll loads every editor and returns the first error.
func loadAll(ctx context.Context, editors []editor.Editor) error {
	var first error
	for _, e := range editors {
		if err := e.Load(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Console) renderTree(width, height int) string {
	if len(m.rows) == 0 {
		return lipgloss.NewStyle().Foreground(m.colors.Dim).Render(i18n.T("tui.no_settings"))
	}
	m.treeOffset = scrollWindow(m.treeCursor, m.treeOffset, height, len(m.rows))
	end := min(len(m.rows), m.treeOffset+height)

	base := lipgloss.NewStyle().Foreground(m.colors.Text)
	cursor := base.Background(m.colors.Selection).Bold(m.focus == paneTree)
	active := base.Foreground(m.colors.Accent)

	lines := make([]string, 0, end-m.treeOffset)
	for i := m.treeOffset; i < end; i++ {
		r := m.rows[i]
		marker := "  "
		if r.HasChildren {
			marker = "▸ "
			if r.Expanded {
				marker = "▾ "
			}
		}
		text := strings.Repeat("  ", r.Depth) + marker + r.Name
		text = constants.TruncateWithWidth(text, max(1, width-1))
		style := base
		switch {
		case i == m.treeCursor:
			style = cursor
		case r.ID == m.selected:
			style = active
		}
		lines = append(lines, m.zones.Mark(treeZoneID(i), style.Render(text)))
	}

	body := strings.Join(lines, "\n")
	if bar := renderVerticalScrollbar(len(m.rows), height, m.treeOffset, m.colors); bar != "" {
		body = lipgloss.JoinHorizontal(lipgloss.Top, lipgloss.NewStyle().Width(width-1).Render(body), bar)
	}
	return body
}

// breadcrumb renders the path of the selected node.
func (m *Console) breadcrumb() string {
	if m.selected == "" || m.app.Tree == nil {
		return ""
	}
	path := m.app.Tree.Path(m.selected)
	names := make([]string, 0, len(path))
	for _, n := range path {
		names = append(names, n.Name)
	}
	return strings.Join(names, " › ")
}
