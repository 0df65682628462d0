package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/i18n"
	"github.com/dongho-jung/pwmcfg/internal/logging"
	"github.com/dongho-jung/pwmcfg/internal/nav"
	"github.com/dongho-jung/pwmcfg/internal/search"
	"github.com/dongho-jung/pwmcfg/internal/setting"
)

// waitSearch delivers the next completed search.
func (m *Console) waitSearch() tea.Cmd {
	ctx := m.ctx
	results := m.searchCtl.Results()
	return func() tea.Msg {
		select {
		case out := <-results:
			return searchMsg(out)
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Console) applySearch(out search.Outcome) {
	if m.searchCtl.Current() == "" {
		return
	}
	if out.Err != nil {
		logging.Warn("console: search %q: %v", out.Term, out.Err)
		m.dialogs.Error(out.Err)
		return
	}
	logging.Debug("console: search %q returned %d results in %v", out.Term, search.Count(out.Groups), out.Elapsed)
	m.groups = out.Groups
	m.results = m.results[:0]
	for _, g := range out.Groups {
		m.results = append(m.results, g.Results...)
	}
	m.resultCursor = 0
}

func (m *Console) clearSearch() {
	m.search.Blur()
	m.search.SetValue("")
	m.searchCtl.Input("")
	m.groups = nil
	m.results = nil
	m.resultCursor = 0
}

func (m *Console) moveResult(delta int) {
	if len(m.results) == 0 {
		return
	}
	m.resultCursor = max(0, min(len(m.results)-1, m.resultCursor+delta))
}

func (m *Console) handleSearchKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.clearSearch()
		m.focus = m.back
		return nil
	case "up", "ctrl+p":
		m.moveResult(-1)
		return nil
	case "down", "ctrl+n":
		m.moveResult(1)
		return nil
	case "enter":
		if m.resultCursor >= len(m.results) {
			return nil
		}
		r := m.results[m.resultCursor]
		m.clearSearch()
		return m.openResult(r)
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.searchCtl.Input(m.search.Value())
	if strings.TrimSpace(m.search.Value()) == "" {
		m.groups = nil
		m.results = nil
	}
	return cmd
}

// openResult selects the node holding r and puts the cursor on its setting.
func (m *Console) openResult(r search.Result) tea.Cmd {
	m.focus = paneSettings
	n, ok := m.resultNode(r)
	if !ok {
		logging.Warn("console: no navigation node for %s", r.Key)
		return nil
	}
	m.expanded.ExpandPath(m.app.Tree, n.ID)
	m.rebuildRows()
	m.moveTreeCursorTo(n.ID)

	cmd := m.selectNode(n.ID)
	if cmd == nil {
		return nil
	}
	k := r.Key
	return func() tea.Msg {
		msg := cmd()
		if em, ok := msg.(editorsMsg); ok {
			return focusedEditorsMsg{editorsMsg: em, key: k}
		}
		return msg
	}
}

// focusedEditorsMsg is an editorsMsg that also places the settings cursor
// on key.
type focusedEditorsMsg struct {
	editorsMsg
	key string
}

func (m *Console) resultNode(r search.Result) (nav.Node, bool) {
	t := m.app.Tree
	if t == nil {
		return nav.Node{}, false
	}
	if r.Profile != "" {
		return t.Locate(r.Category, r.Profile)
	}
	n, ok := t.Locate(r.Category, "")
	if !ok {
		return n, false
	}
	// profiled categories show their other settings under a profile node
	d, err := m.app.Session.Catalog().Setting(r.Key)
	if err != nil || d.Syntax == setting.SyntaxProfile {
		return n, true
	}
	if cat, _ := m.app.Session.Catalog().Category(r.Category); cat.Profiled {
		for _, c := range t.Children(n.ID) {
			if c.Type == nav.TypeProfile {
				return c, true
			}
		}
	}
	return n, true
}

func (m *Console) renderSearch(width, height int) string {
	dim := lipgloss.NewStyle().Foreground(m.colors.Dim)
	if m.searchCtl.Current() == "" {
		return dim.Render(i18n.T("tui.search.hint"))
	}
	if len(m.results) == 0 {
		return dim.Render(i18n.T("tui.search.none"))
	}

	head := dim.Render(i18n.T("tui.search.results", map[string]any{"Count": len(m.results)}))
	text := lipgloss.NewStyle().Foreground(m.colors.Text)
	cursor := text.Background(m.colors.Selection).Bold(true)
	group := lipgloss.NewStyle().Foreground(m.colors.Accent).Bold(true)

	lines := []string{head}
	idx := 0
	for _, g := range m.groups {
		lines = append(lines, group.Render(g.Category))
		for _, r := range g.Results {
			label := r.Label
			if r.Profile != "" {
				label = fmt.Sprintf("%s [%s]", label, r.Profile)
			}
			label = constants.TruncateWithWidth("  "+label, max(1, width-1))
			if idx == m.resultCursor {
				lines = append(lines, cursor.Render(label))
			} else {
				lines = append(lines, text.Render(label))
			}
			idx++
		}
	}
	if len(lines) > height {
		// keep the cursor row visible
		cursorLine, seen := 1, 0
		for _, g := range m.groups {
			cursorLine++
			if seen+len(g.Results) > m.resultCursor {
				cursorLine += m.resultCursor - seen
				break
			}
			cursorLine += len(g.Results)
			seen += len(g.Results)
		}
		start := max(0, min(len(lines)-height, cursorLine-height/2))
		lines = lines[start : start+height]
	}
	return strings.Join(lines, "\n")
}
