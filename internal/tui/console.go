package tui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"

	"github.com/dongho-jung/pwmcfg/internal/app"
	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/dialog"
	"github.com/dongho-jung/pwmcfg/internal/editor"
	"github.com/dongho-jung/pwmcfg/internal/i18n"
	"github.com/dongho-jung/pwmcfg/internal/logging"
	"github.com/dongho-jung/pwmcfg/internal/nav"
	"github.com/dongho-jung/pwmcfg/internal/prefs"
	"github.com/dongho-jung/pwmcfg/internal/search"
	"github.com/dongho-jung/pwmcfg/internal/service"
)

// pane identifies which part of the console receives keys.
type pane int

const (
	paneTree pane = iota
	paneSettings
	paneDetail
	paneSearch
	panePrompt
)

// Modal actions interpreted by the console.
const (
	actionReset  = "reset"
	actionReload = "reload"
	actionQuit   = "quit"
)

// bootstrapMsg and treeMsg carry a tree built off the UI goroutine; Update
// installs it.
type bootstrapMsg struct {
	tree *nav.Tree
	err  error
}

type treeMsg struct {
	tree *nav.Tree
	err  error
}

type editorsMsg struct {
	node    string
	editors []editor.Editor
	err     error
}

type opMsg struct {
	key    string
	status string
	reload bool
	err    error
}

type searchMsg search.Outcome

// Console is the bubbletea model of the configuration console.
type Console struct {
	app    *app.App
	ctx    context.Context
	cancel context.CancelFunc
	keys   keyMap
	colors ThemeColors
	zones  *zone.Manager

	width  int
	height int
	focus  pane
	back   pane // focus to restore after search or prompt

	expanded   nav.Expanded
	rows       []nav.Row
	treeCursor int
	treeOffset int
	selected   string

	editors       []editor.Editor
	loading       bool
	settingCursor int
	settingOffset int
	itemCursor    int

	search       textinput.Model
	searchCtl    *search.Controller
	groups       []search.Group
	results      []search.Result
	resultCursor int

	prompt  textinput.Model
	pending *promptAction

	dialogs *dialog.Manager
	spinner spinner.Model
	detail  viewport.Model
	status  string
	tip     string
}

// NewConsole creates the console for a connected and bootstrapped app.
func NewConsole(a *app.App, isDark bool) *Console {
	logging.Debug("-> NewConsole")
	defer logging.Debug("<- NewConsole")

	ctx, cancel := context.WithCancel(context.Background())

	si := textinput.New()
	si.Placeholder = i18n.T("tui.search.placeholder")
	si.CharLimit = 100
	si.Prompt = "/ "
	si.Cursor.SetMode(cursor.CursorStatic)

	pi := textinput.New()
	pi.CharLimit = 4096
	pi.Cursor.SetMode(cursor.CursorStatic)

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	m := &Console{
		app:      a,
		ctx:      ctx,
		cancel:   cancel,
		keys:     defaultKeyMap(),
		colors:   NewThemeColors(isDark),
		zones:    zone.New(),
		expanded: nav.Expanded{},
		search:   si,
		prompt:   pi,
		dialogs:  dialog.NewManager(),
		spinner:  sp,
		detail:   viewport.New(0, 0),
		tip:      randomTip(),
	}
	m.searchCtl = search.NewController(ctx, a.Searcher.Search, a.Config.Editor.SearchDelay)

	if a.Prefs != nil {
		m.expanded = nav.NewExpanded(a.Prefs.GetStrings(ctx, prefs.Session, constants.PrefExpandedNodes))
		m.selected = a.Prefs.GetString(ctx, prefs.Session, constants.PrefLastSelected, "")
	}
	m.rebuildRows()
	return m
}

// Init starts the spinner, the search listener and loads the last
// selected node.
func (m *Console) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.waitSearch()}
	if m.selected != "" {
		if _, ok := m.app.Tree.Node(m.selected); ok {
			m.expanded.ExpandPath(m.app.Tree, m.selected)
			m.rebuildRows()
			m.moveTreeCursorTo(m.selected)
			cmds = append(cmds, m.selectNode(m.selected))
		}
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m *Console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.syncBusy()
		return m, cmd

	case tea.MouseMsg:
		return m, m.handleMouse(msg)

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case bootstrapMsg:
		m.syncBusy()
		if msg.err != nil {
			m.dialogs.Error(msg.err)
			return m, nil
		}
		m.app.Tree = msg.tree
		m.status = i18n.T("tui.status.reloaded")
		m.rebuildRows()
		if _, ok := m.app.Tree.Node(m.selected); ok {
			return m, m.selectNode(m.selected)
		}
		m.selected = ""
		m.editors = nil
		return m, nil

	case treeMsg:
		m.syncBusy()
		if msg.err != nil {
			m.dialogs.Error(msg.err)
			return m, nil
		}
		m.app.Tree = msg.tree
		m.rebuildRows()
		if m.selected != "" {
			return m, m.selectNode(m.selected)
		}
		return m, nil

	case editorsMsg:
		m.applyEditors(msg)
		return m, nil

	case focusedEditorsMsg:
		if m.applyEditors(msg.editorsMsg) {
			for i, e := range m.editors {
				if e.Key() == msg.key {
					m.settingCursor = i
				}
			}
			m.clampCursors()
		}
		return m, nil

	case opMsg:
		return m, m.handleOp(msg)

	case searchMsg:
		m.syncBusy()
		m.applySearch(search.Outcome(msg))
		return m, m.waitSearch()
	}
	return m, nil
}

// applyEditors installs loaded editors if they belong to the selected node.
func (m *Console) applyEditors(msg editorsMsg) bool {
	m.syncBusy()
	if msg.node != m.selected {
		return false
	}
	m.loading = false
	m.editors = make([]editor.Editor, 0, len(msg.editors))
	for _, e := range msg.editors {
		// editors that failed to load stay listed so the error can be retried
		if e.Visible() || e.State() != editor.StateRendered {
			m.editors = append(m.editors, e)
		}
	}
	m.clampCursors()
	if msg.err != nil {
		m.dialogs.Error(msg.err)
	}
	return true
}

func (m *Console) syncBusy() {
	if m.app.Client != nil {
		m.dialogs.SetBusy(m.app.Client.Busy().Count())
	}
}

func (m *Console) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		return m.quit()
	}
	if _, ok := m.dialogs.Current(); ok {
		return m.handleModalKey(msg)
	}

	switch m.focus {
	case panePrompt:
		return m.handlePromptKey(msg)
	case paneSearch:
		return m.handleSearchKey(msg)
	}

	m.syncBusy()
	if m.dialogs.Waiting() {
		return nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.dialogs.Confirm(i18n.T("confirm.quit.title"), i18n.T("confirm.quit.message"), actionQuit, "")
		return nil
	case key.Matches(msg, m.keys.Search):
		m.back = m.focus
		m.focus = paneSearch
		return m.search.Focus()
	case key.Matches(msg, m.keys.Modified):
		f := m.app.Session.Filter()
		f.ModifiedOnly = !f.ModifiedOnly
		return m.setFilter(f)
	case key.Matches(msg, m.keys.LevelUp):
		f := m.app.Session.Filter()
		if f.MaxLevel < constants.MaxLevel {
			f.MaxLevel++
			return m.setFilter(f)
		}
		return nil
	case key.Matches(msg, m.keys.LevelDn):
		f := m.app.Session.Filter()
		if f.MaxLevel > constants.MinLevel {
			f.MaxLevel--
			return m.setFilter(f)
		}
		return nil
	case key.Matches(msg, m.keys.Reload):
		return m.reload()
	case key.Matches(msg, m.keys.Focus):
		m.cycleFocus(msg.String() == "shift+tab")
		return nil
	}

	switch m.focus {
	case paneTree:
		return m.handleTreeKey(msg)
	case paneSettings:
		return m.handleSettingsKey(msg)
	case paneDetail:
		return m.handleDetailKey(msg)
	}
	return nil
}

func (m *Console) cycleFocus(reverse bool) {
	order := []pane{paneTree, paneSettings, paneDetail}
	idx := 0
	for i, p := range order {
		if p == m.focus {
			idx = i
		}
	}
	if reverse {
		idx = (idx + len(order) - 1) % len(order)
	} else {
		idx = (idx + 1) % len(order)
	}
	m.focus = order[idx]
}

func (m *Console) handleModalKey(msg tea.KeyMsg) tea.Cmd {
	var (
		r  dialog.Result
		ok bool
	)
	switch msg.String() {
	case "enter", "y":
		if r, ok = m.dialogs.Dismiss(dialog.ButtonOK); !ok {
			r, ok = m.dialogs.Dismiss(dialog.ButtonClose)
		}
	case "esc", "n", "q":
		if r, ok = m.dialogs.Dismiss(dialog.ButtonCancel); !ok {
			r, ok = m.dialogs.Dismiss(dialog.ButtonClose)
		}
	}
	if !ok {
		return nil
	}

	if r.Modal.Fatal {
		return m.reload()
	}
	if !r.Confirmed() {
		return nil
	}
	switch r.Modal.Action {
	case actionQuit:
		return m.quit()
	case actionReload:
		return m.reload()
	case actionReset:
		if e := m.editorByKey(r.Modal.Payload); e != nil {
			label := e.Descriptor().Label
			return m.run(e, i18n.T("tui.status.reset", map[string]any{"Label": label}), false, e.Reset)
		}
	}
	return nil
}

func (m *Console) handleMouse(msg tea.MouseMsg) tea.Cmd {
	if _, ok := m.dialogs.Current(); ok {
		return nil
	}
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.moveCursor(-1)
		return nil
	case tea.MouseButtonWheelDown:
		m.moveCursor(1)
		return nil
	}
	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
		return nil
	}
	for i := range m.rows {
		if m.zones.Get(treeZoneID(i)).InBounds(msg) {
			m.focus = paneTree
			m.treeCursor = i
			return m.activateTreeRow()
		}
	}
	for i := range m.editors {
		if m.zones.Get(settingZoneID(i)).InBounds(msg) {
			m.focus = paneSettings
			m.settingCursor = i
			m.itemCursor = 0
			return nil
		}
	}
	return nil
}

func (m *Console) moveCursor(delta int) {
	switch m.focus {
	case paneTree:
		m.moveTree(delta)
	case paneSettings:
		m.moveSetting(delta)
	case paneDetail:
		m.moveItem(delta)
	case paneSearch:
		m.moveResult(delta)
	}
}

// run executes op for e in the background and reports it as an opMsg.
// reload is honoured only for writes.
func (m *Console) run(e editor.Editor, status string, write bool, op func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	k := e.Key()
	return func() tea.Msg {
		err := op(ctx)
		return opMsg{
			key:    k,
			status: status,
			reload: write && err == nil && e.LastWrite().ReloadRequired,
			err:    err,
		}
	}
}

func (m *Console) handleOp(msg opMsg) tea.Cmd {
	m.syncBusy()
	m.clampCursors()
	if msg.err != nil {
		if errors.Is(msg.err, editor.ErrBusy) {
			m.status = i18n.T("error.busy")
			return nil
		}
		logging.Warn("console: %s: %v", msg.key, msg.err)
		m.dialogs.Error(msg.err)
		return nil
	}
	m.status = msg.status
	if msg.reload {
		label := msg.key
		if e := m.editorByKey(msg.key); e != nil {
			label = e.Descriptor().Label
		}
		m.dialogs.Show(dialog.Modal{
			Kind:    dialog.KindInfo,
			Title:   i18n.T("reload.title"),
			Message: i18n.T("reload.message", map[string]any{"Label": label}),
			Buttons: []dialog.Button{dialog.ButtonOK},
			Action:  actionReload,
		})
		return nil
	}
	if m.app.Session.Filter().ModifiedOnly {
		return m.refreshTree()
	}
	return nil
}

func (m *Console) reload() tea.Cmd {
	ctx := m.ctx
	a := m.app
	m.status = ""
	return func() tea.Msg {
		t, err := a.Resync(ctx)
		return bootstrapMsg{tree: t, err: err}
	}
}

func (m *Console) refreshTree() tea.Cmd {
	ctx := m.ctx
	a := m.app
	return func() tea.Msg {
		t, err := a.LoadTree(ctx)
		return treeMsg{tree: t, err: err}
	}
}

func (m *Console) setFilter(f service.Filter) tea.Cmd {
	ctx := m.ctx
	a := m.app
	return func() tea.Msg {
		t, err := a.ApplyFilter(ctx, f)
		return treeMsg{tree: t, err: err}
	}
}

func (m *Console) editorByKey(k string) editor.Editor {
	for _, e := range m.editors {
		if e.Key() == k {
			return e
		}
	}
	return nil
}

func (m *Console) persist() {
	if m.app.Prefs == nil {
		return
	}
	ctx := context.Background()
	if err := m.app.Prefs.SetStrings(ctx, prefs.Session, constants.PrefExpandedNodes, m.expanded.IDs()); err != nil {
		logging.Warn("console: %v", err)
	}
	if err := m.app.Prefs.SetString(ctx, prefs.Session, constants.PrefLastSelected, m.selected); err != nil {
		logging.Warn("console: %v", err)
	}
}

func (m *Console) quit() tea.Cmd {
	m.persist()
	m.cancel()
	m.searchCtl.Close()
	m.zones.Close()
	return tea.Quit
}

// Run starts the console on the terminal and blocks until it exits.
func Run(a *app.App) error {
	isDark := DetectDarkMode(a.Config.Editor.Theme)
	m := NewConsole(a, isDark)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}
