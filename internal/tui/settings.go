package tui

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/editor"
	"github.com/dongho-jung/pwmcfg/internal/i18n"
	"github.com/dongho-jung/pwmcfg/internal/setting"
)

// listEditor is implemented by every ListEditor instantiation.
type listEditor interface {
	editor.Editor
	Len() int
	ItemText(i int) (string, error)
	AddText(ctx context.Context, text string) error
	UpdateText(ctx context.Context, i int, text string) error
	Remove(ctx context.Context, i int) error
	MoveUp(ctx context.Context, i int) error
	MoveDown(ctx context.Context, i int) error
}

// localeEditor is implemented by every LocaleEditor instantiation.
type localeEditor interface {
	editor.Editor
	Locales() []string
	Text(locale string) string
	SetText(ctx context.Context, locale, text string) error
	Delete(ctx context.Context, locale string) error
}

func (m *Console) currentEditor() editor.Editor {
	if m.settingCursor < 0 || m.settingCursor >= len(m.editors) {
		return nil
	}
	return m.editors[m.settingCursor]
}

func (m *Console) moveSetting(delta int) {
	if len(m.editors) == 0 {
		return
	}
	next := max(0, min(len(m.editors)-1, m.settingCursor+delta))
	if next != m.settingCursor {
		m.settingCursor = next
		m.itemCursor = 0
		m.detail.SetYOffset(0)
	}
}

func (m *Console) moveItem(delta int) {
	n := itemCount(m.currentEditor())
	if n == 0 {
		m.itemCursor = 0
		return
	}
	m.itemCursor = max(0, min(n-1, m.itemCursor+delta))
}

func (m *Console) clampCursors() {
	if m.settingCursor >= len(m.editors) {
		m.settingCursor = max(0, len(m.editors)-1)
	}
	n := itemCount(m.currentEditor())
	if m.itemCursor >= n {
		m.itemCursor = max(0, n-1)
	}
}

// itemCount returns the number of selectable rows of e's detail view.
func itemCount(e editor.Editor) int {
	switch e := e.(type) {
	case nil:
		return 0
	case listEditor:
		return e.Len()
	case localeEditor:
		return len(e.Locales())
	case *editor.OptionListEditor:
		return len(e.Descriptor().OptionKeys())
	case *editor.VerificationEditor:
		return len(verificationMethods(e)) + 1
	case *editor.NamedSecretEditor:
		return len(e.Names())
	}
	return 1
}

func verificationMethods(e *editor.VerificationEditor) []string {
	v := e.Value()
	names := make([]string, 0, len(v.Methods))
	for name := range v.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// nextLevel cycles disabled, optional, required.
func nextLevel(l setting.VerificationLevel) setting.VerificationLevel {
	switch l {
	case setting.VerificationDisabled:
		return setting.VerificationOptional
	case setting.VerificationOptional:
		return setting.VerificationRequired
	default:
		return setting.VerificationDisabled
	}
}

func (m *Console) handleSettingsKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveSetting(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveSetting(1)
	case key.Matches(msg, m.keys.Left), key.Matches(msg, m.keys.Back):
		m.focus = paneTree
	case key.Matches(msg, m.keys.Enter), key.Matches(msg, m.keys.Right):
		if e := m.currentEditor(); e != nil {
			m.focus = paneDetail
			if itemCount(e) == 1 && key.Matches(msg, m.keys.Enter) {
				return m.editItem(e)
			}
		}
	case key.Matches(msg, m.keys.Toggle):
		if e := m.currentEditor(); e != nil {
			return m.toggleItem(e)
		}
	case key.Matches(msg, m.keys.Reset):
		return m.confirmReset()
	}
	return nil
}

func (m *Console) handleDetailKey(msg tea.KeyMsg) tea.Cmd {
	e := m.currentEditor()
	if e == nil {
		m.focus = paneSettings
		return nil
	}
	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveItem(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveItem(1)
	case key.Matches(msg, m.keys.Back):
		m.focus = paneSettings
	case key.Matches(msg, m.keys.Left):
		if s, ok := e.(*editor.SelectEditor); ok {
			return m.save(e, s.Prev)
		}
		m.focus = paneSettings
	case key.Matches(msg, m.keys.Right):
		if s, ok := e.(*editor.SelectEditor); ok {
			return m.save(e, s.Next)
		}
	case key.Matches(msg, m.keys.Enter):
		return m.editItem(e)
	case key.Matches(msg, m.keys.Toggle):
		return m.toggleItem(e)
	case key.Matches(msg, m.keys.Add):
		return m.addItem(e)
	case key.Matches(msg, m.keys.Remove):
		return m.removeItem(e)
	case key.Matches(msg, m.keys.MoveUp):
		if l, ok := e.(listEditor); ok && m.itemCursor > 0 {
			i := m.itemCursor
			m.itemCursor--
			return m.save(e, func(ctx context.Context) error { return l.MoveUp(ctx, i) })
		}
	case key.Matches(msg, m.keys.MoveDown):
		if l, ok := e.(listEditor); ok && m.itemCursor < l.Len()-1 {
			i := m.itemCursor
			m.itemCursor++
			return m.save(e, func(ctx context.Context) error { return l.MoveDown(ctx, i) })
		}
	case key.Matches(msg, m.keys.Reset):
		return m.confirmReset()
	}
	return nil
}

// save runs a write of e and reports it with the saved status.
func (m *Console) save(e editor.Editor, op func(ctx context.Context) error) tea.Cmd {
	status := i18n.T("tui.status.saved", map[string]any{"Label": e.Descriptor().Label})
	return m.run(e, status, true, op)
}

func (m *Console) confirmReset() tea.Cmd {
	e := m.currentEditor()
	if e == nil {
		return nil
	}
	label := e.Descriptor().Label
	m.dialogs.Confirm(i18n.T("confirm.reset.title"),
		i18n.T("confirm.reset.message", map[string]any{"Label": label}), actionReset, e.Key())
	return nil
}

func (m *Console) toggleItem(e editor.Editor) tea.Cmd {
	switch e := e.(type) {
	case *editor.BooleanEditor:
		return m.save(e, e.Toggle)
	case *editor.SelectEditor:
		return m.save(e, e.Next)
	case *editor.OptionListEditor:
		keys := e.Descriptor().OptionKeys()
		if m.itemCursor < len(keys) {
			option := keys[m.itemCursor]
			return m.save(e, func(ctx context.Context) error { return e.Toggle(ctx, option) })
		}
	case *editor.VerificationEditor:
		names := verificationMethods(e)
		if m.itemCursor < len(names) {
			name := names[m.itemCursor]
			level := nextLevel(e.Value().Methods[name])
			return m.save(e, func(ctx context.Context) error { return e.SetMethod(ctx, name, level) })
		}
	}
	return nil
}

// editItem opens the prompt for the row under the cursor, or performs the
// row's single action.
func (m *Console) editItem(e editor.Editor) tea.Cmd {
	label := e.Descriptor().Label
	switch ed := e.(type) {
	case *editor.BooleanEditor, *editor.SelectEditor, *editor.OptionListEditor:
		return m.toggleItem(e)
	case *editor.StringEditor:
		value := ed.Value()
		if e.Descriptor().HasFlag(setting.FlagSensitive) {
			value = ""
		}
		return m.openPrompt(promptAction{kind: promptWrite, key: e.Key()},
			i18n.T("tui.edit.prompt", map[string]any{"Label": label}), value, false)
	case *editor.NumericEditor:
		return m.openPrompt(promptAction{kind: promptWrite, key: e.Key()},
			i18n.T("tui.edit.prompt", map[string]any{"Label": label}), strconv.FormatInt(ed.Value(), 10), false)
	case *editor.DurationEditor:
		return m.openPrompt(promptAction{kind: promptWrite, key: e.Key()},
			i18n.T("tui.edit.prompt", map[string]any{"Label": label}), editor.FormatDuration(ed.Value()), false)
	case listEditor:
		if ed.Len() == 0 {
			return m.addItem(e)
		}
		text, err := ed.ItemText(m.itemCursor)
		if err != nil {
			return nil
		}
		return m.openPrompt(promptAction{kind: promptListUpdate, key: e.Key(), index: m.itemCursor},
			i18n.T("tui.edit.prompt", map[string]any{"Label": label}), text, false)
	case localeEditor:
		locales := ed.Locales()
		if m.itemCursor >= len(locales) {
			return m.addItem(e)
		}
		loc := locales[m.itemCursor]
		return m.openPrompt(promptAction{kind: promptLocaleSet, key: e.Key(), name: loc},
			i18n.T("tui.edit.prompt", map[string]any{"Label": label}), ed.Text(loc), false)
	case *editor.VerificationEditor:
		if m.itemCursor < len(verificationMethods(ed)) {
			return m.toggleItem(e)
		}
		return m.openPrompt(promptAction{kind: promptMinOptional, key: e.Key()},
			i18n.T("tui.edit.prompt", map[string]any{"Label": label}), strconv.Itoa(ed.Value().MinOptionalRequired), false)
	case *editor.PasswordEditor:
		return m.openPrompt(promptAction{kind: promptPassword, key: e.Key()},
			i18n.T("tui.prompt.password", map[string]any{"Label": label}), "", true)
	case *editor.NamedSecretEditor:
		names := ed.Names()
		if m.itemCursor >= len(names) {
			return m.addItem(e)
		}
		return m.openPrompt(promptAction{kind: promptSecret, key: e.Key(), name: names[m.itemCursor]},
			i18n.T("tui.prompt.password", map[string]any{"Label": names[m.itemCursor]}), "", true)
	case *editor.CertificateEditor:
		return m.openPrompt(promptAction{kind: promptCert, key: e.Key()}, i18n.T("tui.prompt.cert"), "", false)
	case *editor.PrivateKeyEditor:
		return m.openPrompt(promptAction{kind: promptKey, key: e.Key()}, i18n.T("tui.prompt.key"), "", false)
	case *editor.FileEditor:
		return m.openPrompt(promptAction{kind: promptFile, key: e.Key()}, i18n.T("tui.prompt.file"), "", false)
	}
	return nil
}

func (m *Console) addItem(e editor.Editor) tea.Cmd {
	label := e.Descriptor().Label
	switch e.(type) {
	case listEditor:
		return m.openPrompt(promptAction{kind: promptListAdd, key: e.Key()},
			i18n.T("tui.prompt.add", map[string]any{"Label": label}), "", false)
	case localeEditor:
		return m.openPrompt(promptAction{kind: promptLocaleSet, key: e.Key(), pair: true},
			i18n.T("tui.prompt.locale", map[string]any{"Label": label}), "", false)
	case *editor.VerificationEditor:
		return m.openPrompt(promptAction{kind: promptMethod, key: e.Key()},
			i18n.T("tui.prompt.method", map[string]any{"Label": label}), "", false)
	case *editor.NamedSecretEditor:
		return m.openPrompt(promptAction{kind: promptSecretName, key: e.Key()},
			i18n.T("tui.prompt.secret", map[string]any{"Label": label}), "", false)
	}
	return nil
}

func (m *Console) removeItem(e editor.Editor) tea.Cmd {
	i := m.itemCursor
	switch ed := e.(type) {
	case listEditor:
		if i < ed.Len() {
			return m.save(e, func(ctx context.Context) error { return ed.Remove(ctx, i) })
		}
	case localeEditor:
		if locales := ed.Locales(); i < len(locales) {
			loc := locales[i]
			return m.save(e, func(ctx context.Context) error { return ed.Delete(ctx, loc) })
		}
	case *editor.NamedSecretEditor:
		if names := ed.Names(); i < len(names) {
			name := names[i]
			return m.save(e, func(ctx context.Context) error { return ed.Remove(ctx, name) })
		}
	}
	return nil
}

// summary is the one-line value shown in the settings list.
func summary(e editor.Editor) string {
	lines := e.Render()
	switch len(lines) {
	case 0:
		return ""
	case 1:
		return lines[0]
	}
	return fmt.Sprintf("%s (+%d)", lines[0], len(lines)-1)
}

func (m *Console) renderSettings(width, height int) string {
	dim := lipgloss.NewStyle().Foreground(m.colors.Dim)
	if m.selected == "" {
		return dim.Render(i18n.T("tui.empty"))
	}
	if m.loading && len(m.editors) == 0 {
		return dim.Render(m.spinner.View() + " " + i18n.T("tui.loading"))
	}
	if len(m.editors) == 0 {
		return dim.Render(i18n.T("tui.no_settings"))
	}

	// Two lines per setting: label and value.
	perPage := max(1, height/2)
	m.settingOffset = scrollWindow(m.settingCursor, m.settingOffset, perPage, len(m.editors))
	end := min(len(m.editors), m.settingOffset+perPage)

	labelStyle := lipgloss.NewStyle().Foreground(m.colors.Text)
	cursor := labelStyle.Background(m.colors.Selection).Bold(m.focus == paneSettings)
	modified := lipgloss.NewStyle().Foreground(m.colors.Modified)

	lines := make([]string, 0, 2*(end-m.settingOffset))
	for i := m.settingOffset; i < end; i++ {
		e := m.editors[i]
		mark := "  "
		if e.Modified() {
			mark = modified.Render("● ")
		}
		style := labelStyle
		if i == m.settingCursor {
			style = cursor
		}
		label := constants.TruncateWithWidth(e.Descriptor().Label, max(1, width-3))
		value := "    " + constants.TruncateWithWidth(summary(e), max(1, width-5))
		entry := mark + style.Render(label) + "\n" + dim.Render(value)
		lines = append(lines, m.zones.Mark(settingZoneID(i), entry))
	}

	body := strings.Join(lines, "\n")
	if bar := renderVerticalScrollbar(len(m.editors)*2, height, m.settingOffset*2, m.colors); bar != "" {
		body = lipgloss.JoinHorizontal(lipgloss.Top, lipgloss.NewStyle().Width(width-1).Render(body), bar)
	}
	return body
}

func (m *Console) renderDetail(width, height int) string {
	e := m.currentEditor()
	if e == nil {
		return ""
	}
	d := e.Descriptor()
	title := lipgloss.NewStyle().Foreground(m.colors.Accent).Bold(true)
	dim := lipgloss.NewStyle().Foreground(m.colors.Dim)
	text := lipgloss.NewStyle().Foreground(m.colors.Text)

	var b strings.Builder
	b.WriteString(title.Render(d.Label))
	b.WriteString("\n")
	b.WriteString(dim.Render(d.Key + " · " + string(d.Syntax)))
	b.WriteString("\n")
	state := i18n.T("tui.status.default")
	if e.Modified() {
		state = lipgloss.NewStyle().Foreground(m.colors.Modified).Render(i18n.T("tui.status.modified"))
	}
	b.WriteString(state)
	b.WriteString("\n\n")

	rows := e.Render()
	n := itemCount(e)
	cursor := text.Background(m.colors.Selection).Bold(m.focus == paneDetail)
	for i, line := range rows {
		line = constants.TruncateWithWidth(line, max(1, width-1))
		if i == m.itemCursor && i < n {
			b.WriteString(cursor.Render(line))
		} else {
			b.WriteString(text.Render(line))
		}
		b.WriteString("\n")
	}
	if d.Description != "" {
		b.WriteString("\n")
		b.WriteString(dim.Width(max(1, width-1)).Render(d.Description))
	}

	m.detail.Width = width
	m.detail.Height = height
	m.detail.SetContent(b.String())
	return m.detail.View()
}
