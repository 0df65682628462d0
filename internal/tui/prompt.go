package tui

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dongho-jung/pwmcfg/internal/editor"
	"github.com/dongho-jung/pwmcfg/internal/setting"
)

type promptKind int

const (
	promptWrite promptKind = iota
	promptListAdd
	promptListUpdate
	promptLocaleSet
	promptMethod
	promptMinOptional
	promptPassword
	promptSecretName
	promptSecret
	promptCert
	promptKey
	promptFile
)

// promptAction is what submitting the prompt does.
type promptAction struct {
	kind  promptKind
	key   string
	index int
	name  string // locale or secret name
	pair  bool   // text is locale=value
	title string
}

func (m *Console) openPrompt(a promptAction, title, value string, secret bool) tea.Cmd {
	a.title = title
	m.pending = &a
	if m.focus != panePrompt {
		m.back = m.focus
	}
	m.focus = panePrompt
	m.prompt.Prompt = "> "
	m.prompt.EchoMode = textinput.EchoNormal
	if secret {
		m.prompt.EchoMode = textinput.EchoPassword
		m.prompt.EchoCharacter = '•'
	}
	m.prompt.SetValue(value)
	m.prompt.CursorEnd()
	return m.prompt.Focus()
}

func (m *Console) closePrompt() {
	m.pending = nil
	m.prompt.Blur()
	m.prompt.SetValue("")
	m.focus = m.back
}

func (m *Console) handlePromptKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.closePrompt()
		return nil
	case "enter":
		a := m.pending
		text := m.prompt.Value()
		m.closePrompt()
		if a == nil {
			return nil
		}
		return m.submitPrompt(*a, text)
	}
	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return cmd
}

// splitPair splits "name=value". The name is trimmed, the value is kept.
func splitPair(text string) (string, string, error) {
	name, value, ok := strings.Cut(text, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("%w: expected name=value", editor.ErrInvalidValue)
	}
	return name, value, nil
}

func (m *Console) submitPrompt(a promptAction, text string) tea.Cmd {
	e := m.editorByKey(a.key)
	if e == nil {
		return nil
	}
	switch a.kind {
	case promptWrite:
		return m.save(e, func(ctx context.Context) error { return e.Write(ctx, text) })
	case promptListAdd:
		if l, ok := e.(listEditor); ok {
			return m.save(e, func(ctx context.Context) error { return l.AddText(ctx, text) })
		}
	case promptListUpdate:
		if l, ok := e.(listEditor); ok {
			return m.save(e, func(ctx context.Context) error { return l.UpdateText(ctx, a.index, text) })
		}
	case promptLocaleSet:
		l, ok := e.(localeEditor)
		if !ok {
			return nil
		}
		locale, value := a.name, text
		if a.pair {
			var ok bool
			if locale, value, ok = strings.Cut(text, "="); !ok {
				return m.fail(e, fmt.Errorf("%w: expected locale=value", editor.ErrInvalidValue))
			}
			locale = strings.TrimSpace(locale)
		}
		return m.save(e, func(ctx context.Context) error { return l.SetText(ctx, locale, value) })
	case promptMethod:
		v, ok := e.(*editor.VerificationEditor)
		if !ok {
			return nil
		}
		name, level, err := splitPair(text)
		if err != nil {
			return m.fail(e, err)
		}
		lvl := setting.VerificationLevel(strings.TrimSpace(level))
		return m.save(e, func(ctx context.Context) error { return v.SetMethod(ctx, name, lvl) })
	case promptMinOptional:
		v, ok := e.(*editor.VerificationEditor)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return m.fail(e, fmt.Errorf("%w: %q is not a number", editor.ErrInvalidValue, text))
		}
		return m.save(e, func(ctx context.Context) error { return v.SetMinOptional(ctx, n) })
	case promptPassword:
		if p, ok := e.(*editor.PasswordEditor); ok {
			return m.save(e, func(ctx context.Context) error { return p.Set(ctx, text) })
		}
	case promptSecretName:
		name := strings.TrimSpace(text)
		if name == "" {
			return nil
		}
		return m.openPrompt(promptAction{kind: promptSecret, key: a.key, name: name}, name, "", true)
	case promptSecret:
		if s, ok := e.(*editor.NamedSecretEditor); ok {
			return m.save(e, func(ctx context.Context) error { return s.Add(ctx, a.name, text, nil) })
		}
	case promptCert:
		c, ok := e.(*editor.CertificateEditor)
		if !ok {
			return nil
		}
		path := strings.TrimSpace(text)
		return m.save(e, func(ctx context.Context) error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read certificate: %w", err)
			}
			return c.ImportPEM(ctx, string(data))
		})
	case promptKey:
		k, ok := e.(*editor.PrivateKeyEditor)
		if !ok {
			return nil
		}
		keyPath, chainPath, _ := strings.Cut(text, ",")
		keyPath, chainPath = strings.TrimSpace(keyPath), strings.TrimSpace(chainPath)
		return m.save(e, func(ctx context.Context) error {
			keyPEM, err := os.ReadFile(keyPath)
			if err != nil {
				return fmt.Errorf("failed to read key: %w", err)
			}
			var chainPEM []byte
			if chainPath != "" {
				if chainPEM, err = os.ReadFile(chainPath); err != nil {
					return fmt.Errorf("failed to read certificate chain: %w", err)
				}
			}
			return k.ImportPEM(ctx, string(keyPEM), string(chainPEM))
		})
	case promptFile:
		f, ok := e.(*editor.FileEditor)
		if !ok {
			return nil
		}
		path := strings.TrimSpace(text)
		return m.save(e, func(ctx context.Context) error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}
			contentType := mime.TypeByExtension(filepath.Ext(path))
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			return f.Upload(ctx, filepath.Base(path), contentType, data)
		})
	}
	return nil
}

// fail reports an input error for e without contacting the server.
func (m *Console) fail(e editor.Editor, err error) tea.Cmd {
	k := e.Key()
	return func() tea.Msg { return opMsg{key: k, err: err} }
}
