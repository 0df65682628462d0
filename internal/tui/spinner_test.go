package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestSpinnerDone(t *testing.T) {
	s := NewSpinner("Connecting", NewThemeColors(true))
	assert.Contains(t, s.View(), "Connecting")

	_, cmd := s.Update(SpinnerDoneMsg{Result: "42 settings"})
	assert.NotNil(t, cmd)
	assert.Contains(t, s.View(), "✓ Connecting: 42 settings")

	// a late result does not replace the first one
	s.Update(SpinnerDoneMsg{Err: errors.New("late")})
	assert.NoError(t, s.err)
}

func TestSpinnerFailure(t *testing.T) {
	s := NewSpinner("Connecting", NewThemeColors(false))
	s.Update(SpinnerDoneMsg{Err: errors.New("connection refused")})
	assert.Contains(t, s.View(), "✗ Connecting: connection refused")
}

func TestSpinnerInterrupt(t *testing.T) {
	s := NewSpinner("Connecting", NewThemeColors(true))
	_, cmd := s.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.NotNil(t, cmd)
	assert.ErrorIs(t, s.err, ErrInterrupted)

	s = NewSpinner("Connecting", NewThemeColors(true))
	_, cmd = s.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Nil(t, cmd)
	assert.False(t, s.done)
}
