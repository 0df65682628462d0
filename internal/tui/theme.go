// Package tui provides the terminal console for pwmcfg.
package tui

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dongho-jung/pwmcfg/internal/config"
)

const (
	darkModeUnknown int32 = iota
	darkModeLight
	darkModeDark
)

var cachedDarkMode atomic.Int32

// DetectDarkMode returns whether the terminal is in dark mode.
//   - "light": always returns false
//   - "dark": always returns true
//   - "auto" or empty: uses lipgloss.HasDarkBackground() to auto-detect
//
// This function should be called BEFORE bubbletea starts, as
// lipgloss.HasDarkBackground() queries the terminal.
func DetectDarkMode(theme config.Theme) bool {
	switch theme {
	case config.ThemeLight:
		return false
	case config.ThemeDark:
		return true
	default:
		if isDark, ok := cachedDarkModeValue(); ok {
			return isDark
		}
		isDark := detectDarkModeWithRetry()
		setCachedDarkMode(isDark)
		return isDark
	}
}

func cachedDarkModeValue() (bool, bool) {
	switch cachedDarkMode.Load() {
	case darkModeDark:
		return true, true
	case darkModeLight:
		return false, true
	default:
		return false, false
	}
}

func setCachedDarkMode(isDark bool) {
	if isDark {
		cachedDarkMode.Store(darkModeDark)
		return
	}
	cachedDarkMode.Store(darkModeLight)
}

// detectDarkModeWithRetry queries the background color a few times and takes
// the majority. The OSC query is unreliable right after other output.
func detectDarkModeWithRetry() bool {
	_ = os.Stdout.Sync()
	time.Sleep(5 * time.Millisecond)

	const attempts = 3
	darkCount := 0
	for i := range attempts {
		if lipgloss.HasDarkBackground() {
			darkCount++
		}
		if i < attempts-1 {
			time.Sleep(10 * time.Millisecond)
		}
	}
	return darkCount >= 2
}

// ThemeColors holds the palette for one background.
type ThemeColors struct {
	Accent    lipgloss.Color
	Text      lipgloss.Color
	Dim       lipgloss.Color
	Selection lipgloss.Color
	Border    lipgloss.Color
	Modified  lipgloss.Color
	Error     lipgloss.Color
	Success   lipgloss.Color
	Track     lipgloss.Color
	Thumb     lipgloss.Color
}

// NewThemeColors returns the palette for a dark or light background.
func NewThemeColors(isDark bool) ThemeColors {
	if isDark {
		return ThemeColors{
			Accent:    lipgloss.Color("39"),
			Text:      lipgloss.Color("252"),
			Dim:       lipgloss.Color("244"),
			Selection: lipgloss.Color("237"),
			Border:    lipgloss.Color("240"),
			Modified:  lipgloss.Color("214"),
			Error:     lipgloss.Color("203"),
			Success:   lipgloss.Color("78"),
			Track:     lipgloss.Color("238"),
			Thumb:     lipgloss.Color("245"),
		}
	}
	return ThemeColors{
		Accent:    lipgloss.Color("25"),
		Text:      lipgloss.Color("235"),
		Dim:       lipgloss.Color("243"),
		Selection: lipgloss.Color("254"),
		Border:    lipgloss.Color("250"),
		Modified:  lipgloss.Color("130"),
		Error:     lipgloss.Color("160"),
		Success:   lipgloss.Color("28"),
		Track:     lipgloss.Color("250"),
		Thumb:     lipgloss.Color("245"),
	}
}
