// Package constants defines shared constants used throughout the pwmcfg application.
package constants

import (
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// Application identity
const (
	AppName     = "pwmcfg"
	EnvPrefix   = "PWMCFG_"
	UserAgent   = "pwmcfg"
	RequestIDHd = "X-Request-ID"
)

// Environment variables
const (
	EnvDebug     = EnvPrefix + "DEBUG"
	EnvServerURL = EnvPrefix + "SERVER_URL"
	EnvFormID    = EnvPrefix + "FORM_ID"
	EnvLocale    = EnvPrefix + "LOCALE"
	EnvConfig    = EnvPrefix + "CONFIG"
)

// Server process actions, sent as the processAction query parameter.
const (
	ActionReadSetting     = "readSetting"
	ActionWriteSetting    = "writeSetting"
	ActionResetSetting    = "resetSetting"
	ActionExecuteFunction = "executeSettingFunction"
	ActionMenuTreeData    = "menuTreeData"
	ActionSearch          = "search"
	ActionSettingData     = "settingData"
)

// Query parameter names
const (
	ParamProcessAction = "processAction"
	ParamFormID        = "formID"
	ParamPreventCache  = "preventCache"
	ParamKey           = "key"
	ParamProfile       = "profile"
)

// Server error codes that invalidate the editor session. The console
// re-bootstraps when it sees one of them.
const (
	ErrorCodeInvalidFormID  = 5053
	ErrorCodeSessionExpired = 5090
)

// DefaultFatalErrorCodes lists the codes treated as fatal unless configured otherwise.
var DefaultFatalErrorCodes = []int{ErrorCodeInvalidFormID, ErrorCodeSessionExpired}

// Default configuration values
const (
	DefaultBasePath    = "/private/config/editor"
	DefaultTimeout     = 30 * time.Second
	DefaultSearchDelay = 500 * time.Millisecond
	DefaultMaxLevel    = 2
	DefaultLocale      = "en"
	DefaultDemoAddr    = "127.0.0.1:8089"
)

// Setting levels
const (
	MinLevel = 0
	MaxLevel = 2
)

// Directory and file names
const (
	ConfigDirName  = "pwmcfg"
	ConfigFileName = "config.yaml"
	StateDirName   = "pwmcfg"
	LogFileName    = "pwmcfg.log"
	PrefsFileName  = "prefs.db"
	EnvFileName    = ".env"
)

// Preference keys
const (
	PrefExpandedNodes = "nav.expanded"
	PrefLastSelected  = "nav.lastSelected"
	PrefModifiedOnly  = "filter.modifiedOnly"
	PrefMaxLevel      = "filter.maxLevel"
	PrefLocale        = "display.locale"
)

// Display limits
const (
	MaxLabelWidth   = 40
	MaxValueWidth   = 60
	MaxSearchResult = 50
)

// TruncateWithWidth truncates s to at most maxWidth terminal cells,
// adding an ellipsis when anything was cut.
func TruncateWithWidth(s string, maxWidth int) string {
	if maxWidth < 1 {
		return ""
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth, "…")
}
