package tui

import "math/rand/v2"

// Version is the pwmcfg version string, set from main package.
var Version = "dev"

// tips are shown in the footer, one per console start.
var tips = []string{
	"Press / to search every setting by key, label or description",
	"Press m to show only settings that differ from their default",
	"Press + or - to change the setting level filter",
	"Press r on a setting to restore its default value",
	"Press tab to move between the tree, the settings and the detail pane",
	"Use K and J in the detail pane to reorder list entries",
	"Click a tree entry to open it",
	"Secrets are never shown after they are saved",
}

// randomTip returns one of the tips.
func randomTip() string {
	return tips[rand.IntN(len(tips))]
}
