package builtin

import "github.com/dgallion1/docrender/internal/plugin"

// All returns the built-in plugins in their default pipeline order.
func All() []plugin.Plugin {
	return []plugin.Plugin{
		NewCallouts(),
		NewMermaid(),
		NewKroki(),
		NewMath(),
		NewTOC(),
	}
}
