package markdown

// HasExecutableScript reports whether content contains script that an
// embedding runtime could execute: a script directive, or a fenced code
// block whose info string carries the run flag. Directive lines inside
// fenced code blocks do not count.
func HasExecutableScript(content []byte) bool {
	found := false
	Scan(content, 0, func(ev ScanEvent) bool {
		if ev.CodeOpen && hasFlag(ev.Flags, "run") {
			found = true
			return false
		}
		if ev.Info.Name == ScriptDirective &&
			(ev.Info.Kind == FenceLeaf || ev.Info.Kind == FenceContainerOpen) {
			found = true
			return false
		}
		return true
	})
	return found
}
