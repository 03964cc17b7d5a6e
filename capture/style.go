package capture

import "strings"

const freezeCSS = `*,
*::before,
*::after {
  transition-duration: 0s !important;
  transition-delay: 0s !important;
  animation-duration: 0s !important;
  animation-delay: 0s !important;
  caret-color: transparent !important;
  scroll-behavior: auto !important;
}
svg * {
  animation: none !important;
}
`

// StabilizingStyle returns the stylesheet injected into every captured page:
// transitions and animations run in zero time and the given selectors are
// hidden.
func StabilizingStyle(hidden []string) string {
	var b strings.Builder
	b.WriteString(freezeCSS)
	for _, sel := range hidden {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		b.WriteString(sel)
		b.WriteString(" {\n  display: none !important;\n}\n")
	}
	return b.String()
}
