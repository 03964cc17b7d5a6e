package normalizer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// CompileSelectors parses every CSS selector, failing on the first invalid one.
func CompileSelectors(selectors []string) ([]cascadia.Sel, error) {
	out := make([]cascadia.Sel, 0, len(selectors))
	for _, s := range selectors {
		sel, err := cascadia.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("normalizer: selector %q: %w", s, err)
		}
		out = append(out, sel)
	}
	return out, nil
}

// StripSelectors removes every element matching one of sels from markup and
// re-renders the document. Used to drop known time-varying widgets (clocks,
// counters, rotating banners) before body normalization. With selectors set,
// the document is re-rendered even when nothing matches, so both sides of a
// comparison share one serialization. With no selectors markup is returned
// unchanged.
func StripSelectors(markup string, sels []cascadia.Sel) (string, error) {
	if len(sels) == 0 {
		return markup, nil
	}

	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("normalizer: parse markup: %w", err)
	}

	for _, sel := range sels {
		for _, node := range cascadia.QueryAll(doc, sel) {
			if node.Parent != nil {
				node.Parent.RemoveChild(node)
			}
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("normalizer: render markup: %w", err)
	}
	return buf.String(), nil
}
