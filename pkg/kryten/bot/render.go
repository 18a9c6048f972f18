package bot

import (
	"html"
	"strings"
)

// containsCodeBlock reports whether text carries a fenced code block.
func containsCodeBlock(text string) bool {
	return strings.Contains(text, "```")
}

// toHTML converts model output with fenced code blocks to Telegram HTML.
// Fenced segments become <pre> blocks; everything is entity-escaped. An
// unclosed trailing fence is treated as running to the end of the text.
func toHTML(text string) string {
	parts := strings.Split(text, "```")
	var b strings.Builder
	for i, part := range parts {
		if i%2 == 0 {
			b.WriteString(html.EscapeString(part))
			continue
		}
		// Drop a language tag on the opening fence line.
		if idx := strings.IndexByte(part, '\n'); idx >= 0 && !strings.ContainsAny(part[:idx], " \t") {
			part = part[idx+1:]
		}
		b.WriteString("<pre>")
		b.WriteString(html.EscapeString(strings.Trim(part, "\n")))
		b.WriteString("</pre>")
	}
	return b.String()
}
