package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
	}{
		{"bold", "Stavíme **rodinné domy**", "<strong>rodinné domy</strong>"},
		{"heading", "# O nás", "<h1>O nás</h1>"},
		{"link", "[Kontakt](/kontakt)", `href="/kontakt"`},
		{"linkify", "Více na https://example.cz", `<a href="https://example.cz">`},
		{"strikethrough", "~~staré~~", "<del>staré</del>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, Markdown(tt.input), tt.contains)
		})
	}
}

func TestMarkdown_Empty(t *testing.T) {
	assert.Equal(t, "", Markdown(""))
}

func TestMarkdown_SanitizesRawHTML(t *testing.T) {
	out := Markdown("<script>alert(1)</script>\n\nText <b onclick=\"x()\">tučně</b>")
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "onclick")
	assert.Contains(t, out, "<b>tučně</b>")
}

func TestMarkdown_LinksGetNofollow(t *testing.T) {
	out := Markdown("[web](https://example.cz)")
	assert.Contains(t, out, `rel="nofollow"`)
}
