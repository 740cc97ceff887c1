package render

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,     // tables, strikethrough, task lists, autolinks
		extension.Linkify, // linkify raw URLs
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithUnsafe(), // raw HTML is passed through and cleaned by sanitizer
	),
)

// sanitizer strips everything outside the user-generated content allowlist.
var sanitizer = bluemonday.UGCPolicy()

// Markdown renders an editor-written description to safe HTML. On failure the
// sanitized original text is returned.
func Markdown(content string) string {
	if content == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return sanitizer.Sanitize(content)
	}
	return sanitizer.Sanitize(buf.String())
}
