package web

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`,
	"#", `\#`, "<", `\<`, ">", `\>`, "~", `\~`, "|", `\|`, "!", `\!`, "&", `\&`,
)

// highlight renders chunk as HTML with text[start:end] in bold. Raw HTML in
// the chunk is escaped, never passed through.
func highlight(text string, start, end int) (template.HTML, error) {
	if start < 0 || end > len(text) || start > end {
		start, end = 0, 0
	}
	var md strings.Builder
	md.WriteString(mdEscaper.Replace(text[:start]))
	if end > start {
		md.WriteString("**")
		md.WriteString(mdEscaper.Replace(text[start:end]))
		md.WriteString("**")
	}
	md.WriteString(mdEscaper.Replace(text[end:]))

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(escapeBlockStart(md.String())), &buf); err != nil {
		return "", err
	}
	return template.HTML(strings.TrimSpace(buf.String())), nil
}

// escapeBlockStart keeps a leading "-", "+" or "1." from starting a list.
func escapeBlockStart(md string) string {
	if strings.HasPrefix(md, "-") || strings.HasPrefix(md, "+") {
		return `\` + md
	}
	i := 0
	for i < len(md) && md[i] >= '0' && md[i] <= '9' {
		i++
	}
	if i > 0 && i < len(md) && (md[i] == '.' || md[i] == ')') {
		return md[:i] + `\` + md[i:]
	}
	return md
}
