// Package render turns chat messages into HTML fragments. Text that the user typed, and notices the widget
// produces itself, are escaped. Assistant replies are parsed as markdown, every fenced code block is passed
// through a syntax highlighter, and the result is sanitised before it reaches the page.
package render

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"io"

	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/alecthomas/chroma/styles"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"

	"github.com/MegaGrindStone/chatwidget/internal/models"
)

// DefaultStyle is the chroma style used when none is configured.
const DefaultStyle = "github"

// Renderer converts messages to HTML. It is safe for concurrent use.
type Renderer struct {
	style  string
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// New creates a Renderer highlighting code with the named chroma style. Unknown style names fall back to
// chroma's default style.
func New(style string) Renderer {
	if style == "" {
		style = DefaultStyle
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle(style),
				// Blocks without a language tag are still highlighted, the lexer is guessed from the code.
				highlighting.WithGuessLanguage(true),
				highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
			),
		),
	)

	policy := bluemonday.UGCPolicy()
	// Highlighted code is styled through classes, see CSS.
	policy.AllowStyling()

	return Renderer{
		style:  style,
		md:     md,
		policy: policy,
	}
}

// Text escapes s so that it is displayed literally.
func (r Renderer) Text(s string) template.HTML {
	return template.HTML(html.EscapeString(s))
}

// Markdown parses s as markdown and returns the sanitised HTML. Raw HTML embedded in s is never emitted.
func (r Renderer) Markdown(s string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(s), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes())), nil
}

// Message renders msg according to its role: only assistant text is trusted as markup.
func (r Renderer) Message(msg models.ChatMessage) (template.HTML, error) {
	if msg.Role.Trusted() {
		return r.Markdown(msg.Text)
	}
	return r.Text(msg.Text), nil
}

// CSS writes the stylesheet matching the classes emitted for highlighted code.
func (r Renderer) CSS(w io.Writer) error {
	style := styles.Get(r.style)
	if err := chromahtml.New(chromahtml.WithClasses(true)).WriteCSS(w, style); err != nil {
		return fmt.Errorf("failed to write chroma css: %w", err)
	}
	return nil
}
