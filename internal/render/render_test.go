package render_test

import (
	"strings"
	"testing"

	"github.com/MegaGrindStone/chatwidget/internal/models"
	"github.com/MegaGrindStone/chatwidget/internal/render"
)

func TestRendererMessage(t *testing.T) {
	r := render.New("")

	tests := []struct {
		name        string
		msg         models.ChatMessage
		wantContain []string
		wantAbsent  []string
	}{
		{
			name:        "User markup is escaped",
			msg:         models.ChatMessage{Role: models.RoleUser, Text: "<b>bold</b> **not bold**"},
			wantContain: []string{"&lt;b&gt;bold&lt;/b&gt;", "**not bold**"},
			wantAbsent:  []string{"<b>", "<strong>"},
		},
		{
			name:        "System markup is escaped",
			msg:         models.ChatMessage{Role: models.RoleSystem, Text: "<script>x</script>"},
			wantContain: []string{"&lt;script&gt;"},
			wantAbsent:  []string{"<script>"},
		},
		{
			name:        "Assistant markdown is parsed",
			msg:         models.ChatMessage{Role: models.RoleAssistant, Text: "**hi**"},
			wantContain: []string{"<strong>hi</strong>"},
		},
		{
			name:        "Assistant list",
			msg:         models.ChatMessage{Role: models.RoleAssistant, Text: "- one\n- two"},
			wantContain: []string{"<ul>", "<li>one</li>"},
		},
		{
			name:        "Assistant single newline is a soft break",
			msg:         models.ChatMessage{Role: models.RoleAssistant, Text: "line one\nline two"},
			wantContain: []string{"<p>line one\nline two</p>"},
			wantAbsent:  []string{"<br"},
		},
		{
			name:        "Assistant blank line separates paragraphs",
			msg:         models.ChatMessage{Role: models.RoleAssistant, Text: "one\n\ntwo"},
			wantContain: []string{"<p>one</p>", "<p>two</p>"},
		},
		{
			name:        "Assistant raw HTML is dropped",
			msg:         models.ChatMessage{Role: models.RoleAssistant, Text: "hello <script>alert(1)</script>"},
			wantContain: []string{"hello"},
			wantAbsent:  []string{"<script>"},
		},
		{
			name:        "Assistant code block is highlighted",
			msg:         models.ChatMessage{Role: models.RoleAssistant, Text: "```go\nfunc main() {}\n```"},
			wantContain: []string{`class="chroma"`, "func", "main"},
		},
		{
			name:        "Assistant code block without language is highlighted",
			msg:         models.ChatMessage{Role: models.RoleAssistant, Text: "```\nx = 1\n```"},
			wantContain: []string{`class="chroma"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Message(tt.msg)
			if err != nil {
				t.Fatalf("Message() error = %v", err)
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(string(got), want) {
					t.Errorf("Message() = %v, want to contain %v", got, want)
				}
			}
			for _, absent := range tt.wantAbsent {
				if strings.Contains(string(got), absent) {
					t.Errorf("Message() = %v, want not to contain %v", got, absent)
				}
			}
		})
	}
}

func TestRendererCSS(t *testing.T) {
	var sb strings.Builder
	if err := render.New("monokai").CSS(&sb); err != nil {
		t.Fatalf("CSS() error = %v", err)
	}
	if !strings.Contains(sb.String(), ".chroma") {
		t.Errorf("CSS() = %v, want to contain .chroma rules", sb.String())
	}
}
