package logging_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/MegaGrindStone/chatwidget/internal/logging"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		format   string
		wantErr  bool
		wantLine string
	}{
		{name: "Defaults", wantLine: "level=INFO msg=hello"},
		{name: "Text debug", level: "debug", format: "text", wantLine: "level=INFO msg=hello"},
		{name: "JSON", level: "info", format: "json", wantLine: `"msg":"hello"`},
		{name: "Level filters", level: "error", format: "text"},
		{name: "Invalid level", level: "loud", wantErr: true},
		{name: "Invalid format", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := logging.New(&buf, tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			logger.Info("hello")
			if tt.wantLine == "" {
				if buf.Len() != 0 {
					t.Errorf("output = %v, want nothing", buf.String())
				}
				return
			}
			if !strings.Contains(buf.String(), tt.wantLine) {
				t.Errorf("output = %v, want to contain %v", buf.String(), tt.wantLine)
			}
		})
	}
}
