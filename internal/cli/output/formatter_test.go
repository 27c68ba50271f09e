package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{FormatTable, "*output.TableFormatter"},
		{FormatJSON, "*output.JSONFormatter"},
		{FormatYAML, "*output.YAMLFormatter"},
		{Format("bogus"), "*output.TableFormatter"},
	}
	for _, tt := range tests {
		f := NewFormatter(tt.format, false)
		if got := typeName(f); got != tt.want {
			t.Errorf("NewFormatter(%q) = %s, want %s", tt.format, got, tt.want)
		}
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *TableFormatter:
		return "*output.TableFormatter"
	case *JSONFormatter:
		return "*output.JSONFormatter"
	case *YAMLFormatter:
		return "*output.YAMLFormatter"
	default:
		return "unknown"
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := &JSONFormatter{}
	err := f.Format(&buf, map[string]any{"name": "orders.xlsx", "rows": 120})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, `"name": "orders.xlsx"`) {
		t.Errorf("output missing indented name field:\n%s", got)
	}
	if !strings.HasSuffix(got, "\n") {
		t.Error("output does not end with a newline")
	}
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := &YAMLFormatter{}
	data := struct {
		Name string `yaml:"name"`
		Rows int    `yaml:"rows"`
	}{Name: "orders.xlsx", Rows: 120}

	if err := f.Format(&buf, data); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "name: orders.xlsx") || !strings.Contains(got, "rows: 120") {
		t.Errorf("unexpected YAML output:\n%s", got)
	}
}
