package command

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// mockServer is a TabVault server stand-in speaking the response
// envelope. Handlers register with method-qualified mux patterns.
type mockServer struct {
	*httptest.Server
	mux *http.ServeMux
}

func newMockServer(t *testing.T) *mockServer {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &mockServer{Server: srv, mux: mux}
}

func (m *mockServer) handle(pattern string, handler http.HandlerFunc) {
	m.mux.HandleFunc(pattern, handler)
}

// envelope writes a success response the way the server does.
func envelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"code":    "OK",
		"message": "Success",
		"data":    data,
	})
}

// errorEnvelope writes an error response. Both middleware refusals and
// handler envelopes carry code and message at the top level.
func errorEnvelope(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"code":    code,
		"message": message,
	})
}

// runCLI runs the app against the mock server and captures its output.
func runCLI(t *testing.T, srv *mockServer, args ...string) (string, error) {
	return runCLIInput(t, srv, "", args...)
}

// runCLIInput additionally feeds stdin, for confirmation prompts.
func runCLIInput(t *testing.T, srv *mockServer, input string, args ...string) (string, error) {
	t.Helper()

	// A scratch home keeps preference files out of the test.
	t.Setenv("HOME", t.TempDir())

	app := App()
	var buf bytes.Buffer
	app.Writer = &buf
	app.ErrWriter = io.Discard
	app.Reader = strings.NewReader(input)

	full := append([]string{"tabvault-cli", "--server", srv.URL}, args...)
	err := app.Run(full)
	return buf.String(), err
}

func sampleSession(id, fileName string, rows int) map[string]any {
	now := time.Now().UTC().Format(time.RFC3339)
	return map[string]any{
		"id":             id,
		"file_name":      fileName,
		"sheet_name":     "Sheet1",
		"row_count":      rows,
		"column_count":   3,
		"columns":        []string{"region", "amount", "date"},
		"created_at":     now,
		"updated_at":     now,
		"app_version":    "1.2.0",
		"schema_version": "1",
		"has_dataset":    true,
		"is_chunked":     false,
		"has_filters":    false,
		"has_charts":     false,
	}
}
