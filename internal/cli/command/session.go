package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tabvault/tabvault-go/internal/archive"
	"github.com/tabvault/tabvault-go/internal/cli/connection"
	"github.com/tabvault/tabvault-go/internal/cli/output"
)

// SessionCommand returns the session subcommand group.
func SessionCommand() *cli.Command {
	return &cli.Command{
		Name:    "session",
		Aliases: []string{"sess"},
		Usage:   "Manage persisted sessions",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List persisted sessions",
				Action: sessionList,
			},
			{
				Name:      "get",
				Usage:     "Show one session",
				ArgsUsage: "SESSION_ID",
				Action:    sessionGet,
			},
			{
				Name:      "delete",
				Usage:     "Delete a session and its payloads",
				ArgsUsage: "SESSION_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "skip confirmation",
					},
				},
				Action: sessionDelete,
			},
			{
				Name:      "export",
				Usage:     "Export a session to an archive file",
				ArgsUsage: "SESSION_ID [FILE]",
				Flags:     []cli.Flag{passphraseFlag()},
				Action:    sessionExport,
			},
			{
				Name:      "import",
				Usage:     "Import an archive file as a new session",
				ArgsUsage: "FILE",
				Flags:     []cli.Flag{passphraseFlag()},
				Action:    sessionImport,
			},
			{
				Name:      "restore",
				Usage:     "Restore a session and make it active",
				ArgsUsage: "SESSION_ID",
				Action:    sessionRestore,
			},
		},
	}
}

// sessionDetails mirrors the server's session representation.
type sessionDetails struct {
	ID            string    `json:"id"`
	FileName      string    `json:"file_name"`
	SheetName     string    `json:"sheet_name,omitempty"`
	RowCount      int       `json:"row_count"`
	ColumnCount   int       `json:"column_count"`
	Columns       []string  `json:"columns,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	AppVersion    string    `json:"app_version"`
	SchemaVersion string    `json:"schema_version"`
	HasDataset    bool      `json:"has_dataset"`
	IsChunked     bool      `json:"is_chunked"`
	HasFilters    bool      `json:"has_filters"`
	HasCharts     bool      `json:"has_charts"`
}

// sessionRow is the list table shape. The wide tags hide the long tail
// of columns unless wide mode asks for them.
type sessionRow struct {
	Active      string    `json:"active"`
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	SheetName   string    `json:"sheet_name" table:"wide"`
	RowCount    int       `json:"row_count"`
	ColumnCount int       `json:"column_count" table:"wide"`
	UpdatedAt   time.Time `json:"updated_at"`
	AppVersion  string    `json:"app_version" table:"wide"`
	IsChunked   bool      `json:"is_chunked" table:"wide"`
}

func sessionList(c *cli.Context) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqContext(c)
	defer cancel()

	resp, err := client.Get(ctx, "/sessions")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var list struct {
		Items []sessionDetails `json:"items"`
		Total int              `json:"total"`
	}
	if err := connection.ParseResponse(resp, &list); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	if output.Format(flags.Output) != output.FormatTable {
		return formatFor(c).Format(c.App.Writer, list)
	}

	activeID := activeSessionID(ctx, client)
	rows := make([]sessionRow, 0, len(list.Items))
	for _, item := range list.Items {
		marker := ""
		if item.ID == activeID {
			marker = "*"
		}
		rows = append(rows, sessionRow{
			Active:      marker,
			ID:          item.ID,
			FileName:    item.FileName,
			SheetName:   item.SheetName,
			RowCount:    item.RowCount,
			ColumnCount: item.ColumnCount,
			UpdatedAt:   item.UpdatedAt,
			AppVersion:  item.AppVersion,
			IsChunked:   item.IsChunked,
		})
	}

	formatter := &output.TableFormatter{Wide: flags.Wide}
	if err := formatter.Format(c.App.Writer, rows); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "\nTotal: %d sessions\n", list.Total)
	return nil
}

// activeSessionID resolves the active session, or "" when none is set
// or the lookup fails. List output degrades to no marker either way.
func activeSessionID(ctx context.Context, client *connection.HTTPClient) string {
	resp, err := client.Get(ctx, "/sessions/active")
	if err != nil {
		return ""
	}
	var s sessionDetails
	if err := connection.ParseResponse(resp, &s); err != nil {
		return ""
	}
	return s.ID
}

func sessionGet(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("session ID required")
	}

	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqContext(c)
	defer cancel()

	resp, err := client.Get(ctx, "/sessions/"+id)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var s sessionDetails
	if err := connection.ParseResponse(resp, &s); err != nil {
		return err
	}
	return formatFor(c).Format(c.App.Writer, &s)
}

func sessionDelete(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("session ID required")
	}

	if !c.Bool("force") {
		fmt.Fprintf(c.App.Writer, "Delete session %s and its payloads? [y/N]: ", id)
		var confirm string
		fmt.Fscanln(c.App.Reader, &confirm)
		if confirm != "y" && confirm != "Y" {
			fmt.Fprintln(c.App.Writer, "Cancelled.")
			return nil
		}
	}

	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqContext(c)
	defer cancel()

	resp, err := client.Delete(ctx, "/sessions/"+id)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := connection.ParseResponse(resp, nil); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Session %s deleted.\n", id)
	return nil
}

func sessionExport(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("session ID required")
	}

	client, err := newClient(c)
	if err != nil {
		return err
	}
	resp, err := client.Stream(c.Context, http.MethodGet, "/sessions/"+id+"/archive", passphraseHeader(c))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return connection.ParseResponse(resp, nil)
	}
	defer resp.Body.Close()

	path := c.Args().Get(1)
	if path == "" {
		path = exportFileName(resp.Header.Get("Content-Disposition"), id)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	bar := output.NewProgressBar(c.App.ErrWriter, "downloading")
	if resp.ContentLength > 0 {
		bar.SetTotal(resp.ContentLength)
	}
	_, err = io.Copy(out, bar.Reader(resp.Body))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		bar.Stop()
		os.Remove(path)
		return fmt.Errorf("download archive: %w", err)
	}
	bar.Finish()

	fmt.Fprintf(c.App.Writer, "Exported session %s to %s\n", id, path)
	if sum := resp.Header.Get("X-Archive-Checksum"); sum != "" {
		fmt.Fprintf(c.App.Writer, "Checksum: %s\n", sum)
	}
	return nil
}

// exportFileName derives the local file name from the server's
// Content-Disposition, guarding against path components in it.
func exportFileName(disposition, sessionID string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := filepath.Base(params["filename"]); name != "" && name != "." && name != string(filepath.Separator) {
				return name
			}
		}
	}
	return sessionID + archive.DefaultExtension
}

func sessionImport(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("archive file required")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	bar := output.NewProgressBar(c.App.ErrWriter, "uploading")
	bar.SetTotal(st.Size())

	client, err := newClient(c)
	if err != nil {
		return err
	}
	resp, err := client.Upload(c.Context, "/sessions/archive", bar.Reader(f), st.Size(), passphraseHeader(c))
	if err != nil {
		bar.Stop()
		return fmt.Errorf("request failed: %w", err)
	}
	bar.Finish()

	var result struct {
		Session   sessionDetails `json:"session"`
		RowCount  int            `json:"row_count"`
		Chunked   bool           `json:"chunked"`
		Encrypted bool           `json:"encrypted"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	if output.Format(flags.Output) != output.FormatTable {
		return formatFor(c).Format(c.App.Writer, result)
	}
	note := ""
	if result.Chunked {
		note = ", chunked"
	}
	fmt.Fprintf(c.App.Writer, "Imported %s as session %s (%d rows%s)\n",
		filepath.Base(path), result.Session.ID, result.RowCount, note)
	return nil
}

// restoreEvent is one NDJSON line of the restore stream: a progress
// line, the terminal result, or an in-band error.
type restoreEvent struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`

	Done           bool           `json:"done"`
	Session        sessionDetails `json:"session"`
	RowCount       int            `json:"row_count"`
	SkippedChunks  []int          `json:"skipped_chunks"`
	DurationMillis int64          `json:"duration_ms"`

	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func sessionRestore(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("session ID required")
	}

	client, err := newClient(c)
	if err != nil {
		return err
	}
	resp, err := client.Stream(c.Context, http.MethodPost, "/sessions/"+id+"/restore", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return connection.ParseResponse(resp, nil)
	}
	defer resp.Body.Close()

	bar := output.NewProgressBar(c.App.ErrWriter, "restoring")
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev restoreEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			bar.Stop()
			return fmt.Errorf("parse restore stream: %w", err)
		}

		switch {
		case ev.Error != nil:
			bar.Stop()
			return fmt.Errorf("[%s] %s", ev.Error.Code, ev.Error.Message)
		case ev.Done:
			bar.Finish()
			restored := ev.Session.ID
			if restored == "" {
				restored = id
			}
			fmt.Fprintf(c.App.Writer, "Session %s restored: %d rows in %s\n",
				restored, ev.RowCount, time.Duration(ev.DurationMillis)*time.Millisecond)
			if n := len(ev.SkippedChunks); n > 0 {
				fmt.Fprintf(c.App.Writer, "Warning: %d chunks were unreadable; the dataset is partial.\n", n)
			}
			return nil
		default:
			bar.UpdateStage(ev.Percent, ev.Stage)
		}
	}
	bar.Stop()
	if err := sc.Err(); err != nil {
		return fmt.Errorf("restore stream interrupted: %w", err)
	}
	return fmt.Errorf("restore stream ended without a result")
}
