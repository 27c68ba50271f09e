package handler

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tabvault/tabvault-go/internal/archive"
	"github.com/tabvault/tabvault-go/internal/core/domain"
	"github.com/tabvault/tabvault-go/internal/core/service"
)

// handleExportArchive handles GET /sessions/{id}/archive. The archive
// is written to a scratch file and streamed out, so large datasets
// never live twice in memory. A passphrase in the X-Archive-Passphrase
// header encrypts the archive body.
func (h *Handler) handleExportArchive(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	session, err := h.engine.GetSession(r.Context(), sessionID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	dataset, _, err := h.engine.LoadDataset(r.Context(), sessionID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	filters, err := h.engine.LoadFilters(r.Context(), sessionID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	charts, err := h.engine.LoadCharts(r.Context(), sessionID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	var opts archive.Options
	if pass := r.Header.Get(headerPassphrase); pass != "" {
		opts = archive.Options{Passphrase: []byte(pass)}
	}

	dir, err := os.MkdirTemp("", "tabvault-export-")
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "export"+archive.DefaultExtension)
	info, err := archive.Write(path, &archive.Archive{
		Session: session,
		Dataset: dataset,
		Filters: filters,
		Charts:  charts,
	}, opts)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFileName(session)+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("X-Archive-Checksum", info.Checksum)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("archive download interrupted",
			"request_id", getRequestID(r), "session_id", sessionID, "error", err)
	}
}

// handleImportArchive handles POST /sessions/archive. The body is a
// raw archive file. Import always mints a fresh session and replays
// the archived payloads through the normal save path, so chunking is
// re-decided under this server's limits and the active session is
// never touched.
func (h *Handler) handleImportArchive(w http.ResponseWriter, r *http.Request) {
	dir, err := os.MkdirTemp("", "tabvault-import-")
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "import"+archive.DefaultExtension)
	if err := receiveArchive(w, r, path); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	var passphrase []byte
	if pass := r.Header.Get(headerPassphrase); pass != "" {
		passphrase = []byte(pass)
	}

	arch, info, err := archive.Read(path, passphrase)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	session, err := h.engine.CreateSession(r.Context(), arch.Session.Summary)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	importID := session.ID

	chunked := false
	if arch.Dataset != nil {
		resp, err := h.engine.SaveDataset(r.Context(), &service.SaveDatasetRequest{
			SessionID: importID,
			Dataset:   arch.Dataset,
		})
		if err != nil {
			h.discardImport(r, importID)
			h.handleServiceError(w, r, err)
			return
		}
		session = resp.Session
		chunked = resp.Chunked
	}
	if arch.Filters != nil {
		session, err = h.engine.SaveFilters(r.Context(), importID, arch.Filters)
		if err != nil {
			h.discardImport(r, importID)
			h.handleServiceError(w, r, err)
			return
		}
	}
	if len(arch.Charts) > 0 {
		session, err = h.engine.SaveCharts(r.Context(), importID, arch.Charts)
		if err != nil {
			h.discardImport(r, importID)
			h.handleServiceError(w, r, err)
			return
		}
	}

	h.writeJSON(w, r, http.StatusCreated, ImportArchiveResponse{
		Session:   sessionToResponse(session),
		RowCount:  session.Summary.RowCount,
		Chunked:   chunked,
		Encrypted: info.Encrypted,
	})
}

// receiveArchive spools a size-capped request body to the given path.
func receiveArchive(w http.ResponseWriter, r *http.Request, path string) error {
	body := http.MaxBytesReader(w, r.Body, maxArchiveBodyBytes)

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domain.ErrPayloadTooLarge.WithDetails("archive exceeds import size limit")
		}
		return domain.ErrBadRequest.WithDetails("reading archive body").WithCause(err)
	}
	return f.Close()
}

// discardImport removes a half-imported session so a failed import
// leaves no partial record behind.
func (h *Handler) discardImport(r *http.Request, sessionID string) {
	if err := h.engine.DeleteSession(r.Context(), sessionID); err != nil {
		h.logger.Warn("failed to discard partial import",
			"request_id", getRequestID(r), "session_id", sessionID, "error", err)
	}
}

// exportFileName derives the download name from the session's source
// file, replacing characters that would break the header.
func exportFileName(s *domain.Session) string {
	base := strings.TrimSuffix(s.Summary.FileName, filepath.Ext(s.Summary.FileName))
	if base == "" {
		base = s.ID
	}
	base = strings.Map(func(c rune) rune {
		switch c {
		case '/', '\\', '"', '\n', '\r':
			return '-'
		}
		return c
	}, base)
	return base + archive.DefaultExtension
}
