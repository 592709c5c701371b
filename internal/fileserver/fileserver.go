// Package fileserver implements the out-of-band HTTP file transfer
// surface (§4.7): an authenticated-nowhere upload endpoint that stores
// an opaque blob under a collision-avoiding name, and a download
// endpoint that streams it back. Neither endpoint participates in the
// signed-envelope protocol; transfers are plain HTTP on the same
// listener as the WebSocket surface.
package fileserver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"olafchat/internal/logging"
	"olafchat/internal/metrics"
	"olafchat/internal/store"
)

// MaxFileSize bounds a single upload, matching the reference server's
// limit.
const MaxFileSize = 10 * 1024 * 1024

// Server serves /api/upload and /downloads/{name}.
type Server struct {
	uploadDir   string
	ledger      *store.UploadLedger       // optional
	bytesServed *store.BytesServedCounter // optional
	publicURL   func(r *http.Request, name string) string
}

// New builds a Server rooted at uploadDir, creating it if necessary.
// ledger and bytesServed may be nil to skip metadata persistence and
// the Redis-backed bytes-served counter respectively.
func New(uploadDir string, ledger *store.UploadLedger, bytesServed *store.BytesServedCounter) (*Server, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("fileserver: create upload dir: %w", err)
	}
	return &Server{
		uploadDir:   uploadDir,
		ledger:      ledger,
		bytesServed: bytesServed,
		publicURL:   defaultPublicURL,
	}, nil
}

func defaultPublicURL(r *http.Request, name string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/downloads/%s", scheme, r.Host, name)
}

// Register mounts the file transfer routes onto an existing router, so
// they share the listener the WebSocket server binds.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/api/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/downloads/{name}", s.handleDownload).Methods(http.MethodGet)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxFileSize)
	if err := r.ParseMultipartForm(MaxFileSize); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file part in the request")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "no selected file")
		return
	}

	name, err := uniqueFilename(header.Filename)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate filename")
		return
	}

	dst, err := os.Create(filepath.Join(s.uploadDir, name))
	if err != nil {
		logging.Error("create upload file failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}
	defer dst.Close()

	written, err := io.Copy(dst, file)
	if err != nil {
		logging.Error("write upload file failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}
	metrics.BytesUploaded.Add(float64(written))

	if s.ledger != nil {
		rec := store.UploadRecord{
			Name:         name,
			OriginalName: header.Filename,
			Size:         written,
			ContentType:  header.Header.Get("Content-Type"),
			UploadedAt:   time.Now(),
		}
		if err := s.ledger.Record(r.Context(), rec); err != nil {
			logging.Warn("upload ledger record failed", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"file_url": s.publicURL(r, name)})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	path := filepath.Join(s.uploadDir, filepath.Base(name))

	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	contentType := "application/octet-stream"
	if s.ledger != nil {
		if rec, ok, err := s.ledger.Lookup(r.Context(), name); err != nil {
			logging.Warn("upload ledger lookup failed", zap.String("name", name), zap.Error(err))
		} else if ok {
			if rec.ContentType != "" {
				contentType = rec.ContentType
			}
			if rec.OriginalName != "" {
				w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.OriginalName))
			}
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	written, err := io.Copy(w, f)
	if err != nil {
		logging.Debug("download stream interrupted", zap.String("name", name), zap.Error(err))
		return
	}
	metrics.BytesDownloaded.Add(float64(written))

	if s.bytesServed != nil {
		if err := s.bytesServed.Add(r.Context(), written); err != nil {
			logging.Warn("bytes-served counter update failed", zap.Error(err))
		}
	}
}

func uniqueFilename(original string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b) + filepath.Ext(original), nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
