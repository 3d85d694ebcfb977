// Package rc implements a read-only HTTP introspection API over a mount
// table: the live mount list, a mounted filesystem's metadata, an
// overlay's deletion log, and a bridge's pending write-back queue, plus a
// Prometheus /metrics endpoint, in the style of rclone's fs/rc/rcserver.
package rc

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zenfs/zenfs/bridge"
	"github.com/zenfs/zenfs/fs"
	"github.com/zenfs/zenfs/mount"
	"github.com/zenfs/zenfs/vfs"
)

// Server is a read-only HTTP front end over a *mount.Table.
type Server struct {
	table  *mount.Table
	router chi.Router
}

// New builds a Server routed per the /mounts, /overlay and /bridge
// introspection endpoints plus /metrics.
func New(table *mount.Table) *Server {
	s := &Server{table: table, router: chi.NewRouter()}
	s.routes()
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Get("/mounts", s.handleListMounts)
	s.router.Get("/mounts/{prefix:.*}/metadata", s.handleMountMetadata)
	s.router.Get("/overlay/{prefix:.*}/deleted", s.handleOverlayDeleted)
	s.router.Get("/bridge/{prefix:.*}/queue", s.handleBridgeQueue)
	s.router.Handle("/metrics", promhttp.Handler())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errno, ok := fs.AsErrno(err); ok {
		switch errno {
		case fs.ENOENT:
			status = http.StatusNotFound
		case fs.EPERM, fs.EACCES, fs.EROFS:
			status = http.StatusForbidden
		case fs.EINVAL:
			status = http.StatusBadRequest
		case fs.ENOTSUP:
			status = http.StatusNotImplemented
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// prefixParam decodes the chi {prefix} wildcard back into an absolute
// mount prefix. Routes accept it without a leading slash (chi treats "/"
// specially as a path segment) so "root" mounts are addressed as "_root".
func prefixParam(r *http.Request) string {
	p := chi.URLParam(r, "prefix")
	if p == "_root" {
		return "/"
	}
	return "/" + p
}

func (s *Server) handleListMounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"mounts": s.table.List()})
}

func (s *Server) handleMountMetadata(w http.ResponseWriter, r *http.Request) {
	prefix := prefixParam(r)
	fsys, ok := s.table.Get(prefix)
	if !ok {
		writeError(w, fs.NewError("rc", prefix, fs.ENOENT))
		return
	}
	writeJSON(w, http.StatusOK, fsys.Metadata(r.Context()))
}

// overlayAt unwraps fs.FileSystem decorators looking for a *vfs.Overlay.
func overlayAt(fsys fs.FileSystem) (*vfs.Overlay, bool) {
	switch v := fsys.(type) {
	case *vfs.Overlay:
		return v, true
	case interface{ Unwrap() fs.FileSystem }:
		return overlayAt(v.Unwrap())
	default:
		return nil, false
	}
}

// bridgeAt unwraps fs.FileSystem decorators looking for a *bridge.Bridge.
func bridgeAt(fsys fs.FileSystem) (*bridge.Bridge, bool) {
	switch v := fsys.(type) {
	case *bridge.Bridge:
		return v, true
	case interface{ Unwrap() fs.FileSystem }:
		return bridgeAt(v.Unwrap())
	default:
		return nil, false
	}
}

func (s *Server) handleOverlayDeleted(w http.ResponseWriter, r *http.Request) {
	prefix := prefixParam(r)
	fsys, ok := s.table.Get(prefix)
	if !ok {
		writeError(w, fs.NewError("rc", prefix, fs.ENOENT))
		return
	}
	ov, ok := overlayAt(fsys)
	if !ok {
		writeError(w, fs.NewError("rc", prefix, fs.EINVAL))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": ov.DeletedNames()})
}

func (s *Server) handleBridgeQueue(w http.ResponseWriter, r *http.Request) {
	prefix := prefixParam(r)
	fsys, ok := s.table.Get(prefix)
	if !ok {
		writeError(w, fs.NewError("rc", prefix, fs.ENOENT))
		return
	}
	br, ok := bridgeAt(fsys)
	if !ok {
		writeError(w, fs.NewError("rc", prefix, fs.EINVAL))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"depth":     br.QueueLen(),
		"lastError": errString(br.Err()),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
