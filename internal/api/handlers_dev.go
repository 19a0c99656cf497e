package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/micro-nova/gpiointr/internal/models"
)

func (h *Handlers) listNodes(w http.ResponseWriter, r *http.Request) {
	nodes := []models.Node{}
	for _, name := range h.nodes.Names() {
		ep, err := h.nodes.Lookup(name)
		if err != nil {
			continue // unregistered in between
		}
		nodes = append(nodes, models.Node{
			Name:     ep.Name(),
			Path:     ep.Path(),
			Class:    ep.Class(),
			Capacity: ep.Capacity(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes})
}

// readNode opens the node, serves it and releases it. With ?length= (and
// optionally ?offset=) it performs one positioned read instead of streaming
// the whole buffer.
func (h *Handlers) readNode(w http.ResponseWriter, r *http.Request) {
	ep, err := h.nodes.Lookup(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	offset, _, err := int64Query(r, "offset")
	if err != nil {
		writeError(w, err)
		return
	}
	length, partial, err := int64Query(r, "length")
	if err != nil {
		writeError(w, err)
		return
	}

	handle := ep.Open()
	defer handle.Release()

	if offset != 0 {
		if _, err := handle.Seek(offset, io.SeekStart); err != nil {
			writeError(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Press-Count", strconv.FormatUint(handle.Count(), 10))

	if partial {
		if length > int64(ep.Capacity()) {
			length = int64(ep.Capacity())
		}
		chunk, err := handle.ReadN(int(length))
		if err != nil {
			w.Header().Del("X-Press-Count")
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(chunk)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(chunk)
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, handle); err != nil {
		slog.Debug("api: node read aborted", "node", ep.Name(), "err", err)
	}
}

// writeNode routes a write through a real handle so the rejection comes from
// the node itself.
func (h *Handlers) writeNode(w http.ResponseWriter, r *http.Request) {
	ep, err := h.nodes.Lookup(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(ep.Capacity())))
	if err != nil {
		writeError(w, models.ErrBadRequest("unreadable body: "+err.Error()))
		return
	}

	handle := ep.Open()
	defer handle.Release()
	if _, err := handle.Write(body); err != nil {
		slog.Warn("api: write to read-only node rejected", "node", ep.Name(), "remote", r.RemoteAddr)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
