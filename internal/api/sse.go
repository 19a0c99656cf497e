package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/micro-nova/gpiointr/internal/models"
)

const sseEvent = "status"

// sseEvents streams status snapshots as "status" events whose id is the press
// count. A client reconnecting with Last-Event-ID equal to the current count
// gets no initial event; it already has that status. Snapshots whose count
// does not move past the last one sent are dropped.
func (h *Handlers) sseEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	id := uuid.New().String()
	ch := h.events.Subscribe(id)
	defer h.events.Unsubscribe(id)

	var (
		sent uint64
		primed bool
	)
	if last, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		sent, primed = last, true
	}
	send := func(st models.Status) {
		if primed && st.PressCount <= sent {
			return
		}
		if err := writeStatusEvent(w, st); err != nil {
			slog.Debug("api: sse write failed", "subscriber", id, "err", err)
			return
		}
		flusher.Flush()
		sent, primed = st.PressCount, true
	}

	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	send(h.ctrl.Status())

	for {
		select {
		case st, ok := <-ch:
			if !ok {
				return
			}
			send(st)
		case <-r.Context().Done():
			return
		}
	}
}

func writeStatusEvent(w http.ResponseWriter, st models.Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", sseEvent, st.PressCount, data)
	return err
}
