// Package api implements the HTTP surface of the bridge: the status device
// nodes as plain byte streams, a JSON status document and an SSE feed.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/micro-nova/gpiointr/internal/models"
	"github.com/micro-nova/gpiointr/internal/statusdev"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctrl   Controller
	nodes  Nodes
	events EventBus
}

// Controller is the view of the lifecycle controller the handlers need.
type Controller interface {
	Status() models.Status
}

// Nodes is the device node namespace.
type Nodes interface {
	Lookup(name string) (*statusdev.Endpoint, error)
	Names() []string
}

// EventBus is the interface for subscribing to status change events.
type EventBus interface {
	Subscribe(id string) <-chan models.Status
	Unsubscribe(id string)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes err as a JSON AppError, mapping statusdev errors first.
func writeError(w http.ResponseWriter, err error) {
	var appErr *models.AppError
	switch {
	case errors.As(err, &appErr):
	case errors.Is(err, statusdev.ErrNotFound):
		appErr = models.ErrNotFound(err.Error())
	case errors.Is(err, statusdev.ErrReadOnly):
		w.Header().Set("Allow", "GET")
		appErr = models.ErrReadOnly(err.Error())
	case errors.Is(err, statusdev.ErrNegativeLength), errors.Is(err, statusdev.ErrInvalidSeek):
		appErr = models.ErrBadRequest(err.Error())
	default:
		appErr = models.ErrInternal(err.Error())
	}
	writeJSON(w, appErr.Status, appErr)
}

// int64Query reads an optional integer query parameter.
func int64Query(r *http.Request, name string) (int64, bool, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, models.ErrBadRequest("invalid " + name + " parameter")
	}
	return n, true, nil
}
