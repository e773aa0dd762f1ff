package rest

import (
	"encoding/json"
	"net/http"

	"bitbucket.org/kleinnic74/tourist/domain"
	"bitbucket.org/kleinnic74/tourist/events"
	"bitbucket.org/kleinnic74/tourist/logging"

	"github.com/gorilla/mux"
)

// SSEHandler streams cache change events to gallery clients. A client
// re-pulls the photos of the named marker on every event instead of
// trusting any payload.
type SSEHandler struct {
	bus *events.Bus
}

func NewSSEHandler(bus *events.Bus) *SSEHandler {
	return &SSEHandler{bus: bus}
}

func (e *SSEHandler) InitRoutes(router *mux.Router) {
	router.HandleFunc("/events", e.listen).Methods("GET").Name("/events")
}

func (e *SSEHandler) listen(w http.ResponseWriter, r *http.Request) {
	logger := logging.From(r.Context())
	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Warn("HTTP Flusher not supported")
		w.WriteHeader(http.StatusNotImplemented)
		return
	}

	var sub *events.Subscription
	if marker := r.URL.Query().Get("marker"); marker != "" {
		sub = e.bus.Subscribe(domain.MarkerID(marker))
	} else {
		sub = e.bus.SubscribeAll()
	}
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for {
		select {
		case change, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := json.NewEncoder(w).Encode(change); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
