package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aegis-trader/aegis/internal/events"
)

// EventsStreamHandler streams system events to clients over Server-Sent
// Events. Run lifecycle, sweep, and backup events all flow through here.
type EventsStreamHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler.
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream requests (SSE).
// The optional "types" query parameter filters to a comma-separated subset.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	allowedTypes := parseTypesFilter(r.URL.Query().Get("types"))

	h.log.Info().
		Str("remote", r.RemoteAddr).
		Msg("Client connected to event stream")

	// Buffered so a slow client drops events instead of blocking publishers
	eventChan := make(chan *events.Event, 100)
	handler := func(event *events.Event) {
		select {
		case eventChan <- event:
		default:
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	}

	subscriptions := subscribeTypes(h.eventBus, allowedTypes, handler)
	defer func() {
		for eventType, id := range subscriptions {
			h.eventBus.Unsubscribe(eventType, id)
		}
	}()

	// Periodic keepalive comment so proxies don't drop the connection
	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Debug().Str("remote", r.RemoteAddr).Msg("Event stream client disconnected")
			return

		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()

		case event := <-eventChan:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

// parseTypesFilter converts a comma-separated types parameter to a set.
// Empty input means all known types.
func parseTypesFilter(raw string) []events.EventType {
	if raw == "" {
		return events.AllEventTypes
	}

	out := make([]events.EventType, 0)
	for _, t := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			out = append(out, events.EventType(trimmed))
		}
	}
	return out
}

// subscribeTypes registers a handler for each type and returns the
// subscription ids for cleanup.
func subscribeTypes(bus *events.Bus, types []events.EventType, handler events.Handler) map[events.EventType]int {
	subs := make(map[events.EventType]int, len(types))
	for _, eventType := range types {
		subs[eventType] = bus.Subscribe(eventType, handler)
	}
	return subs
}
