package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/asafonov/docqa/internal/core/domain"
)

// streamAnswer serves the streamed answer as server-sent events. Event order
// mirrors the orchestrator contract: thread first, done or error last.
func (rt *Router) streamAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	req, ok := decodeAnswerRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported by response writer"})
		return
	}

	events, err := rt.answers.StreamAnswer(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		if event.Type == domain.EventDone && event.Done != nil {
			rt.recordAnswer(event.Done)
		}
		if err := writeSSEEvent(w, event); err != nil {
			// Client is gone; the context cancellation stops the
			// orchestrator, just drain what remains.
			for range events {
			}
			return
		}
		flusher.Flush()
	}
}

func writeSSEEvent(w http.ResponseWriter, event domain.StreamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
		return err
	}
	return nil
}
