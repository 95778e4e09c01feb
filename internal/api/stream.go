package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleStream is the live update stream: one snapshot event, then every
// delta the room publishes, as server-sent events. Snapshot and subscription
// are taken atomically so no delta in between can be lost.
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	rm, _, ok := a.roomFromRequest(w, r, false)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	snapshot, sub := rm.SnapshotAndSubscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err := writeEvent(w, "snapshot", snapshot); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case delta, open := <-sub.Deltas():
			if !open {
				// Torn down for falling behind; the client reconnects for a
				// fresh snapshot.
				return
			}
			if err := writeEvent(w, "delta", delta); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
