package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// VerifyProgress is sent as a "progress" event while a scan runs.
type VerifyProgress struct {
	Done    int     `json:"done"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// VerifySSE streams the progress of a database scan as Server-Sent Events.
// GET /api/verify/stream?type=one-sided&workers=...&tolerance=...
func (h *Handlers) VerifySSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeSSEError(w, "streaming not supported")
		return
	}

	query := r.URL.Query()
	req := VerifyRequest{
		Type:      query.Get("type"),
		Workers:   parseIntParam(query.Get("workers"), 0),
		Tolerance: parseFloatParam(query.Get("tolerance"), 0),
	}

	progress := func(done, total int) {
		writeSSEEvent(w, "progress", VerifyProgress{
			Done:    done,
			Total:   total,
			Percent: float64(done) * 100 / float64(total),
		})
		flusher.Flush()
	}

	resp, err := h.verify(r.Context(), req, progress)
	if err != nil {
		writeSSEError(w, "verify failed: "+err.Error())
		return
	}

	writeSSEEvent(w, "result", resp)
	writeSSEEvent(w, "done", nil)
	flusher.Flush()
}

// writeSSEEvent writes a Server-Sent Event to the response.
func writeSSEEvent(w http.ResponseWriter, event string, data any) {
	fmt.Fprintf(w, "event: %s\n", event)
	if data != nil {
		jsonData, _ := json.Marshal(data)
		fmt.Fprintf(w, "data: %s\n", jsonData)
	}
	fmt.Fprint(w, "\n")
}

// writeSSEError writes an error event and closes the stream.
func writeSSEError(w http.ResponseWriter, message string) {
	writeSSEEvent(w, "error", ErrorResponse{Error: message})
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// parseIntParam parses an integer from a string with a default value.
func parseIntParam(s string, defaultVal int) int {
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return val
}

func parseFloatParam(s string, defaultVal float64) float64 {
	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return defaultVal
	}
	return val
}
