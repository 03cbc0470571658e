package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/orchestrator"
	"github.com/corvid-labs/agentchain/types"
)

// Response is the unified API envelope.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo is the serialized error payload.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 envelope.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError maps an error onto the envelope, honoring engine error codes.
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status := http.StatusInternalServerError
	info := &ErrorInfo{Code: string(types.ErrInternalError), Message: err.Error()}

	var engineErr *types.Error
	if errors.As(err, &engineErr) {
		info.Code = string(engineErr.Code)
		info.Message = engineErr.Message
		info.Retryable = engineErr.Retryable
		if engineErr.HTTPStatus != 0 {
			status = engineErr.HTTPStatus
		}
	}

	if logger != nil {
		logger.Warn("API error",
			zap.String("code", info.Code),
			zap.Int("status", status),
			zap.Error(err))
	}
	WriteJSON(w, status, Response{
		Success:   false,
		Error:     info,
		Timestamp: time.Now(),
	})
}

// DecodeJSON parses the request body into dst.
func DecodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return types.NewError(types.ErrInvalidRequest, "invalid request body").WithCause(err)
	}
	return nil
}

// sseWriter frames server-sent events as "data: <json>\n\n".
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter sets stream headers and returns a writer, or false when the
// connection cannot stream.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, flusher: flusher}, true
}

// send writes one event frame.
func (s *sseWriter) send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(payload); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// keepAlive writes a comment frame. Proxies drop idle connections; a
// periodic comment keeps the stream open without emitting an event.
func (s *sseWriter) keepAlive() error {
	if _, err := s.w.Write([]byte(": keep-alive\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// done writes the stream terminator.
func (s *sseWriter) done() {
	_, _ = s.w.Write([]byte("data: [DONE]\n\n"))
	s.flusher.Flush()
}

// sseKeepAliveInterval bounds idle time between frames while an agent runs.
const sseKeepAliveInterval = 15 * time.Second

// streamEvents forwards events until the channel closes, interleaving
// keep-alive comments, and finishes with the [DONE] terminator. Returns the
// final stream status and the first write error, if the client went away.
func streamEvents(sse *sseWriter, ch <-chan orchestrator.Event) (string, error) {
	ticker := time.NewTicker(sseKeepAliveInterval)
	defer ticker.Stop()

	status := "completed"
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				sse.done()
				return status, nil
			}
			if e.Type == orchestrator.EventStreamError {
				status = "failed"
			}
			if err := sse.send(e); err != nil {
				return status, err
			}
		case <-ticker.C:
			if err := sse.keepAlive(); err != nil {
				return status, err
			}
		}
	}
}
