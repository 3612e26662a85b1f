package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	ErrBodyTooLarge = errors.New("request body exceeds allowed size")
	ErrEmptyBody    = errors.New("request body is required")
)

// DecodeJSON reads one JSON object of at most limit bytes into dst, rejecting
// unknown fields and trailing data. An empty body is allowed when optional is set.
func DecodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any, optional bool) error {
	reader := http.MaxBytesReader(w, r.Body, limit)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return ErrBodyTooLarge
		case errors.Is(err, io.EOF):
			if optional {
				return nil
			}
			return ErrEmptyBody
		default:
			return fmt.Errorf("invalid request body: %w", err)
		}
	}
	if decoder.More() {
		return errors.New("invalid request body: extraneous data")
	}
	return nil
}

// WriteDecodeError maps a DecodeJSON failure onto the envelope.
func WriteDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrBodyTooLarge) {
		WriteError(r.Context(), w, NewError("payload_too_large", err.Error(), http.StatusRequestEntityTooLarge))
		return
	}
	WriteError(r.Context(), w, NewError("invalid_request", err.Error(), http.StatusBadRequest))
}
