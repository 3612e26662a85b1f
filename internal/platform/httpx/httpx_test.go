package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hanko-field/orderengine/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc123"})
	rec := httptest.NewRecorder()

	WriteError(ctx, rec, NewError("insufficient_stock", "not enough\nstock", http.StatusConflict).
		WithDetails(map[string]any{"product_id": "p1", "available": 2}))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "insufficient_stock" || body["message"] != "not enough stock" {
		t.Fatalf("unexpected envelope %v", body)
	}
	if body["product_id"] != "p1" || body["trace_id"] != "abc123" {
		t.Fatalf("expected details and trace id, got %v", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Reason string `json:"reason"`
	}

	tests := []struct {
		name     string
		body     string
		optional bool
		wantErr  error
		wantAny  bool
	}{
		{name: "valid", body: `{"reason":"late"}`},
		{name: "empty optional", body: "", optional: true},
		{name: "empty required", body: "", wantErr: ErrEmptyBody},
		{name: "unknown field", body: `{"nope":1}`, wantAny: true},
		{name: "trailing data", body: `{"reason":"a"}{"reason":"b"}`, wantAny: true},
		{name: "too large", body: `{"reason":"` + strings.Repeat("x", 200) + `"}`, wantErr: ErrBodyTooLarge},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dst payload
			err := DecodeJSON(httptest.NewRecorder(), req, 64, &dst, tc.optional)
			switch {
			case tc.wantErr != nil:
				if err != tc.wantErr {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
			case tc.wantAny:
				if err == nil {
					t.Fatal("expected an error")
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
		})
	}
}
