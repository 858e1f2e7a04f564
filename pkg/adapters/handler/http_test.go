package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/thitiwat-dev/go-shortlink/pkg/core/domain"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		kind   domain.Kind
		status int
	}{
		{domain.KindInvalidTarget, http.StatusBadRequest},
		{domain.KindInvalidCode, http.StatusBadRequest},
		{domain.KindCodeInUse, http.StatusBadRequest},
		{domain.KindCodeRequired, http.StatusBadRequest},
		{domain.KindNotFound, http.StatusNotFound},
		{domain.KindExhausted, http.StatusInternalServerError},
		{domain.KindUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, domain.E(tt.kind, "boom"))
			if rr.Code != tt.status {
				t.Errorf("kind %s: got status %d want %d", tt.kind, rr.Code, tt.status)
			}
		})
	}
}

func TestWriteErrorUntagged(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, domain.E(domain.KindUnavailable, "driver: connection refused"))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("got status %d want 503", rr.Code)
	}
	// Driver detail must not reach the client.
	if body := rr.Body.String(); strings.Contains(body, "connection refused") {
		t.Errorf("driver internals leaked: %s", body)
	}
}
