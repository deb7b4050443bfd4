package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ADDICT-HUB/X-guru-pair/internal/domain"
)

func newSessionsRouter(svc PairingAPI) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/sessions", New(svc).ListSessions)
	return r
}

func TestListSessions_DefaultsAndClamping(t *testing.T) {
	var gotPage, gotSize int
	r := newSessionsRouter(stubPairingSvc{
		sessions: func(_ context.Context, page, pageSize int) ([]domain.SessionMeta, int64, error) {
			gotPage, gotSize = page, pageSize
			return []domain.SessionMeta{{
				SessionID: "s1",
				RequestID: "r1",
				Phone:     "+15551234567",
				ReadyAt:   time.Now(),
			}}, 1, nil
		},
	})

	cases := []struct {
		query          string
		wantPage, want int
	}{
		{"", 1, defaultPageSize},
		{"?page=3&page_size=50", 3, 50},
		{"?page=-1&page_size=0", 1, defaultPageSize},
		{"?page_size=9999", 1, defaultPageSize},
		{"?page=abc&page_size=xyz", 1, defaultPageSize},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/sessions"+tc.query, nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("query %q: expected 200, got %d", tc.query, w.Code)
		}
		if gotPage != tc.wantPage || gotSize != tc.want {
			t.Fatalf("query %q: page=%d size=%d", tc.query, gotPage, gotSize)
		}
	}

	// Response shape.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	r.ServeHTTP(w, req)
	var resp ListSessionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Total != 1 || len(resp.Sessions) != 1 || resp.Sessions[0].SessionID != "s1" {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestListSessions_ServiceError(t *testing.T) {
	r := newSessionsRouter(stubPairingSvc{
		sessions: func(context.Context, int, int) ([]domain.SessionMeta, int64, error) {
			return nil, 0, errors.New("db down")
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v", err)
	}
	if er.Code != ErrCodeListFailed {
		t.Fatalf("expected %q, got %q", ErrCodeListFailed, er.Code)
	}
}
