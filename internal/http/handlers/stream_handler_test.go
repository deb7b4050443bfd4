package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ADDICT-HUB/X-guru-pair/internal/domain"
	"github.com/ADDICT-HUB/X-guru-pair/internal/services"
)

func newStreamServer(svc PairingAPI) *httptest.Server {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/pair/:requestId/events", New(svc).StreamEvents)
	return httptest.NewServer(r)
}

func TestStreamEvents_UnknownRequestIsJSON404(t *testing.T) {
	srv := newStreamServer(stubPairingSvc{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/pair/ghost/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestStreamEvents_InitialSnapshotThenUpdates(t *testing.T) {
	updates := make(chan domain.PairingRequest, 1)
	var statusCalls atomic.Int32
	svc := stubPairingSvc{
		watch: func(string) (<-chan domain.PairingRequest, func(), bool) {
			return updates, func() {}, true
		},
		status: func(_ context.Context, requestID string) (services.StatusSnapshot, error) {
			snap := services.StatusSnapshot{RequestID: requestID, Status: domain.StatusInitializing}
			if statusCalls.Add(1) > 1 {
				snap.Status = domain.StatusReady
				snap.SessionID = "s1"
			}
			return snap, nil
		},
	}
	srv := newStreamServer(svc)
	defer srv.Close()

	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) + "/pair/r1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first services.StatusSnapshot
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if first.RequestID != "r1" || first.Status != domain.StatusInitializing {
		t.Fatalf("unexpected initial snapshot: %+v", first)
	}

	updates <- domain.PairingRequest{RequestID: "r1", Status: domain.StatusReady}

	var second services.StatusSnapshot
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if second.Status != domain.StatusReady || second.SessionID != "s1" {
		t.Fatalf("unexpected update: %+v", second)
	}
}

func TestStreamEvents_ChannelCloseEndsStream(t *testing.T) {
	updates := make(chan domain.PairingRequest)
	svc := stubPairingSvc{
		watch: func(string) (<-chan domain.PairingRequest, func(), bool) {
			return updates, func() {}, true
		},
		status: func(_ context.Context, requestID string) (services.StatusSnapshot, error) {
			return services.StatusSnapshot{RequestID: requestID}, nil
		},
	}
	srv := newStreamServer(svc)
	defer srv.Close()

	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) + "/pair/r1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first services.StatusSnapshot
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}

	close(updates)

	// The server ends the stream; the next read must fail.
	if err := conn.ReadJSON(&first); err == nil {
		t.Fatal("expected stream to end after subscription close")
	}
}
