package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/ADDICT-HUB/X-guru-pair/internal/otp"
	"github.com/ADDICT-HUB/X-guru-pair/internal/sms"
)

func TestSweeper_EvictsExpiredRecords(t *testing.T) {
	store := otp.NewStore(sms.Simulated{}, time.Millisecond)
	store.Issue(context.Background(), "r1", "+15551234567")

	s, err := New(store, time.Second)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.After(3 * time.Second)
	for {
		if _, ok := store.Get("r1"); !ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("expired record never swept")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestNew_DefaultInterval(t *testing.T) {
	store := otp.NewStore(sms.Simulated{}, 0)
	if _, err := New(store, 0); err != nil {
		t.Fatalf("default interval schedule: %v", err)
	}
}
