package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sellerdesk/walink/internal/session"
)

func TestPublishPostsRecord(t *testing.T) {
	var mu sync.Mutex
	var got []payload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var pl payload
		if err := json.NewDecoder(r.Body).Decode(&pl); err != nil {
			t.Errorf("bad body: %v", err)
		}
		mu.Lock()
		got = append(got, pl)
		mu.Unlock()
	}))
	defer srv.Close()

	p := New(srv.URL, time.Second)
	defer p.Close()

	p.Publish(session.StatusRecord{
		TenantID: "seller-42",
		Status:   session.StatusConnected,
		Identity: "2135550100",
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("webhook never received the status update")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0].TenantID != "seller-42" || got[0].Status != "connected" || got[0].Identity != "2135550100" {
		t.Fatalf("unexpected payload: %+v", got[0])
	}
	if got[0].ConnectedAt == "" {
		t.Fatal("expected connected_at on connected transitions")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release // wedge the worker
	}))
	defer srv.Close()
	defer close(release)

	p := New(srv.URL, 5*time.Second)
	defer p.Close()

	// Overfill the queue against a wedged endpoint; every call must return
	// promptly.
	done := make(chan struct{})
	go func() {
		for i := 0; i < queueSize+50; i++ {
			p.Publish(session.StatusRecord{TenantID: "seller-1", Status: session.StatusDisconnected})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow webhook")
	}
}

func TestEmptyURLOnlyLogs(t *testing.T) {
	p := New("", time.Second)
	defer p.Close()

	// Must not panic or block
	p.Publish(session.StatusRecord{TenantID: "seller-1", Status: session.StatusQRPending})
	time.Sleep(20 * time.Millisecond)
}
