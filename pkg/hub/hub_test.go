package hub

import (
	"testing"
	"time"
)

func waitForCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount = %d, want %d", h.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRegisterUnregister(t *testing.T) {
	h := New("scan_1")
	go h.Run()

	c := &Client{hub: h, send: make(chan []byte, 1)}
	h.register <- c
	waitForCount(t, h, 1)

	h.unregister <- c
	waitForCount(t, h, 0)

	// The hub closes the send channel on unregister.
	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("send channel should be closed, got a payload")
		}
	case <-time.After(time.Second):
		t.Error("send channel should be closed")
	}
}

func TestBroadcastDeliversToClients(t *testing.T) {
	h := New("scan_1")
	go h.Run()

	c := &Client{hub: h, send: make(chan []byte, 4)}
	h.register <- c
	waitForCount(t, h, 1)

	h.Broadcast([]byte(`{"type":"detection"}`))

	select {
	case payload := <-c.send:
		if string(payload) != `{"type":"detection"}` {
			t.Errorf("payload = %s, want the broadcast bytes", payload)
		}
	case <-time.After(time.Second):
		t.Error("client should receive the broadcast")
	}
}

// Slow clients are dropped from inside the broadcast loop while other
// goroutines poll ClientCount. Run under -race: the drop mutates the
// client map, so it must hold the write lock.
func TestSlowClientDropConcurrentWithCount(t *testing.T) {
	h := New("scan_1")
	go h.Run()

	// Unbuffered send channels with no reader: every broadcast takes
	// the slow-drop path.
	for i := 0; i < 8; i++ {
		h.register <- &Client{hub: h, send: make(chan []byte)}
	}
	waitForCount(t, h, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			h.ClientCount()
		}
	}()

	for i := 0; i < 50; i++ {
		h.Broadcast([]byte(`{}`))
	}

	<-done
	waitForCount(t, h, 0)
}

func TestRegistryReusesHubs(t *testing.T) {
	r := NewRegistry()

	a := r.Get("scan_a")
	if a == nil {
		t.Fatal("Get() returned nil")
	}
	if again := r.Get("scan_a"); again != a {
		t.Error("Get() should return the same hub for the same channel")
	}
	if other := r.Get("scan_b"); other == a {
		t.Error("Get() should return distinct hubs per channel")
	}

	if got := r.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
}
