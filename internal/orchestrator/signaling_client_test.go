package orchestrator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantarax/relay/internal/rendezvous"
)

// silentUpgrader accepts the WebSocket handshake and then never writes
// anything back, so a client blocked in ReadJSON has nothing to wake it
// up except its own read deadline.
var silentUpgrader = websocket.Upgrader{}

func silentWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := silentUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	<-r.Context().Done()
	_ = conn.Close()
}

// A peer that goes silent mid-phase must produce a definite signaling
// error once its deadline elapses, not a goroutine blocked forever in
// ReadJSON (§5 Timeouts).
func TestSignalingClientDeadlineProducesSignalingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(silentWSHandler))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sc := &signalingClient{conn: conn}
	sc.setDeadline(50 * time.Millisecond)
	defer sc.clearDeadline()

	start := time.Now()
	_, err = sc.recvPayload(rendezvous.TypeSpake2)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected recvPayload to fail once the deadline elapsed")
	}
	relayErr, ok := err.(*Error)
	if !ok || relayErr.Kind != ErrorKindSignaling {
		t.Fatalf("recvPayload error = %v, want an *Error with Kind ErrorKindSignaling", err)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("recvPayload took %v to fail, want it bounded by the deadline", elapsed)
	}
}
