package orchestrator

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/quantarax/relay/internal/observability"
	"github.com/quantarax/relay/internal/rendezvous"
)

func testOrchestrator() *Orchestrator {
	logger := observability.NewLogger("relay-test", "test", io.Discard)
	return New("ws://127.0.0.1:0/ws", "", logger, nil, nil)
}

// A start_send whose file list fails to build (no real file at the
// given path) never touches the network: buildFileList fails before
// sendFlow is ever called, so this session reaches its terminal state
// almost immediately.
func TestRunSendRemovesSessionOnBuildFileListFailure(t *testing.T) {
	o := testOrchestrator()

	result, err := o.StartSend(context.Background(), []string{"/nonexistent/path/does-not-exist"})
	if err != nil {
		t.Fatalf("StartSend: %v", err)
	}

	sub := o.Subscribe(result.SessionID)
	defer o.Unsubscribe(sub)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub.Channel:
			if ev.Type == EventStateChanged && ev.State == "Errored" {
				goto terminal
			}
		case <-deadline:
			t.Fatal("timed out waiting for the session to reach Errored")
		}
	}
terminal:
	// The session's own goroutine removes itself via a defer right
	// after runSend's flow returns; give it a moment to run past the
	// event publish that unblocked the loop above.
	for i := 0; i < 100; i++ {
		if o.getSession(result.SessionID) == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session was not removed from the orchestrator after reaching a terminal state")
}

func TestAddGetRemoveSession(t *testing.T) {
	o := testOrchestrator()
	sess := newClientSession(rendezvous.RoleSender, "some-code")

	o.addSession(sess)
	if got := o.getSession(sess.ID); got != sess {
		t.Fatalf("getSession after addSession = %v, want %v", got, sess)
	}

	o.removeSession(sess.ID)
	if got := o.getSession(sess.ID); got != nil {
		t.Fatalf("getSession after removeSession = %v, want nil", got)
	}

	// Removing an already-absent session must not panic.
	o.removeSession(sess.ID)
}
