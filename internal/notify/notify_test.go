package notify

import (
	"testing"
	"time"

	"github.com/strandlabs/loom/pkg/models"
)

func event(sessionID, content string) *models.Event {
	return &models.Event{
		Type:      models.EventMessageAssistantNew,
		SessionID: sessionID,
		Message:   &models.Message{Role: models.RoleAssistant, Content: content},
	}
}

func TestEmitDeliversToMatchingSubscribers(t *testing.T) {
	n := New(nil)
	s1 := n.Subscribe("s1", 4)
	all := n.Subscribe("", 4)
	other := n.Subscribe("s2", 4)
	defer n.Unsubscribe(s1)
	defer n.Unsubscribe(all)
	defer n.Unsubscribe(other)

	n.Emit(event("s1", "hello"))

	select {
	case ev := <-s1.Events():
		if ev.SessionID != "s1" {
			t.Errorf("session = %q", ev.SessionID)
		}
		if ev.Timestamp.IsZero() {
			t.Error("timestamp not stamped")
		}
	default:
		t.Fatal("session subscriber got nothing")
	}
	select {
	case <-all.Events():
	default:
		t.Fatal("wildcard subscriber got nothing")
	}
	select {
	case ev := <-other.Events():
		t.Fatalf("other session received %+v", ev)
	default:
	}
}

func TestEmitDropsOldestWhenFull(t *testing.T) {
	n := New(nil)
	sub := n.Subscribe("s1", 1)
	defer n.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		n.Emit(event("s1", "first"))
		n.Emit(event("s1", "second"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full subscriber")
	}

	ev := <-sub.Events()
	if ev.Message.Content != "second" {
		t.Errorf("kept %q, want the newest event", ev.Message.Content)
	}
	select {
	case ev := <-sub.Events():
		t.Fatalf("queue should hold one event, got %+v", ev)
	default:
	}
}

func TestEmitPrunesClosedSubscribers(t *testing.T) {
	n := New(nil)
	sub := n.Subscribe("s1", 1)
	if n.SubscriberCount() != 1 {
		t.Fatalf("count = %d", n.SubscriberCount())
	}

	sub.Close()
	// Closed but still registered until the next matching emit.
	if n.SubscriberCount() != 1 {
		t.Fatalf("count after close = %d", n.SubscriberCount())
	}

	n.Emit(event("s1", "after close"))
	if n.SubscriberCount() != 0 {
		t.Errorf("count after emit = %d", n.SubscriberCount())
	}

	if _, ok := <-sub.Events(); ok {
		t.Error("closed subscriber channel should be drained")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	n := New(nil)
	sub := n.Subscribe("", 0)
	n.Unsubscribe(sub)

	if n.SubscriberCount() != 0 {
		t.Errorf("count = %d", n.SubscriberCount())
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("events channel should be closed")
	}
	// Idempotent.
	sub.Close()
	n.Unsubscribe(nil)

	n.Emit(event("s1", "late"))
}

func TestEmitIgnoresNil(t *testing.T) {
	n := New(nil)
	sub := n.Subscribe("", 1)
	defer n.Unsubscribe(sub)

	n.Emit(nil)
	select {
	case ev := <-sub.Events():
		t.Fatalf("received %+v from nil emit", ev)
	default:
	}
}
