package messaging

import (
	"testing"
	"time"
)

// connectTestNATS connects to a local NATS server. Tests are skipped if it is
// unavailable.
func connectTestNATS(t *testing.T) *NATSClient {
	t.Helper()

	cfg := DefaultNATSConfig()
	cfg.Name = "skillswap-test"
	cfg.MaxReconnects = 0
	c, err := NewNATSClient(cfg)
	if err != nil {
		t.Skipf("skipping: NATS not available: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestInboxSubject(t *testing.T) {
	if got := InboxSubject("u-42"); got != "inbox.u-42" {
		t.Errorf("InboxSubject() = %q", got)
	}
}

func TestInbox_PublishSubscribeUnsubscribe(t *testing.T) {
	c := connectTestNATS(t)

	got := make(chan []byte, 4)
	if err := c.SubscribeInbox("alice", func(data []byte) { got <- data }); err != nil {
		t.Fatalf("SubscribeInbox() error: %v", err)
	}
	if err := c.PublishInbox("alice", []byte(`{"type":"chat:new"}`)); err != nil {
		t.Fatalf("PublishInbox() error: %v", err)
	}

	select {
	case data := <-got:
		if string(data) != `{"type":"chat:new"}` {
			t.Errorf("unexpected payload %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbox delivery")
	}

	// Another user's inbox is not delivered here.
	_ = c.PublishInbox("bob", []byte("x"))

	if err := c.UnsubscribeInbox("alice"); err != nil {
		t.Fatalf("UnsubscribeInbox() error: %v", err)
	}
	_ = c.PublishInbox("alice", []byte("late"))
	_ = c.Flush()

	select {
	case data := <-got:
		t.Errorf("unexpected delivery %s", data)
	case <-time.After(200 * time.Millisecond):
	}

	if err := c.UnsubscribeInbox("alice"); err == nil {
		t.Error("expected error unsubscribing twice")
	}
}

func TestProfileUpdates(t *testing.T) {
	c := connectTestNATS(t)

	got := make(chan string, 4)
	if err := c.SubscribeProfileUpdates(func(id string) { got <- id }); err != nil {
		t.Fatalf("SubscribeProfileUpdates() error: %v", err)
	}
	_ = c.Publish(ProfileUpdatedSubject, nil)
	_ = c.Publish(ProfileUpdatedSubject, []byte("carol"))

	select {
	case id := <-got:
		if id != "carol" {
			t.Errorf("expected carol, got %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for profile update")
	}
}
