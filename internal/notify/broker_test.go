package notify_test

import (
	"testing"

	"github.com/oishii-app/oishii/internal/model"
	"github.com/oishii-app/oishii/internal/notify"
)

func notification(userID, title string) model.Notification {
	return model.Notification{
		ID:     model.NewID(),
		UserID: userID,
		Type:   model.NotifySystem,
		Title:  title,
	}
}

func TestBrokerSingleSubscriber(t *testing.T) {
	b := notify.NewBroker()
	ch, unsub := b.Subscribe("u1")
	defer unsub()

	titles := []string{"first", "second", "third"}
	for _, title := range titles {
		b.Publish(notification("u1", title))
	}

	for i, want := range titles {
		got := <-ch
		if got.Title != want {
			t.Errorf("notification[%d] = %q, want %q", i, got.Title, want)
		}
	}
}

func TestBrokerMultipleSubscribers(t *testing.T) {
	b := notify.NewBroker()
	ch1, unsub1 := b.Subscribe("u1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("u1")
	defer unsub2()

	b.Publish(notification("u1", "hello"))

	if got := <-ch1; got.Title != "hello" {
		t.Errorf("subscriber 1 got %q, want hello", got.Title)
	}
	if got := <-ch2; got.Title != "hello" {
		t.Errorf("subscriber 2 got %q, want hello", got.Title)
	}
}

func TestBrokerDeliversOnlyToRecipient(t *testing.T) {
	b := notify.NewBroker()
	ch1, unsub1 := b.Subscribe("u1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("u2")
	defer unsub2()

	b.Publish(notification("u2", "for u2"))

	select {
	case n := <-ch1:
		t.Errorf("u1 received %q addressed to u2", n.Title)
	default:
	}
	if got := <-ch2; got.Title != "for u2" {
		t.Errorf("u2 got %q, want for u2", got.Title)
	}
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := notify.NewBroker()
	ch, unsub := b.Subscribe("u1")
	unsub()

	b.Publish(notification("u1", "after unsub"))

	select {
	case n := <-ch:
		t.Errorf("got unexpected notification %q after unsubscribe", n.Title)
	default:
		// No data — expected.
	}

	if got := b.Subscribers("u1"); got != 0 {
		t.Errorf("Subscribers = %d after last unsubscribe, want 0", got)
	}
}

func TestBrokerPublishWithoutSubscribersIsNoop(t *testing.T) {
	b := notify.NewBroker()
	// Should not panic and should not leak a topic.
	b.Publish(notification("nobody", "hello"))

	if got := b.Subscribers("nobody"); got != 0 {
		t.Errorf("Subscribers = %d, want 0", got)
	}
}
