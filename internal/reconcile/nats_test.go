package reconcile

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// TestNATSQueueRoundTrip runs against a real server when NATS_URL is set.
func TestNATSQueueRoundTrip(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not provided")
	}
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect nats: %v", err)
	}
	defer nc.Close()

	subject := "test.ratings.reconcile." + uuid.NewString()
	q, err := NewNATSQueue(nc, subject, "", 4, nil)
	if err != nil {
		t.Fatalf("NewNATSQueue: %v", err)
	}
	defer q.Close()

	want := Request{EventID: uuid.NewString(), MovieID: "movie-42", RequestedAt: time.Now().UTC()}
	if err := q.Enqueue(context.Background(), want); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	select {
	case got := <-q.Requests():
		if got.EventID != want.EventID || got.MovieID != want.MovieID {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for request")
	}
}
