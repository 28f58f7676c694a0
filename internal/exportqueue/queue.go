// Package exportqueue carries export work from the API to the worker. The
// job row in exportjob is the record of truth; the queue message only names
// the job and what to run.
package exportqueue

import (
	"context"
	"time"
)

type Message struct {
	JobID     string
	SQL       string
	ObjectKey string
}

// Delivery is one leased claim of a message. The lease keeps a crashed
// worker from stranding the message forever; RequeueExpired returns it to
// the queue once the lease lapses.
type Delivery struct {
	MessageID  int64
	Message    Message
	Attempt    int
	LeaseUntil time.Time
}

type Queue interface {
	Enqueue(ctx context.Context, message Message) error
	// Claim leases the oldest ready message for the consumer. The second
	// return is false when the queue is empty.
	Claim(ctx context.Context, consumerID string, leaseSeconds int) (Delivery, bool, error)
	Ack(ctx context.Context, messageID int64) error
	// Nack records the failure and either requeues the message or parks it
	// as dead once the attempt limit is exhausted.
	Nack(ctx context.Context, messageID int64, reason string) error
	RequeueExpired(ctx context.Context) (int, error)
}
