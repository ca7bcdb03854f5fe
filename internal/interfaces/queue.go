package interfaces

import (
	"context"

	"github.com/greywolfdl/mangadex-wui/internal/models"
)

// QueueManager provides at-most-once delivery of download messages.
// Receive claims a message inside a single transaction, so no task is
// processed by two workers concurrently; the returned ack function removes
// the message once the worker reached a terminal task state.
type QueueManager interface {
	Enqueue(ctx context.Context, msg models.DownloadMessage) error
	Receive(ctx context.Context) (*models.DownloadMessage, func() error, error)
	Close() error
}
