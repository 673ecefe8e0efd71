package storage

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
)

const (
	BoardSaved   = "board-saved"
	BoardDeleted = "board-deleted"
)

// BoardEvent is appended to the change-log queue after every successful
// write so other services can follow board changes.
type BoardEvent struct {
	Type      string    `json:"type"`
	UserID    string    `json:"userId"`
	BoardID   string    `json:"boardId"`
	Tasks     int       `json:"tasks,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

func encodeEvent(ev BoardEvent) (string, error) {
	return sonic.MarshalString(ev)
}
