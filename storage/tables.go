package storage

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

type tableClient interface {
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(listOptions *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

// Tables stores board documents in Azure Table Storage, one entity per board
// with the owner as partition key. When an events queue is configured every
// successful write is announced on it.
type Tables struct {
	boards tableClient
	events queueClient
	logger *log.Logger
	now    func() time.Time
}

// NewTables creates a Tables gateway from the given connection string. An
// empty eventsQueue disables the change log.
func NewTables(connStr, boardsTable, eventsQueue string, logger *log.Logger) (*Tables, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    30 * time.Second,
				RetryDelay:    500 * time.Millisecond,
				MaxRetryDelay: 5 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	var events queueClient
	if eventsQueue != "" {
		queueClientOptions := azqueue.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Retry: policy.RetryOptions{
					MaxRetries:    5,
					TryTimeout:    time.Minute,
					RetryDelay:    time.Second,
					MaxRetryDelay: 30 * time.Second,
					StatusCodes:   []int{408, 429, 500, 502, 503, 504},
				},
			},
		}
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
		if err != nil {
			return nil, err
		}
		events = q
	}
	return newTables(svc.NewClient(boardsTable), events, logger), nil
}

func newTables(boards tableClient, events queueClient, logger *log.Logger) *Tables {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Tables{
		boards: boards,
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Upsert merges the document into the board's entity.
func (t *Tables) Upsert(ctx context.Context, doc domain.BoardDocument) error {
	payload, err := encodeBoardEntity(doc)
	if err != nil {
		return err
	}
	if _, err := t.boards.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeMerge}); err != nil {
		return err
	}
	t.publish(ctx, BoardEvent{Type: BoardSaved, UserID: doc.UserID, BoardID: doc.ID, Tasks: len(doc.Tasks)})
	return nil
}

// FetchAll lists every board entity in the user's partition.
func (t *Tables) FetchAll(ctx context.Context, userID string) ([]domain.BoardDocument, error) {
	filter := "PartitionKey eq '" + strings.ReplaceAll(userID, "'", "''") + "'"
	pager := t.boards.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	docs := []domain.BoardDocument{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			doc, err := decodeBoardEntity(e)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// Delete removes the board entity. A missing entity counts as deleted.
func (t *Tables) Delete(ctx context.Context, userID, boardID string) error {
	_, err := t.boards.DeleteEntity(ctx, userID, boardID, nil)
	if err != nil && !isStatus(err, http.StatusNotFound) {
		return err
	}
	t.publish(ctx, BoardEvent{Type: BoardDeleted, UserID: userID, BoardID: boardID})
	return nil
}

// publish is best effort: the board write already succeeded.
func (t *Tables) publish(ctx context.Context, ev BoardEvent) {
	if t.events == nil {
		return
	}
	ev.Timestamp = t.now()
	msg, err := encodeEvent(ev)
	if err == nil {
		_, err = t.events.EnqueueMessage(ctx, msg, nil)
	}
	if err != nil {
		t.logger.WithFields(log.Fields{"user": ev.UserID, "board": ev.BoardID, "event": ev.Type}).WithError(err).Warn("failed to publish board event")
	}
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

func isErrorCode(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
