package storage

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

type tableCreator interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
}

type queueCreator interface {
	Create(ctx context.Context, options *azqueue.CreateOptions) (azqueue.CreateResponse, error)
}

// InitResources creates the boards table and, when named, the change-log
// queue. Resources that already exist are left as they are.
func InitResources(ctx context.Context, connStr, boardsTable, eventsQueue string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	if err := createTable(ctx, svc.NewClient(boardsTable)); err != nil {
		return err
	}
	log.WithField("table", boardsTable).Info("boards table ready")

	if eventsQueue == "" {
		return nil
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, nil)
	if err != nil {
		return err
	}
	if err := createQueue(ctx, q); err != nil {
		return err
	}
	log.WithField("queue", eventsQueue).Info("board events queue ready")
	return nil
}

func createTable(ctx context.Context, c tableCreator) error {
	if _, err := c.CreateTable(ctx, nil); err != nil && !isErrorCode(err, string(aztables.TableAlreadyExists)) {
		return err
	}
	return nil
}

func createQueue(ctx context.Context, q queueCreator) error {
	if _, err := q.Create(ctx, nil); err != nil && !isErrorCode(err, "QueueAlreadyExists") {
		return err
	}
	return nil
}
