package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/bytedance/sonic"

	"prism-board/domain"
)

const (
	userKind  = "User"
	boardKind = "Board"
)

// Datastore stores board documents in Google Cloud Datastore as Board
// entities under a User ancestor key.
type Datastore struct {
	client *datastore.Client
}

func NewDatastore(ctx context.Context, projectID string) (*Datastore, error) {
	client, err := datastore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("datastore client: %w", err)
	}
	return &Datastore{client: client}, nil
}

func (d *Datastore) Close() error {
	return d.client.Close()
}

func userKey(userID string) *datastore.Key {
	return datastore.NameKey(userKind, userID, nil)
}

func boardKey(userID, boardID string) *datastore.Key {
	return datastore.NameKey(boardKind, boardID, userKey(userID))
}

// Upsert merges the document into the stored entity inside a transaction so
// properties the document does not carry are preserved.
func (d *Datastore) Upsert(ctx context.Context, doc domain.BoardDocument) error {
	props, err := boardProperties(doc)
	if err != nil {
		return err
	}
	key := boardKey(doc.UserID, doc.ID)
	_, err = d.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing datastore.PropertyList
		if err := tx.Get(key, &existing); err != nil && !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		merged := mergeProperties(existing, props)
		_, err := tx.Put(key, &merged)
		return err
	})
	return err
}

func (d *Datastore) FetchAll(ctx context.Context, userID string) ([]domain.BoardDocument, error) {
	q := datastore.NewQuery(boardKind).Ancestor(userKey(userID))
	var lists []datastore.PropertyList
	keys, err := d.client.GetAll(ctx, q, &lists)
	if err != nil {
		return nil, err
	}
	docs := make([]domain.BoardDocument, 0, len(lists))
	for i, props := range lists {
		doc, err := documentFromProperties(keys[i].Name, userID, props)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Delete removes the board entity; deleting a missing key is not an error.
func (d *Datastore) Delete(ctx context.Context, userID, boardID string) error {
	return d.client.Delete(ctx, boardKey(userID, boardID))
}

func boardProperties(doc domain.BoardDocument) (datastore.PropertyList, error) {
	cols, err := sonic.MarshalString(doc.Columns)
	if err != nil {
		return nil, fmt.Errorf("encode columns: %w", err)
	}
	tasks, err := sonic.MarshalString(doc.Tasks)
	if err != nil {
		return nil, fmt.Errorf("encode tasks: %w", err)
	}
	props := datastore.PropertyList{
		{Name: "Title", Value: doc.Title},
		{Name: "Columns", Value: cols, NoIndex: true},
		{Name: "Tasks", Value: tasks, NoIndex: true},
		{Name: "UserID", Value: doc.UserID},
		{Name: "CreatedAt", Value: doc.CreatedAt.UTC()},
	}
	if doc.LastUpdated != nil {
		props = append(props, datastore.Property{Name: "LastUpdated", Value: doc.LastUpdated.UTC()})
	}
	return props, nil
}

// mergeProperties overlays update onto existing by property name.
func mergeProperties(existing, update datastore.PropertyList) datastore.PropertyList {
	out := make(datastore.PropertyList, 0, len(existing)+len(update))
	replaced := make(map[string]bool, len(update))
	for _, p := range update {
		replaced[p.Name] = true
	}
	for _, p := range existing {
		if !replaced[p.Name] {
			out = append(out, p)
		}
	}
	return append(out, update...)
}

func documentFromProperties(boardID, userID string, props datastore.PropertyList) (domain.BoardDocument, error) {
	doc := domain.BoardDocument{ID: boardID, UserID: userID}
	for _, p := range props {
		switch p.Name {
		case "Title":
			doc.Title, _ = p.Value.(string)
		case "UserID":
			if v, ok := p.Value.(string); ok && v != "" {
				doc.UserID = v
			}
		case "Columns":
			if v, ok := p.Value.(string); ok && v != "" {
				if err := sonic.UnmarshalString(v, &doc.Columns); err != nil {
					return domain.BoardDocument{}, fmt.Errorf("decode columns of %s: %w", boardID, err)
				}
			}
		case "Tasks":
			if v, ok := p.Value.(string); ok && v != "" {
				if err := sonic.UnmarshalString(v, &doc.Tasks); err != nil {
					return domain.BoardDocument{}, fmt.Errorf("decode tasks of %s: %w", boardID, err)
				}
			}
		case "CreatedAt":
			if v, ok := p.Value.(time.Time); ok {
				doc.CreatedAt = v.UTC()
			}
		case "LastUpdated":
			if v, ok := p.Value.(time.Time); ok {
				ts := v.UTC()
				doc.LastUpdated = &ts
			}
		}
	}
	return doc, nil
}
