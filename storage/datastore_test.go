package storage

import (
	"reflect"
	"testing"
	"time"

	"cloud.google.com/go/datastore"
)

func TestBoardPropertiesRoundTrip(t *testing.T) {
	doc := sampleDocument()
	props, err := boardProperties(doc)
	if err != nil {
		t.Fatalf("properties: %v", err)
	}
	for _, p := range props {
		if (p.Name == "Columns" || p.Name == "Tasks") && !p.NoIndex {
			t.Fatalf("%s must not be indexed", p.Name)
		}
	}
	got, err := documentFromProperties(doc.ID, doc.UserID, props)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, doc) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", got, doc)
	}
}

func TestMergePropertiesKeepsUnknownFields(t *testing.T) {
	existing := datastore.PropertyList{
		{Name: "Title", Value: "old"},
		{Name: "Archived", Value: true},
	}
	update := datastore.PropertyList{
		{Name: "Title", Value: "new"},
		{Name: "CreatedAt", Value: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	merged := mergeProperties(existing, update)
	values := map[string]any{}
	for _, p := range merged {
		if _, dup := values[p.Name]; dup {
			t.Fatalf("duplicate property %s", p.Name)
		}
		values[p.Name] = p.Value
	}
	if values["Title"] != "new" || values["Archived"] != true || len(values) != 3 {
		t.Fatalf("unexpected merge %#v", values)
	}
}

func TestDocumentFromPropertiesFallsBackToKeyOwner(t *testing.T) {
	doc, err := documentFromProperties("b1", "u1", datastore.PropertyList{{Name: "Title", Value: "Bare"}})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.UserID != "u1" || doc.ID != "b1" || doc.Columns != nil || doc.Tasks != nil {
		t.Fatalf("unexpected document %#v", doc)
	}
}

func TestBoardKeyHasUserAncestor(t *testing.T) {
	k := boardKey("u1", "b1")
	if k.Kind != boardKind || k.Name != "b1" || k.Parent == nil || k.Parent.Kind != userKind || k.Parent.Name != "u1" {
		t.Fatalf("unexpected key %v", k)
	}
}
