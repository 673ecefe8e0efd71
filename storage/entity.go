package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/bytedance/sonic"

	"prism-board/domain"
	"prism-board/persistence"
)

const edmDateTime = "Edm.DateTime"

// Table Storage caps string properties at 64 KiB and entities at 1 MiB, both
// counted in UTF-16.
const (
	maxPropertyUnits = 32 << 10
	maxEntityBytes   = 1 << 20
)

// ErrDocumentTooLarge is returned for a board whose entity would exceed the
// table's size limits. Retrying cannot help.
var ErrDocumentTooLarge = fmt.Errorf("%w: board document too large", persistence.ErrPermanent)

// boardEntity is the table row for one board. Columns and tasks are kept as
// JSON strings so the row can be merged as a whole. Tasks longer than one
// property are split over Tasks, Tasks1, Tasks2 and so on; TaskParts says how
// many belong to the current write, so parts left over from an earlier, larger
// merge are ignored.
type boardEntity struct {
	PartitionKey    string  `json:"PartitionKey"`
	RowKey          string  `json:"RowKey"`
	Title           string  `json:"Title"`
	Columns         string  `json:"Columns"`
	Tasks           string  `json:"Tasks"`
	TaskParts       int     `json:"TaskParts"`
	CreatedAt       string  `json:"CreatedAt"`
	CreatedAtType   string  `json:"CreatedAt@odata.type"`
	LastUpdated     *string `json:"LastUpdated,omitempty"`
	LastUpdatedType *string `json:"LastUpdated@odata.type,omitempty"`
}

func taskProperty(part int) string {
	if part == 0 {
		return "Tasks"
	}
	return "Tasks" + strconv.Itoa(part)
}

func encodeBoardEntity(doc domain.BoardDocument) ([]byte, error) {
	cols, err := sonic.MarshalString(doc.Columns)
	if err != nil {
		return nil, fmt.Errorf("encode columns: %w", err)
	}
	tasks, err := sonic.MarshalString(doc.Tasks)
	if err != nil {
		return nil, fmt.Errorf("encode tasks: %w", err)
	}
	if n := utf16Len(doc.Title); n > maxPropertyUnits {
		return nil, fmt.Errorf("%w: title of %s is %d characters", ErrDocumentTooLarge, doc.ID, n)
	}
	if n := utf16Len(cols); n > maxPropertyUnits {
		return nil, fmt.Errorf("%w: columns of %s take %d characters", ErrDocumentTooLarge, doc.ID, n)
	}
	parts := splitUTF16(tasks, maxPropertyUnits)

	ent := map[string]any{
		"PartitionKey":         doc.UserID,
		"RowKey":               doc.ID,
		"Title":                doc.Title,
		"Columns":              cols,
		"TaskParts":            len(parts),
		"CreatedAt":            doc.CreatedAt.UTC().Format(time.RFC3339Nano),
		"CreatedAt@odata.type": edmDateTime,
	}
	for i, p := range parts {
		ent[taskProperty(i)] = p
	}
	if doc.LastUpdated != nil {
		ent["LastUpdated"] = doc.LastUpdated.UTC().Format(time.RFC3339Nano)
		ent["LastUpdated@odata.type"] = edmDateTime
	}
	if size := entitySize(ent); size > maxEntityBytes {
		return nil, fmt.Errorf("%w: board %s needs %d bytes", ErrDocumentTooLarge, doc.ID, size)
	}
	return sonic.Marshal(ent)
}

// entitySize approximates the service's accounting: UTF-16 names and string
// values plus eight bytes for every other value.
func entitySize(ent map[string]any) int {
	size := 4
	for k, v := range ent {
		size += 2*utf16Len(k) + 4
		if s, ok := v.(string); ok {
			size += 2*utf16Len(s) + 4
		} else {
			size += 8
		}
	}
	return size
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// splitUTF16 cuts s on rune boundaries into pieces of at most limit UTF-16
// code units. The empty string yields one empty piece.
func splitUTF16(s string, limit int) []string {
	var parts []string
	start, units := 0, 0
	for i, r := range s {
		n := utf16.RuneLen(r)
		if units+n > limit {
			parts = append(parts, s[start:i])
			start, units = i, 0
		}
		units += n
	}
	return append(parts, s[start:])
}

func decodeBoardEntity(data []byte) (domain.BoardDocument, error) {
	var ent boardEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.BoardDocument{}, err
	}
	doc := domain.BoardDocument{ID: ent.RowKey, Title: ent.Title, UserID: ent.PartitionKey}
	if ent.Columns != "" {
		if err := sonic.UnmarshalString(ent.Columns, &doc.Columns); err != nil {
			return domain.BoardDocument{}, fmt.Errorf("decode columns of %s: %w", ent.RowKey, err)
		}
	}
	tasks := ent.Tasks
	if ent.TaskParts > 1 {
		var props map[string]any
		if err := sonic.Unmarshal(data, &props); err != nil {
			return domain.BoardDocument{}, err
		}
		var sb strings.Builder
		sb.WriteString(ent.Tasks)
		for i := 1; i < ent.TaskParts; i++ {
			part, ok := props[taskProperty(i)].(string)
			if !ok {
				return domain.BoardDocument{}, fmt.Errorf("decode tasks of %s: missing %s", ent.RowKey, taskProperty(i))
			}
			sb.WriteString(part)
		}
		tasks = sb.String()
	}
	if tasks != "" {
		if err := sonic.UnmarshalString(tasks, &doc.Tasks); err != nil {
			return domain.BoardDocument{}, fmt.Errorf("decode tasks of %s: %w", ent.RowKey, err)
		}
	}
	if ent.CreatedAt != "" {
		ts, err := time.Parse(time.RFC3339Nano, ent.CreatedAt)
		if err != nil {
			return domain.BoardDocument{}, fmt.Errorf("decode createdAt of %s: %w", ent.RowKey, err)
		}
		doc.CreatedAt = ts.UTC()
	}
	if ent.LastUpdated != nil && *ent.LastUpdated != "" {
		ts, err := time.Parse(time.RFC3339Nano, *ent.LastUpdated)
		if err != nil {
			return domain.BoardDocument{}, fmt.Errorf("decode lastUpdated of %s: %w", ent.RowKey, err)
		}
		ts = ts.UTC()
		doc.LastUpdated = &ts
	}
	return doc, nil
}
