package source

import "time"

// Type is the origin of a retrieved item.
type Type string

// Source types, in the order they are presented to the generator.
const (
	Document Type = "document"
	Web      Type = "web"
	Database Type = "database"
)

// Item is one piece of retrieved evidence.
type Item struct {
	ID        string
	Text      string
	Type      Type
	Score     float64
	Timestamp *time.Time
	// Location is a URL for web items and a path for documents.
	Location string
	Title    string
}

// Clone returns a deep copy.
func (it Item) Clone() Item {
	if it.Timestamp != nil {
		ts := *it.Timestamp
		it.Timestamp = &ts
	}
	return it
}

// CloneAll deep-copies a slice; nil stays nil.
func CloneAll(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i := range items {
		out[i] = items[i].Clone()
	}
	return out
}
