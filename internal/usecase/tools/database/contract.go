package database

import "context"

// Translator turns a natural-language question into a single read-only SQL statement.
type Translator interface {
	Translate(ctx context.Context, question string) (string, error)
}

// QueryStore executes a read-only statement and returns rows as column->value maps.
type QueryStore interface {
	Execute(ctx context.Context, sql string) ([]map[string]any, error)
}
