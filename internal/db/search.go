package db

// KNNQuery asks for the K chunks nearest to Vector.
type KNNQuery struct {
	IndexName    string
	Field        string // vector field, "vector" when empty
	Vector       []float32
	K            int
	ReturnFields []string
}

// TextQuery asks for the TopK best BM25 matches of any term of Query.
// Fields limits matching to those TEXT fields; empty means all of them.
type TextQuery struct {
	IndexName    string
	Fields       []string
	Query        string
	TopK         int
	ReturnFields []string
}

// SearchResult is one page of hits. Total counts all matches, not just Entries.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a hit: the hash key, its score and the returned fields.
// KNN scores are similarities in [0,1]; BM25 scores are unbounded.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
