package store

// Metadata describes the chunk a vector was computed from.
type Metadata struct {
	RepoID     string
	FilePath   string
	Language   string
	StartLine  int
	EndLine    int
	SymbolName string
	Kind       string
	Ordinal    int
	Content    string
}

// Record is one stored vector. Vector is nil in List results.
type Record struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Hit is a Record with its cosine similarity to a query vector.
type Hit struct {
	Record
	Score float64
}
