package graph

import (
	"time"
)

// Project is one row of the projects table.
type Project struct {
	ID                  string
	Path                string
	Name                string
	IsVersionControlled bool
	// LastScanCommit is empty when no commit is recorded.
	LastScanCommit string
	LastScanBranch string
	LastScanTime   time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProjectSummary is a project row with its row counts.
type ProjectSummary struct {
	Project
	Counts
}

// Counts tallies the rows owned by a project.
type Counts struct {
	Symbols       int64 `json:"symbols"`
	Files         int64 `json:"files"`
	Relationships int64 `json:"relationships"`
	Embeddings    int64 `json:"embeddings"`
}

// Symbol is one row of the symbols table.
type Symbol struct {
	ID          int64  `json:"id"`
	ProjectID   string `json:"project_id"`
	Language    string `json:"language"`
	SymbolType  string `json:"symbol_type"`
	Name        string `json:"name"`
	FilePath    string `json:"file_path"`
	LineStart   int    `json:"line_start"`
	LineEnd     int    `json:"line_end"`
	CodeSnippet string `json:"code_snippet"`
	FileHash    string `json:"file_hash"`
}

// SymbolInput is a symbol to persist for a file.
type SymbolInput struct {
	Name      string
	Type      string
	LineStart int
	LineEnd   int
	Snippet   string
	// Vector is stored when non-nil. Zero vectors are stored as-is.
	Vector []float32
}

// RelationshipInput is an edge keyed by names, resolved at insert time.
type RelationshipInput struct {
	SourceName string
	Type       string
	TargetName string
	TargetType string
	Line       int
}

// LinkBestEffort tags edges resolved by name rather than by scope.
const LinkBestEffort = "best_effort"

// RelationshipData is the JSON payload stored with every relationship.
// Candidates is the number of project symbols sharing the target name when
// the edge was resolved; more than one means the link may be wrong.
type RelationshipData struct {
	Line       int    `json:"line"`
	TargetName string `json:"target_name"`
	TargetType string `json:"target_type,omitempty"`
	Link       string `json:"link"`
	Candidates int    `json:"candidates"`
}

// FileRecord is the complete row set for one file.
type FileRecord struct {
	ProjectID     string
	FilePath      string
	Language      string
	Hash          string
	Symbols       []SymbolInput
	Relationships []RelationshipInput
}

// ReplaceResult reports what ReplaceFile wrote.
type ReplaceResult struct {
	// SymbolIDs is parallel to FileRecord.Symbols; zero marks a symbol that
	// failed to persist.
	SymbolIDs        []int64
	Removed          Counts
	Symbols          int
	SymbolErrors     []error
	EmbeddingErrors  []error
	Embeddings       int
	Relationships    int
	ResolutionMisses int
}

// IndexedFile is a written file with the number of symbols it holds.
type IndexedFile struct {
	FilePath  string    `json:"file_path"`
	Language  string    `json:"language"`
	FileHash  string    `json:"file_hash"`
	Symbols   int64     `json:"symbols"`
	IndexedAt time.Time `json:"indexed_at"`
}

// DeleteResult reports the rows removed with a project.
type DeleteResult struct {
	Counts
	ProjectRemoved bool `json:"project_removed"`
}

// Direction selects relationship endpoints relative to a symbol.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionBoth     Direction = "both"
)

// ParseDirection defaults unknown values to DirectionBoth.
func ParseDirection(s string) Direction {
	switch Direction(s) {
	case DirectionIncoming, DirectionOutgoing:
		return Direction(s)
	default:
		return DirectionBoth
	}
}

// Edge is a relationship joined with both endpoint symbols.
type Edge struct {
	ID        int64            `json:"id"`
	ProjectID string           `json:"project_id"`
	Type      string           `json:"relationship_type"`
	Data      RelationshipData `json:"relationship_data"`
	Source    Symbol           `json:"source"`
	Target    Symbol           `json:"target"`
	// Direction is set by EdgesOf relative to the queried symbol.
	Direction Direction `json:"direction,omitempty"`
}

// Stats summarizes the store, globally or for one project.
type Stats struct {
	ProjectID             string           `json:"project_id,omitempty"`
	TotalSymbols          int64            `json:"total_symbols"`
	SymbolsWithEmbeddings int64            `json:"symbols_with_embeddings"`
	Languages             map[string]int64 `json:"languages"`
	TotalFiles            int64            `json:"total_files"`
	TotalRelationships    int64            `json:"total_relationships"`
	RelationshipTypes     map[string]int64 `json:"relationship_types"`
}
