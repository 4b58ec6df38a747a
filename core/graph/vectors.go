package graph

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeVector serializes v as little-endian float32.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector. It returns nil for a buffer
// whose length is not a multiple of four.
func DecodeVector(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// EachEmbedding streams stored embeddings in symbol id order. An empty
// projectID streams every project. fn must not call back into the store.
func (s *Store) EachEmbedding(ctx context.Context, projectID string, fn func(symbolID int64, projectID string, vector []float32) error) error {
	query := "SELECT symbol_id, project_id, vector FROM symbol_embeddings"
	var args []any
	if projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY symbol_id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("read embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id      int64
			project string
			blob    []byte
		)
		if err := rows.Scan(&id, &project, &blob); err != nil {
			return err
		}
		if err := fn(id, project, DecodeVector(blob)); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Embedding returns the stored vector of one symbol, or nil when it has none.
func (s *Store) Embedding(ctx context.Context, symbolID int64) ([]float32, error) {
	rows, err := s.pool.Query(ctx, "SELECT vector FROM symbol_embeddings WHERE symbol_id = ?", symbolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var blob []byte
	if err := rows.Scan(&blob); err != nil {
		return nil, err
	}
	return DecodeVector(blob), nil
}
