package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeepMerge_ZeroValuesDoNotOverride(t *testing.T) {
	dst := DefaultConfig()
	src := &Config{Index: IndexConfig{Workers: 8}}

	DeepMerge(dst, src)

	assert.Equal(t, 8, dst.Index.Workers)
	assert.Equal(t, 100, dst.Index.ChunkSize)
	assert.Equal(t, "sqlite3", dst.Database.Driver)
	assert.True(t, dst.Index.PruneMissing)
}

func TestDeepMerge_Slices(t *testing.T) {
	dst := &Config{Index: IndexConfig{Exclude: []string{"*.min.js"}}}

	DeepMerge(dst, &Config{})
	assert.Equal(t, []string{"*.min.js"}, dst.Index.Exclude)

	DeepMerge(dst, &Config{Index: IndexConfig{Exclude: []string{"*.pb.go"}}})
	assert.Equal(t, []string{"*.pb.go"}, dst.Index.Exclude)
}

func TestDeepMerge_Maps(t *testing.T) {
	dst := &Config{Parser: ParserConfig{Checksums: map[string]string{"go": "aa", "python": "bb"}}}
	src := &Config{Parser: ParserConfig{Checksums: map[string]string{"python": "cc", "rust": "dd"}}}

	DeepMerge(dst, src)

	assert.Equal(t, map[string]string{"go": "aa", "python": "cc", "rust": "dd"}, dst.Parser.Checksums)
}

func TestDeepMerge_Durations(t *testing.T) {
	dst := DefaultConfig()
	DeepMerge(dst, &Config{Index: IndexConfig{LockTimeout: time.Minute}})
	assert.Equal(t, time.Minute, dst.Index.LockTimeout)
}

func TestDeepMerge_IgnoresNonPointers(t *testing.T) {
	dst := DefaultConfig()
	DeepMerge(*dst, Config{})
	DeepMerge(dst, nil)
	assert.Equal(t, DefaultConfig(), dst)
}
