package treesitter

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateGrammarName(t *testing.T) {
	assert.NoError(t, validateGrammarName("python"))
	assert.NoError(t, validateGrammarName("c_sharp"))
	assert.Error(t, validateGrammarName("../etc/passwd"))
	assert.Error(t, validateGrammarName("Python"))
	assert.Error(t, validateGrammarName(""))
}

func TestGrammarLibNames(t *testing.T) {
	names := grammarLibNames("c_sharp")
	require.Len(t, names, 2)
	assert.Contains(t, names[0], "c_sharp")
	assert.Contains(t, names[1], "c-sharp")

	assert.Len(t, grammarLibNames("go"), 1)
}

func TestIsSubpath(t *testing.T) {
	assert.True(t, isSubpath("/a/b/c.so", "/a/b"))
	assert.True(t, isSubpath("/a/b", "/a/b"))
	assert.False(t, isSubpath("/a/bc/d.so", "/a/b"))
	assert.False(t, isSubpath("/etc/x.so", "/a/b"))
}

func TestLoad_MissingGrammarIsCached(t *testing.T) {
	dir := t.TempDir()
	gl := NewGrammarLoader(WithTrustedDir(dir))

	_, err := gl.Load("definitely_not_installed")
	require.ErrorIs(t, err, ErrGrammarNotFound)

	_, err = gl.Load("definitely_not_installed")
	require.ErrorIs(t, err, ErrGrammarNotFound)
	assert.False(t, gl.Available("definitely_not_installed"))
	assert.Equal(t, dir, gl.TrustedDirs()[0])
}

func TestLoad_Disabled(t *testing.T) {
	gl := NewGrammarLoader(WithDisabled("python"))

	_, err := gl.Load("python")
	assert.ErrorIs(t, err, ErrGrammarDisabled)
}

func TestValidateDirectory_RejectsWorldWritable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not enforced on windows")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0777))

	assert.Error(t, validateDirectory(dir))

	require.NoError(t, os.Chmod(dir, 0755))
	assert.NoError(t, validateDirectory(dir))
}

func TestVerifyLibrary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, grammarLibName("fake"))
	require.NoError(t, os.WriteFile(path, []byte("not really a library"), 0644))

	sum := sha256.Sum256([]byte("not really a library"))
	good := hex.EncodeToString(sum[:])

	gl := NewGrammarLoader(WithChecksum("fake", good))
	got, err := gl.verifyLibrary("fake", path)
	require.NoError(t, err)
	assert.Equal(t, good, got)

	gl = NewGrammarLoader(WithChecksum("fake", "00"))
	_, err = gl.verifyLibrary("fake", path)
	assert.ErrorContains(t, err, "checksum mismatch")

	gl = NewGrammarLoader(WithRequireVerification(true))
	_, err = gl.verifyLibrary("fake", path)
	assert.ErrorContains(t, err, "verification required")
}

func TestHasQuery(t *testing.T) {
	for _, lang := range []string{"python", "go", "javascript", "typescript", "tsx", "java", "c",
		"cpp", "c_sharp", "rust", "ruby", "swift", "kotlin", "php", "bash"} {
		assert.True(t, HasQuery(lang), lang)
	}
	assert.False(t, HasQuery("markdown"))
	assert.NotEmpty(t, Languages())
}
