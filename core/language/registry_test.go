package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		path string
		want Language
		ok   bool
	}{
		{"main.go", Go, true},
		{"/src/app/models.py", Python, true},
		{"stubs.pyi", Python, true},
		{"Component.TSX", TSX, true},
		{"index.ts", TypeScript, true},
		{"App.jsx", JavaScript, true},
		{"lib.rs", Rust, true},
		{"header.H", C, true},
		{"engine.hpp", CPP, true},
		{"Program.cs", CSharp, true},
		{"view.erb", Ruby, true},
		{"ci.yml", YAML, true},
		{"README.md", Markdown, true},
		{"build.kts", Kotlin, true},
		{"script.bash", Bash, true},
		{"Spec.tla", TLAPlus, true},
		{"regs.rdl", SystemRDL, true},
		{"Dockerfile", Dockerfile, true},
		{"Makefile", Make, true},
		{"notes.txt", "", false},
		{"LICENSE", "", false},
		{"archive.tar.gz", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := Detect(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistryCoverage(t *testing.T) {
	assert.GreaterOrEqual(t, len(All()), 40)
	assert.True(t, IsSupported(Go))
	assert.False(t, IsSupported("brainfuck"))
}

func TestLookup(t *testing.T) {
	info, ok := Lookup(CSharp)
	assert.True(t, ok)
	assert.Equal(t, KindCode, info.Kind)
	assert.Contains(t, info.Extensions, ".cs")

	info, ok = Lookup(Markdown)
	assert.True(t, ok)
	assert.Equal(t, KindMarkup, info.Kind)
}

func TestAllSortedAndUnique(t *testing.T) {
	all := All()
	seen := make(map[Language]bool)
	for i, lang := range all {
		assert.False(t, seen[lang], "duplicate %s", lang)
		seen[lang] = true
		if i > 0 {
			assert.Less(t, string(all[i-1]), string(lang))
		}
	}
}

func TestExtensionsUnique(t *testing.T) {
	exts := Extensions()
	assert.Contains(t, exts, ".go")
	for i := 1; i < len(exts); i++ {
		assert.NotEqual(t, exts[i-1], exts[i])
	}
}
