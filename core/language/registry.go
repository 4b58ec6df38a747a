// Package language maps source files to the language identifiers used by the
// extractors and the graph store.
package language

import (
	"path/filepath"
	"sort"
	"strings"
)

// Language identifies a source language or markup format. Values double as
// tree-sitter grammar names.
type Language string

const (
	Python     Language = "python"
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	TSX        Language = "tsx"
	Java       Language = "java"
	C          Language = "c"
	CPP        Language = "cpp"
	CSharp     Language = "c_sharp"
	Go         Language = "go"
	Rust       Language = "rust"
	Ruby       Language = "ruby"
	PHP        Language = "php"
	Swift      Language = "swift"
	Kotlin     Language = "kotlin"
	Scala      Language = "scala"
	Lua        Language = "lua"
	HTML       Language = "html"
	CSS        Language = "css"
	JSON       Language = "json"
	YAML       Language = "yaml"
	TOML       Language = "toml"
	Vue        Language = "vue"
	Solidity   Language = "solidity"
	Zig        Language = "zig"
	Elixir     Language = "elixir"
	OCaml      Language = "ocaml"
	Elm        Language = "elm"
	Bash       Language = "bash"
	Elisp      Language = "elisp"
	SystemRDL  Language = "systemrdl"
	TLAPlus    Language = "tlaplus"
	QL         Language = "ql"
	ReScript   Language = "rescript"
	Markdown   Language = "markdown"
	R          Language = "r"
	Dart       Language = "dart"
	Haskell    Language = "haskell"
	SQL        Language = "sql"
	Dockerfile Language = "dockerfile"
	Make       Language = "make"
	Proto      Language = "proto"
	GraphQL    Language = "graphql"
	HCL        Language = "hcl"
	Erlang     Language = "erlang"
	Julia      Language = "julia"
)

// Kind separates programming languages from markup and data formats.
type Kind string

const (
	KindCode   Kind = "code"
	KindMarkup Kind = "markup"
	KindData   Kind = "data"
)

// Info describes one registered language.
type Info struct {
	Name       Language `json:"name"`
	Kind       Kind     `json:"kind"`
	Extensions []string `json:"extensions,omitempty"`
	Filenames  []string `json:"filenames,omitempty"`
	Repository string   `json:"repository,omitempty"`
}

var known = []Info{
	{Name: Python, Kind: KindCode, Extensions: []string{".py", ".pyx", ".pyi"}, Repository: "github.com/tree-sitter/tree-sitter-python"},
	{Name: JavaScript, Kind: KindCode, Extensions: []string{".js", ".jsx", ".mjs", ".cjs"}, Repository: "github.com/tree-sitter/tree-sitter-javascript"},
	{Name: TypeScript, Kind: KindCode, Extensions: []string{".ts", ".mts", ".cts"}, Repository: "github.com/tree-sitter/tree-sitter-typescript"},
	{Name: TSX, Kind: KindCode, Extensions: []string{".tsx"}, Repository: "github.com/tree-sitter/tree-sitter-typescript"},
	{Name: Java, Kind: KindCode, Extensions: []string{".java"}, Repository: "github.com/tree-sitter/tree-sitter-java"},
	{Name: C, Kind: KindCode, Extensions: []string{".c", ".h"}, Repository: "github.com/tree-sitter/tree-sitter-c"},
	{Name: CPP, Kind: KindCode, Extensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".hxx", ".hh"}, Repository: "github.com/tree-sitter/tree-sitter-cpp"},
	{Name: CSharp, Kind: KindCode, Extensions: []string{".cs"}, Repository: "github.com/tree-sitter/tree-sitter-c-sharp"},
	{Name: Go, Kind: KindCode, Extensions: []string{".go"}, Repository: "github.com/tree-sitter/tree-sitter-go"},
	{Name: Rust, Kind: KindCode, Extensions: []string{".rs"}, Repository: "github.com/tree-sitter/tree-sitter-rust"},
	{Name: Ruby, Kind: KindCode, Extensions: []string{".rb", ".erb", ".rake"}, Repository: "github.com/tree-sitter/tree-sitter-ruby"},
	{Name: PHP, Kind: KindCode, Extensions: []string{".php"}, Repository: "github.com/tree-sitter/tree-sitter-php"},
	{Name: Swift, Kind: KindCode, Extensions: []string{".swift"}, Repository: "github.com/alex-pinkus/tree-sitter-swift"},
	{Name: Kotlin, Kind: KindCode, Extensions: []string{".kt", ".kts"}, Repository: "github.com/fwcd/tree-sitter-kotlin"},
	{Name: Scala, Kind: KindCode, Extensions: []string{".scala", ".sc"}, Repository: "github.com/tree-sitter/tree-sitter-scala"},
	{Name: Lua, Kind: KindCode, Extensions: []string{".lua"}, Repository: "github.com/Azganoth/tree-sitter-lua"},
	{Name: HTML, Kind: KindMarkup, Extensions: []string{".html", ".htm"}, Repository: "github.com/tree-sitter/tree-sitter-html"},
	{Name: CSS, Kind: KindMarkup, Extensions: []string{".css", ".scss"}, Repository: "github.com/tree-sitter/tree-sitter-css"},
	{Name: JSON, Kind: KindData, Extensions: []string{".json"}, Repository: "github.com/tree-sitter/tree-sitter-json"},
	{Name: YAML, Kind: KindData, Extensions: []string{".yml", ".yaml"}, Repository: "github.com/ikatyang/tree-sitter-yaml"},
	{Name: TOML, Kind: KindData, Extensions: []string{".toml"}, Repository: "github.com/ikatyang/tree-sitter-toml"},
	{Name: Vue, Kind: KindCode, Extensions: []string{".vue"}, Repository: "github.com/ikatyang/tree-sitter-vue"},
	{Name: Solidity, Kind: KindCode, Extensions: []string{".sol"}, Repository: "github.com/JoranHonig/tree-sitter-solidity"},
	{Name: Zig, Kind: KindCode, Extensions: []string{".zig"}, Repository: "github.com/maxxnino/tree-sitter-zig"},
	{Name: Elixir, Kind: KindCode, Extensions: []string{".ex", ".exs"}, Repository: "github.com/elixir-lang/tree-sitter-elixir"},
	{Name: OCaml, Kind: KindCode, Extensions: []string{".ml", ".mli"}, Repository: "github.com/tree-sitter/tree-sitter-ocaml"},
	{Name: Elm, Kind: KindCode, Extensions: []string{".elm"}, Repository: "github.com/elm-tooling/tree-sitter-elm"},
	{Name: Bash, Kind: KindCode, Extensions: []string{".sh", ".bash", ".zsh"}, Repository: "github.com/tree-sitter/tree-sitter-bash"},
	{Name: Elisp, Kind: KindCode, Extensions: []string{".el"}, Repository: "github.com/Wilfred/tree-sitter-elisp"},
	{Name: SystemRDL, Kind: KindCode, Extensions: []string{".rdl"}, Repository: "github.com/SystemRDL/tree-sitter-systemrdl"},
	{Name: TLAPlus, Kind: KindCode, Extensions: []string{".tla"}, Repository: "github.com/tlaplus-community/tree-sitter-tlaplus"},
	{Name: QL, Kind: KindCode, Extensions: []string{".ql", ".qll"}, Repository: "github.com/tree-sitter/tree-sitter-ql"},
	{Name: ReScript, Kind: KindCode, Extensions: []string{".res", ".resi", ".re"}, Repository: "github.com/rescript-lang/tree-sitter-rescript"},
	{Name: Markdown, Kind: KindMarkup, Extensions: []string{".md", ".markdown"}, Repository: "github.com/ikatyang/tree-sitter-markdown"},
	{Name: R, Kind: KindCode, Extensions: []string{".r"}, Repository: "github.com/r-lib/tree-sitter-r"},
	{Name: Dart, Kind: KindCode, Extensions: []string{".dart"}, Repository: "github.com/UserNobody14/tree-sitter-dart"},
	{Name: Haskell, Kind: KindCode, Extensions: []string{".hs"}, Repository: "github.com/tree-sitter/tree-sitter-haskell"},
	{Name: SQL, Kind: KindData, Extensions: []string{".sql"}, Repository: "github.com/DerekStride/tree-sitter-sql"},
	{Name: Dockerfile, Kind: KindData, Filenames: []string{"Dockerfile", "Containerfile"}, Repository: "github.com/camdencheek/tree-sitter-dockerfile"},
	{Name: Make, Kind: KindData, Filenames: []string{"Makefile", "makefile", "GNUmakefile"}, Extensions: []string{".mk"}, Repository: "github.com/alemuller/tree-sitter-make"},
	{Name: Proto, Kind: KindData, Extensions: []string{".proto"}, Repository: "github.com/mitchellh/tree-sitter-proto"},
	{Name: GraphQL, Kind: KindData, Extensions: []string{".graphql", ".gql"}, Repository: "github.com/bkegley/tree-sitter-graphql"},
	{Name: HCL, Kind: KindData, Extensions: []string{".hcl", ".tf"}, Repository: "github.com/MichaHoffmann/tree-sitter-hcl"},
	{Name: Erlang, Kind: KindCode, Extensions: []string{".erl", ".hrl"}, Repository: "github.com/WhatsApp/tree-sitter-erlang"},
	{Name: Julia, Kind: KindCode, Extensions: []string{".jl"}, Repository: "github.com/tree-sitter/tree-sitter-julia"},
}

var (
	byName      = make(map[Language]Info, len(known))
	byExtension = make(map[string]Language)
	byFilename  = make(map[string]Language)
)

func init() {
	for _, info := range known {
		byName[info.Name] = info
		for _, ext := range info.Extensions {
			byExtension[ext] = info.Name
		}
		for _, name := range info.Filenames {
			byFilename[name] = info.Name
		}
	}
}

// Detect resolves the language of a file by exact filename first, then by
// case-insensitive extension.
func Detect(path string) (Language, bool) {
	base := filepath.Base(path)
	if lang, ok := byFilename[base]; ok {
		return lang, true
	}

	ext := strings.ToLower(filepath.Ext(base))
	if ext == "" {
		return "", false
	}
	lang, ok := byExtension[ext]
	return lang, ok
}

// Lookup returns the registry entry for a language.
func Lookup(lang Language) (Info, bool) {
	info, ok := byName[lang]
	return info, ok
}

// IsSupported reports whether lang is registered.
func IsSupported(lang Language) bool {
	_, ok := byName[lang]
	return ok
}

// All returns every registered language sorted by name.
func All() []Language {
	langs := make([]Language, 0, len(known))
	for _, info := range known {
		langs = append(langs, info.Name)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}

// Extensions returns every registered extension, sorted.
func Extensions() []string {
	exts := make([]string, 0, len(byExtension))
	for ext := range byExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func (l Language) String() string {
	return string(l)
}
