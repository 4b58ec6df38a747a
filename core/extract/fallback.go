package extract

import (
	"regexp"
	"strings"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/language"
)

// linePattern recognizes one declaration form. The first capture group is the
// symbol name.
type linePattern struct {
	re         *regexp.Regexp
	symbolType string
	// untrimmed patterns see the line with its indentation, so they can
	// anchor on column zero.
	untrimmed bool
	nameGroup int
}

func pat(expr, symbolType string) linePattern {
	return linePattern{re: regexp.MustCompile(expr), symbolType: symbolType, nameGroup: 1}
}

func rawPat(expr, symbolType string) linePattern {
	p := pat(expr, symbolType)
	p.untrimmed = true
	return p
}

func (p linePattern) group(n int) linePattern {
	p.nameGroup = n
	return p
}

const (
	swiftModifiers  = `(?:(?:public|private|internal|fileprivate|open|final|static|class|override|mutating|@\w+)\s+)*`
	kotlinModifiers = `(?:(?:public|private|internal|protected|override|open|abstract|final|suspend|inline|data|sealed|enum|annotation|inner)\s+)*`
	phpModifiers    = `(?:(?:public|private|protected|static|final|abstract)\s+)*`
)

var jsPatterns = []linePattern{
	pat(`^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*(\w+)\s*\(`, TypeFunction),
	pat(`^(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?(?:\([^)]*\)|\w+)\s*=>`, TypeFunction),
	pat(`^(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+(\w+)`, TypeClass),
}

var tsPatterns = append(append([]linePattern{}, jsPatterns...),
	pat(`^(?:export\s+)?(?:declare\s+)?interface\s+(\w+)`, TypeInterface),
	pat(`^(?:export\s+)?(?:declare\s+)?type\s+(\w+)\s*(?:<[^>]*>)?\s*=`, TypeType),
	pat(`^(?:export\s+)?(?:declare\s+)?(?:const\s+)?enum\s+(\w+)`, TypeEnum),
)

var cFamilyPatterns = []linePattern{
	pat(`^(?:[\w\*&\s]+\s+)?(\w+)\s*\([^)]*\)\s*(?:const\s*)?(?:override\s*)?(?:noexcept\s*)?(?:=\s*(?:0|default|delete)\s*)?[;{]?$`, TypeFunction),
	pat(`^(?:typedef\s+)?class\s+(\w+)`, TypeClass),
	pat(`^(?:typedef\s+)?struct\s+(\w+)`, TypeStruct),
	pat(`^(?:typedef\s+)?enum\s+(?:class\s+)?(\w+)`, TypeEnum),
	pat(`^namespace\s+(\w+)`, TypeNamespace),
	pat(`^#define\s+(\w+)`, TypeMacro),
}

var fallbackTables = map[language.Language][]linePattern{
	language.Python: {
		pat(`^(?:async\s+)?def\s+(\w+)\s*\(`, TypeFunction),
		pat(`^class\s+(\w+)`, TypeClass),
		rawPat(`^([A-Z][A-Z0-9_]*)\s*(?::[^=]+)?=[^=]`, TypeConstant),
	},
	language.JavaScript: jsPatterns,
	language.TypeScript: tsPatterns,
	language.TSX:        tsPatterns,
	language.Vue:        jsPatterns,
	language.Java: {
		pat(`^(?:public|private|protected)?\s*(?:static\s+)?(?:final\s+)?(?:synchronized\s+)?(?:native\s+)?(?:abstract\s+)?(?:strictfp\s+)?(?:<[^>]+>\s+)?(?:[\w\[\]<>,.]+\s+)?(\w+)\s*\([^)]*\)`, TypeMethod),
		pat(`^(?:public\s+|private\s+|protected\s+)?(?:static\s+)?(?:abstract\s+)?(?:final\s+)?(?:strictfp\s+)?class\s+(\w+)`, TypeClass),
		pat(`^(?:public\s+)?interface\s+(\w+)`, TypeInterface),
		pat(`^(?:public\s+)?enum\s+(\w+)`, TypeEnum),
	},
	language.C:   cFamilyPatterns,
	language.CPP: cFamilyPatterns,
	language.CSharp: {
		pat(`^(?:public|private|protected|internal)?\s*(?:static\s+)?(?:virtual\s+)?(?:abstract\s+)?(?:override\s+)?(?:sealed\s+)?(?:async\s+)?(?:[\w\[\]<>,.?]+\s+)?(\w+)\s*\([^)]*\)`, TypeMethod),
		pat(`^(?:public|private|protected|internal)?\s*(?:abstract\s+)?(?:sealed\s+)?(?:static\s+)?(?:partial\s+)?class\s+(\w+)`, TypeClass),
		pat(`^(?:public|private|protected|internal)?\s*(?:partial\s+)?interface\s+(\w+)`, TypeInterface),
		pat(`^(?:public|private|protected|internal)?\s*(?:readonly\s+)?(?:partial\s+)?struct\s+(\w+)`, TypeStruct),
		pat(`^(?:public|private|protected|internal)?\s*enum\s+(\w+)`, TypeEnum),
		pat(`^namespace\s+([\w.]+)`, TypeNamespace),
	},
	language.Go: {
		pat(`^func\s+(?:\(\s*[\w\*]+(?:\s+[\w\*\[\], ]+)?\s*\)\s+)?(\w+)\s*[\[(]`, TypeFunction),
		pat(`^type\s+(\w+)(?:\[[^\]]*\])?\s+struct\b`, TypeStruct),
		pat(`^type\s+(\w+)(?:\[[^\]]*\])?\s+interface\b`, TypeInterface),
		pat(`^type\s+(\w+)`, TypeType),
		pat(`^package\s+(\w+)`, TypePackage),
	},
	language.Rust: {
		pat(`^(?:pub(?:\([^)]*\))?\s+)?(?:const\s+)?(?:async\s+)?(?:unsafe\s+)?(?:extern\s+"[^"]*"\s+)?fn\s+(\w+)`, TypeFunction),
		pat(`^(?:pub(?:\([^)]*\))?\s+)?struct\s+(\w+)`, TypeStruct),
		pat(`^(?:pub(?:\([^)]*\))?\s+)?(?:unsafe\s+)?trait\s+(\w+)`, TypeTrait),
		pat(`^(?:pub(?:\([^)]*\))?\s+)?enum\s+(\w+)`, TypeEnum),
		pat(`^(?:pub(?:\([^)]*\))?\s+)?mod\s+(\w+)`, TypeModule),
		pat(`^(?:pub(?:\([^)]*\))?\s+)?type\s+(\w+)`, TypeType),
		pat(`^macro_rules!\s*(\w+)`, TypeMacro),
	},
	language.Swift: {
		pat(`^`+swiftModifiers+`func\s+(\w+)`, TypeFunction),
		pat(`^`+swiftModifiers+`class\s+(\w+)`, TypeClass),
		pat(`^`+swiftModifiers+`struct\s+(\w+)`, TypeStruct),
		pat(`^`+swiftModifiers+`protocol\s+(\w+)`, TypeProtocol),
		pat(`^`+swiftModifiers+`enum\s+(\w+)`, TypeEnum),
		pat(`^`+swiftModifiers+`actor\s+(\w+)`, TypeActor),
		pat(`^`+swiftModifiers+`extension\s+(\w+)`, TypeExtension),
		pat(`^`+swiftModifiers+`(?:let|var)\s+(\w+)`, TypeVariable),
	},
	language.Kotlin: {
		pat(`^`+kotlinModifiers+`fun\s+(?:<[^>]+>\s+)?(?:[\w.]+\.)?(\w+)\s*\(`, TypeFunction),
		pat(`^`+kotlinModifiers+`class\s+(\w+)`, TypeClass),
		pat(`^`+kotlinModifiers+`interface\s+(\w+)`, TypeInterface),
		pat(`^`+kotlinModifiers+`object\s+(\w+)`, TypeClass),
		pat(`^(?:const\s+)?val\s+([A-Z][A-Z0-9_]*)\s*[:=]`, TypeConstant),
	},
	language.Ruby: {
		pat(`^def\s+(?:self\.)?(\w+[?!=]?)`, TypeMethod),
		pat(`^class\s+(\w+)`, TypeClass),
		pat(`^module\s+(\w+)`, TypeModule),
	},
	language.PHP: {
		pat(`^`+phpModifiers+`function\s+&?(\w+)\s*\(`, TypeFunction),
		pat(`^(?:abstract\s+|final\s+)?class\s+(\w+)`, TypeClass),
		pat(`^interface\s+(\w+)`, TypeInterface),
		pat(`^trait\s+(\w+)`, TypeTrait),
	},
	language.Scala: {
		pat(`^(?:(?:private|protected|override|final|implicit)\s+)*def\s+(\w+)`, TypeFunction),
		pat(`^(?:(?:abstract|final|sealed|case)\s+)*class\s+(\w+)`, TypeClass),
		pat(`^(?:case\s+)?object\s+(\w+)`, TypeModule),
		pat(`^(?:sealed\s+)?trait\s+(\w+)`, TypeTrait),
	},
	language.Lua: {
		pat(`^(?:local\s+)?function\s+(?:\w+[.:])*(\w+)\s*\(`, TypeFunction),
		pat(`^(?:local\s+)?(\w+)\s*=\s*function\s*\(`, TypeFunction),
	},
	language.Elixir: {
		pat(`^defmodule\s+([\w.]+)`, TypeModule),
		pat(`^defp?\s+(\w+[?!]?)`, TypeFunction),
		pat(`^defmacrop?\s+(\w+[?!]?)`, TypeMacro),
	},
	language.Bash: {
		pat(`^function\s+(\w+)\s*(?:\(\)\s*)?[{(]?`, TypeFunction),
		pat(`^(\w+)\s*\(\)\s*(?:\{|\(|\[\[|$)`, TypeFunction),
		pat(`^(?:declare|typeset|local|readonly|export)\s+(?:-\w+\s+)*(\w+)=`, TypeVariable),
		pat(`^(\w+)=`, TypeVariable),
	},
	language.Solidity: {
		pat(`^(?:abstract\s+)?contract\s+(\w+)`, TypeClass),
		pat(`^interface\s+(\w+)`, TypeInterface),
		pat(`^library\s+(\w+)`, TypeModule),
		pat(`^function\s+(\w+)\s*\(`, TypeFunction),
		pat(`^modifier\s+(\w+)`, TypeFunction),
		pat(`^event\s+(\w+)`, TypeType),
		pat(`^struct\s+(\w+)`, TypeStruct),
		pat(`^enum\s+(\w+)`, TypeEnum),
	},
	language.Zig: {
		pat(`^(?:pub\s+)?(?:export\s+)?(?:inline\s+)?fn\s+(\w+)`, TypeFunction),
		pat(`^(?:pub\s+)?const\s+(\w+)\s*=\s*(?:extern\s+|packed\s+)?struct\b`, TypeStruct),
		pat(`^(?:pub\s+)?const\s+(\w+)\s*=\s*(?:union\()?enum\b`, TypeEnum),
		pat(`^(?:pub\s+)?const\s+(\w+)\s*=`, TypeConstant),
	},
	language.OCaml: {
		pat(`^let\s+(?:rec\s+)?(\w+)`, TypeFunction),
		pat(`^type\s+(?:'\w+\s+)?(\w+)`, TypeType),
		pat(`^module\s+(?:type\s+)?(\w+)`, TypeModule),
	},
	language.Elm: {
		pat(`^module\s+([\w.]+)`, TypeModule),
		pat(`^type\s+alias\s+(\w+)`, TypeType),
		pat(`^type\s+(\w+)`, TypeType),
		rawPat(`^([a-z]\w*)\s*:`, TypeFunction),
	},
	language.Markdown: {
		rawPat(`^#{1,6}\s+(.+?)\s*#*\s*$`, TypeHeading),
		rawPat("^```\\s*([\\w+#-]+)", TypeSection),
	},
	language.YAML: {
		rawPat(`^([\w.-]+)\s*:\s*&([\w-]+)`, TypeVariable).group(2),
		rawPat(`^([\w.-]+)\s*:(?:\s|$)`, TypeKey),
	},
	language.TOML: {
		pat(`^\[\[\s*([^\]]+?)\s*\]\]`, TypeTable),
		pat(`^\[\s*([^\]]+?)\s*\]`, TypeTable),
		rawPat(`^([\w.-]+|"[^"]+")\s*=`, TypeKey),
	},
	language.JSON: {
		pat(`^"([^"]+)"\s*:`, TypeKey),
	},
}

var genericPatterns = []linePattern{
	pat(`^def\s+(\w+)`, TypeFunction),
	pat(`^func\s+(\w+)`, TypeFunction),
	pat(`^function\s+(\w+)`, TypeFunction),
	pat(`^fn\s+(\w+)`, TypeFunction),
	pat(`^(\w+)\s*\([^)]*\)\s*{`, TypeFunction),
	pat(`^class\s+(\w+)`, TypeClass),
	pat(`^struct\s+(\w+)`, TypeClass),
	pat(`^trait\s+(\w+)`, TypeClass),
	pat(`^protocol\s+(\w+)`, TypeClass),
	pat(`^interface\s+(\w+)`, TypeClass),
}

// declarationKeywords never name a symbol; the broad method patterns would
// otherwise pick up control flow such as "if (x) {".
var declarationKeywords = map[string]bool{
	"if": true, "else": true, "elif": true, "for": true, "foreach": true, "while": true,
	"do": true, "switch": true, "case": true, "match": true, "try": true, "catch": true,
	"finally": true, "using": true, "return": true, "throw": true, "new": true,
	"sizeof": true, "typeof": true, "await": true, "with": true, "lock": true,
	"function": true, "def": true, "class": true, "struct": true, "enum": true,
	"namespace": true, "template": true, "typename": true, "public": true,
	"private": true, "protected": true, "internal": true, "static": true,
	"defined": true, "elseif": true, "until": true, "then": true, "fi": true,
	"done": true, "esac": true, "in": true,
}

// HasFallback reports whether lang has its own pattern table.
func HasFallback(lang language.Language) bool {
	_, ok := fallbackTables[lang]
	return ok
}

// Fallback extracts one-line symbols from lines using the language's pattern
// table, or the generic set for languages without one. Patterns run in table
// order across the whole file, and a line claimed by an earlier pattern is not
// matched again.
func Fallback(lines []string, lang language.Language) []RawSymbol {
	patterns, ok := fallbackTables[lang]
	if !ok {
		patterns = genericPatterns
	}

	trimmed := make([]string, len(lines))
	for i, line := range lines {
		trimmed[i] = strings.TrimSpace(line)
	}

	claimed := make(map[int]bool)
	var symbols []RawSymbol
	for _, p := range patterns {
		for i := range lines {
			if claimed[i] || trimmed[i] == "" {
				continue
			}
			subject := trimmed[i]
			if p.untrimmed {
				subject = strings.TrimRight(lines[i], " \t\r")
			}
			m := p.re.FindStringSubmatch(subject)
			if m == nil {
				continue
			}
			if statementStarts[firstWord(trimmed[i])] {
				continue
			}
			name := p.name(m)
			if name == "" || declarationKeywords[name] {
				continue
			}
			claimed[i] = true
			symbols = append(symbols, RawSymbol{
				Name:      name,
				Type:      p.symbolType,
				LineStart: i + 1,
				LineEnd:   i + 1,
				Snippet:   trimmed[i],
			})
		}
	}
	return symbols
}

func (p linePattern) name(m []string) string {
	if p.nameGroup >= len(m) {
		return ""
	}
	return strings.Trim(strings.TrimSpace(m[p.nameGroup]), `"`)
}

// statementStarts begin lines that use a name rather than declare one.
var statementStarts = map[string]bool{
	"return": true, "throw": true, "else": true, "case": true, "new": true,
	"delete": true, "goto": true, "await": true, "yield": true, "echo": true,
}

func firstWord(line string) string {
	end := strings.IndexAny(line, " \t(")
	if end < 0 {
		return line
	}
	return line[:end]
}

// SplitLines splits content on newlines, keeping the line count stable for
// files that end without one.
func SplitLines(content []byte) []string {
	return strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
}
