package extract

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/language"
)

// Attribution selects which containing symbol a call on a line belongs to.
type Attribution int

const (
	// AttributeFirst picks the first symbol in extraction order whose range
	// contains the line.
	AttributeFirst Attribution = iota
	// AttributeNarrowest picks the containing symbol with the smallest range.
	AttributeNarrowest
)

// ParseAttribution maps the config value to an Attribution. Unknown values
// select AttributeFirst.
func ParseAttribution(s string) Attribution {
	if strings.EqualFold(s, "narrowest") {
		return AttributeNarrowest
	}
	return AttributeFirst
}

func (a Attribution) String() string {
	if a == AttributeNarrowest {
		return "narrowest"
	}
	return "first"
}

var callToken = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

func stoplist(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

var genericStoplist = stoplist("if", "for", "while", "switch", "try", "catch", "return", "print", "console")

var callStoplists = map[language.Language]map[string]bool{
	language.Python: stoplist("if", "elif", "for", "while", "with", "def", "class", "import", "from",
		"return", "print", "not", "and", "or", "in", "assert", "except", "lambda", "yield"),
	language.JavaScript: stoplist("if", "for", "while", "switch", "function", "class", "import", "export",
		"return", "console", "catch", "typeof", "super"),
	language.Java: stoplist("if", "for", "while", "switch", "try", "catch", "finally", "public", "private",
		"protected", "static", "return", "synchronized", "super", "this"),
	language.C: stoplist("if", "for", "while", "switch", "try", "catch", "class", "struct", "enum",
		"namespace", "template", "typename", "return", "sizeof", "defined"),
	language.CSharp: stoplist("if", "for", "foreach", "while", "switch", "try", "catch", "finally", "using",
		"public", "private", "protected", "internal", "static", "return", "lock", "nameof", "typeof"),
	language.Go: stoplist("if", "for", "range", "switch", "select", "func", "type", "struct", "interface",
		"import", "return", "fmt", "make", "len", "cap", "append", "new", "panic"),
	language.Rust: stoplist("if", "for", "while", "match", "fn", "struct", "enum", "trait", "impl", "use",
		"return", "println", "Some", "Ok", "Err"),
	language.Swift: stoplist("if", "for", "while", "switch", "guard", "func", "class", "struct", "enum",
		"protocol", "import", "return", "print", "init"),
	language.Kotlin: stoplist("if", "for", "while", "when", "fun", "class", "interface", "object",
		"import", "return", "println", "catch"),
	language.Ruby: stoplist("if", "unless", "while", "until", "def", "class", "module", "return", "puts",
		"require", "raise"),
	language.PHP: stoplist("if", "elseif", "for", "foreach", "while", "switch", "function", "class",
		"return", "echo", "array", "isset", "empty", "catch"),
}

func init() {
	callStoplists[language.TypeScript] = callStoplists[language.JavaScript]
	callStoplists[language.TSX] = callStoplists[language.JavaScript]
	callStoplists[language.Vue] = callStoplists[language.JavaScript]
	callStoplists[language.CPP] = callStoplists[language.C]
}

func callStoplist(lang language.Language) map[string]bool {
	if s, ok := callStoplists[lang]; ok {
		return s
	}
	return genericStoplist
}

// Inferencer derives call and inheritance edges from raw text.
type Inferencer struct {
	attribution Attribution
}

func NewInferencer(attribution Attribution) *Inferencer {
	return &Inferencer{attribution: attribution}
}

// Infer scans lines for call tokens and per-language inheritance forms.
// Calls are attributed to a symbol containing the line; a token naming a
// symbol declared on that same line is its declaration and is skipped.
func (in *Inferencer) Infer(lines []string, symbols []RawSymbol, lang language.Language) Relationships {
	rels := make(Relationships)

	declared := make(map[int]map[string]bool)
	for _, s := range symbols {
		if declared[s.LineStart] == nil {
			declared[s.LineStart] = make(map[string]bool)
		}
		declared[s.LineStart][s.Name] = true
	}

	if lang == language.Bash {
		in.inferShell(lines, symbols, declared, rels)
	} else {
		in.inferCalls(lines, symbols, declared, callStoplist(lang), rels)
	}
	inferInheritance(lines, lang, rels)
	return rels
}

func (in *Inferencer) inferCalls(lines []string, symbols []RawSymbol, declared map[int]map[string]bool,
	stop map[string]bool, rels Relationships) {
	for i, line := range lines {
		lineNo := i + 1
		for _, m := range callToken.FindAllStringSubmatch(line, -1) {
			name := m[1]
			if stop[name] || declared[lineNo][name] {
				continue
			}
			owner, ok := in.enclosing(symbols, lineNo)
			if !ok {
				continue
			}
			rels.add(owner.Name, RawRelationship{
				Type:       RelCalls,
				Target:     name,
				TargetType: TypeFunction,
				Line:       lineNo,
			})
		}
	}
}

func (in *Inferencer) enclosing(symbols []RawSymbol, line int) (RawSymbol, bool) {
	var best RawSymbol
	found := false
	for _, s := range symbols {
		if !s.Contains(line) {
			continue
		}
		if in.attribution == AttributeFirst {
			return s, true
		}
		if !found || s.Span() < best.Span() {
			best = s
			found = true
		}
	}
	return best, found
}

var (
	shellCommand = regexp.MustCompile(`(?:^|[|;&]|\$\(|\b(?:then|do|else)\s)\s*([A-Za-z_][A-Za-z0-9_]*)\b`)
	shellVarUse  = regexp.MustCompile(`\$\{?([A-Za-z_][A-Za-z0-9_]*)`)
	shellSource  = regexp.MustCompile(`^\s*(?:source|\.)\s+(\S+)`)
)

// inferShell handles shell scripts, where calls have no parentheses: a
// command word naming a function from this file is a call, a reference to a
// variable from this file is a use, and source lines become sources edges.
func (in *Inferencer) inferShell(lines []string, symbols []RawSymbol, declared map[int]map[string]bool, rels Relationships) {
	functions := make(map[string]bool)
	variables := make(map[string]bool)
	for _, s := range symbols {
		switch s.Type {
		case TypeFunction:
			functions[s.Name] = true
		case TypeVariable:
			variables[s.Name] = true
		}
	}

	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		owner, ok := in.enclosing(symbols, lineNo)
		if !ok {
			continue
		}

		for _, m := range shellCommand.FindAllStringSubmatch(line, -1) {
			name := m[1]
			if functions[name] && !declared[lineNo][name] {
				rels.add(owner.Name, RawRelationship{Type: RelCalls, Target: name, TargetType: TypeFunction, Line: lineNo})
			}
		}
		for _, m := range shellVarUse.FindAllStringSubmatch(line, -1) {
			if variables[m[1]] && m[1] != owner.Name {
				rels.add(owner.Name, RawRelationship{Type: RelUses, Target: m[1], TargetType: TypeVariable, Line: lineNo})
			}
		}
		if m := shellSource.FindStringSubmatch(line); m != nil {
			file := strings.Trim(m[1], `"'`)
			target := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
			rels.add(owner.Name, RawRelationship{Type: RelSources, Target: target, TargetType: "file", Line: lineNo})
		}
	}
}

// inheritanceRule recognizes a declaration line and returns the declaring
// name plus its supertypes.
type inheritanceRule func(line string) (name string, parents []parentRef)

type parentRef struct {
	name    string
	relType string
	kind    string
}

var (
	pyClass      = regexp.MustCompile(`^class\s+(\w+)\s*\(([^)]*)\)`)
	colonClass   = regexp.MustCompile(`^` + swiftModifiers + `(class|struct|enum|actor|extension|protocol)\s+(\w+)(?:<[^>]*>)?\s*:\s*([^{]+)`)
	ktClass      = regexp.MustCompile(`^` + kotlinModifiers + `(class|interface|object)\s+(\w+)(.*)$`)
	jsExtends    = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+(\w+)(?:<[^>]*>)?\s+extends\s+([\w.]+)`)
	implementsRe = regexp.MustCompile(`\bimplements\s+([\w.,\s<>\\]+?)\s*(?:\{|$|extends\b)`)
	ifaceExtends = regexp.MustCompile(`^(?:export\s+)?(?:public\s+)?interface\s+(\w+)(?:<[^>]*>)?\s+extends\s+([\w.,\s<>]+?)\s*(?:\{|$)`)
	javaClass    = regexp.MustCompile(`^(?:(?:public|private|protected|abstract|final|static|sealed)\s+)*class\s+(\w+)(?:<[^>]*>)?`)
	javaExtends  = regexp.MustCompile(`\bextends\s+([\w.]+)`)
	cppClass     = regexp.MustCompile(`^(?:class|struct)\s+(\w+)\s*(?:final\s*)?:\s*([^{]+)`)
	csClass      = regexp.MustCompile(`^(?:(?:public|private|protected|internal|abstract|sealed|static|partial|readonly)\s+)*(class|struct|interface|record)\s+(\w+)(?:<[^>]*>)?\s*:\s*([^{]+)`)
	rustImpl     = regexp.MustCompile(`^(?:unsafe\s+)?impl(?:<[^>]*>)?\s+([\w:]+)(?:<[^>]*>)?\s+for\s+(\w+)`)
	phpClass     = regexp.MustCompile(`^(?:abstract\s+|final\s+)?class\s+(\w+)`)
	phpExtends   = regexp.MustCompile(`\bextends\s+\\?([\w\\]+)`)
	rubyClass    = regexp.MustCompile(`^class\s+(\w+)\s*<\s*([\w:]+)`)
	scalaClass   = regexp.MustCompile(`^(?:(?:abstract|final|sealed|case)\s+)*(?:class|object|trait)\s+(\w+)[^{]*?\bextends\s+(\w+)`)
	scalaWith    = regexp.MustCompile(`\bwith\s+(\w+)`)
)

var inheritanceRules = map[language.Language]inheritanceRule{
	language.Python: func(line string) (string, []parentRef) {
		m := pyClass.FindStringSubmatch(line)
		if m == nil {
			return "", nil
		}
		var parents []parentRef
		for _, p := range splitList(m[2]) {
			// keyword arguments such as metaclass=ABCMeta are not bases
			if strings.Contains(p, "=") {
				continue
			}
			parents = append(parents, parentRef{name: lastSegment(p, "."), relType: RelInherits, kind: TypeClass})
		}
		return m[1], parents
	},
	language.Swift: func(line string) (string, []parentRef) {
		m := colonClass.FindStringSubmatch(line)
		if m == nil {
			return "", nil
		}
		var parents []parentRef
		for i, p := range splitList(m[3]) {
			// only a class's first entry can be a superclass; everything else
			// is protocol conformance
			if i == 0 && m[1] == "class" {
				parents = append(parents, parentRef{name: p, relType: RelInherits, kind: TypeClass})
				continue
			}
			parents = append(parents, parentRef{name: p, relType: RelImplements, kind: TypeProtocol})
		}
		return m[2], parents
	},
	language.Kotlin: func(line string) (string, []parentRef) {
		m := ktClass.FindStringSubmatch(line)
		if m == nil {
			return "", nil
		}
		rest := strings.TrimSpace(skipBalanced(strings.TrimSpace(skipBalanced(strings.TrimSpace(m[3]), '<', '>')), '(', ')'))
		if !strings.HasPrefix(rest, ":") {
			return "", nil
		}
		rest = strings.TrimPrefix(rest, ":")
		if i := strings.IndexByte(rest, '{'); i >= 0 {
			rest = rest[:i]
		}
		var parents []parentRef
		for _, p := range splitList(rest) {
			// a constructor call marks the superclass
			if strings.Contains(p, "(") {
				parents = append(parents, parentRef{name: stripGenerics(p), relType: RelInherits, kind: TypeClass})
				continue
			}
			parents = append(parents, parentRef{name: stripGenerics(p), relType: RelImplements, kind: TypeInterface})
		}
		return m[2], parents
	},
	language.JavaScript: jvmStyle,
	language.TypeScript: jvmStyle,
	language.TSX:        jvmStyle,
	language.Java:       jvmStyle,
	language.CPP: func(line string) (string, []parentRef) {
		m := cppClass.FindStringSubmatch(line)
		if m == nil {
			return "", nil
		}
		var parents []parentRef
		for _, p := range splitList(m[2]) {
			fields := strings.Fields(p)
			if len(fields) == 0 {
				continue
			}
			parents = append(parents, parentRef{name: lastSegment(fields[len(fields)-1], "::"), relType: RelInherits, kind: TypeClass})
		}
		return m[1], parents
	},
	language.CSharp: func(line string) (string, []parentRef) {
		m := csClass.FindStringSubmatch(removeGenerics(line))
		if m == nil {
			return "", nil
		}
		var parents []parentRef
		for _, p := range splitList(m[3]) {
			p = stripGenerics(p)
			switch {
			case m[1] == "interface":
				parents = append(parents, parentRef{name: p, relType: RelExtends, kind: TypeInterface})
			case isInterfaceName(p):
				parents = append(parents, parentRef{name: p, relType: RelImplements, kind: TypeInterface})
			default:
				parents = append(parents, parentRef{name: p, relType: RelInherits, kind: TypeClass})
			}
		}
		return m[2], parents
	},
	language.Rust: func(line string) (string, []parentRef) {
		m := rustImpl.FindStringSubmatch(line)
		if m == nil {
			return "", nil
		}
		return m[2], []parentRef{{name: lastSegment(m[1], "::"), relType: RelImplements, kind: TypeTrait}}
	},
	language.PHP: func(line string) (string, []parentRef) {
		m := phpClass.FindStringSubmatch(line)
		if m == nil {
			return "", nil
		}
		var parents []parentRef
		if e := phpExtends.FindStringSubmatch(line); e != nil {
			parents = append(parents, parentRef{name: lastSegment(e[1], `\`), relType: RelInherits, kind: TypeClass})
		}
		if im := implementsRe.FindStringSubmatch(line); im != nil {
			for _, p := range splitList(im[1]) {
				parents = append(parents, parentRef{name: lastSegment(p, `\`), relType: RelImplements, kind: TypeInterface})
			}
		}
		return m[1], parents
	},
	language.Ruby: func(line string) (string, []parentRef) {
		m := rubyClass.FindStringSubmatch(line)
		if m == nil {
			return "", nil
		}
		return m[1], []parentRef{{name: lastSegment(m[2], "::"), relType: RelInherits, kind: TypeClass}}
	},
	language.Scala: func(line string) (string, []parentRef) {
		m := scalaClass.FindStringSubmatch(line)
		if m == nil {
			return "", nil
		}
		parents := []parentRef{{name: m[2], relType: RelInherits, kind: TypeClass}}
		for _, w := range scalaWith.FindAllStringSubmatch(line, -1) {
			parents = append(parents, parentRef{name: w[1], relType: RelImplements, kind: TypeTrait})
		}
		return m[1], parents
	},
}

func jvmStyle(line string) (string, []parentRef) {
	line = removeGenerics(line)
	if m := ifaceExtends.FindStringSubmatch(line); m != nil {
		var parents []parentRef
		for _, p := range splitList(m[2]) {
			parents = append(parents, parentRef{name: stripGenerics(p), relType: RelExtends, kind: TypeInterface})
		}
		return m[1], parents
	}

	name := ""
	if m := jsExtends.FindStringSubmatch(line); m != nil {
		name = m[1]
	} else if m := javaClass.FindStringSubmatch(line); m != nil {
		name = m[1]
	}
	if name == "" {
		return "", nil
	}

	var parents []parentRef
	if e := javaExtends.FindStringSubmatch(line); e != nil {
		parents = append(parents, parentRef{name: lastSegment(e[1], "."), relType: RelInherits, kind: TypeClass})
	}
	if im := implementsRe.FindStringSubmatch(line); im != nil {
		for _, p := range splitList(im[1]) {
			parents = append(parents, parentRef{name: stripGenerics(p), relType: RelImplements, kind: TypeInterface})
		}
	}
	return name, parents
}

func inferInheritance(lines []string, lang language.Language, rels Relationships) {
	rule, ok := inheritanceRules[lang]
	if !ok {
		return
	}
	for i, line := range lines {
		name, parents := rule(strings.TrimSpace(line))
		if name == "" {
			continue
		}
		for _, p := range parents {
			if p.name == "" || p.name == name {
				continue
			}
			rels.add(name, RawRelationship{
				Type:       p.relType,
				Target:     p.name,
				TargetType: p.kind,
				Line:       i + 1,
			})
		}
	}
}

// isInterfaceName applies the C# convention: a leading I followed by an
// uppercase letter names an interface.
func isInterfaceName(name string) bool {
	r := []rune(name)
	return len(r) > 1 && r[0] == 'I' && unicode.IsUpper(r[1])
}

// splitList splits a comma separated type list, ignoring commas nested in
// angle brackets or parentheses.
func splitList(s string) []string {
	var parts []string
	depth := 0
	start := 0
	flush := func(end int) {
		if p := strings.TrimSpace(s[start:end]); p != "" {
			parts = append(parts, p)
		}
	}
	for i, r := range s {
		switch r {
		case '<', '(', '[':
			depth++
		case '>', ')', ']':
			depth--
		case ',':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(s))
	for i, p := range parts {
		parts[i] = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(p), "where"))
	}
	return parts
}

// skipBalanced drops a leading bracketed group, honouring nesting.
func skipBalanced(s string, opening, closing byte) string {
	if s == "" || s[0] != opening {
		return s
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case opening:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[i+1:]
			}
		}
	}
	return ""
}

// removeGenerics deletes every angle-bracketed group from s.
func removeGenerics(s string) string {
	var b strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '<':
			depth++
		case s[i] == '>' && depth > 0:
			depth--
		case depth == 0:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func stripGenerics(s string) string {
	if i := strings.IndexAny(s, "<("); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func lastSegment(s, sep string) string {
	s = stripGenerics(s)
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[i+len(sep):]
	}
	return s
}
