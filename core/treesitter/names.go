package treesitter

import (
	"regexp"
	"strings"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/extract"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/language"
)

const definitionPrefix = "definition."

// captureTypes maps bare capture names to symbol types.
var captureTypes = map[string]string{
	"function":      extract.TypeFunction,
	"function_name": extract.TypeFunction,
	"method":        extract.TypeMethod,
	"method_name":   extract.TypeMethod,
	"class":         extract.TypeClass,
	"class_name":    extract.TypeClass,
	"interface":     extract.TypeInterface,
	"struct":        extract.TypeStruct,
	"enum":          extract.TypeEnum,
	"trait":         extract.TypeTrait,
	"protocol":      extract.TypeProtocol,
	"module":        extract.TypeModule,
	"namespace":     extract.TypeNamespace,
	"property":      extract.TypeProperty,
	"variable":      extract.TypeVariable,
	"constant":      extract.TypeConstant,
	"initializer":   extract.TypeInitializer,
	"type_alias":    extract.TypeType,
	"name":          extract.TypeVariable,
}

var languageCaptureTypes = map[language.Language]map[string]string{
	language.Bash: {
		"function.name":   extract.TypeFunction,
		"variable.name":   extract.TypeVariable,
		"command.env_var": extract.TypeVariable,
	},
}

// captureType maps a capture name to a symbol type: a definition.X capture is
// type X, anything else goes through the capture tables.
func captureType(captureName string, lang language.Language) string {
	if kind, ok := strings.CutPrefix(captureName, definitionPrefix); ok && kind != "" {
		return kind
	}
	if t, ok := languageCaptureTypes[lang][captureName]; ok {
		return t
	}
	if t, ok := captureTypes[captureName]; ok {
		return t
	}
	return extract.TypeUnknown
}

var definitionModifiers = toSet(
	"public", "private", "protected", "internal", "fileprivate", "open", "static",
	"final", "abstract", "async", "export", "default", "sealed", "override",
	"virtual", "data", "inline", "suspend", "pub", "unsafe", "extern", "partial",
	"readonly", "mutating", "declare", "local", "companion", "case", "lazy",
	"weak", "indirect", "convenience", "required", "dynamic", "nonmutating",
)

var definitionKeywords = toSet(
	"def", "class", "function", "func", "fn", "struct", "enum", "interface",
	"trait", "protocol", "type", "module", "mod", "impl", "let", "var", "val",
	"fun", "object", "actor", "extension", "init", "namespace", "package", "sub",
	"record", "union", "typedef", "const", "macro_rules!", "defmodule", "defp",
	"alias",
)

// keywordTypes refines a class capture from the keyword that introduced it.
var keywordTypes = map[string]string{
	"struct":    extract.TypeStruct,
	"enum":      extract.TypeEnum,
	"interface": extract.TypeInterface,
	"protocol":  extract.TypeProtocol,
	"trait":     extract.TypeTrait,
	"actor":     extract.TypeActor,
	"extension": extract.TypeExtension,
}

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

var (
	leadingWord      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*!?`)
	leadingAttribute = regexp.MustCompile(`^[@#]\[?[\w.:]+(?:\([^)]*\))?\]?`)
	leadingName      = regexp.MustCompile(`^[*&\s]*([A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*)*)`)
)

// nameFromDefinition recovers a symbol name from the text of a definition
// when the grammar does not label it: leading attributes, modifiers and
// declaration keywords are skipped and the first identifier is taken. The
// first keyword seen is returned as well.
func nameFromDefinition(text string) (name, keyword string) {
	rest := strings.TrimSpace(text)
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	rest = stripAngles(rest)

	afterModifier := false
	for {
		rest = strings.TrimLeft(rest, " \t")
		if loc := leadingAttribute.FindStringIndex(rest); loc != nil {
			rest = rest[loc[1]:]
			continue
		}
		// visibility qualifiers such as pub(crate)
		if afterModifier && keyword == "" && strings.HasPrefix(rest, "(") {
			if i := strings.IndexByte(rest, ')'); i >= 0 {
				rest = rest[i+1:]
				afterModifier = false
				continue
			}
		}
		word := leadingWord.FindString(rest)
		if word == "" {
			break
		}
		if definitionModifiers[word] {
			rest = rest[len(word):]
			afterModifier = true
			continue
		}
		if definitionKeywords[word] {
			if keyword == "" {
				keyword = word
			}
			rest = rest[len(word):]
			afterModifier = false
			continue
		}
		break
	}

	if m := leadingName.FindStringSubmatch(rest); m != nil {
		name = m[1]
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			name = name[i+1:]
		}
	}
	if name == "" && keyword == "init" {
		name = "init"
	}
	return name, keyword
}

// stripAngles removes angle-bracketed generic parameters.
func stripAngles(s string) string {
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

// symbolFromCapture normalizes one capture into a raw symbol. ok is false
// when no name can be recovered.
func symbolFromCapture(c capture, lang language.Language) (extract.RawSymbol, bool) {
	symbolType := captureType(c.name, lang)

	var name, keyword string
	if strings.HasPrefix(c.name, definitionPrefix) {
		name = strings.TrimSpace(c.fieldName)
		_, keyword = nameFromDefinition(c.text)
		if name == "" {
			name, _ = nameFromDefinition(c.text)
		}
	} else {
		name = strings.TrimSpace(c.text)
	}
	if name == "" {
		return extract.RawSymbol{}, false
	}

	if symbolType == extract.TypeClass {
		kind := c.declKind
		if kind == "" {
			kind = keyword
		}
		if refined, ok := keywordTypes[kind]; ok {
			symbolType = refined
		}
	}

	return extract.RawSymbol{
		Name:      name,
		Type:      symbolType,
		LineStart: int(c.startRow) + 1,
		LineEnd:   int(c.endRow) + 1,
		Snippet:   c.text,
	}, true
}
