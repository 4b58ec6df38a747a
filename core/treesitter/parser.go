package treesitter

import (
	"fmt"
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ParserPool hands out parsers already bound to a language. Parsers are not
// safe for concurrent use, so each caller holds one between Get and Put.
type ParserPool struct {
	parsers map[string]*parserPoolEntry
	maxIdle int
	mu      sync.Mutex
}

type parserPoolEntry struct {
	idle   []*sitter.Parser
	active int
}

type ParserPoolStats struct {
	Idle   int `json:"idle"`
	Active int `json:"active"`
}

// NewParserPool keeps at most maxIdle parsers per language.
func NewParserPool(maxIdle int) *ParserPool {
	if maxIdle <= 0 {
		maxIdle = 4
	}
	return &ParserPool{
		parsers: make(map[string]*parserPoolEntry),
		maxIdle: maxIdle,
	}
}

func (p *ParserPool) Get(languageName string, lang *sitter.Language) (*sitter.Parser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry := p.getOrCreateEntry(languageName)
	if parser := p.popIdle(entry); parser != nil {
		entry.active++
		return parser, nil
	}

	parser := sitter.NewParser()
	if err := parser.SetLanguage(lang); err != nil {
		parser.Close()
		return nil, fmt.Errorf("set language %s: %w", languageName, err)
	}
	entry.active++
	return parser, nil
}

func (p *ParserPool) getOrCreateEntry(languageName string) *parserPoolEntry {
	entry, ok := p.parsers[languageName]
	if !ok {
		entry = &parserPoolEntry{idle: make([]*sitter.Parser, 0, p.maxIdle)}
		p.parsers[languageName] = entry
	}
	return entry
}

func (p *ParserPool) popIdle(entry *parserPoolEntry) *sitter.Parser {
	if len(entry.idle) == 0 {
		return nil
	}
	parser := entry.idle[len(entry.idle)-1]
	entry.idle = entry.idle[:len(entry.idle)-1]
	return parser
}

func (p *ParserPool) Put(languageName string, parser *sitter.Parser) {
	if parser == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	entry := p.parsers[languageName]
	if entry == nil {
		parser.Close()
		return
	}

	entry.active--
	if len(entry.idle) >= p.maxIdle {
		parser.Close()
		return
	}

	parser.Reset()
	entry.idle = append(entry.idle, parser)
}

func (p *ParserPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range p.parsers {
		for _, parser := range entry.idle {
			parser.Close()
		}
		entry.idle = nil
	}
	p.parsers = make(map[string]*parserPoolEntry)
	return nil
}

func (p *ParserPool) Stats() map[string]ParserPoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := make(map[string]ParserPoolStats)
	for name, entry := range p.parsers {
		stats[name] = ParserPoolStats{
			Idle:   len(entry.idle),
			Active: entry.active,
		}
	}
	return stats
}
