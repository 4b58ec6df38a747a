package treesitter

import "errors"

var (
	ErrParseFailed     = errors.New("parse failed")
	ErrGrammarNotFound = errors.New("grammar not found")
	ErrGrammarDisabled = errors.New("grammar disabled")
	ErrNoQuery         = errors.New("no symbol query for language")
	ErrInvalidQuery    = errors.New("invalid query pattern")
)
