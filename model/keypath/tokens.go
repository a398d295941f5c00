package keypath

import (
	"github.com/viant/parsly"
	"github.com/viant/parsly/matcher"
)

// Token codes
const (
	identifierCode = iota
	dotCode
	openBracketCode
	closeBracketCode
	indexCode
)

// Token definitions
var (
	identifierToken   = parsly.NewToken(identifierCode, "Identifier", newIdentifierMatcher())
	dotToken          = parsly.NewToken(dotCode, ".", matcher.NewByte('.'))
	openBracketToken  = parsly.NewToken(openBracketCode, "[", matcher.NewByte('['))
	closeBracketToken = parsly.NewToken(closeBracketCode, "]", matcher.NewByte(']'))
	indexToken        = parsly.NewToken(indexCode, "Index", newIndexMatcher())
)

func newIdentifierMatcher() parsly.Matcher {
	return &identifierMatcher{}
}

func newIndexMatcher() parsly.Matcher {
	return &indexMatcher{}
}

// identifierMatcher matches map key segments
type identifierMatcher struct{}

func (m *identifierMatcher) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	pos := cursor.Pos
	size := cursor.InputSize

	if pos >= size {
		return 0
	}

	// First character must be a letter or underscore
	if !isLetter(input[pos]) && input[pos] != '_' {
		return 0
	}

	matched := 1
	for i := pos + 1; i < size; i++ {
		if isLetter(input[i]) || isDigit(input[i]) || input[i] == '_' || input[i] == '-' {
			matched++
			continue
		}
		break
	}
	return matched
}

// indexMatcher matches a non-negative integer element index
type indexMatcher struct{}

func (m *indexMatcher) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	pos := cursor.Pos
	size := cursor.InputSize

	if pos >= size {
		return 0
	}

	matched := 0
	for i := pos; i < size; i++ {
		if !isDigit(input[i]) {
			break
		}
		matched++
	}
	return matched
}

// Helper functions
func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
