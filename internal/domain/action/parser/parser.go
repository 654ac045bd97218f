package parser

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/vadim/neo-gateway/internal/domain/action/entity"
)

// tokenBody matches the inside of a bracket pair: KIND or KIND: argument
var tokenBody = regexp.MustCompile(`^\s*([A-Za-z_]+)\s*(?::\s*(.*?))?\s*$`)

// Parsed is a reply split into customer-facing text and recognized tokens
type Parsed struct {
	CleanedText string
	Tokens      []entity.Token
}

// Parse extracts command tokens from reply text. Only bracket segments whose
// keyword is a known kind become tokens; unknown keywords, nested brackets and
// unclosed brackets stay in the text untouched. A known keyword without an
// argument yields a token carrying ErrInvalidActionToken. Every token is
// removed from CleanedText whether or not it is valid.
func Parse(raw string) Parsed {
	var tokens []entity.Token

	i := 0
	for i < len(raw) {
		open := strings.IndexByte(raw[i:], '[')
		if open < 0 {
			break
		}
		open += i

		end := strings.IndexAny(raw[open+1:], "[]")
		if end < 0 {
			// unclosed bracket
			break
		}
		end += open + 1
		if raw[end] == '[' {
			// nested: the whole enclosing segment is plain text
			closing := matchingClose(raw, open)
			if closing < 0 {
				break
			}
			i = closing + 1
			continue
		}

		tok, ok := recognize(raw[open+1 : end])
		if ok {
			tok.Index = len(tokens)
			tok.Raw = raw[open : end+1]
			tok.Start = open
			tok.End = end + 1
			tokens = append(tokens, tok)
		}
		i = end + 1
	}

	return Parsed{
		CleanedText: strip(raw, tokens),
		Tokens:      tokens,
	}
}

// matchingClose returns the index of the ']' balancing the '[' at open, or -1
func matchingClose(raw string, open int) int {
	depth := 0
	for j := open; j < len(raw); j++ {
		switch raw[j] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

func recognize(body string) (entity.Token, bool) {
	m := tokenBody.FindStringSubmatch(body)
	if m == nil {
		return entity.Token{}, false
	}
	kind, ok := entity.ParseKind(m[1])
	if !ok {
		return entity.Token{}, false
	}

	tok := entity.Token{Kind: kind, Argument: strings.TrimSpace(m[2])}
	if tok.Argument == "" {
		tok.Err = fmt.Errorf("%w: %s has no argument", entity.ErrInvalidActionToken, kind.Keyword())
	}
	return tok, true
}

// strip removes tokens back to front so earlier offsets stay valid, joining
// the surrounding text with at most one space
func strip(raw string, tokens []entity.Token) string {
	text := raw
	for i := len(tokens) - 1; i >= 0; i-- {
		tok := tokens[i]
		left := strings.TrimRight(text[:tok.Start], " \t")
		right := strings.TrimLeft(text[tok.End:], " \t")

		sep := ""
		if left != "" && right != "" && !strings.HasSuffix(left, "\n") && !startsWithPunct(right) {
			sep = " "
		}
		text = left + sep + right
	}
	return strings.TrimSpace(text)
}

func startsWithPunct(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return strings.ContainsRune(".,!?;:)…\n\r", r)
}
