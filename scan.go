package main

import (
	"fmt"
	"strconv"
)

type tokenKind uint8

const (
	tokenWord   tokenKind = iota // bare name, number, or control token
	tokenString                  // decoded string literal
	tokenQuote                   // compiled quotation reference
)

// token is one element of a scanned or compiled token vector. The scanner
// only produces word and string tokens; quotation references are
// synthesized by the interpreter when it captures a [ ... ] block.
type token struct {
	kind tokenKind
	text string
	id   quoteID
}

func wordToken(text string) token   { return token{kind: tokenWord, text: text} }
func stringToken(text string) token { return token{kind: tokenString, text: text} }
func quoteToken(id quoteID) token   { return token{kind: tokenQuote, id: id} }

func (t token) String() string {
	switch t.kind {
	case tokenString:
		return strconv.Quote(t.text)
	case tokenQuote:
		return fmt.Sprintf("[#%d]", t.id)
	}
	return t.text
}

// isSpace reports ASCII isspace, the separator class of the language.
func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// scanTokens turns source text into a flat token vector. Whitespace
// separates tokens; `\` starts a line comment; `( ... )` is a block
// comment, running to EOF if unterminated; `"` starts a string literal. A
// word is a maximal run of non-space bytes, terminated also by an embedded
// `\`.
func scanTokens(src []byte) []token {
	var toks []token
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case isSpace(c):
			i++

		case c == '\\':
			for i < len(src) && src[i] != '\n' {
				i++
			}

		case c == '(':
			i++
			for i < len(src) && src[i] != ')' {
				i++
			}
			if i < len(src) {
				i++
			}

		case c == '"':
			lit, next := scanStringLit(src, i+1)
			toks = append(toks, stringToken(lit))
			i = next

		default:
			start := i
			for i < len(src) && !isSpace(src[i]) && src[i] != '\\' {
				i++
			}
			toks = append(toks, wordToken(string(src[start:i])))
		}
	}
	return toks
}

// scanStringLit decodes a string literal body starting just past the
// opening quote. The escapes \n \r \t \" \\ translate; any other escaped
// byte stands for itself. An unterminated literal runs to EOF.
func scanStringLit(src []byte, i int) (string, int) {
	var out []byte
	for i < len(src) && src[i] != '"' {
		c := src[i]
		i++
		if c == '\\' && i < len(src) {
			e := src[i]
			i++
			switch e {
			case 'n':
				c = '\n'
			case 'r':
				c = '\r'
			case 't':
				c = '\t'
			default:
				c = e
			}
		}
		out = append(out, c)
	}
	if i < len(src) {
		i++ // closing quote
	}
	return string(out), i
}
