// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parser

import (
	"strconv"
	"strings"
)

type tokenType byte

const (
	tokenEnd tokenType = iota
	tokenNumber
	tokenIdentifier
	tokenLParen
	tokenRParen
	tokenComma
	tokenAdd
	tokenSub
	tokenMul
	tokenDiv
	tokenMod
	tokenPow
	tokenEq
	tokenNe
	tokenLt
	tokenLe
	tokenGt
	tokenGe
	tokenAnd
	tokenOr
	tokenNot
	tokenBad
)

type token struct {
	Type  tokenType
	Pos   int     // byte offset of the token in the expression
	End   int     // byte offset following the token
	Value float64 // tokenNumber
	Text  string  // tokenIdentifier
}

// lexeme identifiers
const (
	lBad byte = iota
	lNum
	lIde
	lLPa
	lRPa
	lCom
	lAdd
	lSub
	lMul
	lDiv
	lMod
	lPow
	lEqu
	lExc
	lLes
	lGre
	lAnd
	lOra
)

// A table mapping lexeme identifiers to token data and parsers.
var lexeme = []struct {
	TokenType tokenType
	Parse     func(l *lexer, t tstring) (tok token, n int)
}{
	/*lBad*/ {TokenType: tokenBad},
	/*lNum*/ {TokenType: tokenNumber, Parse: (*lexer).parseNumber},
	/*lIde*/ {TokenType: tokenIdentifier, Parse: (*lexer).parseIdentifier},
	/*lLPa*/ {TokenType: tokenLParen},
	/*lRPa*/ {TokenType: tokenRParen},
	/*lCom*/ {TokenType: tokenComma},
	/*lAdd*/ {TokenType: tokenAdd},
	/*lSub*/ {TokenType: tokenSub},
	/*lMul*/ {TokenType: tokenMul},
	/*lDiv*/ {TokenType: tokenDiv},
	/*lMod*/ {TokenType: tokenMod},
	/*lPow*/ {TokenType: tokenPow},
	/*lEqu*/ {TokenType: tokenEq},
	/*lExc*/ {TokenType: tokenNot, Parse: (*lexer).parseFollowedByEq},
	/*lLes*/ {TokenType: tokenLt, Parse: (*lexer).parseFollowedByEq},
	/*lGre*/ {TokenType: tokenGt, Parse: (*lexer).parseFollowedByEq},
	/*lAnd*/ {TokenType: tokenAnd},
	/*lOra*/ {TokenType: tokenOr},
}

// A table mapping the first char of a lexeme to a lexeme identifier.
var lex0 = [96]byte{
	lBad, lExc, lBad, lBad, lBad, lMod, lAnd, lBad, // 32..39
	lLPa, lRPa, lMul, lAdd, lCom, lSub, lNum, lDiv, // 40..47
	lNum, lNum, lNum, lNum, lNum, lNum, lNum, lNum, // 48..55
	lNum, lNum, lBad, lBad, lLes, lEqu, lGre, lBad, // 56..63
	lBad, lIde, lIde, lIde, lIde, lIde, lIde, lIde, // 64..71
	lIde, lIde, lIde, lIde, lIde, lIde, lIde, lIde, // 72..79
	lIde, lIde, lIde, lIde, lIde, lIde, lIde, lIde, // 80..87
	lIde, lIde, lIde, lBad, lBad, lBad, lPow, lIde, // 88..95
	lBad, lIde, lIde, lIde, lIde, lIde, lIde, lIde, // 96..103
	lIde, lIde, lIde, lIde, lIde, lIde, lIde, lIde, // 104..111
	lIde, lIde, lIde, lIde, lIde, lIde, lIde, lIde, // 112..119
	lIde, lIde, lIde, lBad, lOra, lBad, lBad, lBad, // 120..127
}

//
// lexer
//

type lexer struct {
	expr string
	pos  int
}

// next scans the token starting at the current position, skipping any
// leading whitespace.
func (l *lexer) next() token {
	t := tstring(l.expr[l.pos:])
	skip := t.scanWhitespace()
	l.pos += skip
	t = t.consume(skip)

	if len(t) == 0 {
		return token{Type: tokenEnd, Pos: l.pos, End: l.pos}
	}

	var lex byte
	switch c := t[0]; {
	case c >= 0x80:
		lex = lIde
	case c < 32:
		lex = lBad
	default:
		lex = lex0[c-32]
	}

	var tok token
	n := 1
	if p := lexeme[lex].Parse; p != nil {
		tok, n = p(l, t)
	} else {
		tok = token{Type: lexeme[lex].TokenType}
	}
	tok.Pos, tok.End = l.pos, l.pos+n
	l.pos += n
	return tok
}

func (l *lexer) parseFollowedByEq(t tstring) (tok token, n int) {
	eq := len(t) > 1 && t[1] == '='
	switch t[0] {
	case '!':
		tok.Type = tokenNot
		if eq {
			tok.Type = tokenNe
		}
	case '<':
		tok.Type = tokenLt
		if eq {
			tok.Type = tokenLe
		}
	default:
		tok.Type = tokenGt
		if eq {
			tok.Type = tokenGe
		}
	}
	if eq {
		return tok, 2
	}
	return tok, 1
}

func (l *lexer) parseNumber(t tstring) (tok token, n int) {
	v, n := scanLiteral(t)
	if n == 0 {
		return token{Type: tokenBad}, 1
	}
	return token{Type: tokenNumber, Value: v}, n
}

func (l *lexer) parseIdentifier(t tstring) (tok token, n int) {
	n = t.scanIdentifier()
	if n == 0 {
		return token{Type: tokenBad}, 1
	}
	return token{Type: tokenIdentifier, Text: string(t[:n])}, n
}

// scanLiteral parses a decimal or hexadecimal floating-point literal at the
// start of t. It returns the value and the literal's length, or a length of
// zero if t does not start with a valid literal.
func scanLiteral(t tstring) (float64, int) {
	if len(t) >= 2 && t[0] == '0' && (t[1] == 'x' || t[1] == 'X') {
		i := 2 + t.consume(2).scanWhile(hexadecimal)
		digits := i - 2
		if i < len(t) && t[i] == '.' {
			j := t.consume(i + 1).scanWhile(hexadecimal)
			digits += j
			i += 1 + j
		}
		if digits == 0 {
			return 0, 0
		}
		mantissa := string(t[:i])
		exp := "p0"
		if e := scanExponent(t.consume(i), 'p'); e > 0 {
			exp = string(t[i : i+e])
			i += e
		}
		v, err := strconv.ParseFloat(mantissa+exp, 64)
		if err != nil && !isRangeErr(err) {
			return 0, 0
		}
		return v, i
	}

	i := t.scanWhile(decimal)
	digits := i
	if i < len(t) && t[i] == '.' {
		j := t.consume(i + 1).scanWhile(decimal)
		digits += j
		i += 1 + j
	}
	if digits == 0 {
		return 0, 0
	}
	i += scanExponent(t.consume(i), 'e')
	v, err := strconv.ParseFloat(string(t[:i]), 64)
	if err != nil && !isRangeErr(err) {
		return 0, 0
	}
	return v, i
}

// scanExponent returns the length of an exponent suffix introduced by the
// letter c (in either case), or zero if t does not start with one.
func scanExponent(t tstring, c byte) int {
	if len(t) < 2 || (t[0] != c && t[0] != c-'a'+'A') {
		return 0
	}
	i := 1
	if t[i] == '+' || t[i] == '-' {
		i++
	}
	d := t.consume(i).scanWhile(decimal)
	if d == 0 {
		return 0
	}
	return i + d
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

//
// tstring
//

type tstring string

func (t tstring) consume(n int) tstring {
	return t[n:]
}

func (t tstring) scanWhile(fn func(c byte) bool) int {
	i := 0
	for ; i < len(t) && fn(t[i]); i++ {
	}
	return i
}

// scanWhitespace returns the length of the whitespace prefix of t,
// including the Unicode space characters accepted in expressions.
func (t tstring) scanWhitespace() int {
	i := 0
	for i < len(t) {
		n := spaceLen(t[i:])
		if n == 0 {
			break
		}
		i += n
	}
	return i
}

// scanIdentifier returns the length of the identifier at the start of t, or
// zero if t does not start with one.
func (t tstring) scanIdentifier() int {
	if len(t) == 0 || decimal(t[0]) {
		return 0
	}
	i := 0
	for i < len(t) {
		c := t[i]
		if c >= 0x80 {
			if spaceLen(t[i:]) > 0 {
				break
			}
			i++
			continue
		}
		if !identifier(c) {
			break
		}
		i++
	}
	return i
}

// Multi-byte UTF-8 encodings of the Unicode spaces that separate tokens.
var unicodeSpaces = []string{
	"\u00a0", "\u2000", "\u2001", "\u2002", "\u2003", "\u2004", "\u2005",
	"\u2006", "\u2007", "\u2008", "\u2009", "\u200a", "\u200b", "\u202f",
	"\u205f", "\u3000",
}

func spaceLen(t tstring) int {
	switch c := t[0]; {
	case c == ' ' || c == '\t' || c == '\n' || c == '\v' || c == '\r' || c == '\f':
		return 1
	case c >= 0x80:
		for _, s := range unicodeSpaces {
			if strings.HasPrefix(string(t), s) {
				return len(s)
			}
		}
	}
	return 0
}

func decimal(c byte) bool {
	return c >= '0' && c <= '9'
}

func hexadecimal(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func identifier(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c >= 0x80
}

// IsValidName returns true if name is a well-formed identifier.
func IsValidName(name string) bool {
	return name != "" && tstring(name).scanIdentifier() == len(name)
}
