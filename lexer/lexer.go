// Package lexer tokenizes CAPS source text.
//
// The scanner is a direct, hand-written character loop in the style of a
// small fixed-grammar assembler lexer: one rune is consumed at a time, no
// lexer-generator or parser-combinator library is reached for because none
// of the pack's example repos use one for a grammar this size.
package lexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/capslang/caps/diag"
)

// Lexer produces a stream of Tokens from source text, exposing a one-token
// look-ahead via Peek.
type Lexer struct {
	src    string
	offset int
	line   int
	col    int

	diags *diag.Bag

	peeked    *Token
	havePeek  bool
}

// New creates a Lexer over src. Diagnostics for malformed input (bad
// character, unterminated string) are recorded into diags.
func New(src string, diags *diag.Bag) *Lexer {
	return &Lexer{src: src, line: 1, col: 1, diags: diags}
}

func (l *Lexer) pos() diag.Pos {
	return diag.Pos{Line: l.line, Col: l.col}
}

func (l *Lexer) atEnd() bool {
	return l.offset >= len(l.src)
}

func (l *Lexer) peekRune() (rune, int) {
	if l.atEnd() {
		return 0, 0
	}
	r, sz := utf8.DecodeRuneInString(l.src[l.offset:])
	return r, sz
}

func (l *Lexer) advance() rune {
	r, sz := l.peekRune()
	l.offset += sz
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) match(r rune) bool {
	c, _ := l.peekRune()
	if c == r {
		l.advance()
		return true
	}
	return false
}

// Peek returns the next token without consuming it.
func (l *Lexer) Peek() Token {
	if !l.havePeek {
		t := l.scan()
		l.peeked = &t
		l.havePeek = true
	}
	return *l.peeked
}

// Next consumes and returns the next token.
func (l *Lexer) Next() Token {
	if l.havePeek {
		l.havePeek = false
		t := *l.peeked
		l.peeked = nil
		return t
	}
	return l.scan()
}

func (l *Lexer) skipSpaceAndComments() {
	for {
		r, _ := l.peekRune()
		switch {
		case r == ' ' || r == '\t' || r == '\r' || r == '\n':
			l.advance()
		case r == '/' && l.lookaheadIs2('/'):
			for {
				c, _ := l.peekRune()
				if c == 0 || c == '\n' {
					break
				}
				l.advance()
			}
		default:
			return
		}
	}
}

// lookaheadIs2 reports whether the rune after the current one equals r,
// used only for the "//" comment-start check.
func (l *Lexer) lookaheadIs2(r rune) bool {
	_, sz := l.peekRune()
	if l.offset+sz >= len(l.src) {
		return false
	}
	c, _ := utf8.DecodeRuneInString(l.src[l.offset+sz:])
	return c == r
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentCont(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func (l *Lexer) scan() Token {
	l.skipSpaceAndComments()
	start := l.pos()

	r, _ := l.peekRune()
	if r == 0 {
		return Token{Kind: EOF, Pos: start}
	}

	switch {
	case isIdentStart(r):
		return l.scanIdentOrKeyword(start)
	case unicode.IsDigit(r):
		return l.scanNumber(start)
	case r == '"':
		return l.scanText(start)
	}

	l.advance()
	switch r {
	case '(':
		return Token{Kind: LParen, Text: "(", Pos: start}
	case ')':
		return Token{Kind: RParen, Text: ")", Pos: start}
	case '{':
		return Token{Kind: LBrace, Text: "{", Pos: start}
	case '}':
		return Token{Kind: RBrace, Text: "}", Pos: start}
	case '<':
		if l.match('=') {
			return Token{Kind: LtEq, Text: "<=", Pos: start}
		}
		if l.match('-') {
			return Token{Kind: LArrow, Text: "<-", Pos: start}
		}
		return Token{Kind: LAngle, Text: "<", Pos: start}
	case '>':
		if l.match('=') {
			return Token{Kind: GtEq, Text: ">=", Pos: start}
		}
		return Token{Kind: RAngle, Text: ">", Pos: start}
	case ':':
		return Token{Kind: Colon, Text: ":", Pos: start}
	case ',':
		return Token{Kind: Comma, Text: ",", Pos: start}
	case ';':
		return Token{Kind: Semicolon, Text: ";", Pos: start}
	case '.':
		return Token{Kind: Dot, Text: ".", Pos: start}
	case '@':
		return Token{Kind: At, Text: "@", Pos: start}
	case '?':
		return Token{Kind: Question, Text: "?", Pos: start}
	case '=':
		if l.match('=') {
			return Token{Kind: EqEq, Text: "==", Pos: start}
		}
		return Token{Kind: Assign, Text: "=", Pos: start}
	case '!':
		if l.match('=') {
			return Token{Kind: NotEq, Text: "!=", Pos: start}
		}
		return Token{Kind: Bang, Text: "!", Pos: start}
	case '&':
		if l.match('&') {
			return Token{Kind: AndAnd, Text: "&&", Pos: start}
		}
	case '|':
		if l.match('|') {
			return Token{Kind: OrOr, Text: "||", Pos: start}
		}
	case '+':
		return Token{Kind: Plus, Text: "+", Pos: start}
	case '-':
		if l.match('>') {
			return Token{Kind: Arrow, Text: "->", Pos: start}
		}
		return Token{Kind: Minus, Text: "-", Pos: start}
	case '*':
		return Token{Kind: Star, Text: "*", Pos: start}
	case '/':
		return Token{Kind: Slash, Text: "/", Pos: start}
	}

	if l.diags != nil {
		l.diags.Errorf(start, "unexpected character %q", r)
	}
	return Token{Kind: Error, Text: string(r), Pos: start}
}

func (l *Lexer) scanIdentOrKeyword(start diag.Pos) Token {
	var sb strings.Builder
	for {
		r, _ := l.peekRune()
		if !isIdentCont(r) {
			break
		}
		sb.WriteRune(l.advance())
	}
	text := sb.String()
	if k, ok := keywords[text]; ok {
		return Token{Kind: k, Text: text, Pos: start}
	}
	return Token{Kind: Ident, Text: text, Pos: start}
}

func (l *Lexer) scanNumber(start diag.Pos) Token {
	var sb strings.Builder
	isReal := false
	for {
		r, _ := l.peekRune()
		if unicode.IsDigit(r) {
			sb.WriteRune(l.advance())
			continue
		}
		if r == '.' && !isReal {
			// Only consume '.' as a decimal point if followed by a digit,
			// so that `len(ch).value`-style field access (if ever added)
			// would not be swallowed into the literal.
			save := l.offset
			saveLine, saveCol := l.line, l.col
			l.advance()
			d, _ := l.peekRune()
			if unicode.IsDigit(d) {
				isReal = true
				sb.WriteByte('.')
				continue
			}
			l.offset, l.line, l.col = save, saveLine, saveCol
			break
		}
		break
	}
	if isReal {
		return Token{Kind: RealLit, Text: sb.String(), Pos: start}
	}
	return Token{Kind: IntLit, Text: sb.String(), Pos: start}
}

func (l *Lexer) scanText(start diag.Pos) Token {
	l.advance() // consume opening quote
	var sb strings.Builder
	for {
		r, _ := l.peekRune()
		if r == 0 {
			if l.diags != nil {
				l.diags.Errorf(start, "unterminated string literal")
			}
			return Token{Kind: Error, Text: sb.String(), Pos: start}
		}
		if r == '"' {
			l.advance()
			return Token{Kind: TextLit, Text: sb.String(), Pos: start}
		}
		if r == '\\' {
			l.advance()
			e, _ := l.peekRune()
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			default:
				if l.diags != nil {
					l.diags.Errorf(l.pos(), "unknown escape sequence \\%c", e)
				}
				sb.WriteRune(e)
			}
			l.advance()
			continue
		}
		sb.WriteRune(l.advance())
	}
}
