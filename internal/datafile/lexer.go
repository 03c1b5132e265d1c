package datafile

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokSemi    // ;
	tokAssign  // :=
	tokColon   // :
	tokComma   // ,
	tokLBrack  // [
	tokRBrack  // ]
	tokLParen  // (
	tokRParen  // )
	tokLBrace  // {
	tokRBrace  // }
	tokStar    // *
	tokDot     // . (no value)
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokWord:
		return "word"
	case tokSemi:
		return "';'"
	case tokAssign:
		return "':='"
	case tokColon:
		return "':'"
	case tokComma:
		return "','"
	case tokLBrack:
		return "'['"
	case tokRBrack:
		return "']'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	case tokStar:
		return "'*'"
	case tokDot:
		return "'.'"
	default:
		return "unknown"
	}
}

type token struct {
	kind   tokenKind
	text   string
	quoted bool
	line   int
	col    int
}

func (t token) describe() string {
	if t.kind == tokWord {
		return fmt.Sprintf("%q", t.text)
	}
	return t.kind.String()
}

// lexer splits datafile text into tokens. Comments ("#" to end of line and
// "/* ... */") and whitespace are dropped.
type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

const punct = ";:,[](){}"

func (l *lexer) peekRune() (rune, int) {
	if l.pos >= len(l.src) {
		return 0, 0
	}
	return utf8.DecodeRuneInString(l.src[l.pos:])
}

func (l *lexer) advance(n int) {
	for _, r := range l.src[l.pos : l.pos+n] {
		if r == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
	}
	l.pos += n
}

func (l *lexer) skipSpaceAndComments() error {
	for l.pos < len(l.src) {
		r, w := l.peekRune()
		switch {
		case unicode.IsSpace(r):
			l.advance(w)
		case r == '#':
			end := strings.IndexByte(l.src[l.pos:], '\n')
			if end < 0 {
				l.advance(len(l.src) - l.pos)
			} else {
				l.advance(end)
			}
		case strings.HasPrefix(l.src[l.pos:], "/*"):
			line, col := l.line, l.col
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end < 0 {
				return &ParseError{Line: line, Col: col, Msg: "unterminated comment"}
			}
			l.advance(end + 4)
		default:
			return nil
		}
	}
	return nil
}

func (l *lexer) next() (token, error) {
	if err := l.skipSpaceAndComments(); err != nil {
		return token{}, err
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: l.line, col: l.col}, nil
	}

	start := token{line: l.line, col: l.col}
	r, w := l.peekRune()

	switch r {
	case ';':
		l.advance(w)
		start.kind = tokSemi
		return start, nil
	case ':':
		if strings.HasPrefix(l.src[l.pos:], ":=") {
			l.advance(2)
			start.kind = tokAssign
			return start, nil
		}
		l.advance(w)
		start.kind = tokColon
		return start, nil
	case ',':
		l.advance(w)
		start.kind = tokComma
		return start, nil
	case '[':
		l.advance(w)
		start.kind = tokLBrack
		return start, nil
	case ']':
		l.advance(w)
		start.kind = tokRBrack
		return start, nil
	case '(':
		l.advance(w)
		start.kind = tokLParen
		return start, nil
	case ')':
		l.advance(w)
		start.kind = tokRParen
		return start, nil
	case '{':
		l.advance(w)
		start.kind = tokLBrace
		return start, nil
	case '}':
		l.advance(w)
		start.kind = tokRBrace
		return start, nil
	case '\'', '"':
		return l.quoted(start, r)
	}

	end := l.pos
	for end < len(l.src) {
		c, cw := utf8.DecodeRuneInString(l.src[end:])
		if unicode.IsSpace(c) || strings.ContainsRune(punct, c) || c == '#' || strings.HasPrefix(l.src[end:], "/*") {
			break
		}
		end += cw
	}
	text := l.src[l.pos:end]
	l.advance(end - l.pos)

	switch text {
	case "*":
		start.kind = tokStar
	case ".":
		start.kind = tokDot
	default:
		start.kind = tokWord
		start.text = text
	}
	return start, nil
}

// quoted reads a '...' or "..." literal. A doubled quote inside the literal
// stands for one quote character.
func (l *lexer) quoted(start token, q rune) (token, error) {
	l.advance(1)
	var b strings.Builder
	for {
		if l.pos >= len(l.src) {
			return token{}, &ParseError{Line: start.line, Col: start.col, Msg: "unterminated string literal"}
		}
		r, w := l.peekRune()
		if r == q {
			if nr, _ := utf8.DecodeRuneInString(l.src[l.pos+w:]); nr == q && l.pos+w < len(l.src) {
				b.WriteRune(q)
				l.advance(2 * w)
				continue
			}
			l.advance(w)
			break
		}
		b.WriteRune(r)
		l.advance(w)
	}
	start.kind = tokWord
	start.text = b.String()
	start.quoted = true
	return start, nil
}
