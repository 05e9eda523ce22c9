// Package lexer tokenizes .crn source text.
//
// The grammar needs a handful of things stock HCL tokenization does not
// give us for free, most notably dotted block headers like `aws.vpc { }`
// and enum-form identifiers like `aws.Region.us_east_1` lexed as a single
// DotPath token, so this is a small hand-rolled scanner rather than a
// wrapper around hashicorp/hcl/v2's (incompatible) grammar.
package lexer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/carina-iac/carina/internal/lang/token"
	"github.com/hashicorp/hcl/v2"
)

type Lexer struct {
	filename string
	src      []rune
	pos      int
	line     int
	col      int

	pending []string // comment lines waiting to attach to the next token
}

func New(filename, src string) *Lexer {
	return &Lexer{
		filename: filename,
		src:      []rune(src),
		pos:      0,
		line:     1,
		col:      1,
	}
}

func (l *Lexer) here() hcl.Pos {
	return hcl.Pos{Line: l.line, Column: l.col, Byte: l.pos}
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() rune {
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentCont(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Tokenize returns the full token stream for the source, ending with an EOF
// token. Lexical errors are reported as ParseError-shaped hcl.Diagnostics
// rather than panicking so the parser can recover per-construct.
func (l *Lexer) Tokenize() ([]token.Token, hcl.Diagnostics) {
	var toks []token.Token
	var diags hcl.Diagnostics

	for {
		l.skipInsignificant()

		start := l.here()
		if l.pos >= len(l.src) {
			toks = append(toks, token.Token{Kind: token.EOF, Range: l.rangeFrom(start), LeadingComments: l.takePending()})
			break
		}

		r := l.peek()
		switch {
		case r == '{':
			l.advance()
			toks = append(toks, l.finish(token.LBrace, "{", start))
		case r == '}':
			l.advance()
			toks = append(toks, l.finish(token.RBrace, "}", start))
		case r == '[':
			l.advance()
			toks = append(toks, l.finish(token.LBrack, "[", start))
		case r == ']':
			l.advance()
			toks = append(toks, l.finish(token.RBrack, "]", start))
		case r == '=':
			l.advance()
			toks = append(toks, l.finish(token.Equals, "=", start))
		case r == ',':
			l.advance()
			toks = append(toks, l.finish(token.Comma, ",", start))
		case r == ':':
			l.advance()
			toks = append(toks, l.finish(token.Colon, ":", start))
		case r == '"':
			tok, diag := l.lexString(start)
			if diag != nil {
				diags = append(diags, diag)
			}
			toks = append(toks, tok)
		case isDigit(r):
			toks = append(toks, l.lexNumber(start))
		case isIdentStart(r):
			toks = append(toks, l.lexIdentOrPath(start))
		default:
			l.advance()
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unexpected character",
				Detail:   fmt.Sprintf("unexpected character %q", r),
				Subject:  ptr(l.rangeFrom(start)),
			})
		}
	}

	return toks, diags
}

func ptr(r hcl.Range) *hcl.Range { return &r }

func (l *Lexer) finish(k token.Kind, text string, start hcl.Pos) token.Token {
	return token.Token{Kind: k, Text: text, Range: l.rangeFrom(start), LeadingComments: l.takePending()}
}

func (l *Lexer) rangeFrom(start hcl.Pos) hcl.Range {
	return hcl.Range{Filename: l.filename, Start: start, End: l.here()}
}

func (l *Lexer) takePending() []string {
	if len(l.pending) == 0 {
		return nil
	}
	out := l.pending
	l.pending = nil
	return out
}

// skipInsignificant consumes whitespace and `# ...` comments, stashing
// comment text so it can be attached to the next real token (the formatter
// reprints comments positionally).
func (l *Lexer) skipInsignificant() {
	for l.pos < len(l.src) {
		r := l.peek()
		switch {
		case r == ' ' || r == '\t' || r == '\r' || r == '\n':
			l.advance()
		case r == '#':
			start := l.pos
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
			l.pending = append(l.pending, strings.TrimRight(string(l.src[start:l.pos]), "\r"))
		default:
			return
		}
	}
}

func (l *Lexer) lexString(start hcl.Pos) (token.Token, *hcl.Diagnostic) {
	l.advance() // opening quote
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return l.finish(token.String, sb.String(), start), &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unterminated string literal",
				Subject:  ptr(l.rangeFrom(start)),
			}
		}
		r := l.peek()
		if r == '"' {
			l.advance()
			break
		}
		if r == '\\' {
			l.advance()
			esc := l.advance()
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '"':
				sb.WriteRune('"')
			case '\\':
				sb.WriteRune('\\')
			default:
				sb.WriteRune(esc)
			}
			continue
		}
		sb.WriteRune(l.advance())
	}
	return l.finish(token.String, sb.String(), start), nil
}

func (l *Lexer) lexNumber(start hcl.Pos) token.Token {
	s := l.pos
	for l.pos < len(l.src) && isDigit(l.peek()) {
		l.advance()
	}
	text := string(l.src[s:l.pos])
	return l.finish(token.Int, text, start)
}

// lexIdentOrPath consumes an identifier, and greedily extends it across
// `.ident` segments into a single DotPath token when dots immediately
// follow with no whitespace — this is what lets `aws.vpc`, `main_vpc.id`,
// and `aws.Region.ap_northeast_1` all lex as one token for the parser to
// interpret contextually.
func (l *Lexer) lexIdentOrPath(start hcl.Pos) token.Token {
	s := l.pos
	l.advance()
	for l.pos < len(l.src) && isIdentCont(l.peek()) {
		l.advance()
	}
	sawDot := false
	for l.peek() == '.' && isIdentStart(l.peekAt(1)) {
		sawDot = true
		l.advance() // '.'
		for l.pos < len(l.src) && isIdentCont(l.peek()) {
			l.advance()
		}
	}
	text := string(l.src[s:l.pos])

	if !sawDot {
		if kw, ok := token.Lookup(text); ok {
			return l.finish(kw, text, start)
		}
		return l.finish(token.Ident, text, start)
	}
	return l.finish(token.DotPath, text, start)
}

// ParseIntLiteral converts a lexed Int token's text to int64.
func ParseIntLiteral(text string) (int64, error) {
	return strconv.ParseInt(text, 10, 64)
}
