// Package token defines the lexical tokens of the .crn configuration
// language.
package token

import "github.com/hashicorp/hcl/v2"

type Kind int

const (
	EOF Kind = iota
	Comment

	Ident   // foo, aws, main_vpc
	DotPath // foo.bar.baz (a dotted chain of identifiers, lexed as one token)
	String  // "quoted string"
	Int     // 123
	Bool    // true / false

	LBrace // {
	RBrace // }
	LBrack // [
	RBrack // ]
	Equals // =
	Comma  // ,
	Colon  // :

	KwBackend
	KwProvider
	KwImport
	KwAs
	KwInput
	KwOutput
	KwLet
)

var keywords = map[string]Kind{
	"backend":  KwBackend,
	"provider": KwProvider,
	"import":   KwImport,
	"as":       KwAs,
	"input":    KwInput,
	"output":   KwOutput,
	"let":      KwLet,
	"true":     Bool,
	"false":    Bool,
}

// Lookup returns the keyword Kind for s, or (Ident, false) if s is a plain
// identifier.
func Lookup(s string) (Kind, bool) {
	k, ok := keywords[s]
	if !ok {
		return Ident, false
	}
	return k, ok
}

// Token is one lexical unit together with its source range and, for
// literal-bearing kinds, its raw text.
type Token struct {
	Kind  Kind
	Text  string
	Range hcl.Range

	// LeadingComments holds `#` comment lines that appeared between the
	// previous token and this one (blank lines included), attached here so the
	// formatter (C9) can reprint them positionally.
	LeadingComments []string
}

func (k Kind) String() string {
	switch k {
	case EOF:
		return "EOF"
	case Comment:
		return "COMMENT"
	case Ident:
		return "IDENT"
	case DotPath:
		return "DOTPATH"
	case String:
		return "STRING"
	case Int:
		return "INT"
	case Bool:
		return "BOOL"
	case LBrace:
		return "{"
	case RBrace:
		return "}"
	case LBrack:
		return "["
	case RBrack:
		return "]"
	case Equals:
		return "="
	case Comma:
		return ","
	case Colon:
		return ":"
	case KwBackend:
		return "backend"
	case KwProvider:
		return "provider"
	case KwImport:
		return "import"
	case KwAs:
		return "as"
	case KwInput:
		return "input"
	case KwOutput:
		return "output"
	case KwLet:
		return "let"
	default:
		return "?"
	}
}
