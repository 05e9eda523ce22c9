// Package parser implements the PEG-style recursive-descent parser for
// .crn source: backend/provider/import/input/output/let blocks
// and resource literals, producing an internal/lang/ast.File.
package parser

import (
	"fmt"
	"strings"

	"github.com/carina-iac/carina/internal/lang/ast"
	"github.com/carina-iac/carina/internal/lang/lexer"
	"github.com/carina-iac/carina/internal/lang/token"
	"github.com/carina-iac/carina/internal/value"
	"github.com/hashicorp/hcl/v2"
)

type parser struct {
	filename string
	toks     []token.Token
	pos      int
	diags    hcl.Diagnostics
}

// ParseFile tokenizes and parses one .crn source file. Parse errors are
// recoverable up to one per top-level construct; the CLI caller is
// responsible for treating the first ParseError as fatal.
func ParseFile(filename, src string) (*ast.File, hcl.Diagnostics) {
	lx := lexer.New(filename, src)
	toks, lexDiags := lx.Tokenize()

	p := &parser{filename: filename, toks: toks}
	f := p.parseFile()
	diags := append(hcl.Diagnostics{}, lexDiags...)
	diags = append(diags, p.diags...)
	return f, diags
}

func (p *parser) cur() token.Token {
	if p.pos >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos]
}

func (p *parser) at(k token.Kind) bool { return p.cur().Kind == k }

func (p *parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(k token.Kind) (token.Token, bool) {
	if p.at(k) {
		return p.advance(), true
	}
	t := p.cur()
	p.errorf(t.Range, "expected %s, got %s %q", k, t.Kind, t.Text)
	return t, false
}

func (p *parser) errorf(rng hcl.Range, format string, args ...interface{}) {
	p.diags = append(p.diags, &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  "Parse error",
		Detail:   fmt.Sprintf(format, args...),
		Subject:  &rng,
	})
}

// syncToTopLevel skips tokens until the start of a construct we recognize,
// so one bad top-level block does not abort the whole file.
func (p *parser) syncToTopLevel() {
	for !p.at(token.EOF) {
		switch p.cur().Kind {
		case token.KwBackend, token.KwProvider, token.KwImport, token.KwInput, token.KwOutput, token.KwLet, token.DotPath, token.Ident:
			return
		}
		p.advance()
	}
}

func (p *parser) parseFile() *ast.File {
	f := &ast.File{LeadingComments: p.cur().LeadingComments}
	// The file owns these comments; clear them so the first construct does
	// not carry (and reprint) a second copy.
	p.toks[p.pos].LeadingComments = nil

	for !p.at(token.EOF) {
		startPos := p.pos
		switch p.cur().Kind {
		case token.KwBackend:
			f.Backend = p.parseBackend()
		case token.KwProvider:
			f.Providers = append(f.Providers, p.parseProvider())
		case token.KwImport:
			f.Imports = append(f.Imports, p.parseImport())
		case token.KwInput:
			f.Input = p.parseInputBlock()
		case token.KwOutput:
			f.Output = p.parseOutputBlock()
		case token.KwLet:
			f.Bindings = append(f.Bindings, p.parseBinding())
		case token.DotPath, token.Ident:
			f.Resources = append(f.Resources, p.parseResource())
		default:
			t := p.cur()
			p.errorf(t.Range, "unexpected token %s %q at top level", t.Kind, t.Text)
			p.advance()
		}
		if p.pos == startPos {
			p.advance() // guarantee forward progress
		}
		if p.diags.HasErrors() {
			p.syncToTopLevel()
		}
	}
	return f
}

func (p *parser) parseBackend() *ast.Backend {
	start := p.cur().Range
	p.advance() // 'backend'
	kind := p.identOrPathText()
	attrs, _ := p.parseAttrBlock()
	return &ast.Backend{Kind: kind, Attrs: attrs, Range: start}
}

func (p *parser) parseProvider() *ast.Provider {
	start := p.cur().Range
	p.advance() // 'provider'
	name := p.identOrPathText()
	attrs, _ := p.parseAttrBlock()
	return &ast.Provider{Name: name, Attrs: attrs, Range: start}
}

func (p *parser) parseImport() *ast.Import {
	start := p.cur().Range
	p.advance() // 'import'
	pathTok, _ := p.expect(token.String)
	p.expect(token.KwAs)
	alias := p.identOrPathText()
	return &ast.Import{Path: pathTok.Text, Alias: alias, Range: start}
}

// identOrPathText consumes one Ident or DotPath token (whichever the lexer
// produced) and returns its raw text.
func (p *parser) identOrPathText() string {
	if p.at(token.Ident) || p.at(token.DotPath) || p.at(token.String) {
		return p.advance().Text
	}
	t := p.cur()
	p.errorf(t.Range, "expected identifier, got %s", t.Kind)
	return ""
}

func (p *parser) parseInputBlock() *ast.InputBlock {
	start := p.cur().Range
	p.advance() // 'input'
	p.expect(token.LBrace)
	blk := &ast.InputBlock{Range: start}
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		name := p.identOrPathText()
		p.expect(token.Colon)
		typ := p.identOrPathText()
		entry := ast.InputEntry{Name: name, Type: typ, Required: true, Range: start}
		if p.at(token.Equals) {
			p.advance()
			av := p.parseAttrValue(0)
			entry.Default = &av
			entry.Required = false
		}
		blk.Entries = append(blk.Entries, entry)
		p.consumeOptionalComma()
	}
	p.expect(token.RBrace)
	return blk
}

func (p *parser) parseOutputBlock() *ast.OutputBlock {
	start := p.cur().Range
	p.advance() // 'output'
	p.expect(token.LBrace)
	blk := &ast.OutputBlock{Range: start}
	order := 0
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		name := p.identOrPathText()
		p.expect(token.Colon)
		typ := p.identOrPathText()
		p.expect(token.Equals)
		av := p.parseAttrValue(order)
		order++
		blk.Entries = append(blk.Entries, ast.OutputEntry{Name: name, Type: typ, Expr: av, Range: start})
		p.consumeOptionalComma()
	}
	p.expect(token.RBrace)
	return blk
}

func (p *parser) parseBinding() *ast.Binding {
	start := p.cur().Range
	comments := p.cur().LeadingComments
	p.advance() // 'let'
	name := p.identOrPathText()
	p.expect(token.Equals)
	res := p.parseResource()
	res.LocalName = name
	res.LeadingComments = append(comments, res.LeadingComments...)
	return &ast.Binding{Name: name, Resource: res, Range: start}
}

// parseResource parses `<head> { attrs }` where head is either a DotPath
// (a resource literal, e.g. aws.vpc) or a plain Ident (a module
// invocation, e.g. web_tier).
func (p *parser) parseResource() *ast.Resource {
	head := p.cur()
	comments := head.LeadingComments
	qualified := p.identOrPathText()
	isModuleCall := head.Kind == token.Ident

	attrs, _ := p.parseAttrBlock()

	localName := ""
	if nameAttr, ok := attrs["name"]; ok && nameAttr.Value.Kind == value.KindString {
		localName = nameAttr.Value.AsString()
	}

	return &ast.Resource{
		QualifiedType:   qualified,
		LocalName:       localName,
		Attrs:           attrs,
		IsModuleCall:    isModuleCall,
		Range:           head.Range,
		LeadingComments: comments,
	}
}

// parseAttrBlock parses `{ k = v, ... }`, including Terraform-style
// repeated sub-blocks (`ingress { ... }`, no `=`) which desugar into a
// list-typed attribute by appending each occurrence's object literal.
func (p *parser) parseAttrBlock() (map[string]ast.AttrValue, hcl.Range) {
	startRng, _ := p.expect(token.LBrace)
	attrs := make(map[string]ast.AttrValue)
	order := 0

	for !p.at(token.RBrace) && !p.at(token.EOF) {
		keyTok := p.cur()
		key := p.identOrPathText()

		if p.at(token.LBrace) {
			// Repeated labelled sub-block sugar: aggregate into a list.
			obj := p.parseObjectLiteral()
			existing, ok := attrs[key]
			if ok && existing.Value.Kind == value.KindList {
				attrs[key] = ast.AttrValue{
					Value:     value.List(append(existing.Value.AsList(), obj)),
					Range:     existing.Range,
					AttrOrder: existing.AttrOrder,
				}
			} else {
				attrs[key] = ast.AttrValue{
					Value:           value.List([]value.Value{obj}),
					Range:           keyTok.Range,
					AttrOrder:       order,
					LeadingComments: keyTok.LeadingComments,
				}
				order++
			}
			p.consumeOptionalComma()
			continue
		}

		p.expect(token.Equals)
		av := p.parseAttrValue(order)
		av.LeadingComments = keyTok.LeadingComments
		order++
		attrs[key] = av
		p.consumeOptionalComma()
	}

	endRng, _ := p.expect(token.RBrace)
	return attrs, hcl.RangeBetween(startRng.Range, endRng.Range)
}

func (p *parser) consumeOptionalComma() {
	if p.at(token.Comma) {
		p.advance()
	}
}

// parseAttrValue parses one value expression: literal, list, object, or
// dotted path (reference or enum form; classified by classifyDotPath).
func (p *parser) parseAttrValue(order int) ast.AttrValue {
	t := p.cur()
	switch t.Kind {
	case token.String:
		p.advance()
		return ast.AttrValue{Value: value.String(t.Text), Range: t.Range, AttrOrder: order}
	case token.Int:
		p.advance()
		n, err := lexer.ParseIntLiteral(t.Text)
		if err != nil {
			p.errorf(t.Range, "invalid integer literal %q", t.Text)
		}
		return ast.AttrValue{Value: value.Integer(n), Range: t.Range, AttrOrder: order}
	case token.Bool:
		p.advance()
		return ast.AttrValue{Value: value.Boolean(t.Text == "true"), Range: t.Range, AttrOrder: order}
	case token.DotPath:
		p.advance()
		return ast.AttrValue{Value: classifyDotPath(t.Text, t.Range), Range: t.Range, AttrOrder: order}
	case token.Ident:
		// A single bare identifier in value position cannot be a
		// reference (references require at least binding.attribute), so
		// it is treated as a one-segment enum/constant literal string.
		p.advance()
		return ast.AttrValue{Value: value.String(t.Text), Range: t.Range, AttrOrder: order}
	case token.LBrack:
		return p.parseListLiteral(order)
	case token.LBrace:
		v := p.parseObjectLiteral()
		return ast.AttrValue{Value: v, Range: t.Range, AttrOrder: order}
	default:
		p.errorf(t.Range, "unexpected token %s %q in value position", t.Kind, t.Text)
		p.advance()
		return ast.AttrValue{Value: value.Null(), Range: t.Range, AttrOrder: order}
	}
}

func (p *parser) parseListLiteral(order int) ast.AttrValue {
	start, _ := p.expect(token.LBrack)
	var items []value.Value
	for !p.at(token.RBrack) && !p.at(token.EOF) {
		av := p.parseAttrValue(0)
		items = append(items, av.Value)
		p.consumeOptionalComma()
	}
	end, _ := p.expect(token.RBrack)
	return ast.AttrValue{Value: value.List(items), Range: hcl.RangeBetween(start.Range, end.Range), AttrOrder: order}
}

func (p *parser) parseObjectLiteral() value.Value {
	p.expect(token.LBrace)
	fields := make(map[string]value.Value)
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		key := p.identOrPathText()
		p.expect(token.Equals)
		av := p.parseAttrValue(0)
		fields[key] = av.Value
		p.consumeOptionalComma()
	}
	p.expect(token.RBrace)
	return value.Map(fields)
}

// classifyDotPath decides whether a dotted identifier chain is a symbolic
// reference ("<binding>.<attribute>") or a namespaced enum literal
// ("aws.Region.ap_northeast_1"). The heuristic: a segment after the first
// that starts with an uppercase letter marks an enum type name
// (TypeName.value forms always capitalize the type segment). Everything
// else is a reference, with the first segment as the binding and the rest
// re-joined as the attribute path.
func classifyDotPath(text string, rng hcl.Range) value.Value {
	segments := strings.Split(text, ".")
	for i := 1; i < len(segments)-1; i++ {
		if isUpperStart(segments[i]) {
			// Enum literal: kept as the raw dotted string; schema.Coerce
			// strips the namespace and matches the trailing segment.
			return value.String(text)
		}
	}
	if len(segments) < 2 {
		return value.String(text)
	}
	return value.Ref(value.Reference{
		Binding:   segments[0],
		Attribute: strings.Join(segments[1:], "."),
		Range:     rng,
	})
}

func isUpperStart(s string) bool {
	if s == "" {
		return false
	}
	return s[0] >= 'A' && s[0] <= 'Z'
}
