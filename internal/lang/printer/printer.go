// Package printer implements the canonical formatter: it
// walks an *ast.File and reprints it to text that is round-trip
// equivalent (parse(print(parse(src))) structurally equals parse(src)),
// idempotent (print(print(x)) == print(x)), preserves attribute order,
// and aligns `=` within each attribute block.
//
// Comments are attached to the nearest following node at lex time
// (ast.Resource.LeadingComments, ast.AttrValue.LeadingComments) and
// re-emitted positionally here — the comment rides with the next token,
// so no separate comment-anchoring pass is needed.
package printer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/carina-iac/carina/internal/lang/ast"
	"github.com/carina-iac/carina/internal/value"
)

// Print renders f to its canonical textual form.
func Print(f *ast.File) string {
	var b strings.Builder

	for _, c := range f.LeadingComments {
		writeComment(&b, 0, c)
	}
	if len(f.LeadingComments) > 0 {
		b.WriteByte('\n')
	}

	if f.Backend != nil {
		b.WriteString("backend " + f.Backend.Kind + " {\n")
		writeAttrBlock(&b, 1, f.Backend.Attrs)
		b.WriteString("}\n\n")
	}

	for _, p := range f.Providers {
		b.WriteString("provider " + p.Name + " {\n")
		writeAttrBlock(&b, 1, p.Attrs)
		b.WriteString("}\n\n")
	}

	for _, imp := range f.Imports {
		b.WriteString("import " + strconv.Quote(imp.Path) + " as " + imp.Alias + "\n")
	}
	if len(f.Imports) > 0 {
		b.WriteByte('\n')
	}

	if f.Input != nil {
		b.WriteString("input {\n")
		for _, e := range f.Input.Entries {
			line := fmt.Sprintf("  %s: %s", e.Name, e.Type)
			if e.Default != nil {
				line += " = " + renderValue(e.Default.Value)
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("}\n\n")
	}

	for _, bind := range f.Bindings {
		writeResourceBlock(&b, "let "+bind.Name+" = ", bind.Resource)
		b.WriteByte('\n')
	}

	for _, res := range f.Resources {
		writeResourceBlock(&b, "", res)
		b.WriteByte('\n')
	}

	if f.Output != nil {
		b.WriteString("output {\n")
		for _, e := range f.Output.Entries {
			b.WriteString(fmt.Sprintf("  %s: %s = %s\n", e.Name, e.Type, renderValue(e.Expr.Value)))
		}
		b.WriteString("}\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeResourceBlock(b *strings.Builder, prefix string, res *ast.Resource) {
	for _, c := range res.LeadingComments {
		writeComment(b, 0, c)
	}
	b.WriteString(prefix + res.QualifiedType + " {\n")
	writeAttrBlock(b, 1, res.Attrs)
	b.WriteString("}\n")
}

// writeAttrBlock renders attrs in their original textual order
// (ast.AttrValue.AttrOrder), aligning every `=` to the widest key in the
// block so "does not reorder attributes" and "aligns = within a single
// attribute block" both hold.
func writeAttrBlock(b *strings.Builder, indent int, attrs map[string]ast.AttrValue) {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return attrs[names[i]].AttrOrder < attrs[names[j]].AttrOrder
	})

	width := 0
	for _, name := range names {
		if len(name) > width {
			width = len(name)
		}
	}

	pad := strings.Repeat("  ", indent)
	for _, name := range names {
		av := attrs[name]
		for _, c := range av.LeadingComments {
			writeComment(b, indent, c)
		}
		fmt.Fprintf(b, "%s%-*s = %s\n", pad, width, name, renderValue(av.Value))
	}
}

func writeComment(b *strings.Builder, indent int, text string) {
	pad := strings.Repeat("  ", indent)
	b.WriteString(pad + "# " + strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "#")) + "\n")
}

// renderValue is the canonical, re-parseable rendering of a literal or
// reference — distinct from value.Value.String(), which that package's
// own doc comment reserves for diagnostics only ("not meant to be parsed
// back; the printer owns canonical re-emission").
func renderValue(v value.Value) string {
	switch v.Kind {
	case value.KindNull:
		return "null"
	case value.KindString:
		return strconv.Quote(v.AsString())
	case value.KindInteger:
		return strconv.FormatInt(v.AsInt(), 10)
	case value.KindBoolean:
		return strconv.FormatBool(v.AsBool())
	case value.KindReference:
		return v.AsReference().String()
	case value.KindList:
		items := v.AsList()
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = renderValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case value.KindMap:
		m := v.AsMap()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + " = " + renderValue(m[k])
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	default:
		return "null"
	}
}
