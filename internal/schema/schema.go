// Package schema implements the typed attribute grammar:
// AttributeType, AttributeSchema, ResourceSchema, and the Validate/
// DiffAttrs/Coerce operations.
package schema

import (
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/carina-iac/carina/internal/cerrors"
	"github.com/carina-iac/carina/internal/value"
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// TypeKind tags the AttributeType grammar variant.
type TypeKind int

const (
	TString TypeKind = iota
	TInt
	TBool
	TEnum
	TList
	TMap
	TObject
	TCidrBlock
	TRef
	TCustom
)

// AttributeType is the attribute type grammar:
// String | Int | Bool | Enum(values) | List(T) | Map(T) | Object(fields) |
// CidrBlock | Ref(resource-type) | Custom(validator-id).
type AttributeType struct {
	Kind TypeKind

	EnumValues   []string                 // TEnum
	Elem         *AttributeType            // TList / TMap
	Fields       map[string]AttributeType  // TObject
	RefType      string                    // TRef: qualified resource type
	ValidatorID  string                    // TCustom: e.g. "cel:value < 1000"
}

func String() AttributeType                        { return AttributeType{Kind: TString} }
func Int() AttributeType                            { return AttributeType{Kind: TInt} }
func Bool() AttributeType                            { return AttributeType{Kind: TBool} }
func Enum(values ...string) AttributeType           { return AttributeType{Kind: TEnum, EnumValues: values} }
func List(elem AttributeType) AttributeType         { return AttributeType{Kind: TList, Elem: &elem} }
func Map(elem AttributeType) AttributeType          { return AttributeType{Kind: TMap, Elem: &elem} }
func Object(fields map[string]AttributeType) AttributeType {
	return AttributeType{Kind: TObject, Fields: fields}
}
func CidrBlock() AttributeType           { return AttributeType{Kind: TCidrBlock} }
func Ref(resourceType string) AttributeType { return AttributeType{Kind: TRef, RefType: resourceType} }
func Custom(validatorID string) AttributeType {
	return AttributeType{Kind: TCustom, ValidatorID: validatorID}
}

// AttributeSchema is the per-attribute metadata tuple.
type AttributeSchema struct {
	Type      AttributeType
	Required  bool
	Immutable bool
	Computed  bool
	Default   *value.Value
}

// ResourceSchema names a resource type and its attribute schemas.
type ResourceSchema struct {
	TypeName   string
	Attributes map[string]AttributeSchema
}

// Validate checks a resource's attrs against schema: unknown keys are
// rejected, required keys must be present, and every value must match its
// attribute type. It never panics; every failure becomes a
// ValidationError in the returned Diagnostics.
func Validate(attrs map[string]value.Value, spans map[string]hcl.Range, s ResourceSchema) cerrors.Diagnostics {
	var diags cerrors.Diagnostics

	for name := range attrs {
		if _, ok := s.Attributes[name]; !ok {
			diags = append(diags, &cerrors.ValidationError{
				Range:   spanFor(spans, name),
				Message: fmt.Sprintf("%s: unknown attribute %q", s.TypeName, name),
			})
		}
	}

	for name, attrSchema := range s.Attributes {
		v, present := attrs[name]
		if !present {
			if attrSchema.Required && !attrSchema.Computed {
				diags = append(diags, &cerrors.ValidationError{
					Range:   spanFor(spans, name),
					Message: fmt.Sprintf("%s: missing required attribute %q", s.TypeName, name),
				})
			}
			continue
		}
		if v.Kind == value.KindReference {
			// References are resolved (or deferred to runtime) by the
			// resolver/interpreter; type checking against the eventual
			// literal happens once a value is substituted in.
			continue
		}
		if err := validateType(v, attrSchema.Type); err != nil {
			diags = append(diags, &cerrors.ValidationError{
				Range:   spanFor(spans, name),
				Message: fmt.Sprintf("%s.%s: %s", s.TypeName, name, err),
			})
		}
	}

	return diags
}

func spanFor(spans map[string]hcl.Range, name string) hcl.Range {
	if spans == nil {
		return hcl.Range{}
	}
	return spans[name]
}

func validateType(v value.Value, t AttributeType) error {
	switch t.Kind {
	case TString:
		if v.Kind != value.KindString {
			return fmt.Errorf("expected string, got %s", v.Kind)
		}
	case TInt:
		if v.Kind != value.KindInteger {
			return fmt.Errorf("expected integer, got %s", v.Kind)
		}
	case TBool:
		if v.Kind != value.KindBoolean {
			return fmt.Errorf("expected boolean, got %s", v.Kind)
		}
	case TEnum:
		if v.Kind != value.KindString {
			return fmt.Errorf("expected enum string, got %s", v.Kind)
		}
		bare := bareEnumValue(v.AsString())
		for _, allowed := range t.EnumValues {
			if bareEnumValue(allowed) == bare {
				return nil
			}
		}
		return fmt.Errorf("value %q is not one of %v", v.AsString(), t.EnumValues)
	case TList:
		if v.Kind != value.KindList {
			return fmt.Errorf("expected list, got %s", v.Kind)
		}
		for i, item := range v.AsList() {
			if item.Kind == value.KindReference {
				continue
			}
			if err := validateType(item, *t.Elem); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	case TMap:
		if v.Kind != value.KindMap {
			return fmt.Errorf("expected map, got %s", v.Kind)
		}
		for k, item := range v.AsMap() {
			if item.Kind == value.KindReference {
				continue
			}
			if err := validateType(item, *t.Elem); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
	case TObject:
		if v.Kind != value.KindMap {
			return fmt.Errorf("expected object, got %s", v.Kind)
		}
		m := v.AsMap()
		for fname, ftype := range t.Fields {
			fv, ok := m[fname]
			if !ok {
				return fmt.Errorf("missing field %q", fname)
			}
			if fv.Kind == value.KindReference {
				continue
			}
			if err := validateType(fv, ftype); err != nil {
				return fmt.Errorf("field %q: %w", fname, err)
			}
		}
	case TCidrBlock:
		if v.Kind != value.KindString {
			return fmt.Errorf("expected CIDR string, got %s", v.Kind)
		}
		if _, _, err := net.ParseCIDR(v.AsString()); err != nil {
			return fmt.Errorf("invalid CIDR block %q: %w", v.AsString(), err)
		}
	case TRef:
		// Ref(resource-type) values are accepted as-is: neither this check
		// nor the resolver compares the referent's type with RefType.
		return nil
	case TCustom:
		return validateCustom(v, t.ValidatorID)
	}
	return nil
}

// bareEnumValue strips a namespaced enum form ("TypeName.value" or
// "ns1.ns2.TypeName.value") down to its trailing segment, matched
// case-sensitively.
func bareEnumValue(s string) string {
	parts := strings.Split(s, ".")
	return parts[len(parts)-1]
}

// DiffResult classifies every attribute of a resource pair into one of
// three buckets.
type DiffResult struct {
	Unchanged        []string
	InPlaceChanges   []string
	ImmutableChanges []string
}

// DiffAttrs walks before/after attribute-by-attribute per schema. Computed
// attributes are skipped: they are not compared, appear in no bucket, and
// never drive changes.
func DiffAttrs(before, after map[string]value.Value, s ResourceSchema) DiffResult {
	var result DiffResult

	names := make([]string, 0, len(s.Attributes))
	for name := range s.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		attrSchema := s.Attributes[name]
		if attrSchema.Computed {
			continue
		}
		bv, bOK := before[name]
		av, aOK := after[name]
		if !bOK && !aOK {
			continue
		}
		if bOK && aOK && attrsEqual(bv, av) {
			result.Unchanged = append(result.Unchanged, name)
			continue
		}
		if attrSchema.Immutable {
			result.ImmutableChanges = append(result.ImmutableChanges, name)
		} else {
			result.InPlaceChanges = append(result.InPlaceChanges, name)
		}
	}
	return result
}

// attrsEqual compares two attribute values with cty's structural
// semantics: literals convert to cty values (objects for maps, tuples
// for lists) and compare via RawEquals, which normalizes nested
// collections and numeric representation. A value still carrying a
// deferred Reference has no cty form and falls back to the value
// package's own comparison.
func attrsEqual(a, b value.Value) bool {
	ca, aok := toCty(a)
	cb, bok := toCty(b)
	if !aok || !bok {
		return value.Equal(a, b)
	}
	return ca.RawEquals(cb)
}

func toCty(v value.Value) (cty.Value, bool) {
	switch v.Kind {
	case value.KindNull:
		return cty.NullVal(cty.DynamicPseudoType), true
	case value.KindString:
		return cty.StringVal(v.AsString()), true
	case value.KindInteger:
		return cty.NumberIntVal(v.AsInt()), true
	case value.KindBoolean:
		return cty.BoolVal(v.AsBool()), true
	case value.KindList:
		items := v.AsList()
		if len(items) == 0 {
			return cty.EmptyTupleVal, true
		}
		vals := make([]cty.Value, len(items))
		for i, item := range items {
			cv, ok := toCty(item)
			if !ok {
				return cty.NilVal, false
			}
			vals[i] = cv
		}
		return cty.TupleVal(vals), true
	case value.KindMap:
		m := v.AsMap()
		if len(m) == 0 {
			return cty.EmptyObjectVal, true
		}
		fields := make(map[string]cty.Value, len(m))
		for k, item := range m {
			cv, ok := toCty(item)
			if !ok {
				return cty.NilVal, false
			}
			fields[k] = cv
		}
		return cty.ObjectVal(fields), true
	default:
		return cty.NilVal, false
	}
}

// canonicalRegions maps the enum's bare value to the wire form a provider
// expects, e.g. "ap_northeast_1" -> "ap-northeast-1".
var canonicalRegions = buildRegionTable()

func buildRegionTable() map[string]string {
	// AWS standard regions as of this pack's retrieval.
	raw := []string{
		"us_east_1", "us_east_2", "us_west_1", "us_west_2",
		"eu_west_1", "eu_west_2", "eu_west_3", "eu_central_1", "eu_north_1",
		"ap_northeast_1", "ap_northeast_2", "ap_northeast_3",
		"ap_southeast_1", "ap_southeast_2", "ap_south_1",
		"sa_east_1", "ca_central_1",
	}
	m := make(map[string]string, len(raw))
	for _, r := range raw {
		m[r] = strings.ReplaceAll(r, "_", "-")
	}
	return m
}

// Coerce normalizes literals into canonical provider form. Integer<->String
// coercion is explicitly NOT permitted; CIDR values are
// validated for syntactic form but otherwise passed through unchanged.
func Coerce(v value.Value, t AttributeType) (value.Value, error) {
	switch t.Kind {
	case TEnum:
		if v.Kind != value.KindString {
			return v, fmt.Errorf("cannot coerce %s to enum", v.Kind)
		}
		bare := bareEnumValue(v.AsString())
		if region, ok := canonicalRegions[bare]; ok {
			return value.String(region), nil
		}
		return value.String(bare), nil
	case TCidrBlock:
		if v.Kind != value.KindString {
			return v, fmt.Errorf("cannot coerce %s to CIDR", v.Kind)
		}
		if _, _, err := net.ParseCIDR(v.AsString()); err != nil {
			return v, fmt.Errorf("invalid CIDR block %q: %w", v.AsString(), err)
		}
		return v, nil
	case TInt:
		if v.Kind != value.KindInteger {
			return v, fmt.Errorf("integer<->string coercion is not permitted (got %s)", v.Kind)
		}
		return v, nil
	case TString:
		if v.Kind != value.KindString {
			return v, fmt.Errorf("integer<->string coercion is not permitted (got %s)", v.Kind)
		}
		return v, nil
	default:
		return v, nil
	}
}
