package aws

import (
	"fmt"

	"github.com/carina-iac/carina/internal/schema"
	"gopkg.in/yaml.v3"
)

// yamlResourceSchema mirrors schema.ResourceSchema in a YAML-friendly
// shape (structured data in, compiled AttributeSchema out) rather than
// hand-constructing schema.ResourceSchema literals in Go.
type yamlResourceSchema struct {
	Attributes map[string]yamlAttrSchema `yaml:"attributes"`
}

type yamlAttrSchema struct {
	Type      string `yaml:"type"`
	Required  bool   `yaml:"required"`
	Immutable bool   `yaml:"immutable"`
	Computed  bool   `yaml:"computed"`
}

// builtinSchemaYAML is the static fixture for the resource types this
// provider implements, the on-disk shape `carina.yaml`-adjacent schema
// overlays would also take.
const builtinSchemaYAML = `
aws.vpc:
  attributes:
    id: {type: string, computed: true}
    name: {type: string}
    cidr_block: {type: cidr, immutable: true, required: true}
    enable_dns_hostnames: {type: bool}

aws.subnet:
  attributes:
    id: {type: string, computed: true}
    name: {type: string}
    vpc_id: {type: ref:aws.vpc, immutable: true, required: true}
    cidr_block: {type: cidr, immutable: true, required: true}
    availability_zone: {type: string, immutable: true}

aws.security_group:
  attributes:
    id: {type: string, computed: true}
    name: {type: string, immutable: true, required: true}
    description: {type: string, immutable: true, required: true}
    vpc_id: {type: ref:aws.vpc, immutable: true, required: true}
`

// LoadSchemas parses a YAML document of the builtinSchemaYAML shape into
// ResourceSchemas keyed by qualified type.
func LoadSchemas(src string) (map[string]schema.ResourceSchema, error) {
	var raw map[string]yamlResourceSchema
	if err := yaml.Unmarshal([]byte(src), &raw); err != nil {
		return nil, fmt.Errorf("parsing resource schema fixture: %w", err)
	}

	out := make(map[string]schema.ResourceSchema, len(raw))
	for typeName, rs := range raw {
		attrs := make(map[string]schema.AttributeSchema, len(rs.Attributes))
		for name, a := range rs.Attributes {
			t, err := parseAttrType(a.Type)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", typeName, name, err)
			}
			attrs[name] = schema.AttributeSchema{
				Type:      t,
				Required:  a.Required,
				Immutable: a.Immutable,
				Computed:  a.Computed,
			}
		}
		out[typeName] = schema.ResourceSchema{TypeName: typeName, Attributes: attrs}
	}
	return out, nil
}

func parseAttrType(raw string) (schema.AttributeType, error) {
	switch {
	case raw == "string":
		return schema.String(), nil
	case raw == "int":
		return schema.Int(), nil
	case raw == "bool":
		return schema.Bool(), nil
	case raw == "cidr":
		return schema.CidrBlock(), nil
	case len(raw) > 4 && raw[:4] == "ref:":
		return schema.Ref(raw[4:]), nil
	default:
		return schema.AttributeType{}, fmt.Errorf("unknown attribute type %q", raw)
	}
}

// BuiltinSchemas parses builtinSchemaYAML, panicking on error since that
// fixture is compiled into the binary and any parse failure is a build
// defect, not a runtime condition callers can recover from.
func BuiltinSchemas() map[string]schema.ResourceSchema {
	s, err := LoadSchemas(builtinSchemaYAML)
	if err != nil {
		panic(err)
	}
	return s
}

// Registry adapts a flat schema map to the Lookup(qualifiedType) shape
// internal/resolver, internal/planner and internal/schema's callers all
// share.
type Registry struct {
	schemas map[string]schema.ResourceSchema
}

func NewRegistry(schemas map[string]schema.ResourceSchema) *Registry {
	return &Registry{schemas: schemas}
}

func (r *Registry) Lookup(qualifiedType string) (schema.ResourceSchema, bool) {
	s, ok := r.schemas[qualifiedType]
	return s, ok
}
