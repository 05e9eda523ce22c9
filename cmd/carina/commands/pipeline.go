package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/carina-iac/carina/internal/cerrors"
	"github.com/carina-iac/carina/internal/lang/ast"
	"github.com/carina-iac/carina/internal/lang/parser"
	"github.com/carina-iac/carina/internal/provider"
	awsprovider "github.com/carina-iac/carina/internal/provider/aws"
	"github.com/carina-iac/carina/internal/resolver"
	"github.com/carina-iac/carina/internal/schema"
	"github.com/carina-iac/carina/internal/state"
	"github.com/carina-iac/carina/internal/value"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// schemaRegistry is shared by the resolver's computed-attribute check and
// the validator's type check, so both answer "is this attribute
// provider-computed" identically (resolver.SchemaRegistry and
// planner.SchemaRegistry are structurally satisfied by the same type).
var schemaRegistry = awsprovider.NewRegistry(awsprovider.BuiltinSchemas())

// parseAndResolve parses path and runs the six-pass resolver over it,
// returning the raw AST alongside the flattened resource set so callers
// can read AST-level declarations (the backend stanza, module inputs and
// outputs) and act on the resolved resources without re-parsing.
func parseAndResolve(path string) (*ast.File, *resolver.Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	f, diags := parser.ParseFile(path, string(src))
	if diags.HasErrors() {
		return nil, nil, fmt.Errorf("%s", diags.Error())
	}

	r := resolver.New(resolver.FileLoader{BaseDir: dirOf(path)}, schemaRegistry)
	result, rdiags := r.Resolve(f)
	if rdiags.HasErrors() {
		return nil, nil, fmt.Errorf("%s", cerrors.Diagnostics(rdiags).Error())
	}
	return f, result, nil
}

// validateAll runs schema.Validate over every resolved resource and
// returns a single aggregated error when any fail.
func validateAll(result *resolver.Result) error {
	var diags cerrors.Diagnostics
	for _, res := range result.Resources {
		s, ok := schemaRegistry.Lookup(res.Key.QualifiedType)
		if !ok {
			diags = append(diags, &cerrors.ValidationError{
				Range:   res.Span,
				Message: fmt.Sprintf("%s: no schema registered for resource type %q", res.Key.String(), res.Key.QualifiedType),
			})
			continue
		}
		diags = append(diags, schema.Validate(res.Attrs, res.AttrSpans, s)...)
	}
	if diags.HasErrors() {
		return fmt.Errorf("%s", diags.Error())
	}
	return nil
}

// buildBackend resolves the `backend "kind" { ... }` stanza (if any) into
// a concrete state.Backend, defaulting to the local backend at
// config.StatePath so a .crn file with no backend stanza still works
// against the --state flag, consistent with cfgfile.Backend's "local or
// s3" vocabulary.
func buildBackend(ctx context.Context, file *ast.File) (state.Backend, error) {
	if file.Backend == nil {
		return state.NewLocalBackend(config.StatePath), nil
	}

	switch file.Backend.Kind {
	case "local":
		path := stringAttr(file.Backend.Attrs, "path", config.StatePath)
		return state.NewLocalBackend(path), nil

	case "s3":
		bucket := stringAttr(file.Backend.Attrs, "bucket", "")
		key := stringAttr(file.Backend.Attrs, "key", "carina.tfstate")
		region := stringAttr(file.Backend.Attrs, "region", config.Region)
		if bucket == "" {
			return nil, fmt.Errorf("backend \"s3\": missing required attribute \"bucket\"")
		}

		cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config for s3 backend: %w", err)
		}
		return &state.S3Backend{
			Client:     s3.NewFromConfig(cfg),
			Bucket:     bucket,
			Key:        key,
			Encrypt:    true,
			AutoCreate: true,
		}, nil

	default:
		return nil, fmt.Errorf("backend %q is not supported", file.Backend.Kind)
	}
}

// buildProviderRegistry wires every concrete provider.Provider this build
// ships into one provider.Registry, the same Registry the interpreter and
// planner's drift reader both dispatch through.
func buildProviderRegistry(ctx context.Context, region string) (*provider.Registry, error) {
	reg := provider.NewRegistry()

	client, err := awsprovider.NewClient(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("initializing AWS client: %w", err)
	}
	awsprovider.NewEC2Provider(client).Register(reg)

	return reg, nil
}

func stringAttr(attrs map[string]ast.AttrValue, name, fallback string) string {
	av, ok := attrs[name]
	if !ok || av.Value.Kind != value.KindString {
		return fallback
	}
	return av.Value.AsString()
}

func dirOf(path string) string {
	dir := "."
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			dir = path[:i]
			break
		}
	}
	return dir
}
