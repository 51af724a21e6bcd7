package capability

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// ValidateArgs checks model-supplied arguments against the capability's
// declared schema. A definition without a schema accepts anything.
func ValidateArgs(def Definition, args map[string]any) error {
	if def.Parameters == nil {
		return nil
	}

	resolved, err := def.Parameters.Resolve(nil)
	if err != nil {
		return goerr.Wrap(err, "failed to resolve capability schema",
			goerr.V("capability", def.Name))
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := resolved.Validate(args); err != nil {
		return goerr.Wrap(ErrInvalidArguments, err.Error(),
			goerr.V("capability", def.Name))
	}

	return nil
}

// ToFunctionDeclaration converts a capability definition into the Gemini
// function-calling declaration injected into the completion request.
func ToFunctionDeclaration(def Definition) (*genai.FunctionDeclaration, error) {
	decl := &genai.FunctionDeclaration{
		Name:        def.Name,
		Description: def.Description,
	}

	if def.Parameters != nil {
		schema, err := convertJSONSchemaToGenai(def.Parameters)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert capability schema",
				goerr.V("capability", def.Name))
		}
		decl.Parameters = schema
	}

	return decl, nil
}

// convertJSONSchemaToGenai converts JSON Schema to Gemini genai.Schema
func convertJSONSchemaToGenai(schema *jsonschema.Schema) (*genai.Schema, error) {
	if schema == nil {
		return nil, nil
	}

	genaiSchema := &genai.Schema{}

	switch schema.Type {
	case "object":
		genaiSchema.Type = genai.TypeObject
	case "string":
		genaiSchema.Type = genai.TypeString
	case "number", "integer":
		genaiSchema.Type = genai.TypeNumber
	case "boolean":
		genaiSchema.Type = genai.TypeBoolean
	case "array":
		genaiSchema.Type = genai.TypeArray
	default:
		if schema.Type != "" {
			return nil, goerr.New("unsupported schema type", goerr.V("type", schema.Type))
		}
	}

	if schema.Description != "" {
		genaiSchema.Description = schema.Description
	}

	if len(schema.Enum) > 0 {
		genaiSchema.Enum = make([]string, len(schema.Enum))
		for i, v := range schema.Enum {
			if s, ok := v.(string); ok {
				genaiSchema.Enum[i] = s
			}
		}
	}

	if len(schema.Properties) > 0 {
		genaiSchema.Properties = make(map[string]*genai.Schema)
		for name, propSchema := range schema.Properties {
			converted, err := convertJSONSchemaToGenai(propSchema)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to convert property schema",
					goerr.V("property", name))
			}
			genaiSchema.Properties[name] = converted
		}
	}

	if len(schema.Required) > 0 {
		genaiSchema.Required = schema.Required
	}

	if schema.Items != nil {
		converted, err := convertJSONSchemaToGenai(schema.Items)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert items schema")
		}
		genaiSchema.Items = converted
	}

	return genaiSchema, nil
}
