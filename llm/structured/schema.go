// Package structured provides schema-constrained LLM output: a reflection
// based JSON Schema generator plus a typed decode of the model's response.
package structured

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// JSONSchema is the subset of JSON Schema used for structured outputs.
type JSONSchema struct {
	Type                 string                 `json:"type,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	Minimum              *float64               `json:"minimum,omitempty"`
	Maximum              *float64               `json:"maximum,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`
}

// GenerateSchema builds a JSONSchema from a Go type via reflection. Struct
// fields use the "json" tag for naming and the "jsonschema" tag for
// constraints (description=..., enum=a|b, minimum=0, maximum=100). All
// non-omitted fields are required, which is what the strict response format
// expects.
func GenerateSchema(t reflect.Type) (*JSONSchema, error) {
	return generate(t, map[reflect.Type]bool{})
}

// MustSchemaJSON is a convenience for registration-time schemas.
func MustSchemaJSON(v any) json.RawMessage {
	s, err := GenerateSchema(reflect.TypeOf(v))
	if err != nil {
		panic(err)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return raw
}

func generate(t reflect.Type, visited map[reflect.Type]bool) (*JSONSchema, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot generate schema for nil type")
	}
	if t.Kind() == reflect.Ptr {
		return generate(t.Elem(), visited)
	}
	if visited[t] {
		return &JSONSchema{Type: "object"}, nil
	}

	switch t.Kind() {
	case reflect.String:
		return &JSONSchema{Type: "string"}, nil
	case reflect.Bool:
		return &JSONSchema{Type: "boolean"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &JSONSchema{Type: "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return &JSONSchema{Type: "number"}, nil
	case reflect.Slice, reflect.Array:
		items, err := generate(t.Elem(), visited)
		if err != nil {
			return nil, fmt.Errorf("array element: %w", err)
		}
		return &JSONSchema{Type: "array", Items: items}, nil
	case reflect.Struct:
		return generateStruct(t, visited)
	default:
		return nil, fmt.Errorf("unsupported type: %s", t.Kind())
	}
}

func generateStruct(t reflect.Type, visited map[reflect.Type]bool) (*JSONSchema, error) {
	visited[t] = true
	defer delete(visited, t)

	noExtra := false
	schema := &JSONSchema{
		Type:                 "object",
		Properties:           map[string]*JSONSchema{},
		AdditionalProperties: &noExtra,
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
		}

		fieldSchema, err := generate(field.Type, visited)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		applyConstraints(fieldSchema, field.Tag.Get("jsonschema"))

		schema.Properties[name] = fieldSchema
		schema.Required = append(schema.Required, name)
	}
	return schema, nil
}

func applyConstraints(s *JSONSchema, tag string) {
	if tag == "" {
		return
	}
	for _, part := range strings.Split(tag, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "description":
			s.Description = kv[1]
		case "enum":
			s.Enum = strings.Split(kv[1], "|")
		case "minimum":
			if v, err := strconv.ParseFloat(kv[1], 64); err == nil {
				s.Minimum = &v
			}
		case "maximum":
			if v, err := strconv.ParseFloat(kv[1], 64); err == nil {
				s.Maximum = &v
			}
		}
	}
}
