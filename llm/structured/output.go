package structured

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strings"

	"github.com/BaSui01/paperflow/llm"
)

// Generate runs a completion constrained to the JSON Schema of T and decodes
// the response into a T. The schema name is derived from the type name.
func Generate[T any](ctx context.Context, client llm.Client, req *llm.ChatRequest) (*T, error) {
	var zero T
	t := reflect.TypeOf(zero)

	schema, err := GenerateSchema(t)
	if err != nil {
		return nil, &llm.Error{
			Code: llm.ErrStructuredOutput, Message: "schema generation failed: " + err.Error(),
			HTTPStatus: http.StatusInternalServerError, Provider: client.Name(),
		}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, &llm.Error{
			Code: llm.ErrStructuredOutput, Message: "schema marshal failed: " + err.Error(),
			HTTPStatus: http.StatusInternalServerError, Provider: client.Name(),
		}
	}

	constrained := *req
	constrained.ResponseFormat = &llm.ResponseFormat{
		Name:   schemaName(t),
		Schema: raw,
		Strict: true,
	}

	resp, err := client.Completion(ctx, &constrained)
	if err != nil {
		return nil, err
	}

	out := new(T)
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), out); err != nil {
		return nil, &llm.Error{
			Code: llm.ErrStructuredOutput, Message: "response does not match schema: " + err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: client.Name(),
		}
	}
	return out, nil
}

func schemaName(t reflect.Type) string {
	name := t.Name()
	if name == "" {
		return "response"
	}
	return strings.ToLower(name)
}

// extractJSON tolerates models that wrap the JSON object in a markdown code
// fence despite the response format.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}
	if start := strings.IndexByte(content, '{'); start > 0 {
		if end := strings.LastIndexByte(content, '}'); end > start {
			return content[start : end+1]
		}
	}
	return content
}
