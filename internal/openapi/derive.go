package openapi

import (
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/specmount/specmount/internal/models"
)

// methodOrder fixes the derivation order of operations within one path, since
// kin-openapi exposes them as a map.
var methodOrder = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS", "TRACE"}

// DeriveTools converts a parsed OpenAPI document into an ordered tool
// collection, one tool per operation, each initially enabled. The transform
// is pure: no network calls, deterministic ordering and naming. A document
// with zero operations yields an empty collection, which is still mountable.
func DeriveTools(doc *Document) ([]models.ToolDefinition, error) {
	if doc == nil || doc.Parsed == nil || doc.Parsed.Paths == nil {
		return nil, nil
	}

	pathMap := doc.Parsed.Paths.Map()
	paths := make([]string, 0, len(pathMap))
	for p := range pathMap {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	seen := make(map[string]bool)
	var tools []models.ToolDefinition
	for _, path := range paths {
		item := pathMap[path]
		if item == nil {
			continue
		}
		ops := item.Operations()
		for _, method := range methodOrder {
			op := ops[method]
			if op == nil {
				continue
			}
			name := toolName(method, path, op)
			if seen[name] {
				return nil, fmt.Errorf("%w: duplicate operation id %q", ErrSpecMalformed, name)
			}
			seen[name] = true
			tools = append(tools, models.ToolDefinition{
				Name:        name,
				Description: operationDescription(op),
				Method:      method,
				Path:        path,
				Params:      deriveParams(item, op),
				Enabled:     true,
			})
		}
	}
	return tools, nil
}

// toolName returns the operation's id, or a deterministic method+path slug
// when the document does not declare one.
func toolName(method, path string, op *openapi3.Operation) string {
	if op.OperationID != "" {
		return op.OperationID
	}
	slug := strings.ToLower(method) + "_" + pathSlug(path)
	return strings.Trim(slug, "_")
}

func pathSlug(path string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(path) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '{' || r == '}':
			// template braces vanish: /pets/{petId} -> pets_petid
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func operationDescription(op *openapi3.Operation) string {
	if op.Summary != "" {
		return op.Summary
	}
	return op.Description
}

// deriveParams flattens path-item and operation parameters plus the JSON
// request body's top-level properties into the tool's parameter schema.
// Operation-level parameters override path-item ones of the same name.
func deriveParams(item *openapi3.PathItem, op *openapi3.Operation) []models.ToolParam {
	merged := make(map[string]*openapi3.Parameter)
	var order []string
	add := func(refs openapi3.Parameters) {
		for _, ref := range refs {
			if ref == nil || ref.Value == nil {
				continue
			}
			key := ref.Value.In + ":" + ref.Value.Name
			if _, ok := merged[key]; !ok {
				order = append(order, key)
			}
			merged[key] = ref.Value
		}
	}
	add(item.Parameters)
	add(op.Parameters)

	var params []models.ToolParam
	for _, key := range order {
		p := merged[key]
		in := p.In
		if in != "path" && in != "query" {
			// header and cookie parameters are not exposed as tool inputs
			continue
		}
		params = append(params, models.ToolParam{
			Name:        p.Name,
			Type:        schemaType(p.Schema),
			Description: p.Description,
			Required:    p.Required || in == "path",
			In:          in,
		})
	}

	params = append(params, bodyParams(op)...)
	return params
}

// bodyParams exposes the top-level properties of a JSON request body as
// individual body parameters.
func bodyParams(op *openapi3.Operation) []models.ToolParam {
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil
	}
	media := op.RequestBody.Value.Content.Get("application/json")
	if media == nil || media.Schema == nil || media.Schema.Value == nil {
		return nil
	}
	schema := media.Schema.Value

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]models.ToolParam, 0, len(names))
	for _, name := range names {
		prop := schema.Properties[name]
		var desc string
		if prop != nil && prop.Value != nil {
			desc = prop.Value.Description
		}
		params = append(params, models.ToolParam{
			Name:        name,
			Type:        schemaType(prop),
			Description: desc,
			Required:    required[name] && op.RequestBody.Value.Required,
			In:          "body",
		})
	}
	return params
}

func schemaType(ref *openapi3.SchemaRef) string {
	if ref == nil || ref.Value == nil || ref.Value.Type == nil {
		return "string"
	}
	t := ref.Value.Type
	switch {
	case t.Is(openapi3.TypeNumber), t.Is(openapi3.TypeInteger):
		return "number"
	case t.Is(openapi3.TypeBoolean):
		return "boolean"
	case t.Is(openapi3.TypeArray):
		return "array"
	case t.Is(openapi3.TypeObject):
		return "object"
	default:
		return "string"
	}
}
