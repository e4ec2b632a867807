package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/specmount/specmount/internal/models"
)

// QualifiedName is a tool's name in the combined view: prefix-qualified so
// identical names under different mounts never collide.
func QualifiedName(prefix, name string) string {
	return prefix + "_" + name
}

// BuildTool converts a ToolDefinition into an mcp.Tool with the appropriate
// parameter schema.
func BuildTool(td models.ToolDefinition) mcp.Tool {
	return buildTool(td.Name, td)
}

// BuildQualifiedTool builds the combined-view variant of a tool, with its
// name qualified by the owning prefix.
func BuildQualifiedTool(prefix string, td models.ToolDefinition) mcp.Tool {
	return buildTool(QualifiedName(prefix, td.Name), td)
}

func buildTool(name string, td models.ToolDefinition) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(td.Description)}
	for _, p := range td.Params {
		if p.In == "path" || p.In == "query" || p.In == "body" {
			opts = append(opts, buildParamOption(p))
		}
	}
	return mcp.NewTool(name, opts...)
}

// buildParamOption maps a ToolParam to the appropriate mcp-go tool option.
func buildParamOption(p models.ToolParam) mcp.ToolOption {
	var opts []mcp.PropertyOption
	if p.Description != "" {
		opts = append(opts, mcp.Description(p.Description))
	}
	if p.Required {
		opts = append(opts, mcp.Required())
	}

	switch p.Type {
	case "number":
		return mcp.WithNumber(p.Name, opts...)
	case "boolean":
		return mcp.WithBoolean(p.Name, opts...)
	case "array":
		opts = append([]mcp.PropertyOption{mcp.WithStringItems()}, opts...)
		return mcp.WithArray(p.Name, opts...)
	default:
		// string, object, and unknown types are passed as string
		return mcp.WithString(p.Name, opts...)
	}
}

// errorResult creates an MCP error result.
func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message),
		},
		IsError: true,
	}
}
