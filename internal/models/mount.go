package models

import (
	"strings"
	"time"
)

// SpecSource identifies where an OpenAPI document came from: a local
// filesystem path or a remote URL. The two are distinguished by shape
// (URL scheme present vs. absent).
type SpecSource string

// IsURL reports whether the source is a remote URL rather than a local path.
func (s SpecSource) IsURL() bool {
	v := strings.ToLower(string(s))
	return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://")
}

func (s SpecSource) String() string {
	return string(s)
}

// ToolParam describes one parameter of a derived tool.
type ToolParam struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string, number, boolean, array, object
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	In          string `json:"in"` // path, query, body
}

// ToolDefinition is one invokable unit derived from a single OpenAPI
// operation. Name is unique within its mount entry, not globally.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Method      string      `json:"method"`
	Path        string      `json:"path"`
	Params      []ToolParam `json:"params,omitempty"`
	Enabled     bool        `json:"enabled"`
}

// MountEntry binds a prefix to its spec source, API base URL, the raw
// document it was derived from, and the ordered tool set. The prefix never
// changes after creation; remove-and-re-add is the only way to relocate.
type MountEntry struct {
	Prefix     string           `json:"prefix"`
	Source     SpecSource       `json:"source"`
	APIBaseURL string           `json:"api_base_url"`
	Document   []byte           `json:"-"`
	Tools      []ToolDefinition `json:"tools"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Tool returns a pointer to the named tool definition, or nil.
func (e *MountEntry) Tool(name string) *ToolDefinition {
	for i := range e.Tools {
		if e.Tools[i].Name == name {
			return &e.Tools[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the entry. Callers outside the mount manager
// only ever see clones, so read snapshots stay consistent.
func (e *MountEntry) Clone() *MountEntry {
	if e == nil {
		return nil
	}
	out := *e
	out.Document = append([]byte(nil), e.Document...)
	out.Tools = CloneTools(e.Tools)
	return &out
}

// CloneTools returns a deep copy of a tool definition slice.
func CloneTools(tools []ToolDefinition) []ToolDefinition {
	if tools == nil {
		return nil
	}
	out := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		out[i] = t
		out[i].Params = append([]ToolParam(nil), t.Params...)
	}
	return out
}
