package models

// AddServerRequest is the payload for POST /api/servers.
type AddServerRequest struct {
	Source     string `json:"source"`
	APIBaseURL string `json:"api_base_url"`
	Prefix     string `json:"prefix,omitempty"`
}

// AddServerResponse reports the mounted prefix and its tool count.
type AddServerResponse struct {
	Added string `json:"added"`
	Tools int    `json:"tools"`
}

// ListServersResponse lists all mounted prefixes in mount order.
type ListServersResponse struct {
	Servers []string `json:"servers"`
}

// ListToolsResponse lists tools for one prefix, or the combined
// prefix-qualified view when no prefix was requested.
type ListToolsResponse struct {
	Tools []ToolDefinition `json:"tools"`
}

// ToolEnabledRequest is the payload for POST /api/tools/enabled.
type ToolEnabledRequest struct {
	Prefix  string `json:"prefix"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// ToolEnabledResponse confirms a tool enablement change.
type ToolEnabledResponse struct {
	Tool    string `json:"tool"`
	Enabled bool   `json:"enabled"`
}

// SearchEnabledRequest is the payload for POST /api/search/enabled.
type SearchEnabledRequest struct {
	Prefix  string `json:"prefix"`
	Enabled bool   `json:"enabled"`
}

// SearchEnabledResponse confirms a per-prefix search toggle.
type SearchEnabledResponse struct {
	Prefix  string `json:"prefix"`
	Enabled bool   `json:"enabled"`
}

// SearchResult is one hit from GET /api/search.
type SearchResult struct {
	Prefix string `json:"prefix"`
	Tool   string `json:"tool"`
}

// SearchResponse carries tool search results across mounted prefixes.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}
