package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/specmount/specmount/internal/common"
	"github.com/specmount/specmount/internal/config"
	"github.com/specmount/specmount/internal/models"
)

// Invocation rejections distinguishable by the caller per the router
// contract: an unknown tool and a disabled tool are different conditions.
var (
	ErrUnknownPrefix = errors.New("prefix not mounted")
	ErrUnknownTool   = errors.New("unknown tool")
	ErrToolDisabled  = errors.New("tool disabled")
)

// Router serves every mounted spec over MCP. Each prefix gets its own
// MCPServer reachable at /{prefix}/mcp, and a root server at /mcp aggregates
// all prefixes' enabled tools under prefix-qualified names. Mounting is a
// map insert; the HTTP server is never restarted.
type Router struct {
	mu     sync.RWMutex
	mounts map[string]*prefixMount

	root        *mcpserver.MCPServer
	rootHandler *mcpserver.StreamableHTTPServer
	invoker     *Invoker
	logger      *common.Logger
}

// prefixMount is the router-side handle for one mounted spec.
type prefixMount struct {
	baseURL string
	sub     *mcpserver.MCPServer
	handler http.Handler
	tools   map[string]models.ToolDefinition
	enabled map[string]*atomic.Bool
	names   []string // tool names in derivation order
}

// NewRouter creates an empty endpoint router.
func NewRouter(logger *common.Logger) *Router {
	root := mcpserver.NewMCPServer(
		"specmount",
		config.GetVersion(),
		mcpserver.WithToolCapabilities(true),
	)

	return &Router{
		mounts:      make(map[string]*prefixMount),
		root:        root,
		rootHandler: mcpserver.NewStreamableHTTPServer(root, mcpserver.WithStateLess(true)),
		invoker:     NewInvoker(logger),
		logger:      logger,
	}
}

// Mount registers a mount entry's enabled tools on a fresh per-prefix MCP
// server and mirrors them, prefix-qualified, on the root server. Disabled
// tools stay known to the router but unlisted until re-enabled.
func (r *Router) Mount(entry *models.MountEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := entry.Prefix
	if _, exists := r.mounts[prefix]; exists {
		return fmt.Errorf("prefix %q already mounted", prefix)
	}

	sub := mcpserver.NewMCPServer(
		prefix+" server",
		config.GetVersion(),
		mcpserver.WithToolCapabilities(true),
	)

	pm := &prefixMount{
		baseURL: entry.APIBaseURL,
		sub:     sub,
		tools:   make(map[string]models.ToolDefinition, len(entry.Tools)),
		enabled: make(map[string]*atomic.Bool, len(entry.Tools)),
	}

	for _, tool := range entry.Tools {
		flag := &atomic.Bool{}
		flag.Store(tool.Enabled)
		pm.tools[tool.Name] = tool
		pm.enabled[tool.Name] = flag
		pm.names = append(pm.names, tool.Name)

		if !tool.Enabled {
			continue
		}
		handler := r.toolHandler(prefix, tool.Name)
		sub.AddTool(BuildTool(tool), handler)
		r.root.AddTool(BuildQualifiedTool(prefix, tool), handler)
	}

	pm.handler = mcpserver.NewStreamableHTTPServer(sub, mcpserver.WithStateLess(true))
	r.mounts[prefix] = pm

	r.logger.Debug().Str("prefix", prefix).Int("tools", len(entry.Tools)).Msg("prefix mounted on router")
	return nil
}

// Unmount withdraws a prefix and removes its qualified tools from the root
// server.
func (r *Router) Unmount(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pm, exists := r.mounts[prefix]
	if !exists {
		return
	}
	delete(r.mounts, prefix)

	qualified := make([]string, len(pm.names))
	for i, name := range pm.names {
		qualified[i] = QualifiedName(prefix, name)
	}
	if len(qualified) > 0 {
		r.root.DeleteTools(qualified...)
	}

	r.logger.Debug().Str("prefix", prefix).Msg("prefix unmounted from router")
}

// SetToolEnabled updates the flag consulted on every subsequent invocation
// attempt and keeps the listings in step: disabling withdraws the tool from
// the per-prefix and combined servers, enabling re-registers it. Both paths
// emit listChanged notifications. In-flight invocations complete normally.
func (r *Router) SetToolEnabled(prefix, name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pm, exists := r.mounts[prefix]
	if !exists {
		return
	}
	flag, ok := pm.enabled[name]
	if !ok || flag.Load() == enabled {
		return
	}
	flag.Store(enabled)

	if enabled {
		handler := r.toolHandler(prefix, name)
		pm.sub.AddTool(BuildTool(pm.tools[name]), handler)
		r.root.AddTool(BuildQualifiedTool(prefix, pm.tools[name]), handler)
	} else {
		pm.sub.DeleteTools(name)
		r.root.DeleteTools(QualifiedName(prefix, name))
	}
}

// InvokeTool dispatches one tool invocation. A disabled tool is rejected
// before any network I/O and never reaches the backing API.
func (r *Router) InvokeTool(ctx context.Context, prefix, name string, args map[string]interface{}) ([]byte, error) {
	r.mu.RLock()
	pm, exists := r.mounts[prefix]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPrefix, prefix)
	}

	flag, ok := pm.enabled[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q under %q", ErrUnknownTool, name, prefix)
	}
	if !flag.Load() {
		return nil, fmt.Errorf("%w: %q under %q", ErrToolDisabled, name, prefix)
	}

	return r.invoker.Invoke(ctx, pm.baseURL, pm.tools[name], args)
}

// toolHandler adapts an MCP tool call to InvokeTool. Invocation failures are
// returned as MCP error results, not protocol errors.
func (r *Router) toolHandler(prefix, name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		body, err := r.InvokeTool(ctx, prefix, name, req.GetArguments())
		if err != nil {
			return errorResult("Error: " + err.Error()), nil
		}
		return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(string(body))}}, nil
	}
}

// ServeHTTP dispatches /mcp to the combined server and /{prefix}/mcp to the
// prefix's server.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p := strings.Trim(req.URL.Path, "/")

	if p == "mcp" {
		r.rootHandler.ServeHTTP(w, req)
		return
	}

	if prefix, rest, ok := strings.Cut(p, "/"); ok && rest == "mcp" {
		r.mu.RLock()
		pm, exists := r.mounts[prefix]
		r.mu.RUnlock()
		if exists {
			http.StripPrefix("/"+prefix, pm.handler).ServeHTTP(w, req)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "Not Found",
		"message": "no MCP endpoint mounted at this path",
	})
}
