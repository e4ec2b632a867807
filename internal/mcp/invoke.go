package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/specmount/specmount/internal/common"
	"github.com/specmount/specmount/internal/models"
)

// maxResponseSize caps backing-API response bodies to prevent OOM from
// unexpectedly large responses.
const maxResponseSize = 50 << 20 // 50MB

// Invoker executes a derived tool as an HTTP call against its mount's API
// base URL, resolving path, query, and body parameters from the tool's
// operation metadata.
type Invoker struct {
	httpClient *http.Client
	logger     *common.Logger
}

// NewInvoker creates an invoker with a long request timeout; backing API
// operations can take minutes.
func NewInvoker(logger *common.Logger) *Invoker {
	return &Invoker{
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
		logger: logger,
	}
}

// Invoke builds and executes the HTTP request for one tool call.
func (iv *Invoker) Invoke(ctx context.Context, baseURL string, tool models.ToolDefinition, args map[string]interface{}) ([]byte, error) {
	reqPath := tool.Path
	bodyParams := map[string]interface{}{}
	queryParams := url.Values{}

	for _, param := range tool.Params {
		val, ok := args[param.Name]
		switch param.In {
		case "path":
			strVal := fmt.Sprint(val)
			if !ok || val == nil || strVal == "" {
				if param.Required {
					return nil, fmt.Errorf("%s parameter is required", param.Name)
				}
				continue
			}
			reqPath = strings.ReplaceAll(reqPath, "{"+param.Name+"}", url.PathEscape(strVal))
		case "query":
			strVal := ""
			if ok && val != nil {
				strVal = fmt.Sprint(val)
			}
			if strVal == "" {
				if param.Required {
					return nil, fmt.Errorf("%s parameter is required", param.Name)
				}
				continue
			}
			queryParams.Set(param.Name, strVal)
		case "body":
			if !ok || val == nil {
				if param.Required {
					return nil, fmt.Errorf("%s parameter is required", param.Name)
				}
				continue
			}
			bodyParams[param.Name] = val
		}
	}

	target := strings.TrimRight(baseURL, "/") + reqPath
	if len(queryParams) > 0 {
		target += "?" + queryParams.Encode()
	}

	var bodyReader io.Reader
	if len(bodyParams) > 0 {
		jsonData, err := json.Marshal(bodyParams)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	method := strings.ToUpper(tool.Method)
	iv.logger.Debug().Str("method", method).Str("url", target).Str("tool", tool.Name).Msg("tool invocation")

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, err
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := iv.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		iv.logger.Error().
			Str("method", method).
			Str("url", target).
			Dur("duration", duration).
			Str("error", err.Error()).
			Msg("tool invocation failed")
		return nil, fmt.Errorf("api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	iv.logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Str("tool", tool.Name).
		Msg("tool invocation response")

	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}

	return body, nil
}

// parseErrorResponse extracts a meaningful error message from an HTTP error response.
func parseErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("%s", errResp.Error)
	}
	return fmt.Errorf("api returned %d: %s", statusCode, string(body))
}
