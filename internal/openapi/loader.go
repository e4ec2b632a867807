package openapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/specmount/specmount/internal/models"
)

// Error kinds surfaced by the loader. Callers distinguish fetch failures
// (retryable, depending on context) from parse failures (correct the input).
var (
	ErrSpecUnreachable = errors.New("spec unreachable")
	ErrSpecMalformed   = errors.New("spec malformed")
)

// maxSpecSize caps fetched documents to prevent OOM from a misbehaving source.
const maxSpecSize = 10 << 20 // 10MB

// fetchTimeout bounds a single remote spec fetch. There is no retry at this
// layer; retry policy belongs to the caller.
const fetchTimeout = 30 * time.Second

// Document is a parsed OpenAPI document together with the exact bytes it was
// parsed from. Raw is what ExportSpec returns, byte-identical to the load.
type Document struct {
	Raw    []byte
	Parsed *openapi3.T
}

// Load fetches and parses the OpenAPI document at source. Local paths and
// remote URLs are handled transparently, distinguished by the source's shape.
func Load(ctx context.Context, source models.SpecSource) (*Document, error) {
	raw, err := fetch(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSpecUnreachable, source, err)
	}
	return Parse(raw)
}

// Parse parses raw OpenAPI document bytes (JSON or YAML).
func Parse(raw []byte) (*Document, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpecMalformed, err)
	}
	return &Document{Raw: raw, Parsed: doc}, nil
}

func fetch(ctx context.Context, source models.SpecSource) ([]byte, error) {
	if source.IsURL() {
		return fetchURL(ctx, source.String())
	}
	return os.ReadFile(source.String())
}

func fetchURL(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSpecSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxSpecSize {
		return nil, fmt.Errorf("document larger than %d bytes", maxSpecSize)
	}
	return body, nil
}
