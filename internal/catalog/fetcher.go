package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"llmdeepseek/internal/core"
)

const maxBodySize = 10 * 1024 * 1024 // 10 MB

// download performs one GET of the catalog URL.
// Returns the parsed entries and the raw JSON bytes (for caching).
func download(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]core.CatalogEntry, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	limited := io.LimitReader(resp.Body, maxBodySize+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(raw) > maxBodySize {
		return nil, nil, fmt.Errorf("response body too large (exceeds %d bytes)", maxBodySize)
	}

	entries, err := Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	return entries, raw, nil
}

// Parse extracts the "data" array of a catalog response, preserving order.
func Parse(raw []byte) ([]core.CatalogEntry, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("parsing catalog JSON: invalid document")
	}
	data := gjson.GetBytes(raw, "data")
	if !data.IsArray() {
		return nil, fmt.Errorf("parsing catalog JSON: missing \"data\" array")
	}

	items := data.Array()
	entries := make([]core.CatalogEntry, 0, len(items))
	for _, item := range items {
		id := item.Get("id").String()
		if id == "" {
			continue
		}
		entries = append(entries, core.CatalogEntry{
			ID:      id,
			Object:  item.Get("object").String(),
			OwnedBy: item.Get("owned_by").String(),
		})
	}
	return entries, nil
}
