// Package lookup implements the external book-metadata collaborator. The
// core treats its result as an optional prefill: a failed or empty lookup
// means "no data available", never an aborted catalog operation.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"biblioteca/pkg/domain"
)

const defaultBaseURL = "https://openlibrary.org"

// Client queries the Open Library books API by ISBN.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs an Open Library client. An empty baseURL selects the
// public endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type bookPayload struct {
	Title   string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Notes       json.RawMessage `json:"notes"`
	Description json.RawMessage `json:"description"`
}

// LookupISBN fetches metadata for an ISBN. A missing record or malformed
// response yields (nil, nil); only transport-level failures surface as
// errors, and callers are expected to degrade those to "no prefill" too.
func (c *Client) LookupISBN(ctx context.Context, isbn string) (*domain.BookMetadata, error) {
	endpoint := fmt.Sprintf("%s/api/books?bibkeys=ISBN:%s&format=json&jscmd=data",
		c.baseURL, url.QueryEscape(isbn))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup isbn %s: %w", isbn, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lookup isbn %s: status %d", isbn, resp.StatusCode)
	}

	var payload map[string]bookPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, nil
	}
	book, ok := payload["ISBN:"+isbn]
	if !ok || strings.TrimSpace(book.Title) == "" {
		return nil, nil
	}

	meta := &domain.BookMetadata{
		Title:       book.Title,
		Description: textValue(book.Notes, textValue(book.Description, "")),
		ISBN:        isbn,
	}
	if len(book.Authors) > 0 {
		meta.AuthorName = book.Authors[0].Name
	}
	return meta, nil
}

// textValue unpacks Open Library fields that are sometimes a bare string and
// sometimes {"type": ..., "value": ...}.
func textValue(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var wrapped struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Value != "" {
		return wrapped.Value
	}
	return fallback
}
