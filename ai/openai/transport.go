package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// doer matches the HTTP client contract langchaingo accepts via WithHTTPClient.
type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// indexOrderingDoer rewrites successful embedding responses so that the data
// array is sorted by each item's index field. Some servers answer batched
// requests out of order and langchaingo reads the array positionally.
type indexOrderingDoer struct {
	next doer
}

type indexedItem struct {
	Index int `json:"index"`
}

func (d *indexOrderingDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.next.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK || !strings.HasSuffix(req.URL.Path, "/embeddings") {
		return resp, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}

	reordered, err := sortByIndex(body)
	if err != nil {
		// Leave malformed bodies for langchaingo to report.
		reordered = body
	}

	resp.Body = io.NopCloser(bytes.NewReader(reordered))
	resp.ContentLength = int64(len(reordered))
	resp.Header.Del("Content-Length")
	return resp, nil
}

// sortByIndex reorders the "data" array of an embedding response by index,
// leaving every other field untouched.
func sortByIndex(body []byte) ([]byte, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	raw, ok := envelope["data"]
	if !ok {
		return body, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}

	indexes := make([]int, len(items))
	for i, item := range items {
		var ix indexedItem
		if err := json.Unmarshal(item, &ix); err != nil {
			return nil, err
		}
		indexes[i] = ix.Index
	}

	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return indexes[order[a]] < indexes[order[b]]
	})

	sorted := make([]json.RawMessage, len(items))
	for i, j := range order {
		sorted[i] = items[j]
	}

	data, err := json.Marshal(sorted)
	if err != nil {
		return nil, err
	}
	envelope["data"] = data
	return json.Marshal(envelope)
}
