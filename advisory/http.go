package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSource queries an OSV-style advisory service: one POST per package
// name, advisories for every version back.
type HTTPSource struct {
	url    string
	client *http.Client
}

type queryRequest struct {
	Package struct {
		Name      string `json:"name"`
		Ecosystem string `json:"ecosystem"`
	} `json:"package"`
}

type queryResponse struct {
	Vulns []Advisory `json:"vulns"`
}

// NewHTTPSource builds a source against the given query endpoint.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPSource) Lookup(ctx context.Context, packageName string) ([]Advisory, error) {
	req := queryRequest{}
	req.Package.Name = packageName
	req.Package.Ecosystem = "npm"

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("advisory service error: %s", resp.Status)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	var result queryResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("error decoding JSON: %w", err)
	}
	for i := range result.Vulns {
		if result.Vulns[i].Package == "" {
			result.Vulns[i].Package = packageName
		}
	}
	return result.Vulns, nil
}
