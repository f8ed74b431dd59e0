package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SNU-SE/analysisq/internal/dto"
)

// apiClient is a thin wrapper over the analysis API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{base: base, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *apiClient) submit(ctx context.Context, req dto.AnalyzeRequest) (*dto.EnqueueResponse, error) {
	var out dto.EnqueueResponse
	if err := c.do(ctx, http.MethodPost, "/v1/analyses", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) status(ctx context.Context, id string) (*dto.JobStatusResponse, error) {
	var out dto.JobStatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/analyses/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) cancel(ctx context.Context, id string) (*dto.CancelResponse, error) {
	var out dto.CancelResponse
	if err := c.do(ctx, http.MethodPost, "/v1/analyses/"+id+"/cancel", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) retry(ctx context.Context, id string) (*dto.EnqueueResponse, error) {
	var out dto.EnqueueResponse
	if err := c.do(ctx, http.MethodPost, "/v1/analyses/"+id+"/retry", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) queueStatus(ctx context.Context) (*dto.QueueStatusResponse, error) {
	var out dto.QueueStatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/queue/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
