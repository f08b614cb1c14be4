// Package meshhttp is the HTTP implementation of the mesh-generation
// service contract.
package meshhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/mintforge/coin-preview/pkg/meshapi"
)

// DefaultTimeout bounds a single request, not the whole generation.
const DefaultTimeout = 2 * time.Minute

// Client talks JSON over HTTP to the generation service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given server URL.
func NewClient(serverURL string) (*Client, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("server URL must be set")
	}
	return &Client{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}, nil
}

// NewClientWithHTTP creates a client using a caller-supplied http.Client,
// for custom transports or timeouts.
func NewClientWithHTTP(serverURL string, hc *http.Client) (*Client, error) {
	c, err := NewClient(serverURL)
	if err != nil {
		return nil, err
	}
	if hc != nil {
		c.httpClient = hc
	}
	return c, nil
}

type uploadResponse struct {
	GenerationID string `json:"generation_id"`
}

type generateResponse struct {
	TaskID string `json:"task_id"`
}

// Upload posts the heightmap bytes as a multipart form and returns the
// generation ID assigned by the server.
func (c *Client) Upload(ctx context.Context, imageBytes []byte) (string, error) {
	if len(imageBytes) == 0 {
		return "", fmt.Errorf("image is empty")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "heightmap.png")
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(imageBytes); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generations", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	respBody, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	var resp uploadResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	if resp.GenerationID == "" {
		return "", fmt.Errorf("server returned no generation id")
	}
	return resp.GenerationID, nil
}

// Generate starts mesh generation for an uploaded heightmap.
func (c *Client) Generate(ctx context.Context, generationID string, params meshapi.CoinParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", fmt.Errorf("invalid coin parameters: %w", err)
	}
	respBody, err := c.sendJSON(ctx, fmt.Sprintf("/generations/%s/tasks", generationID), params)
	if err != nil {
		return "", fmt.Errorf("generate failed: %w", err)
	}
	var resp generateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse generate response: %w", err)
	}
	if resp.TaskID == "" {
		return "", fmt.Errorf("server returned no task id")
	}
	return resp.TaskID, nil
}

// Status polls a running task.
func (c *Client) Status(ctx context.Context, generationID, taskID string) (meshapi.TaskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/generations/%s/tasks/%s", c.baseURL, generationID, taskID), nil)
	if err != nil {
		return meshapi.TaskStatus{}, fmt.Errorf("failed to create request: %w", err)
	}
	respBody, err := c.do(req)
	if err != nil {
		return meshapi.TaskStatus{}, fmt.Errorf("status poll failed: %w", err)
	}
	var status meshapi.TaskStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return meshapi.TaskStatus{}, fmt.Errorf("failed to parse status response: %w", err)
	}
	return status, nil
}

// Download fetches the finished mesh bytes.
func (c *Client) Download(ctx context.Context, generationID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/generations/%s/result", c.baseURL, generationID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	data, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	return data, nil
}

// sendJSON marshals a payload, posts it, and returns the raw response body.
func (c *Client) sendJSON(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
