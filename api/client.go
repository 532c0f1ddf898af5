package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	default_address = "http://127.0.0.1:11823"
)

type Client struct {
	client   *http.Client
	Endpoint string
}

func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = default_address
	}
	return &Client{
		client:   http.DefaultClient,
		Endpoint: strings.TrimRight(endpoint, "/"),
	}
}

// Fix sends broken code or an error log and returns the suggested fix.
func (c *Client) Fix(ctx context.Context, in FixRequest) (*FixResponse, error) {
	var out FixResponse
	if err := c.do(ctx, http.MethodPost, "api/fix", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Rate rates the last answer of in.UserID.
func (c *Client) Rate(ctx context.Context, in RateRequest) (*RateResponse, error) {
	var out RateResponse
	if err := c.do(ctx, http.MethodPost, "api/rate", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.do(ctx, http.MethodGet, "api/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	urlString := fmt.Sprintf("%s/%s", c.Endpoint, path)

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlString, body)
	if err != nil {
		return fmt.Errorf("client failed create request: %v", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &Error{StatusCode: resp.StatusCode, Body: string(b)}
		var msg struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &msg) == nil {
			apiErr.Message = msg.Error
		}
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
