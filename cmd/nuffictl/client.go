package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	baseURL string
	userID  string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, userID: userID, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) Get(path string, out any) error {
	return c.Do(http.MethodGet, path, nil, out, nil)
}

func (c *Client) Post(path string, body any, out any) error {
	return c.Do(http.MethodPost, path, body, out, nil)
}

func (c *Client) Delete(path string, out any) error {
	return c.Do(http.MethodDelete, path, nil, out, nil)
}

// Do sends a JSON request. headers are added on top of the user header.
func (c *Client) Do(method, path string, body, out any, headers map[string]string) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return parseResponse(resp, out)
}

func parseResponse(resp *http.Response, out any) error {
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		var errResp struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(b, &errResp); err != nil || errResp.Code == "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(b))
		}
		return fmt.Errorf("%s: %s", errResp.Code, errResp.Message)
	}
	if out != nil {
		return json.Unmarshal(b, out)
	}
	return nil
}
