package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// client is a thin JSON client for the quantd API.
type client struct {
	base    string
	token   string
	session string
	http    *http.Client
}

func newClient(base, token, session string) *client {
	return &client{
		base:    base,
		token:   token,
		session: session,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// call performs one request and returns the decoded JSON body.
func (c *client) call(method, path string, body interface{}) (map[string]interface{}, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return map[string]interface{}{"status": "deleted"}, nil
	}

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 400 {
		if e, ok := out["error"].(map[string]interface{}); ok {
			return nil, fmt.Errorf("%v (%v)", e["message"], e["name"])
		}
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return out, nil
}

func (c *client) sessionPath(suffix string) string {
	return "/v1/sessions/" + c.session + suffix
}
