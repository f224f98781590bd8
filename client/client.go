package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/turtlemonvh/loopstore/lib/loop"
)

/*
The client package provides utilities for working with a running loopstore
server over HTTP. It mirrors the library surface one call per operation;
errors from the server come back with the server's error message attached.
*/

type Client struct {
	// BaseURL like "http://localhost:8773"
	BaseURL string
	// HTTPClient defaults to http.DefaultClient
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimSuffix(baseURL, "/")}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

type countResponse struct {
	Count int64 `json:"count"`
}

type idsResponse struct {
	IDs []interface{} `json:"ids"`
}

type entriesResponse struct {
	Entries map[string]loop.Entry `json:"entries"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) do(method, path string, body interface{}, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequest(method, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var errRes errorResponse
		raw, _ := io.ReadAll(res.Body)
		if json.Unmarshal(raw, &errRes) == nil && errRes.Error != "" {
			return fmt.Errorf("loopstore server: %s (%d)", errRes.Error, res.StatusCode)
		}
		return fmt.Errorf("loopstore server: status %d", res.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// Create makes the loop table.
func (c *Client) Create(loopName string) error {
	return c.do("POST", fmt.Sprintf("/loop/%s/", loopName), map[string]interface{}{}, nil)
}

// Add registers ids; with updated set, new entries start already fresh.
func (c *Client) Add(loopName string, ids []interface{}, updated bool) (int64, error) {
	var out countResponse
	err := c.do("POST", fmt.Sprintf("/loop/%s/ids", loopName),
		map[string]interface{}{"ids": ids, "updated": updated}, &out)
	return out.Count, err
}

// Remove deletes ids from the loop.
func (c *Client) Remove(loopName string, ids []interface{}) (int64, error) {
	var out countResponse
	err := c.do("DELETE", fmt.Sprintf("/loop/%s/ids", loopName),
		map[string]interface{}{"ids": ids}, &out)
	return out.Count, err
}

// Get claims up to limit ids. Zero values mean server-side defaults.
func (c *Client) Get(loopName string, limit int, lockFor, minLoopTime int64) ([]interface{}, error) {
	var out idsResponse
	err := c.do("POST", fmt.Sprintf("/loop/%s/claims", loopName),
		map[string]interface{}{"limit": limit, "lockFor": lockFor, "minLoopTime": minLoopTime}, &out)
	return out.IDs, err
}

// Unlock releases claims without recording completions.
func (c *Client) Unlock(loopName string, ids []interface{}) (int64, error) {
	var out countResponse
	err := c.do("DELETE", fmt.Sprintf("/loop/%s/claims", loopName),
		map[string]interface{}{"ids": ids}, &out)
	return out.Count, err
}

// Did records completions and clears locks.
func (c *Client) Did(loopName string, ids []interface{}) (int64, error) {
	var out countResponse
	err := c.do("POST", fmt.Sprintf("/loop/%s/completions", loopName),
		map[string]interface{}{"ids": ids}, &out)
	return out.Count, err
}

// Bump escalates ids; lockFor 0 prioritizes immediately.
func (c *Client) Bump(loopName string, ids []interface{}, lockFor int64) (int64, error) {
	var out countResponse
	err := c.do("POST", fmt.Sprintf("/loop/%s/bumps", loopName),
		map[string]interface{}{"ids": ids, "lockFor": lockFor}, &out)
	return out.Count, err
}

// Check reads stored state for ids, keyed by id.
func (c *Client) Check(loopName string, ids []string) (map[string]loop.Entry, error) {
	var out entriesResponse
	path := fmt.Sprintf("/loop/%s/ids?ids=%s", loopName, url.QueryEscape(strings.Join(ids, ",")))
	err := c.do("GET", path, nil, &out)
	return out.Entries, err
}

// Stats fetches loop aggregates; nil thresholds use the server defaults.
func (c *Client) Stats(loopName string, thresholds []int64) (loop.Stats, error) {
	var out loop.Stats
	path := fmt.Sprintf("/loop/%s/stats", loopName)
	if len(thresholds) > 0 {
		parts := make([]string, len(thresholds))
		for i, t := range thresholds {
			parts[i] = strconv.FormatInt(t, 10)
		}
		path += "?thresholds=" + strings.Join(parts, ",")
	}
	err := c.do("GET", path, nil, &out)
	return out, err
}
