// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kraklabs/openviking/internal/errors"
)

// RemoteConfig holds the connection settings for a remote vector service.
type RemoteConfig struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	APIKey  string        `yaml:"api_key" json:"api_key"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Remote speaks the JSON envelope protocol to a vector service. The server
// applies the same ranking contract, so results are interchangeable with
// the embedded index.
type Remote struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRemote creates a client for the vector service at cfg.BaseURL.
func NewRemote(cfg RemoteConfig) *Remote {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Remote{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r *Remote) call(ctx context.Context, op string, req, result any) error {
	body, _ := json.Marshal(req)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+"/api/v1/vector/"+op, strings.NewReader(string(body)))
	if err != nil {
		return errors.DependencyError(err, "vector %s", op)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.DependencyError(err, "vector %s", op)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return errors.DependencyError(fmt.Errorf("vector %s (status %d): %w", op, resp.StatusCode, err), "decode response")
	}
	if env.Status != "ok" {
		if env.Error == nil {
			return errors.DependencyError(fmt.Errorf("status %d", resp.StatusCode), "vector %s", op)
		}
		return errors.New(errors.Code(env.Error.Code), "%s", env.Error.Message)
	}
	if result != nil {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return errors.DependencyError(err, "vector %s", op)
		}
	}
	return nil
}

func (r *Remote) Upsert(ctx context.Context, records []Record) error {
	for _, rec := range records {
		if len(rec.Vector) == 0 {
			return errors.InvalidArgument("zero-length vector for %s", rec.URI)
		}
	}
	req := struct {
		Records []Record `json:"records"`
	}{Records: records}
	return r.call(ctx, "upsert", req, nil)
}

func (r *Remote) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) == 0 {
		return nil, errors.InvalidArgument("zero-length query vector")
	}
	var res struct {
		Matches []Match `json:"matches"`
	}
	req := struct {
		Query []float32 `json:"query"`
		SearchOptions
	}{Query: query, SearchOptions: opts}
	if err := r.call(ctx, "search", req, &res); err != nil {
		return nil, err
	}
	// Re-rank locally so remote and embedded stores are indistinguishable
	// even against an older server.
	return rank(res.Matches, opts), nil
}

func (r *Remote) Delete(ctx context.Context, prefix string) (int, error) {
	var res struct {
		Deleted int `json:"deleted"`
	}
	req := struct {
		Prefix string `json:"prefix"`
	}{Prefix: prefix}
	if err := r.call(ctx, "delete", req, &res); err != nil {
		return 0, err
	}
	return res.Deleted, nil
}

func (r *Remote) Rekey(ctx context.Context, oldPrefix, newPrefix string) (int, error) {
	var res struct {
		Moved int `json:"moved"`
	}
	req := struct {
		OldPrefix string `json:"old_prefix"`
		NewPrefix string `json:"new_prefix"`
	}{OldPrefix: oldPrefix, NewPrefix: newPrefix}
	if err := r.call(ctx, "rekey", req, &res); err != nil {
		return 0, err
	}
	return res.Moved, nil
}

func (r *Remote) Count(ctx context.Context, prefix string) (int, error) {
	var res struct {
		Count int `json:"count"`
	}
	req := struct {
		Prefix string `json:"prefix,omitempty"`
	}{Prefix: prefix}
	if err := r.call(ctx, "count", req, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

func (r *Remote) IncrementActive(ctx context.Context, uris []string) (int, error) {
	if len(uris) == 0 {
		return 0, nil
	}
	var res struct {
		Updated int `json:"updated"`
	}
	req := struct {
		URIs []string `json:"uris"`
	}{URIs: uris}
	if err := r.call(ctx, "increment_active", req, &res); err != nil {
		return 0, err
	}
	return res.Updated, nil
}

func (r *Remote) Close() error { return nil }

var _ Store = (*Remote)(nil)
