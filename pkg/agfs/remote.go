// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package agfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/uri"
)

// RemoteConfig holds the connection settings for a remote AGFS server.
type RemoteConfig struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	APIKey  string        `yaml:"api_key" json:"api_key"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Remote speaks the JSON envelope protocol to an AGFS server. Server-side
// error codes map one to one onto the local taxonomy, so callers cannot tell
// a remote workspace from a local one.
type Remote struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRemote creates a client for the AGFS server at cfg.BaseURL.
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
	if err := ctxErr(ctx); err != nil {
		return err
	}
	body, _ := json.Marshal(req)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+"/api/v1/fs/"+op, strings.NewReader(string(body)))
	if err != nil {
		return errors.DependencyError(err, "agfs %s", op)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		if ctxErr(ctx) != nil {
			return ctxErr(ctx)
		}
		return errors.DependencyError(err, "agfs %s", op)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return errors.DependencyError(fmt.Errorf("agfs %s (status %d): %s", op, resp.StatusCode, string(bodyBytes)), "decode response")
	}
	if env.Status != "ok" {
		if env.Error == nil {
			return errors.DependencyError(fmt.Errorf("status %d", resp.StatusCode), "agfs %s", op)
		}
		return errors.New(errors.Code(env.Error.Code), "%s", env.Error.Message)
	}
	if result != nil {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return errors.DependencyError(err, "agfs %s", op)
		}
	}
	return nil
}

func (r *Remote) Read(ctx context.Context, u uri.URI) ([]byte, error) {
	var res struct {
		Data []byte `json:"data"`
	}
	req := struct {
		URI string `json:"uri"`
	}{URI: u.String()}
	if err := r.call(ctx, "read", req, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (r *Remote) Write(ctx context.Context, u uri.URI, data []byte, opts WriteOptions) error {
	req := struct {
		URI        string `json:"uri"`
		Data       []byte `json:"data"`
		CreateOnly bool   `json:"create_only,omitempty"`
	}{URI: u.String(), Data: data, CreateOnly: opts.CreateOnly}
	return r.call(ctx, "write", req, nil)
}

func (r *Remote) Append(ctx context.Context, u uri.URI, data []byte) error {
	req := struct {
		URI  string `json:"uri"`
		Data []byte `json:"data"`
	}{URI: u.String(), Data: data}
	return r.call(ctx, "append", req, nil)
}

func (r *Remote) Mkdir(ctx context.Context, u uri.URI) error {
	req := struct {
		URI string `json:"uri"`
	}{URI: u.String()}
	return r.call(ctx, "mkdir", req, nil)
}

func (r *Remote) Stat(ctx context.Context, u uri.URI) (Stat, error) {
	var res Stat
	req := struct {
		URI string `json:"uri"`
	}{URI: u.String()}
	if err := r.call(ctx, "stat", req, &res); err != nil {
		return Stat{}, err
	}
	return res, nil
}

func (r *Remote) List(ctx context.Context, u uri.URI, opts ListOptions) ([]Entry, error) {
	var res struct {
		Entries []Entry `json:"entries"`
	}
	req := struct {
		URI           string `json:"uri"`
		Recursive     bool   `json:"recursive,omitempty"`
		IncludeHidden bool   `json:"include_hidden,omitempty"`
		NodeLimit     int    `json:"node_limit,omitempty"`
	}{URI: u.String(), Recursive: opts.Recursive, IncludeHidden: opts.IncludeHidden, NodeLimit: opts.NodeLimit}
	if err := r.call(ctx, "ls", req, &res); err != nil {
		return nil, err
	}
	return res.Entries, nil
}

func (r *Remote) Delete(ctx context.Context, u uri.URI, opts DeleteOptions) error {
	req := struct {
		URI       string `json:"uri"`
		Recursive bool   `json:"recursive,omitempty"`
	}{URI: u.String(), Recursive: opts.Recursive}
	return r.call(ctx, "rm", req, nil)
}

func (r *Remote) Move(ctx context.Context, src, dst uri.URI) error {
	req := struct {
		Src string `json:"src"`
		Dst string `json:"dst"`
	}{Src: src.String(), Dst: dst.String()}
	return r.call(ctx, "mv", req, nil)
}

var _ FS = (*Remote)(nil)
