// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package agfs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/uri"
)

func TestRemote_Read_WithMockServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/fs/read" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		var req struct {
			URI string `json:"uri"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.URI != "viking://resources/doc.md" {
			t.Errorf("uri = %s", req.URI)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"result":  map[string]any{"data": base64.StdEncoding.EncodeToString([]byte("hello"))},
			"time_ms": 3,
		})
	}))
	defer server.Close()

	remote := NewRemote(RemoteConfig{BaseURL: server.URL, APIKey: "test-key"})
	data, err := remote.Read(context.Background(), uri.MustParse("viking://resources/doc.md"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Read = %q", data)
	}
}

func TestRemote_ErrorEnvelope_WithMockServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"status": "error",
			"error":  map[string]any{"code": "NOT_FOUND", "message": "uri viking://resources/nope does not exist"},
		})
	}))
	defer server.Close()

	remote := NewRemote(RemoteConfig{BaseURL: server.URL})
	_, err := remote.Read(context.Background(), uri.MustParse("viking://resources/nope"))
	if !errors.IsNotFound(err) {
		t.Errorf("Read = %v, want NOT_FOUND", err)
	}
}

func TestRemote_List_WithMockServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/fs/ls" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"result": map[string]any{
				"entries": []map[string]any{
					{"uri": "viking://resources/a.md", "is_dir": false, "size": 12},
					{"uri": "viking://resources/proj", "is_dir": true, "abstract": "a project"},
				},
			},
		})
	}))
	defer server.Close()

	remote := NewRemote(RemoteConfig{BaseURL: server.URL})
	entries, err := remote.List(context.Background(), uri.Resources, ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[1].URI != "viking://resources/proj" || !entries[1].IsDir || entries[1].Abstract != "a project" {
		t.Errorf("dir entry = %+v", entries[1])
	}
}

func TestRemote_WriteErrorCodePassthrough(t *testing.T) {
	codes := []string{"ALREADY_EXISTS", "INVALID_ARGUMENT", "RESOURCE_EXHAUSTED"}
	for _, code := range codes {
		code := code
		t.Run(code, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]any{
					"status": "error",
					"error":  map[string]any{"code": code, "message": "boom"},
				})
			}))
			defer server.Close()

			remote := NewRemote(RemoteConfig{BaseURL: server.URL})
			err := remote.Write(context.Background(), uri.MustParse("viking://resources/x"), []byte("x"), WriteOptions{})
			if errors.CodeOf(err) != errors.Code(code) {
				t.Errorf("Write = %v, want code %s", err, code)
			}
		})
	}
}
