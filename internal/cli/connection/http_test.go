package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestNewHTTPClient(t *testing.T) {
	tests := []struct {
		name   string
		server string
		want   string
	}{
		{"with http prefix", "http://localhost:9999", "http://localhost:9999"},
		{"with https prefix", "https://localhost:9999", "https://localhost:9999"},
		{"without prefix", "localhost:9999", "http://localhost:9999"},
		{"trailing slash", "http://db.example.com/", "http://db.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewHTTPClient(tt.server, "k", Options{})
			if client.BaseURL() != tt.want {
				t.Errorf("BaseURL() = %q, want %q", client.BaseURL(), tt.want)
			}
		})
	}
}

func TestHTTPClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "secret" {
			t.Errorf("Authorization = %q, want %q", got, "secret")
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "sightingdb-cli/") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		if r.URL.Path != "/r/ns/a" {
			t.Errorf("path = %q, want /r/ns/a", r.URL.Path)
		}
		if r.URL.Query().Get("val") != "aGVsbG8" {
			t.Errorf("val = %q", r.URL.Query().Get("val"))
		}
		w.Write([]byte(`{"value":"aGVsbG8","count":1}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "secret", Options{})
	resp, err := client.Get(context.Background(), "/r/ns/a", url.Values{"val": {"aGVsbG8"}})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	var got struct {
		Count int `json:"count"`
	}
	if err := ParseResponse(resp, &got); err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if got.Count != 1 {
		t.Errorf("count = %d, want 1", got.Count)
	}
}

func TestHTTPClient_Post(t *testing.T) {
	type item struct {
		Namespace string `json:"namespace"`
		Value     string `json:"value"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		var body struct {
			Items []item `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(body.Items) != 1 || body.Items[0].Namespace != "/a" {
			t.Errorf("body = %+v", body)
		}
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "secret", Options{})
	resp, err := client.Post(context.Background(), "/wb", map[string]any{
		"items": []item{{Namespace: "/a", Value: "eA"}},
	})
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if err := ParseResponse(resp, nil); err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
}

func TestHTTPClient_Delete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %q, want DELETE", r.Method)
		}
		w.Write([]byte(`{"message":"ok","deleted":true}`))
	}))
	defer server.Close()

	resp, err := NewHTTPClient(server.URL, "secret", Options{}).Delete(context.Background(), "/d/a")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	var got struct {
		Deleted bool `json:"deleted"`
	}
	if err := ParseResponse(resp, &got); err != nil || !got.Deleted {
		t.Fatalf("ParseResponse = %v, deleted=%v", err, got.Deleted)
	}
}

func TestHTTPClient_NoAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Authorization"]; ok {
			t.Error("Authorization header should not be sent without a key")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := NewHTTPClient(server.URL, "", Options{}).Get(context.Background(), "/health", nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	resp.Body.Close()
}

func TestParseResponse_Error(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		header  string
		body    string
		want    APIError
		wantMsg string
	}{
		{
			name:    "envelope",
			status:  http.StatusForbidden,
			body:    `{"message":"Permission denied","code":"SDB-AUTH-4030","details":"cannot write namespace: /a"}`,
			want:    APIError{Status: 403, Code: "SDB-AUTH-4030", Message: "Permission denied", Details: "cannot write namespace: /a"},
			wantMsg: "[SDB-AUTH-4030] Permission denied: cannot write namespace: /a",
		},
		{
			name:    "code from header",
			status:  http.StatusNotFound,
			header:  "SDB-DATA-4040",
			body:    `{"message":"Value not found"}`,
			want:    APIError{Status: 404, Code: "SDB-DATA-4040", Message: "Value not found"},
			wantMsg: "[SDB-DATA-4040] Value not found",
		},
		{
			name:    "not json",
			status:  http.StatusBadGateway,
			body:    `bad gateway`,
			want:    APIError{Status: 502},
			wantMsg: "request failed with status 502",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode: tt.status,
				Header:     http.Header{},
				Body:       io.NopCloser(strings.NewReader(tt.body)),
			}
			if tt.header != "" {
				resp.Header.Set("X-Error-Code", tt.header)
			}

			err := ParseResponse(resp, nil)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if *apiErr != tt.want {
				t.Errorf("APIError = %+v, want %+v", *apiErr, tt.want)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestParseResponse_Writer(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("plain help text")),
	}
	var buf bytes.Buffer
	if err := ParseResponse(resp, &buf); err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if buf.String() != "plain help text" {
		t.Errorf("body = %q", buf.String())
	}
}

func TestParseResponse_BadJSON(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("{")),
	}
	var v map[string]any
	if err := ParseResponse(resp, &v); err == nil {
		t.Fatal("expected a parse error")
	}
}
