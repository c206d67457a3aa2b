package util

import (
	"net/http"
	"testing"
)

func TestNewProxyFunc(t *testing.T) {
	proxy := NewProxyFunc("http://proxy.internal:3128", "http://secure-proxy.internal:3129", "api.local,.corp")

	tests := []struct {
		url  string
		want string
	}{
		{"http://api.openai.com/v1", "http://proxy.internal:3128"},
		{"https://api.openai.com/v1", "http://secure-proxy.internal:3129"},
		{"https://api.local/v1", ""},
		{"https://models.corp/v1", ""},
	}

	for _, tt := range tests {
		req, err := http.NewRequest(http.MethodGet, tt.url, nil)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		got, err := proxy(req)
		if err != nil {
			t.Fatalf("proxy(%s): %v", tt.url, err)
		}
		gotStr := ""
		if got != nil {
			gotStr = got.String()
		}
		if gotStr != tt.want {
			t.Errorf("proxy(%s) = %q, want %q", tt.url, gotStr, tt.want)
		}
	}
}
