package s3

import (
	"context"
	"testing"
)

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		endpoint string
		useSSL   bool
		want     string
	}{
		{"", false, ""},
		{"localhost:9000", false, "http://localhost:9000"},
		{"minio.internal:9000", true, "https://minio.internal:9000"},
		{"https://s3.eu-west-1.amazonaws.com", false, "https://s3.eu-west-1.amazonaws.com"},
	}
	for _, tt := range tests {
		if got := endpointURL(tt.endpoint, tt.useSSL); got != tt.want {
			t.Errorf("endpointURL(%q, %v) = %q, want %q", tt.endpoint, tt.useSSL, got, tt.want)
		}
	}
}

func TestNewBackendRequiresBucket(t *testing.T) {
	if _, err := NewBackend(context.Background(), BackendConfig{Endpoint: "localhost:9000"}); err == nil {
		t.Error("NewBackend without bucket should fail")
	}
}
