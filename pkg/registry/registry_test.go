package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRef(t *testing.T) {
	tests := []struct {
		name     string
		ref      string
		wantRepo string
		wantTag  string
		wantErr  bool
	}{
		{"bare name", "redis", "library/redis", "latest", false},
		{"bare name with tag", "redis:7-alpine", "library/redis", "7-alpine", false},
		{"namespaced", "pihole/pihole:2024.07.0", "pihole/pihole", "2024.07.0", false},
		{"namespaced no tag", "pihole/pihole", "pihole/pihole", "latest", false},
		{"registry host dropped", "docker.io/library/redis:7", "library/redis", "7", false},
		{"registry with port", "registry.local:5000/unbound:1.19", "library/unbound", "1.19", false},
		{"digest pinned", "redis@sha256:4a72c0ff", "library/redis", "sha256:4a72c0ff", false},
		{"tag and digest pinned", "pihole/pihole:2024.07.0@sha256:4a72c0ff", "pihole/pihole", "sha256:4a72c0ff", false},
		{"empty", "", "", "", true},
		{"tag only", ":latest", "", "", true},
		{"digest only", "@sha256:4a72c0ff", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, tag, err := splitRef(tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRepo, repo)
			assert.Equal(t, tt.wantTag, tag)
		})
	}
}

func TestManifestDigest(t *testing.T) {
	const digest = "sha256:4a72c0ffad16cd3a954891e9b4e9fc3a04eeb7e6b0e47e2d9dcb39d1a60a0b49"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		require.Equal(t, "/v2/library/redis/manifests/7-alpine", r.URL.Path)
		assert.Contains(t, r.Header.Get("Accept"), "application/vnd.oci.image.index.v1+json")
		assert.Empty(t, r.Header.Get("Authorization"))

		w.Header().Set("Docker-Content-Digest", digest)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Options{Endpoint: srv.URL, Timeout: time.Second})

	got, err := c.ManifestDigest(context.Background(), "redis:7-alpine")
	require.NoError(t, err)
	assert.Equal(t, digest, got)
}

func TestManifestDigestWithTokenAuth(t *testing.T) {
	const digest = "sha256:a5e0d2a6e1b9e07f07ab4fdbd7e7d326a0fe5f4da2dbb6c62b1e9d5c1a23bb71"

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "registry.docker.io", r.URL.Query().Get("service"))
		assert.Equal(t, "repository:pihole/pihole:pull", r.URL.Query().Get("scope"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": "anon-token"})
	})
	mux.HandleFunc("/v2/pihole/pihole/manifests/latest", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer anon-token", r.Header.Get("Authorization"))
		w.Header().Set("Docker-Content-Digest", digest)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Options{
		Endpoint:     srv.URL,
		AuthEndpoint: srv.URL,
		Service:      "registry.docker.io",
		Timeout:      time.Second,
	})

	got, err := c.ManifestDigest(context.Background(), "pihole/pihole")
	require.NoError(t, err)
	assert.Equal(t, digest, got)
}

func TestManifestDigestErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "missing digest header",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(Options{Endpoint: srv.URL, Timeout: time.Second})

			_, err := c.ManifestDigest(context.Background(), "redis:7")
			assert.Error(t, err)
		})
	}
}

func TestTokenFailureSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Options{
		Endpoint:     srv.URL,
		AuthEndpoint: srv.URL,
		Service:      "registry.docker.io",
		Timeout:      time.Second,
	})

	_, err := c.ManifestDigest(context.Background(), "redis:7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token request")
}
