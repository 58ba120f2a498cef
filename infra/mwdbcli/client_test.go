package mwdbcli

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigHashCanonical(t *testing.T) {
	a, err := ConfigHash(map[string]any{"url": "http://c2", "key": "rc4"})
	require.NoError(t, err)
	b, err := ConfigHash(map[string]any{"key": "rc4", "url": "http://c2"})
	require.NoError(t, err)
	require.Equal(t, a, b, "键序不影响指纹")
	require.Len(t, a, 64)

	c, err := ConfigHash(map[string]any{"key": "rc4", "url": "http://c3"})
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestClientUploadFile(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/file", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		raw, _ := base64.StdEncoding.DecodeString(gotBody["data"].(string))
		sum := sha256.Sum256(raw)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": hex.EncodeToString(sum[:])})
	}))
	defer srv.Close()

	cli := New(Options{URL: srv.URL, Token: "secret", QPS: 100}, srv.Client())
	id, err := cli.UploadFile(context.Background(), "payload.bin", []byte("hello"), "parent")
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("hello"))
	require.Equal(t, hex.EncodeToString(sum[:]), id)
	require.Equal(t, "Bearer secret", gotAuth)
	require.Equal(t, "payload.bin", gotBody["name"])
	require.Equal(t, "parent", gotBody["parent"])
}

func TestClientUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	cli := New(Options{URL: srv.URL, QPS: 100}, srv.Client())
	_, err := cli.UploadBlob(context.Background(), "n", "t", "c", "")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestClientAddTag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/object/abc123/tag", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "abc123"})
	}))
	defer srv.Close()

	cli := New(Options{URL: srv.URL, QPS: 100}, srv.Client())
	require.NoError(t, cli.AddTag(context.Background(), "abc123", "family:demofam"))
}
