package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/faqgate/internal/retry"
	"github.com/dshills/faqgate/pkg/types"
)

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// newEmbeddingServer answers with a vector of [len(text), 1, 0, ...] per
// input, returned in reverse index order.
func newEmbeddingServer(t *testing.T, dim int, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dim)
			vec[0] = float32(len(req.Input[i]))
			vec[1] = 1
			data = append(data, map[string]interface{}{"index": i, "embedding": vec})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"model": req.Model, "data": data})
	}))
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestRemoteProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("batch is normalized and ordered by index", func(t *testing.T) {
		var calls int32
		server := newEmbeddingServer(t, 4, &calls)
		defer server.Close()

		p, err := NewRemoteProvider(RemoteConfig{
			Name: "test", Endpoint: server.URL, APIKey: "test-key", Model: "m", Dimension: 4, Retry: fastRetry(),
		}, NewCache(10))
		require.NoError(t, err)

		resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "bbb"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 2)

		// "a" -> [1,1,0,0] normalized, "bbb" -> [3,1,0,0] normalized
		assert.InDelta(t, 0.7071, resp.Embeddings[0].Vector[0], 1e-3)
		assert.InDelta(t, 0.9487, resp.Embeddings[1].Vector[0], 1e-3)
		assert.InDelta(t, 1.0, norm(resp.Embeddings[1].Vector), 1e-5)
	})

	t.Run("cache hits skip the network", func(t *testing.T) {
		var calls int32
		server := newEmbeddingServer(t, 4, &calls)
		defer server.Close()

		p, err := NewRemoteProvider(RemoteConfig{
			Endpoint: server.URL, APIKey: "test-key", Model: "m", Dimension: 4, Retry: fastRetry(),
		}, NewCache(10))
		require.NoError(t, err)

		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
		require.NoError(t, err)
		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

		resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"hello", "world"}})
		require.NoError(t, err)
		assert.Len(t, resp.Embeddings, 2)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{{"index": 0, "embedding": []float32{0, 2}}},
			})
		}))
		defer server.Close()

		p, err := NewRemoteProvider(RemoteConfig{Endpoint: server.URL, Dimension: 2, Retry: fastRetry()}, nil)
		require.NoError(t, err)

		v, err := Embed(ctx, p, "x")
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 1}, v)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("client errors fail fast as provider failures", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		p, err := NewRemoteProvider(RemoteConfig{Endpoint: server.URL, Dimension: 2, Retry: fastRetry()}, nil)
		require.NoError(t, err)

		_, err = Embed(ctx, p, "x")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.ErrorIs(t, err, types.ErrProviderFailure)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("zero vector is a provider failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{{"index": 0, "embedding": []float32{0, 0}}},
			})
		}))
		defer server.Close()

		p, err := NewRemoteProvider(RemoteConfig{Endpoint: server.URL, Dimension: 2, Retry: fastRetry()}, nil)
		require.NoError(t, err)

		_, err = Embed(ctx, p, "x")
		assert.ErrorIs(t, err, types.ErrProviderFailure)
	})

	t.Run("dimension mismatch is a provider failure", func(t *testing.T) {
		var calls int32
		server := newEmbeddingServer(t, 3, &calls)
		defer server.Close()

		p, err := NewRemoteProvider(RemoteConfig{Endpoint: server.URL, APIKey: "test-key", Dimension: 4, Retry: fastRetry()}, nil)
		require.NoError(t, err)

		_, err = Embed(ctx, p, "x")
		assert.ErrorIs(t, err, types.ErrProviderFailure)
	})

	t.Run("context cancellation stops retries", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		p, err := NewRemoteProvider(RemoteConfig{
			Endpoint: server.URL, Dimension: 2,
			Retry: retry.Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second, Multiplier: 1},
		}, nil)
		require.NoError(t, err)

		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = Embed(cctx, p, "x")
		assert.Error(t, err)
	})
}

func TestNewRemoteProviderValidation(t *testing.T) {
	_, err := NewRemoteProvider(RemoteConfig{Dimension: 2}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewRemoteProvider(RemoteConfig{Endpoint: "http://x"}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNew(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		e, err := New(Config{Provider: "local"})
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, e.Provider())
		assert.Equal(t, LocalDimension, e.Dimension())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(Config{Provider: "bogus"})
		assert.ErrorIs(t, err, ErrUnsupportedModel)
	})

	t.Run("remote without key", func(t *testing.T) {
		t.Setenv(EnvJinaAPIKey, "")
		_, err := New(Config{Provider: "jina"})
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("remote with explicit endpoint", func(t *testing.T) {
		e, err := New(Config{Provider: "openai", APIKey: "k", Endpoint: "http://localhost:1"})
		require.NoError(t, err)
		assert.Equal(t, OpenAIDimension, e.Dimension())
		assert.Equal(t, DefaultOpenAIModel, e.Model())
		assert.NoError(t, e.Close())
	})
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "explicit", env: map[string]string{EnvProvider: "OpenAI"}, want: ProviderOpenAI},
		{name: "jina key", env: map[string]string{EnvJinaAPIKey: "k"}, want: ProviderJina},
		{name: "openai key", env: map[string]string{EnvOpenAIAPIKey: "k"}, want: ProviderOpenAI},
		{name: "fallback", env: map[string]string{}, want: ProviderLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvProvider, "")
			t.Setenv(EnvJinaAPIKey, "")
			t.Setenv(EnvOpenAIAPIKey, "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.want, DetectProvider())
		})
	}
}
