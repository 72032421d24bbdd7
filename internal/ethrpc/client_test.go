package ethrpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHealth struct {
	successes []string
	failures  []string
}

func (f *fakeHealth) RecordSuccess(url string)         { f.successes = append(f.successes, url) }
func (f *fakeHealth) RecordFailure(url, reason string) { f.failures = append(f.failures, url) }

func TestNormalizeBlockParam(t *testing.T) {
	v, err := NormalizeBlockParam("latest")
	require.NoError(t, err)
	assert.Equal(t, "latest", v)

	v, err = NormalizeBlockParam(uint64(21500100))
	require.NoError(t, err)
	assert.Equal(t, "0x147acc4", v)

	v, err = NormalizeBlockParam("abc123")
	require.NoError(t, err)
	assert.Equal(t, "0xabc123", v)

	_, err = NormalizeBlockParam(3.14)
	assert.Error(t, err)
}

func TestClient_LatestBlockInfo_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"number":"0x14810c4","timestamp":"0x66aabbcc"}}`))
	}))
	defer srv.Close()

	health := &fakeHealth{}
	c := New(srv.URL, WithHealthSink(health))

	num, ts, err := c.LatestBlockInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(21500100), num)
	assert.Equal(t, int64(0x66aabbcc), ts)
	assert.Equal(t, []string{srv.URL}, health.successes)
}

func TestClient_JSONRPCError_StillMarksHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"block not found"}}`))
	}))
	defer srv.Close()

	health := &fakeHealth{}
	c := New(srv.URL, WithHealthSink(health))

	_, _, err := c.LatestBlockInfo(context.Background())
	require.Error(t, err)
	var jsonRPCErr *JSONRPCError
	require.ErrorAs(t, err, &jsonRPCErr)
	assert.Empty(t, health.failures)
	assert.Equal(t, []string{srv.URL}, health.successes)
}

func TestClient_TransportError_MarksUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	health := &fakeHealth{}
	c := New(srv.URL, WithHealthSink(health))

	_, _, err := c.LatestBlockInfo(context.Background())
	require.Error(t, err)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, []string{srv.URL}, health.failures)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	}))
	defer srv.Close()

	health := &fakeHealth{}
	c := New(srv.URL, WithHealthSink(health))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := c.BlockJSON(ctx, "latest")
	require.Error(t, err)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, []string{srv.URL}, health.failures)
}

func TestClient_ExecutionWitness_ReturnsRawResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"state":["0xdead"]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	raw, err := c.ExecutionWitness(context.Background(), uint64(100))
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":["0xdead"]}`, string(raw))
}
