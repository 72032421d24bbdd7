package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ethproofs/ethproofs-prover/internal/blockcache"
	"github.com/ethproofs/ethproofs-prover/internal/ethproofs"
	"github.com/ethproofs/ethproofs-prover/internal/pipeline/prover"
)

type fakeCache struct {
	meta map[ethproofs.BlockID]blockcache.Meta
}

func (c fakeCache) Get(block ethproofs.BlockID) blockcache.Meta {
	if m, ok := c.meta[block]; ok {
		return m
	}
	return blockcache.Unknown()
}

type recordingServer struct {
	mu       sync.Mutex
	payloads []webhookPayload
}

func (s *recordingServer) handler(w http.ResponseWriter, r *http.Request) {
	var p webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.payloads = append(s.payloads, p)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *recordingServer) snapshot() []webhookPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]webhookPayload, len(s.payloads))
	copy(out, s.payloads)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.FailNow(t, "condition not met before deadline")
}

func TestSink_DeliversRenderedPayload(t *testing.T) {
	rec := &recordingServer{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	cache := blockcache.New()
	cache.Put(100, blockcache.Meta{GasUsed: 21000, TxCount: 5})

	sink := New(srv.URL, cache, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sink.Run(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	sink.InputGenerationFailed(100, "connection refused")

	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	payloads := rec.snapshot()
	assert.Equal(t, KindInputGenerationFailed, payloads[0].Kind)
	assert.Equal(t, "100", payloads[0].Fields["block"])
	assert.Equal(t, "connection refused", payloads[0].Fields["reason"])
	assert.Contains(t, payloads[0].Fields["block_metadata"], "gas_used=21000")
}

func TestSink_NoWebhookURL_NeverDials(t *testing.T) {
	sink := New("", fakeCache{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sink.Run(ctx)
	}()

	sink.ProofSubmitted(200)
	time.Sleep(50 * time.Millisecond)

	cancel()
	wg.Wait()
}

func TestSink_DeliveryFailureDoesNotBlockSubsequentEvents(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := New(srv.URL, fakeCache{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sink.Run(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	sink.ProofGenerationFailed(1, "boom")
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	})

	sink.ProofSubmitted(2)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	})
}

func TestSink_TopicBroadcasts_DeliverSummaryPayloads(t *testing.T) {
	rec := &recordingServer{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	sink := New(srv.URL, fakeCache{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sink.Run(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	sink.ProvedBlocksUpdated([]ethproofs.ProvedRecord{{Block: 1}, {Block: 2}})
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })

	sink.MissedBlocksUpdated([]ethproofs.MissedRecord{{Block: 3}})
	waitFor(t, func() bool { return len(rec.snapshot()) == 2 })

	sink.ProverStatusUpdated(prover.Status{State: prover.StateProving, Block: 42})
	waitFor(t, func() bool { return len(rec.snapshot()) == 3 })

	payloads := rec.snapshot()

	assert.Equal(t, KindProvedBlocksUpdated, payloads[0].Kind)
	assert.Equal(t, "2 records in window", payloads[0].Fields["summary"])
	assert.Equal(t, "proved blocks ledger updated", payloads[0].Headline)

	assert.Equal(t, KindMissedBlocksUpdated, payloads[1].Kind)
	assert.Equal(t, "1 records in window", payloads[1].Fields["summary"])
	assert.Equal(t, "missed blocks ledger updated", payloads[1].Headline)

	assert.Equal(t, KindProverStatus, payloads[2].Kind)
	assert.Equal(t, "proving block=42", payloads[2].Fields["summary"])
	assert.Equal(t, "prover status: proving block=42", payloads[2].Headline)
}
