package generator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ethproofs/ethproofs-prover/internal/blockcache"
	"github.com/ethproofs/ethproofs-prover/internal/ethproofs"
)

type fakeRPC struct {
	mu         sync.Mutex
	blockJSON  map[uint64][]byte
	witness    map[uint64][]byte
	blockErr   map[uint64]error
	witnessErr map[uint64]error
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		blockJSON:  make(map[uint64][]byte),
		witness:    make(map[uint64][]byte),
		blockErr:   make(map[uint64]error),
		witnessErr: make(map[uint64]error),
	}
}

func (f *fakeRPC) LatestBlockInfo(ctx context.Context) (uint64, int64, error) {
	return 0, 0, errors.New("not used in these tests")
}

func (f *fakeRPC) BlockJSON(ctx context.Context, block any) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := block.(uint64)
	if err, ok := f.blockErr[n]; ok {
		return nil, err
	}
	return f.blockJSON[n], nil
}

func (f *fakeRPC) ExecutionWitness(ctx context.Context, block any) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := block.(uint64)
	if err, ok := f.witnessErr[n]; ok {
		return nil, err
	}
	return f.witness[n], nil
}

type fakeCache struct {
	mu   sync.Mutex
	puts map[ethproofs.BlockID]blockcache.Meta
}

func (c *fakeCache) Put(block ethproofs.BlockID, meta blockcache.Meta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.puts == nil {
		c.puts = make(map[ethproofs.BlockID]blockcache.Meta)
	}
	c.puts[block] = meta
}

type fakeBuilder struct {
	err error
}

func (b *fakeBuilder) Build(blockJSON, witnessJSON []byte) (ethproofs.InputArtifact, error) {
	if b.err != nil {
		return "", b.err
	}
	return ethproofs.InputArtifact("input.bin"), nil
}

type proveCall struct {
	block   ethproofs.BlockID
	input   ethproofs.InputArtifact
	seconds *uint32
}

type fakeProver struct {
	mu    sync.Mutex
	calls []proveCall
}

func (p *fakeProver) Prove(block ethproofs.BlockID, input ethproofs.InputArtifact, inputGenSeconds *uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, proveCall{block: block, input: input, seconds: inputGenSeconds})
}

func (p *fakeProver) snapshot() []proveCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]proveCall, len(p.calls))
	copy(out, p.calls)
	return out
}

type fakeMissedLedger struct {
	mu      sync.Mutex
	records []ethproofs.MissedRecord
}

func (l *fakeMissedLedger) Add(ctx context.Context, record ethproofs.MissedRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, record)
	return nil
}

func (l *fakeMissedLedger) snapshot() []ethproofs.MissedRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ethproofs.MissedRecord, len(l.records))
	copy(out, l.records)
	return out
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *fakeNotifier) InputGenerationFailed(block ethproofs.BlockID, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, reason)
}

type fakeMarker struct {
	present map[ethproofs.BlockID]bool
}

func (m *fakeMarker) Exists(block ethproofs.BlockID) bool {
	return m.present[block]
}

func validBlockJSON() []byte {
	return []byte(`{"gasUsed":"0x5208","transactions":[]}`)
}

func newTestGenerator(rpc *fakeRPC, cache *fakeCache, builder *fakeBuilder, prover *fakeProver, missed *fakeMissedLedger, notifier *fakeNotifier, marker *fakeMarker) *Generator {
	return New(rpc, cache, builder, prover, missed, notifier, marker, zap.NewNop())
}

func runGenerator(t *testing.T, g *Generator) (context.CancelFunc, *sync.WaitGroup) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return cancel, &wg
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

func TestGenerator_SuccessfulGenerationHandsOffToProver(t *testing.T) {
	rpc := newFakeRPC()
	rpc.blockJSON[100] = validBlockJSON()
	rpc.witness[100] = []byte(`{}`)

	cache := &fakeCache{}
	builder := &fakeBuilder{}
	prover := &fakeProver{}
	missed := &fakeMissedLedger{}
	notifier := &fakeNotifier{}
	marker := &fakeMarker{present: map[ethproofs.BlockID]bool{}}

	g := newTestGenerator(rpc, cache, builder, prover, missed, notifier, marker)
	runGenerator(t, g)

	g.Generate(100)

	waitFor(t, func() bool { return len(prover.snapshot()) == 1 })
	calls := prover.snapshot()
	assert.Equal(t, ethproofs.BlockID(100), calls[0].block)
	assert.Equal(t, ethproofs.InputArtifact("input.bin"), calls[0].input)
	require.NotNil(t, calls[0].seconds)

	assert.Empty(t, missed.snapshot())
	assert.Empty(t, notifier.calls)
}

func TestGenerator_InputGenerationFailure_MarksProcessedNoRetry(t *testing.T) {
	rpc := newFakeRPC()
	rpc.blockErr[200] = errors.New("connection refused")

	cache := &fakeCache{}
	builder := &fakeBuilder{}
	prover := &fakeProver{}
	missed := &fakeMissedLedger{}
	notifier := &fakeNotifier{}
	marker := &fakeMarker{present: map[ethproofs.BlockID]bool{}}

	g := newTestGenerator(rpc, cache, builder, prover, missed, notifier, marker)
	runGenerator(t, g)

	g.Generate(200)

	waitFor(t, func() bool { return len(missed.snapshot()) == 1 })
	records := missed.snapshot()
	assert.Equal(t, ethproofs.BlockID(200), records[0].Block)
	assert.Equal(t, ethproofs.StageInputGen, records[0].Stage)
	assert.Contains(t, records[0].Reason, "rpc_get_block_by_number")

	waitFor(t, func() bool { return len(notifier.calls) == 1 })

	// re-requesting the same block should now be a no-op: already processed.
	g.Generate(200)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, missed.snapshot(), 1)
	assert.Empty(t, prover.snapshot())
}

func TestGenerator_CrashDoesNotMarkProcessed(t *testing.T) {
	rpc := newFakeRPC()
	rpc.blockJSON[300] = validBlockJSON()
	rpc.witness[300] = []byte(`{}`)

	cache := &fakeCache{}
	// the builder itself is well-behaved; the crash comes from the cache
	// wrapper installed below.
	builder := &fakeBuilder{}
	prover := &fakeProver{}
	missed := &fakeMissedLedger{}
	notifier := &fakeNotifier{}
	marker := &fakeMarker{present: map[ethproofs.BlockID]bool{}}

	g := newTestGenerator(rpc, cache, builder, prover, missed, notifier, marker)
	// force a panic by making the cache.Put call panic on the first invocation only.
	g.cache = panickingCacheOnce{inner: cache}
	runGenerator(t, g)

	g.Generate(300)

	// give the crashed worker time to report in; there should be no missed
	// record and no prove call, since a crash must not mark the block
	// processed (no terminal outcome was reached).
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, missed.snapshot())
	assert.Empty(t, prover.snapshot())

	// a second request for the same block must NOT be skipped as
	// already-processed; it should be accepted and, since the cache no
	// longer panics, complete successfully this time.
	g.Generate(300)
	waitFor(t, func() bool { return len(prover.snapshot()) == 1 })
}

type panickingCacheOnce struct {
	inner *fakeCache
}

var panicked bool

func (p panickingCacheOnce) Put(block ethproofs.BlockID, meta blockcache.Meta) {
	if !panicked {
		panicked = true
		panic("simulated cache corruption")
	}
	p.inner.Put(block, meta)
}

func TestGenerator_PollSkipsNonTargetBlocks(t *testing.T) {
	rpc := newFakeRPC()
	cache := &fakeCache{}
	builder := &fakeBuilder{}
	prover := &fakeProver{}
	missed := &fakeMissedLedger{}
	notifier := &fakeNotifier{}
	marker := &fakeMarker{present: map[ethproofs.BlockID]bool{}}

	g := newTestGenerator(rpc, cache, builder, prover, missed, notifier, marker)

	g.handlePoll(context.Background(), ethproofs.BlockID(21500101), time.Now().Unix())

	assert.Empty(t, prover.snapshot())
	assert.Empty(t, missed.snapshot())
}

func TestGenerator_MarkerFileSkipsBlock(t *testing.T) {
	rpc := newFakeRPC()
	rpc.blockJSON[400] = validBlockJSON()
	rpc.witness[400] = []byte(`{}`)

	cache := &fakeCache{}
	builder := &fakeBuilder{}
	prover := &fakeProver{}
	missed := &fakeMissedLedger{}
	notifier := &fakeNotifier{}
	marker := &fakeMarker{present: map[ethproofs.BlockID]bool{400: true}}

	g := newTestGenerator(rpc, cache, builder, prover, missed, notifier, marker)
	runGenerator(t, g)

	g.Generate(400)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, prover.snapshot())
	assert.Empty(t, missed.snapshot())
}
