package ssa

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ledgerwatch/log/v3"
	"github.com/stretchr/testify/require"

	"github.com/parexlabs/parex/common"
	"github.com/parexlabs/parex/crypto"
)

func testLogger() log.Logger {
	logger := log.New()
	logger.SetHandler(log.DiscardHandler())
	return logger
}

// testLog builds a small consistent trace: two pushes feeding a binary
// operation whose result is consumed.
func testLog(branches ...byte) *Log {
	return &Log{
		Ops: []OpRecord{
			{Op: 0x60, Arg: common.HexToHash("0x02"), Pops: 0, Pushes: 1},
			{Op: 0x60, Arg: common.HexToHash("0x03"), Pops: 0, Pushes: 1},
			{Op: 0x01, Pops: 2, Pushes: 1},
			{Op: 0xf3, Pops: 1, Pushes: 0},
		},
		Branches: branches,
	}
}

func testKey(seed string) PathKey {
	return NewPathKey(crypto.Keccak256Hash([]byte(seed)), []byte{1, 0, 1})
}

func TestCacheLookupOrBuild(t *testing.T) {
	c := NewCache(testLogger())
	key := testKey("code")

	_, ok := c.Lookup(key)
	require.False(t, ok)

	built := 0
	entry, err := c.LookupOrBuild(key, func() (*Log, error) {
		built++
		return testLog(1, 0, 1), nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, built)
	require.Equal(t, key, entry.Key())
	require.False(t, entry.Promoted())

	// Second call hits, the builder stays cold.
	again, err := c.LookupOrBuild(key, func() (*Log, error) {
		built++
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, built)
	require.Same(t, entry, again)
	require.Equal(t, 1, c.Len())
}

func TestCacheInsertedPayloadEquivalence(t *testing.T) {
	c := NewCache(testLogger())
	key := testKey("code")
	src := testLog(1, 0, 1)

	_, err := c.LookupOrBuild(key, func() (*Log, error) { return src, nil })
	require.NoError(t, err)

	entry, ok := c.Lookup(key)
	require.True(t, ok)

	var replayed []byte
	require.NoError(t, entry.Replay(func(rec OpRecord) error {
		replayed = append(replayed, rec.Op)
		return nil
	}))
	require.Equal(t, []byte{0x60, 0x60, 0x01, 0xf3}, replayed)
}

func TestCacheAccessCountMonotone(t *testing.T) {
	c := NewCache(testLogger())
	key := testKey("code")

	_, err := c.LookupOrBuild(key, func() (*Log, error) { return testLog(), nil })
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, ok := c.Lookup(key)
		require.True(t, ok)
	}
	entry, _ := c.Lookup(key)
	require.GreaterOrEqual(t, entry.AccessCount(), uint64(6))
}

func TestGraphReplayMatchesLog(t *testing.T) {
	src := testLog(1, 1, 0)
	g, err := BuildGraph(src)
	require.NoError(t, err)

	collect := func(replay func(func(rec OpRecord) error) error) []OpRecord {
		var recs []OpRecord
		require.NoError(t, replay(func(rec OpRecord) error {
			recs = append(recs, rec)
			return nil
		}))
		return recs
	}
	require.Equal(t, collect(src.Replay), collect(g.Replay))
	require.Equal(t, src.Ops, g.Log().Ops)
	require.Equal(t, src.Branches, g.Log().Branches)
}

func TestGraphStructure(t *testing.T) {
	g, err := BuildGraph(testLog())
	require.NoError(t, err)
	require.Equal(t, 4, g.NodeCount())
	// ADD consumes both pushes, RETURN consumes ADD's result.
	require.Equal(t, 3, g.EdgeCount())
}

func TestCachePromote(t *testing.T) {
	c := NewCache(testLogger())
	key := testKey("code")
	src := testLog(0, 1)

	_, err := c.LookupOrBuild(key, func() (*Log, error) { return src, nil })
	require.NoError(t, err)
	require.NoError(t, c.Promote(key))

	entry, ok := c.Lookup(key)
	require.True(t, ok)
	require.True(t, entry.Promoted())
	require.NotNil(t, entry.Graph())

	// The promoted graph replays to the same outcome as its source log.
	var ops []byte
	require.NoError(t, entry.Replay(func(rec OpRecord) error {
		ops = append(ops, rec.Op)
		return nil
	}))
	require.Equal(t, []byte{0x60, 0x60, 0x01, 0xf3}, ops)

	// Promoting again is a no-op.
	require.NoError(t, c.Promote(key))

	// Promoting an unknown key is an error.
	require.Error(t, c.Promote(testKey("unknown")))
}

func TestCachePromoteRacing(t *testing.T) {
	c := NewCache(testLogger())
	key := testKey("code")
	_, err := c.LookupOrBuild(key, func() (*Log, error) { return testLog(1), nil })
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Promote(key)
		}()
	}
	wg.Wait()

	entry, ok := c.Lookup(key)
	require.True(t, ok)
	require.True(t, entry.Promoted())
	require.Equal(t, 4, entry.Graph().NodeCount())
}

func TestCacheConcurrentLookupInsert(t *testing.T) {
	c := NewCache(testLogger())

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := testKey(fmt.Sprintf("code%d", i%10))
				_, err := c.LookupOrBuild(key, func() (*Log, error) {
					return testLog(byte(i % 2)), nil
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	require.Equal(t, 10, c.Len())
}

func TestCacheEvict(t *testing.T) {
	c := NewCache(testLogger())
	k1, k2 := testKey("one"), testKey("two")
	for _, k := range []PathKey{k1, k2} {
		_, err := c.LookupOrBuild(k, func() (*Log, error) { return testLog(), nil })
		require.NoError(t, err)
	}

	c.Evict([]PathKey{k1})
	_, ok := c.Lookup(k1)
	require.False(t, ok)
	_, ok = c.Lookup(k2)
	require.True(t, ok)
	require.Equal(t, 1, c.Len())
}

func TestCachePeekDoesNotCount(t *testing.T) {
	c := NewCache(testLogger())
	key := testKey("code")
	_, err := c.LookupOrBuild(key, func() (*Log, error) { return testLog(1), nil })
	require.NoError(t, err)

	entry, ok := c.Peek(key)
	require.True(t, ok)
	before := entry.AccessCount()
	for i := 0; i < 5; i++ {
		_, ok := c.Peek(key)
		require.True(t, ok)
	}
	require.Equal(t, before, entry.AccessCount())

	_, ok = c.Peek(testKey("absent"))
	require.False(t, ok)
}

func TestPathKeyDerivation(t *testing.T) {
	code := crypto.Keccak256Hash([]byte("code"))
	a := NewPathKey(code, []byte{1, 0})
	b := NewPathKey(code, []byte{1, 0})
	d := NewPathKey(code, []byte{0, 1})

	require.Equal(t, a, b)
	require.NotEqual(t, a, d)
	require.Equal(t, code, a.CodeDigest())
	require.Equal(t, a.PathDigest(), crypto.Keccak256Hash([]byte{1, 0}))
}
