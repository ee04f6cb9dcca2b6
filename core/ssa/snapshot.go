package ssa

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ugorji/go/codec"

	"github.com/parexlabs/parex/common"
)

// snapshotVersion guards the on-disk layout. A version mismatch is treated
// the same as corruption: the cache starts empty and rebuilds organically.
const snapshotVersion = 1

type snapshotEntry struct {
	Code     [common.HashLength]byte
	Path     [common.HashLength]byte
	Count    uint64
	LastSeen int64
	Promoted bool
	Ops      []OpRecord
	Branches []byte
}

type snapshot struct {
	Version uint32
	Entries []snapshotEntry
}

// Save serializes every entry to w. Payloads are stored in Log form with the
// promotion flag; a promoted entry's graph is rebuilt on load.
func (c *Cache) Save(w io.Writer) error {
	snap := snapshot{Version: snapshotVersion}
	c.walk(func(key PathKey, e *CacheEntry) bool {
		l := e.sourceLog()
		snap.Entries = append(snap.Entries, snapshotEntry{
			Code:     key.code,
			Path:     key.path,
			Count:    e.AccessCount(),
			LastSeen: e.LastSeen(),
			Promoted: e.Promoted(),
			Ops:      l.Ops,
			Branches: l.Branches,
		})
		return true
	})

	var handle codec.CborHandle
	if err := codec.NewEncoder(w, &handle).Encode(&snap); err != nil {
		return fmt.Errorf("encode ssa snapshot: %w", err)
	}
	return nil
}

// Load replaces the cache contents with the snapshot read from r. The error
// return reports corruption to the caller; LoadFile is the recovering
// wrapper the engine uses.
func (c *Cache) Load(r io.Reader) error {
	var snap snapshot
	var handle codec.CborHandle
	if err := codec.NewDecoder(r, &handle).Decode(&snap); err != nil {
		return fmt.Errorf("decode ssa snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("ssa snapshot version %d, want %d", snap.Version, snapshotVersion)
	}

	c.reset()
	for _, se := range snap.Entries {
		key := pathKeyFromDigests(common.Hash(se.Code), common.Hash(se.Path))
		e := &CacheEntry{key: key}
		e.accessCount.Store(se.Count)
		e.lastSeen.Store(se.LastSeen)
		l := &Log{Ops: se.Ops, Branches: se.Branches}
		e.payload.Store(&payload{log: l})
		if se.Promoted {
			g, err := BuildGraph(l)
			if err != nil {
				return fmt.Errorf("rebuild graph %s: %w", key, err)
			}
			e.payload.Store(&payload{graph: g})
		}
		s := c.shard(key)
		s.lock.Lock()
		s.entries[key] = e
		s.lock.Unlock()
	}
	return nil
}

func (c *Cache) reset() {
	for i := range c.shards {
		s := &c.shards[i]
		s.lock.Lock()
		s.entries = map[PathKey]*CacheEntry{}
		s.lock.Unlock()
	}
}

// SaveFile writes the snapshot atomically: a temporary file in the target
// directory, fsynced, then renamed over the destination, so a crash can never
// leave a partial snapshot behind.
func (c *Cache) SaveFile(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := c.Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// LoadFile loads a snapshot from disk. A missing or corrupt file is not an
// error: the cache comes up empty and counts rebuild from zero.
func (c *Cache) LoadFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("ssa snapshot unreadable, starting empty", "path", path, "err", err)
		}
		return
	}
	defer f.Close()

	if err := c.Load(f); err != nil {
		c.logger.Warn("ssa snapshot corrupt, starting empty", "path", path, "err", err)
		c.reset()
		return
	}
	c.logger.Info("ssa snapshot loaded", "path", path, "entries", c.Len())
}
