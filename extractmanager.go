package squashfs

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// decodedBuffer is a single decompressed block, keyed by the absolute
// offset of its compressed form in the source. refs counts live callers
// that have not yet released it; it is advisory bookkeeping rather than a
// memory-lifetime gate, since the backing slice is reclaimed by the
// garbage collector once nothing references it, matching MapView's model.
type decodedBuffer struct {
	data []byte
	refs int
}

// extractManager is the ExtractManager : a single compressor paired
// with a bounded, thread-safe cache of its decoded blocks, keyed by source
// offset. It serializes decode-and-insert behind one mutex, matching
// original_source/lib/extract/extract_manager.c's
// sqsh__extract_manager_uncompress, which holds its lock across the entire
// decompress-then-cache sequence rather than decompressing outside the
// lock behind a separate single-flight primitive; both are
// conformant, and the corpus carries no singleflight dependency to justify
// the more elaborate approach.
type extractManager struct {
	comp Compression

	mu    sync.Mutex
	cache *lru.Cache[int64, *decodedBuffer]
}

func newExtractManager(comp Compression, size int) (*extractManager, error) {
	// The reference implementation sizes its hash table to the next
	// probable prime above 2*size to reduce collisions in its own
	// open-addressed rc_hash_map; golang-lru's Cache is array-and-map
	// backed with plain eviction by count, so that sizing step has
	// nothing to apply to here and is intentionally not ported.
	cache, err := lru.New[int64, *decodedBuffer](size)
	if err != nil {
		return nil, wrapErr(KindAllocFailed, err)
	}
	return &extractManager{comp: comp, cache: cache}, nil
}

// uncompress returns the decoded block whose compressed form starts at the
// reader's current address and spans reader.Data(), decoding and caching it
// on first request, or returning the resident copy on a cache hit. outMax
// bounds the decoded size, per the metablock or data-block size limits.
func (m *extractManager) uncompress(reader *MapReader, outMax int) (*decodedBuffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	address := reader.Address()
	if buf, ok := m.cache.Get(address); ok {
		buf.refs++
		return buf, nil
	}

	data, err := extract(m.comp, reader.Data(), outMax)
	if err != nil {
		return nil, err
	}
	buf := &decodedBuffer{data: data, refs: 1}
	m.cache.Add(address, buf)
	return buf, nil
}

// release drops one reference to buf, per spec as the counterpart to
// uncompress: every caller that takes a decodedBuffer releases it once it
// has finished copying out of buf.data. It never evicts early: the LRU's
// own capacity policy governs how long a decoded block stays cached after
// its last release, matching the reference manager's
// touch-on-release-free behavior of leaving eviction entirely to the LRU.
func (m *extractManager) release(buf *decodedBuffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if buf.refs > 0 {
		buf.refs--
	}
}
