package squashfs

import (
	"fmt"
	"io"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
)

// urlClient is tuned the way distr1-distri's internal/repo.Reader tunes its
// http.Client: a modest idle-connection pool, and transparent compression
// disabled so that range semantics and Content-Length stay exact.
var urlClient = &http.Client{Transport: &http.Transport{
	MaxIdleConnsPerHost: 10,
	DisableCompression:  true,
}}

// urlMapper implements Mapper  over an HTTP(S) source using byte-range
// requests, caching fetched ranges at mapper_block_size granularity via an
// LRU of raw blocks (separate from the ExtractManager's decoded-block
// cache, which sits above this one).
type urlMapper struct {
	url       string
	size      int64
	blockSize int64
	cache     *lru.Cache[int64, []byte]
}

func newURLMapper(url string, blockSize int) (Mapper, error) {
	if blockSize <= 0 {
		blockSize = defaultMapperBlockSize
	}

	req, err := http.NewRequest(http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := urlClient.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("squashfs: HEAD %s: unexpected status %s", url, resp.Status)
	}
	if resp.ContentLength < 0 {
		return nil, fmt.Errorf("squashfs: %s: server did not report Content-Length", url)
	}

	cache, err := lru.New[int64, []byte](128)
	if err != nil {
		return nil, wrapErr(KindAllocFailed, err)
	}
	return &urlMapper{url: url, size: resp.ContentLength, blockSize: int64(blockSize), cache: cache}, nil
}

func (m *urlMapper) Size() int64 { return m.size }

func (m *urlMapper) fetchBlock(block int64) ([]byte, error) {
	if data, ok := m.cache.Get(block); ok {
		return data, nil
	}

	start := block * m.blockSize
	end := start + m.blockSize - 1
	if end >= m.size {
		end = m.size - 1
	}

	req, err := http.NewRequest(http.MethodGet, m.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	resp, err := urlClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("squashfs: GET %s: unexpected status %s", m.url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	m.cache.Add(block, data)
	return data, nil
}

func (m *urlMapper) Map(offset, length int64) (*MapView, error) {
	if offset < 0 || length < 0 || offset+length > m.size {
		return nil, errOutOfBounds
	}

	out := make([]byte, 0, length)
	pos, remaining := offset, length
	for remaining > 0 {
		block := pos / m.blockSize
		data, err := m.fetchBlock(block)
		if err != nil {
			return nil, err
		}
		inBlockOff := pos - block*m.blockSize
		if inBlockOff >= int64(len(data)) {
			return nil, fmt.Errorf("squashfs: short read fetching %s at block %d", m.url, block)
		}
		take := int64(len(data)) - inBlockOff
		if take > remaining {
			take = remaining
		}
		out = append(out, data[inBlockOff:inBlockOff+take]...)
		pos += take
		remaining -= take
	}
	return &MapView{data: out}, nil
}

func (m *urlMapper) Close() error { return nil }
