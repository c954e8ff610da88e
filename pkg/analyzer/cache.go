package analyzer

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/menta2k/vision-correct/pkg/types"
)

// fifoCache is a bounded result cache evicting in insertion order.
// Reads do not refresh an entry's position.
type fifoCache struct {
	mu      sync.Mutex
	maxSize int
	order   []string
	entries map[string]types.AnalysisResult
	hits    uint64
	misses  uint64
}

func newFIFOCache(maxSize int) *fifoCache {
	return &fifoCache{
		maxSize: maxSize,
		entries: make(map[string]types.AnalysisResult, maxSize),
	}
}

func (c *fifoCache) get(key string) (types.AnalysisResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return res, ok
}

// put stores res unless the key is already cached. The first result for a
// key wins so repeated lookups keep returning the same timestamp.
func (c *fifoCache) put(key string, res types.AnalysisResult) {
	if c.maxSize <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		return
	}
	for len(c.order) >= c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.order = append(c.order, key)
	c.entries[key] = res
}

func (c *fifoCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order = nil
	c.entries = make(map[string]types.AnalysisResult, c.maxSize)
	c.hits = 0
	c.misses = 0
}

// CacheStats describes the analyzer cache for debugging and tests
type CacheStats struct {
	Size    int      `json:"size"`
	MaxSize int      `json:"maxSize"`
	Hits    uint64   `json:"hits"`
	Misses  uint64   `json:"misses"`
	Keys    []string `json:"keys"`
}

func (c *fifoCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, len(c.order))
	copy(keys, c.order)
	return CacheStats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		Keys:    keys,
	}
}

// Signature builds the cache key for a buffer: its dimensions plus an xxhash
// over at most samples pixels taken at a fixed stride.
func Signature(buf types.PixelBuffer, samples int) string {
	pixels := len(buf.Pix) / 4
	if samples <= 0 || pixels == 0 {
		return fmt.Sprintf("%dx%d:0", buf.Width, buf.Height)
	}

	stride := max(1, pixels/samples)
	h := xxhash.New()
	var word [4]byte
	for i, n := 0, 0; i < pixels && n < samples; i, n = i+stride, n+1 {
		copy(word[:], buf.Pix[i*4:i*4+4])
		h.Write(word[:])
	}
	var dims [8]byte
	binary.LittleEndian.PutUint32(dims[:4], uint32(buf.Width))
	binary.LittleEndian.PutUint32(dims[4:], uint32(buf.Height))
	h.Write(dims[:])

	return fmt.Sprintf("%dx%d:%016x", buf.Width, buf.Height, h.Sum64())
}
