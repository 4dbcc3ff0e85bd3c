package snd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"
	"golang.org/x/sync/singleflight"
)

// defaultCacheBudget bounds decoded PCM held in memory. The casino working
// set is small, so this effectively never evicts in practice.
const defaultCacheBudget = 64 << 20

type cacheEntry struct {
	buf      *DecodedBuffer
	lastUsed time.Time
}

// bufferCache fetches, decodes and retains PCM keyed by resolved location.
// Concurrent loads of one location share a single fetch+decode, and every
// waiter receives the same buffer. Least-recently-used entries are evicted
// once the byte budget is exceeded.
type bufferCache struct {
	sampleRate int
	budget     int
	timeout    time.Duration
	client     *http.Client

	mu      sync.Mutex
	entries map[string]*cacheEntry
	bytes   int

	flight singleflight.Group
}

func newBufferCache(sampleRate, budget int, timeout time.Duration, client *http.Client) *bufferCache {
	if budget <= 0 {
		budget = defaultCacheBudget
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &bufferCache{
		sampleRate: sampleRate,
		budget:     budget,
		timeout:    timeout,
		client:     client,
		entries:    make(map[string]*cacheEntry),
	}
}

// get returns the cached buffer without any I/O, or nil.
func (c *bufferCache) get(location string) *DecodedBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[location]; ok {
		e.lastUsed = time.Now()
		return e.buf
	}
	return nil
}

// load returns the decoded buffer for a location, fetching and decoding it
// at most once no matter how many callers arrive concurrently. A failed
// load leaves no in-flight task behind, so later calls re-attempt.
func (c *bufferCache) load(ctx context.Context, location string) (*DecodedBuffer, error) {
	if buf := c.get(location); buf != nil {
		return buf, nil
	}
	v, err, _ := c.flight.Do(location, func() (interface{}, error) {
		if buf := c.get(location); buf != nil {
			return buf, nil
		}
		buf, err := c.fetchAndDecode(ctx, location)
		if err != nil {
			return nil, err
		}
		c.store(location, buf)
		return buf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*DecodedBuffer), nil
}

func (c *bufferCache) fetchAndDecode(ctx context.Context, location string) (*DecodedBuffer, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		logError("GET %v: %v", location, err)
		return nil, fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logError("GET %v: %v", location, resp.Status)
		return nil, fmt.Errorf("%w: GET %v: %v", ErrAssetUnavailable, location, resp.Status)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		logError("read %v: %v", location, err)
		return nil, fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
	}

	pcm, err := decodePCM(raw, c.sampleRate)
	if err != nil {
		logError("decode %v: %v", location, err)
		return nil, fmt.Errorf("%w: decode %v: %v", ErrAssetUnavailable, location, err)
	}
	logDebug("loaded %v (%s decoded)", location, humanize.Bytes(uint64(len(pcm))))
	return &DecodedBuffer{PCM: pcm, Duration: bufferDuration(len(pcm), c.sampleRate)}, nil
}

func (c *bufferCache) store(location string, buf *DecodedBuffer) {
	c.mu.Lock()
	if _, ok := c.entries[location]; !ok {
		c.entries[location] = &cacheEntry{buf: buf, lastUsed: time.Now()}
		c.bytes += len(buf.PCM)
		c.evictLocked()
	}
	c.mu.Unlock()
}

// evictLocked drops least-recently-used entries until the budget holds.
// The entry count is small, so a linear scan per eviction is fine.
func (c *bufferCache) evictLocked() {
	for c.bytes > c.budget && len(c.entries) > 1 {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.lastUsed.Before(oldest) {
				oldestKey = k
				oldest = e.lastUsed
			}
		}
		e := c.entries[oldestKey]
		c.bytes -= len(e.buf.PCM)
		delete(c.entries, oldestKey)
		logDebug("evicted %v (%s)", oldestKey, humanize.Bytes(uint64(len(e.buf.PCM))))
	}
}

// stats returns the number of cached buffers and their total decoded bytes.
func (c *bufferCache) stats() (count, bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), c.bytes
}

// decodePCM decodes WAV or MP3 bytes into interleaved 16-bit little-endian
// stereo PCM at the given sample rate. The container is sniffed from the
// header rather than trusted from the location's extension.
func decodePCM(raw []byte, sampleRate int) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	var stream io.Reader
	if len(raw) >= 4 && bytes.Equal(raw[:4], []byte("RIFF")) {
		s, err := wav.DecodeWithSampleRate(sampleRate, bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		stream = s
	} else {
		s, err := mp3.DecodeWithSampleRate(sampleRate, bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		stream = s
	}
	pcm, err := io.ReadAll(stream)
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("no audio data")
	}
	return pcm, nil
}
