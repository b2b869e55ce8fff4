package transcend

import (
	"bytes"
	"math"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

const defaultMinChunk = 64 * 1024

// Scanner searches buffers for patterns on several goroutines. The zero value
// is ready to use.
type Scanner struct {
	// Workers is the maximum number of chunks searched at once. Zero means
	// GOMAXPROCS.
	Workers int

	// ChunkSize is the number of candidate offsets handed to a worker at a
	// time. Zero picks a size from the buffer length and Workers.
	ChunkSize int
}

// Scan returns the offset of the first match of p in buf using a Scanner with
// default settings.
func Scan(buf []byte, p Pattern) (int, bool) {
	var s Scanner
	return s.Scan(buf, p)
}

// Scan returns the lowest offset in buf where p matches. An empty pattern
// matches at 0.
//
// Chunks are searched concurrently but the result is always the lowest
// matching offset, the same one a front to back scan would find.
func (s *Scanner) Scan(buf []byte, p Pattern) (int, bool) {
	if p.Len() == 0 {
		return 0, true
	}

	candidates := len(buf) - p.Len() + 1
	if candidates <= 0 {
		return -1, false
	}

	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	chunk := s.ChunkSize
	if chunk <= 0 {
		chunk = max(candidates/(workers*4), defaultMinChunk)
	}

	if workers == 1 || chunk >= candidates {
		i := p.index(buf, 0, candidates)
		return i, i >= 0
	}

	var best atomic.Int64
	best.Store(math.MaxInt64)

	var g errgroup.Group
	g.SetLimit(workers)

	for start := 0; start < candidates; start += chunk {
		// Nothing past a known match can win.
		if int64(start) >= best.Load() {
			break
		}

		end := min(start+chunk, candidates)
		g.Go(func() error {
			if int64(start) >= best.Load() {
				return nil
			}
			if i := p.index(buf, start, end); i >= 0 {
				storeMin(&best, int64(i))
			}
			return nil
		})
	}
	g.Wait()

	if found := best.Load(); found != math.MaxInt64 {
		return int(found), true
	}
	return -1, false
}

// index returns the first offset in [start, end) where p matches buf, or -1.
// The caller guarantees end-1+p.Len() <= len(buf).
func (p Pattern) index(buf []byte, start, end int) int {
	k, b := p.anchor()
	if k < 0 {
		return start
	}

	n := p.Len()
	for i := start; i < end; {
		// Jump to the next place the first exact byte lines up.
		j := bytes.IndexByte(buf[i+k:end+k], b)
		if j < 0 {
			return -1
		}
		i += j

		if p.matchAt(buf[i : i+n]) {
			return i
		}
		i++
	}

	return -1
}

func storeMin(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n >= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}
