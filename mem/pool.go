// Package mem provides the fixed-size page allocator backing the NIC
// descriptor rings and the outbound frame path.
//
// A Buffer is a unique ownership handle. Whoever holds the handle owns the
// page; handing it to another component (the transmit ring, the protocol
// demultiplexer) transfers ownership and the previous holder must not touch
// it again. Every page is released exactly once via Buffer.Release.
package mem

import (
	"errors"
	"sync"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

// PageSize is the only allocation size the pool hands out. Frames, headers
// and payload always fit in one page; there is no fragmentation support
// anywhere above us.
const PageSize = 4096

// poolBase is where fake physical addresses start. Nonzero so that a zeroed
// descriptor never aliases a real page.
const poolBase = 0x80000000

var ErrExhausted = errors.New("page pool exhausted")

// Buffer is one page of DMA-able memory plus its stable physical address.
type Buffer struct {
	pool *Pool
	addr uint64
	Data []byte
}

// Addr returns the physical address the device uses to DMA into this page.
func (b *Buffer) Addr() uint64 {
	return b.addr
}

// Release returns the page to its pool. The handle must not be used after
// this call. Releasing a page twice is an ownership bug and panics.
func (b *Buffer) Release() {
	b.pool.put(b)
}

// Pool owns a fixed number of pages, allocated up front. It stands in for
// the kernel page allocator; the driver only ever asks for whole pages.
type Pool struct {
	l *logrus.Logger

	mu     sync.Mutex
	free   []*Buffer
	byAddr map[uint64]*Buffer
	inUse  int

	allocs   metrics.Counter
	releases metrics.Counter
	failed   metrics.Counter
}

// NewPool allocates every page up front; the pool never grows.
func NewPool(l *logrus.Logger, pages int) *Pool {
	p := &Pool{
		l:        l,
		free:     make([]*Buffer, 0, pages),
		byAddr:   make(map[uint64]*Buffer, pages),
		allocs:   metrics.GetOrRegisterCounter("mem.pages.alloc", nil),
		releases: metrics.GetOrRegisterCounter("mem.pages.release", nil),
		failed:   metrics.GetOrRegisterCounter("mem.pages.failed", nil),
	}

	for i := 0; i < pages; i++ {
		b := &Buffer{
			pool: p,
			addr: uint64(poolBase + i*PageSize),
			Data: make([]byte, PageSize),
		}
		p.free = append(p.free, b)
		p.byAddr[b.addr] = b
	}

	return p
}

// Get hands out a free page, transferring ownership to the caller.
func (p *Pool) Get() (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		p.failed.Inc(1)
		return nil, ErrExhausted
	}

	b := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.inUse++
	p.allocs.Inc(1)
	return b, nil
}

// Resolve maps a physical address back to page memory. This is the DMA view
// used by the device model; nil means the address belongs to no live page.
func (p *Pool) Resolve(addr uint64) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.byAddr[addr]
	if !ok {
		return nil
	}
	return b.Data
}

// InUse reports how many pages are currently owned by callers. Tests use it
// to prove the ownership discipline leaks nothing.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

func (p *Pool) put(b *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, f := range p.free {
		if f == b {
			p.l.WithField("addr", b.addr).Panic("page released twice")
		}
	}

	p.free = append(p.free, b)
	p.inUse--
	p.releases.Inc(1)
}
