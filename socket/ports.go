// Package socket is the datagram socket layer: a fixed table of bound UDP
// ports, each with a bounded FIFO of received datagrams. The receive path
// (interrupt context) enqueues and never blocks; Recv is the only blocking
// operation in the stack.
package socket

import (
	"errors"
	"sync"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/ember-os/netplane/iputil"
)

const (
	// NPorts is how many ports can be bound at once.
	NPorts = 32
	// QueueSize bounds each port's datagram FIFO.
	QueueSize = 16
	// MaxDatagram is the largest payload a queue slot holds; it matches the
	// receive buffer size of the NIC, so nothing larger can arrive anyway.
	MaxDatagram = 2048
)

var (
	ErrTableFull = errors.New("no free port table entry")
	ErrNotBound  = errors.New("port is not bound")
)

// Datagram is one received UDP payload with its source address, in host
// order. It owns its bytes: the frame it was copied from is long gone by
// the time a receiver sees it.
type Datagram struct {
	Data    [MaxDatagram]byte
	Len     int
	SrcIP   iputil.IP4
	SrcPort uint16
}

type portEntry struct {
	bound bool
	port  uint16

	queue [QueueSize]Datagram
	head  int
	tail  int
	count int

	// ready is scoped to this entry so a wake never disturbs receivers
	// blocked on other ports. It shares the table lock: Wait releases the
	// lock across the sleep and reacquires it before returning.
	ready *sync.Cond
}

// Table is the port table. One lock covers the table and every queue;
// NPorts is small enough that finer locking buys nothing.
type Table struct {
	l *logrus.Logger

	mu    sync.Mutex
	ports [NPorts]portEntry

	enqueued      metrics.Counter
	dropUnbound   metrics.Counter
	dropQueueFull metrics.Counter
}

func NewTable(l *logrus.Logger) *Table {
	t := &Table{
		l:             l,
		enqueued:      metrics.GetOrRegisterCounter("ports.enqueued", nil),
		dropUnbound:   metrics.GetOrRegisterCounter("ports.drop.unbound", nil),
		dropQueueFull: metrics.GetOrRegisterCounter("ports.drop.queue_full", nil),
	}
	for i := range t.ports {
		t.ports[i].ready = sync.NewCond(&t.mu)
	}
	return t
}

// lookup finds the bound entry for port. Callers hold t.mu.
func (t *Table) lookup(port uint16) *portEntry {
	for i := range t.ports {
		if t.ports[i].bound && t.ports[i].port == port {
			return &t.ports[i]
		}
	}
	return nil
}

// Bind claims a table entry for port. Binding an already-bound port
// succeeds without creating a duplicate; the only failure is a full table.
func (t *Table) Bind(port uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lookup(port) != nil {
		return nil
	}

	for i := range t.ports {
		pe := &t.ports[i]
		if !pe.bound {
			pe.bound = true
			pe.port = port
			pe.head = 0
			pe.tail = 0
			pe.count = 0
			return nil
		}
	}

	return ErrTableFull
}

// Unbind releases the entry for port. Receivers blocked on it are woken and
// observe ErrNotBound; datagrams arriving afterwards are dropped.
func (t *Table) Unbind(port uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pe := t.lookup(port)
	if pe == nil {
		return ErrNotBound
	}

	pe.bound = false
	pe.count = 0
	pe.head = 0
	pe.tail = 0
	pe.ready.Broadcast()
	return nil
}

// Enqueue copies payload into the queue for port and wakes one receiver.
// Drops are silent by design: an unbound port is noise, and a full queue
// means a slow consumer loses packets rather than stalling the receive
// path. Enqueue never blocks; it runs in interrupt context.
func (t *Table) Enqueue(port uint16, srcIP iputil.IP4, srcPort uint16, payload []byte) {
	if len(payload) > MaxDatagram {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	pe := t.lookup(port)
	if pe == nil {
		t.dropUnbound.Inc(1)
		return
	}

	if pe.count >= QueueSize {
		t.dropQueueFull.Inc(1)
		return
	}

	dg := &pe.queue[pe.tail]
	copy(dg.Data[:], payload)
	dg.Len = len(payload)
	dg.SrcIP = srcIP
	dg.SrcPort = srcPort

	pe.tail = (pe.tail + 1) % QueueSize
	pe.count++
	t.enqueued.Inc(1)

	pe.ready.Signal()
}

// Recv blocks until a datagram is queued for port, then copies up to
// len(buf) bytes of payload into buf. Returns the bytes copied and the
// source address. Fails immediately when port is not bound, and fails after
// waking if the port was unbound while waiting.
func (t *Table) Recv(port uint16, buf []byte) (int, iputil.IP4, uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pe := t.lookup(port)
	if pe == nil {
		return 0, 0, 0, ErrNotBound
	}

	for pe.count == 0 {
		pe.ready.Wait()
		// Re-check everything on wake: the entry may have been unbound, or
		// even rebound to a different port, while we slept.
		if !pe.bound || pe.port != port {
			return 0, 0, 0, ErrNotBound
		}
	}

	dg := &pe.queue[pe.head]
	pe.head = (pe.head + 1) % QueueSize
	pe.count--

	n := dg.Len
	if n > len(buf) {
		n = len(buf)
	}
	copy(buf, dg.Data[:n])

	return n, dg.SrcIP, dg.SrcPort, nil
}
