// Package vmem abstracts moving bytes between a task's address space and
// kernel memory. Only the syscall boundary uses it; the driver and the
// protocol stack never touch user memory.
package vmem

import "errors"

var ErrBadAddress = errors.New("address range outside task address space")

// Space is one task's view of memory.
type Space interface {
	// CopyIn fills dst from the task address src.
	CopyIn(dst []byte, src uint64) error
	// CopyOut writes src to the task address dst.
	CopyOut(dst uint64, src []byte) error
}

// Direct is a Space backed by a flat byte region, addressed from zero. It
// serves in-kernel callers and tests; a real port would wrap page-table
// walks instead.
type Direct struct {
	Mem []byte
}

func NewDirect(size int) *Direct {
	return &Direct{Mem: make([]byte, size)}
}

func (d *Direct) CopyIn(dst []byte, src uint64) error {
	end := src + uint64(len(dst))
	if end < src || end > uint64(len(d.Mem)) {
		return ErrBadAddress
	}
	copy(dst, d.Mem[src:end])
	return nil
}

func (d *Direct) CopyOut(dst uint64, src []byte) error {
	end := dst + uint64(len(src))
	if end < dst || end > uint64(len(d.Mem)) {
		return ErrBadAddress
	}
	copy(d.Mem[dst:end], src)
	return nil
}
