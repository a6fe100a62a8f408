package e1000

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrFrameTooLarge = errors.New("frame exceeds receive buffer size")
	ErrRxRingFull    = errors.New("device has no free receive descriptor")
)

// SimNIC is a software model of the device side of the ring contract, used
// by tests and the demo daemon in place of silicon. It consumes transmit
// descriptors when the tail register moves, DMA-writes injected frames into
// receive descriptors and raises the receive interrupt.
//
// The model never calls back into the driver while holding its own lock, so
// driver lock ordering is the same as with a real interrupt line.
type SimNIC struct {
	l *logrus.Logger

	mu      sync.Mutex
	regs    [8192]uint32
	tx      []TxDesc
	rx      []RxDesc
	resolve func(addr uint64) []byte
	stallTx bool
	intr    func()

	// Out carries every frame the device put on the wire.
	Out chan []byte
}

func NewSimNIC(l *logrus.Logger) *SimNIC {
	return &SimNIC{
		l:   l,
		Out: make(chan []byte, 64),
	}
}

// SetInterruptFunc wires the interrupt line. The handler is invoked
// synchronously, after the device state is consistent and unlocked.
func (n *SimNIC) SetInterruptFunc(f func()) {
	n.intr = f
}

func (n *SimNIC) ReadReg(r Reg) uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.regs[r]
}

func (n *SimNIC) WriteReg(r Reg, v uint32) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch r {
	case RegCtl:
		if v&CtlReset != 0 {
			// Reset clears the register file; the reset bit self-clears.
			n.regs = [8192]uint32{}
			return
		}
		n.regs[r] = v
	case RegICR:
		// Write-1-to-clear.
		n.regs[r] &^= v
	case RegTDT:
		n.regs[r] = v
		if !n.stallTx {
			n.processTx()
		}
	default:
		n.regs[r] = v
	}
}

func (n *SimNIC) AttachRings(tx []TxDesc, rx []RxDesc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tx = tx
	n.rx = rx
}

func (n *SimNIC) AttachDMA(resolve func(addr uint64) []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolve = resolve
}

// StallTx stops the device from consuming transmit descriptors, so tests
// can fill the ring. Unstalling drains whatever is pending.
func (n *SimNIC) StallTx(stall bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stallTx = stall
	if !stall {
		n.processTx()
	}
}

// InjectFrame delivers one frame from the wire into the receive ring and
// raises the receive interrupt, the way the device would after a DMA
// write-back.
func (n *SimNIC) InjectFrame(frame []byte) error {
	n.mu.Lock()

	if len(frame) > RxBufferSize {
		n.mu.Unlock()
		return ErrFrameTooLarge
	}

	head := n.regs[RegRDH]
	if head == n.regs[RegRDT] {
		// Software has not returned any descriptor past the head.
		n.mu.Unlock()
		return ErrRxRingFull
	}

	desc := &n.rx[head]
	if desc.Status&RxStatusDone != 0 {
		n.mu.Unlock()
		return ErrRxRingFull
	}

	page := n.resolve(desc.Addr)
	if page == nil {
		n.mu.Unlock()
		n.l.WithField("addr", desc.Addr).Panic("receive descriptor points at no live buffer")
	}

	copy(page, frame)
	desc.Length = uint16(len(frame))
	desc.Status = RxStatusDone | RxStatusEndOfPacket
	n.regs[RegRDH] = (head + 1) % uint32(len(n.rx))

	raise := n.regs[RegIMS]&IntrRxDescWriteBack != 0 && n.intr != nil
	n.regs[RegICR] |= IntrRxDescWriteBack

	// Drop the lock before pulling the interrupt line; the handler will
	// come back for the register file.
	n.mu.Unlock()

	if raise {
		n.intr()
	}
	return nil
}

// Get pulls one transmitted frame off the wire, optionally blocking.
func (n *SimNIC) Get(block bool) []byte {
	if block {
		return <-n.Out
	}

	select {
	case f := <-n.Out:
		return f
	default:
		return nil
	}
}

// processTx consumes descriptors from head to tail. Callers hold n.mu.
func (n *SimNIC) processTx() {
	if n.tx == nil {
		return
	}

	for n.regs[RegTDH] != n.regs[RegTDT] {
		head := n.regs[RegTDH]
		desc := &n.tx[head]

		if desc.Addr != 0 && desc.Length > 0 {
			page := n.resolve(desc.Addr)
			if page == nil {
				n.l.WithField("addr", desc.Addr).Panic("transmit descriptor points at no live buffer")
			}
			frame := make([]byte, desc.Length)
			copy(frame, page[:desc.Length])

			select {
			case n.Out <- frame:
			default:
				n.l.Warn("device model wire buffer full, dropping transmitted frame")
			}
		}

		if desc.Cmd&TxCmdReportStatus != 0 {
			desc.Status |= TxStatusDone
		}
		n.regs[RegTDH] = (head + 1) % uint32(len(n.tx))
	}
}
