package e1000

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/ember-os/netplane/mem"
)

// ErrNoTxDescriptors means the transmit ring is full: the descriptor at the
// tail has not been marked done by hardware yet. The caller keeps ownership
// of the buffer and must release it.
var ErrNoTxDescriptors = errors.New("no transmit descriptor available")

// FrameHandler consumes one received frame. Ownership of buf transfers to
// the handler, which must eventually release it.
type FrameHandler func(buf *mem.Buffer, length int)

// Driver drives the single NIC. Transmit and receive touch disjoint rings
// and registers, so each direction has its own lock; neither lock is ever
// held across a blocking call.
type Driver struct {
	l       *logrus.Logger
	dev     Device
	pool    *mem.Pool
	mac     [6]byte
	handler FrameHandler

	txMu   sync.Mutex
	txRing [TxRingSize]TxDesc
	txBufs [TxRingSize]*mem.Buffer

	rxMu   sync.Mutex
	rxRing [RxRingSize]RxDesc
	rxBufs [RxRingSize]*mem.Buffer

	txPackets  metrics.Counter
	txRingFull metrics.Counter
	rxPackets  metrics.Counter
}

func NewDriver(l *logrus.Logger, dev Device, pool *mem.Pool, mac [6]byte) *Driver {
	return &Driver{
		l:          l,
		dev:        dev,
		pool:       pool,
		mac:        mac,
		txPackets:  metrics.GetOrRegisterCounter("nic.tx.packets", nil),
		txRingFull: metrics.GetOrRegisterCounter("nic.tx.ring_full", nil),
		rxPackets:  metrics.GetOrRegisterCounter("nic.rx.packets", nil),
	}
}

// SetFrameHandler wires the receive path. Must be called before the first
// interrupt can fire.
func (d *Driver) SetFrameHandler(h FrameHandler) {
	d.handler = h
}

// Init resets and programs the device. This loosely follows the transmit
// and receive initialization sequences in chapter 14 of the 8254x software
// developer's manual. Failure here is fatal to the network stack: there is
// no degraded mode without a fully-buffered receive ring.
func (d *Driver) Init() error {
	if TxRingSize*txDescSize%ringAlign != 0 {
		return fmt.Errorf("tx ring size %d does not meet the %d-byte alignment contract", TxRingSize*txDescSize, ringAlign)
	}
	if RxRingSize*rxDescSize%ringAlign != 0 {
		return fmt.Errorf("rx ring size %d does not meet the %d-byte alignment contract", RxRingSize*rxDescSize, ringAlign)
	}

	// Reset the device, masking interrupts on both sides of the reset.
	d.dev.WriteReg(RegIMS, 0)
	d.dev.WriteReg(RegCtl, d.dev.ReadReg(RegCtl)|CtlReset)
	d.dev.WriteReg(RegIMS, 0)

	d.dev.AttachRings(d.txRing[:], d.rxRing[:])
	d.dev.AttachDMA(d.pool.Resolve)

	// Transmit init: every slot starts done and unowned, so the first
	// TxRingSize transmits find free descriptors.
	for i := range d.txRing {
		d.txRing[i] = TxDesc{Status: TxStatusDone}
	}
	d.dev.WriteReg(RegTDBAL, 0)
	d.dev.WriteReg(RegTDLen, uint32(TxRingSize*txDescSize))
	d.dev.WriteReg(RegTDH, 0)
	d.dev.WriteReg(RegTDT, 0)

	// Receive init: one live buffer per slot, tail at N-1 so hardware is
	// offered every buffer.
	for i := range d.rxRing {
		buf, err := d.pool.Get()
		if err != nil {
			return fmt.Errorf("allocating receive buffer %d: %w", i, err)
		}
		d.rxBufs[i] = buf
		d.rxRing[i] = RxDesc{Addr: buf.Addr()}
	}
	d.dev.WriteReg(RegRDBAL, 0)
	d.dev.WriteReg(RegRDLen, uint32(RxRingSize*rxDescSize))
	d.dev.WriteReg(RegRDH, 0)
	d.dev.WriteReg(RegRDT, RxRingSize-1)

	// Filter on our MAC, zero the multicast table.
	d.dev.WriteReg(RegRA, uint32(d.mac[0])|uint32(d.mac[1])<<8|uint32(d.mac[2])<<16|uint32(d.mac[3])<<24)
	d.dev.WriteReg(RegRA+1, uint32(d.mac[4])|uint32(d.mac[5])<<8|RAValid)
	for i := Reg(0); i < MTAWords; i++ {
		d.dev.WriteReg(RegMTA+i, 0)
	}

	d.dev.WriteReg(RegTCtl, TCtlEnable|TCtlPadShort|TCtlCollThreshold<<TCtlCTShift|TCtlCollDistance<<TCtlCOLDShift)
	d.dev.WriteReg(RegTIPG, 10|8<<10|6<<20)

	d.dev.WriteReg(RegRCtl, RCtlEnable|RCtlBroadcast|RCtlSize2048|RCtlStripCRC)

	// Interrupt on every received packet, no delay timers, and only for
	// receive descriptor write-back.
	d.dev.WriteReg(RegRDTR, 0)
	d.dev.WriteReg(RegRADV, 0)
	d.dev.WriteReg(RegIMS, IntrRxDescWriteBack)

	d.l.WithField("mac", fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		d.mac[0], d.mac[1], d.mac[2], d.mac[3], d.mac[4], d.mac[5])).
		Info("NIC initialized")
	return nil
}

// Transmit posts one frame to the transmit ring. On success ownership of
// buf transfers to the ring; it is released lazily when a later call finds
// the descriptor done. On ErrNoTxDescriptors the caller keeps ownership.
// Never blocks: ring-full is reported, not waited out.
func (d *Driver) Transmit(buf *mem.Buffer, length int) error {
	d.txMu.Lock()
	defer d.txMu.Unlock()

	tail := d.dev.ReadReg(RegTDT) % TxRingSize
	desc := &d.txRing[tail]

	if desc.Status&TxStatusDone == 0 {
		d.txRingFull.Inc(1)
		return ErrNoTxDescriptors
	}

	// Lazy reclamation of the buffer a previous transmit parked here.
	if prev := d.txBufs[tail]; prev != nil {
		prev.Release()
		d.txBufs[tail] = nil
	}

	desc.Addr = buf.Addr()
	desc.Length = uint16(length)
	desc.Cmd = TxCmdEndOfPacket | TxCmdReportStatus
	desc.Status = 0
	d.txBufs[tail] = buf

	d.dev.WriteReg(RegTDT, (tail+1)%TxRingSize)
	d.txPackets.Inc(1)
	return nil
}

// Interrupt is the device's interrupt entry point. It acknowledges all
// pending causes (the device raises nothing further until ICR is written)
// and drains the receive ring to completion. Not reentrant; the single
// interrupt line runs this to completion before the next delivery.
func (d *Driver) Interrupt() {
	d.dev.WriteReg(RegICR, 0xffffffff)
	d.drainReceive()
}

func (d *Driver) drainReceive() {
	d.rxMu.Lock()
	defer d.rxMu.Unlock()

	tail := d.dev.ReadReg(RegRDT) % RxRingSize
	i := (tail + 1) % RxRingSize

	drained := 0
	for {
		desc := &d.rxRing[i]
		if desc.Status&RxStatusDone == 0 {
			break
		}

		drained++
		if drained > RxRingSize {
			// Hardware can never be a full ring ahead of software.
			d.l.WithField("slot", i).Panic("receive ring wrapped past software")
		}

		buf := d.rxBufs[i]
		length := int(desc.Length)

		// Refill before handing the frame up; the ring must never hold a
		// null buffer while offered to hardware.
		newBuf, err := d.pool.Get()
		if err != nil {
			d.l.WithError(err).Panic("cannot refill receive ring")
		}
		d.rxBufs[i] = newBuf
		desc.Addr = newBuf.Addr()
		desc.Length = 0
		desc.Status = 0
		d.dev.WriteReg(RegRDT, i)

		d.rxPackets.Inc(1)
		// Ownership of buf passes to the handler.
		d.handler(buf, length)

		i = (i + 1) % RxRingSize
	}
}
