package e1000

import "unsafe"

// Descriptor layouts are a hardware ABI: 16 bytes each, fields in legacy
// descriptor order, rings sized and aligned to the device's 128-byte
// descriptor-block granularity. They are fixed arrays, not growable queues;
// the slot count is part of the hardware contract.

const (
	TxRingSize = 16
	RxRingSize = 16

	// ringAlign is the DMA granularity the device demands of ring base and
	// total byte length.
	ringAlign = 128

	// RxBufferSize matches RCtlSize2048; the device never writes more than
	// this into one receive buffer.
	RxBufferSize = 2048
)

// TxDesc is a legacy transmit descriptor.
type TxDesc struct {
	Addr    uint64 // physical address of the frame buffer, 0 when unowned
	Length  uint16
	CSO     uint8
	Cmd     uint8
	Status  uint8
	CSS     uint8
	Special uint16
}

const (
	TxCmdEndOfPacket  = 1 << 0 // EOP
	TxCmdReportStatus = 1 << 3 // RS

	TxStatusDone = 1 << 0 // DD, set by hardware after transmission
)

// RxDesc is a legacy receive descriptor.
type RxDesc struct {
	Addr     uint64 // physical address of the receive buffer, never 0 in steady state
	Length   uint16 // filled by hardware
	Checksum uint16
	Status   uint8
	Errors   uint8
	Special  uint16
}

const (
	RxStatusDone        = 1 << 0 // DD, set by hardware on arrival
	RxStatusEndOfPacket = 1 << 1 // EOP
)

const (
	txDescSize = int(unsafe.Sizeof(TxDesc{}))
	rxDescSize = int(unsafe.Sizeof(RxDesc{}))
)
