// Package e1000 is the descriptor-ring driver for the emulated Intel
// 82540EM NIC. It owns the transmit and receive rings, the register block
// and the buffer-ownership handoff between hardware and the protocol stack.
package e1000

// Reg indexes the memory-mapped 32-bit register file. Offsets follow the
// 8254x software developer's manual, divided by four because the register
// block is viewed as an array of 32-bit words.
type Reg uint32

const (
	RegCtl   Reg = 0x00000 / 4 // device control
	RegICR   Reg = 0x000C0 / 4 // interrupt cause read
	RegIMS   Reg = 0x000D0 / 4 // interrupt mask set/read
	RegRCtl  Reg = 0x00100 / 4 // rx control
	RegTCtl  Reg = 0x00400 / 4 // tx control
	RegTIPG  Reg = 0x00410 / 4 // tx inter-packet gap
	RegRDBAL Reg = 0x02800 / 4 // rx descriptor base address low
	RegRDLen Reg = 0x02808 / 4 // rx descriptor ring length
	RegRDH   Reg = 0x02810 / 4 // rx descriptor head
	RegRDT   Reg = 0x02818 / 4 // rx descriptor tail
	RegRDTR  Reg = 0x02820 / 4 // rx delay timer
	RegRADV  Reg = 0x0282C / 4 // rx absolute interrupt delay
	RegTDBAL Reg = 0x03800 / 4 // tx descriptor base address low
	RegTDLen Reg = 0x03808 / 4 // tx descriptor ring length
	RegTDH   Reg = 0x03810 / 4 // tx descriptor head
	RegTDT   Reg = 0x03818 / 4 // tx descriptor tail
	RegMTA   Reg = 0x05200 / 4 // multicast table array, 128 words
	RegRA    Reg = 0x05400 / 4 // receive address (filter), pairs of words
)

const (
	CtlReset = 1 << 26 // device reset

	// interrupt causes
	IntrRxDescWriteBack = 1 << 7 // RXDW, the only cause we unmask

	// tx control
	TCtlEnable        = 1 << 1
	TCtlPadShort      = 1 << 3
	TCtlCTShift       = 4  // collision threshold
	TCtlCOLDShift     = 12 // collision distance
	TCtlCollThreshold = 0x10
	TCtlCollDistance  = 0x40

	// rx control
	RCtlEnable    = 1 << 1
	RCtlBroadcast = 1 << 15 // accept broadcast
	RCtlSize2048  = 0 << 16 // fixed 2048-byte rx buffers
	RCtlStripCRC  = 1 << 26

	// receive address high word: address valid
	RAValid = 1 << 31
)

// MTAWords is the size of the multicast table array in 32-bit words.
const MTAWords = 4096 / 32
