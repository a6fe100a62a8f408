package e1000

// Device is the narrow view of the NIC hardware the driver programs. The
// real system talks to a memory-mapped register block and the device DMAs
// descriptor and buffer memory directly; here both sides of that contract
// are made explicit so a device model can stand in for silicon.
type Device interface {
	ReadReg(r Reg) uint32
	WriteReg(r Reg, v uint32)

	// AttachRings hands the device direct access to descriptor memory. It
	// stands in for the DMA mapping the base/length register writes would
	// establish on hardware.
	AttachRings(tx []TxDesc, rx []RxDesc)

	// AttachDMA provides physical-address resolution for frame buffers.
	// resolve returns the backing memory for a buffer address, or nil if
	// the address maps to no live buffer.
	AttachDMA(resolve func(addr uint64) []byte)
}
