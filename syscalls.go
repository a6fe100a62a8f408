package netplane

import (
	"encoding/binary"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/ember-os/netplane/iputil"
	"github.com/ember-os/netplane/vmem"
)

var ErrBadArgument = errors.New("bad syscall argument")

// Syscalls is the system-call boundary over the interface: it validates the
// raw arguments a task handed the kernel and moves payload bytes across the
// address-space line. Nothing below this layer touches user memory.
type Syscalls struct {
	l *logrus.Logger
	f *Interface
}

func NewSyscalls(l *logrus.Logger, f *Interface) *Syscalls {
	return &Syscalls{l: l, f: f}
}

func (s *Syscalls) Bind(port int) error {
	if port < 0 || port > 65535 {
		return ErrBadArgument
	}
	return s.f.Bind(uint16(port))
}

func (s *Syscalls) Unbind(port int) error {
	if port < 0 || port > 65535 {
		return ErrBadArgument
	}
	return s.f.Unbind(uint16(port))
}

// Send copies length payload bytes in from bufAddr and transmits them as
// one datagram.
func (s *Syscalls) Send(space vmem.Space, srcPort int, dstIP iputil.IP4, dstPort int, bufAddr uint64, length int) error {
	if srcPort < 0 || srcPort > 65535 || dstPort < 0 || dstPort > 65535 || length < 0 {
		return ErrBadArgument
	}

	payload := make([]byte, length)
	if err := space.CopyIn(payload, bufAddr); err != nil {
		return err
	}

	return s.f.Send(uint16(srcPort), dstIP, uint16(dstPort), payload)
}

// Recv blocks until a datagram arrives for port, then copies up to maxlen
// payload bytes out to bufAddr and the source IP and port out to srcAddr
// and srcPortAddr. Returns the payload length copied. The source address
// words are written in native byte order, the way a copyout of kernel
// memory would leave them.
func (s *Syscalls) Recv(space vmem.Space, port int, srcAddr, srcPortAddr, bufAddr uint64, maxlen int) (int, error) {
	if port < 0 || port > 65535 || maxlen < 0 {
		return 0, ErrBadArgument
	}

	buf := make([]byte, maxlen)
	n, srcIP, srcPort, err := s.f.Recv(uint16(port), buf)
	if err != nil {
		return 0, err
	}

	if err := space.CopyOut(bufAddr, buf[:n]); err != nil {
		return 0, err
	}

	var ipw [4]byte
	binary.NativeEndian.PutUint32(ipw[:], uint32(srcIP))
	if err := space.CopyOut(srcAddr, ipw[:]); err != nil {
		return 0, err
	}

	var pw [2]byte
	binary.NativeEndian.PutUint16(pw[:], srcPort)
	if err := space.CopyOut(srcPortAddr, pw[:]); err != nil {
		return 0, err
	}

	return n, nil
}
