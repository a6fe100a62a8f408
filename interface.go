package netplane

import (
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ember-os/netplane/e1000"
	"github.com/ember-os/netplane/iputil"
	"github.com/ember-os/netplane/mem"
	"github.com/ember-os/netplane/socket"
)

type InterfaceConfig struct {
	Driver *e1000.Driver
	Ports  *socket.Table
	Pool   *mem.Pool

	MAC     [6]byte
	IP      iputil.IP4
	HostMAC [6]byte
}

// Interface glues the three layers together: it is the frame handler the
// driver calls from interrupt context, the builder for outbound frames, and
// the front door for bind/send/recv.
type Interface struct {
	l      *logrus.Logger
	driver *e1000.Driver
	ports  *socket.Table
	pool   *mem.Pool

	mac     [6]byte
	ip      iputil.IP4
	hostMAC [6]byte

	// arpReplied latches after the first ARP frame. One fixed peer means
	// one reply is all that is ever needed.
	arpReplied atomic.Bool

	metrics *stackMetrics
}

func NewInterface(l *logrus.Logger, c *InterfaceConfig) (*Interface, error) {
	switch {
	case c.Driver == nil:
		return nil, errors.New("interface requires a driver")
	case c.Ports == nil:
		return nil, errors.New("interface requires a port table")
	case c.Pool == nil:
		return nil, errors.New("interface requires a buffer pool")
	}

	f := &Interface{
		l:       l,
		driver:  c.Driver,
		ports:   c.Ports,
		pool:    c.Pool,
		mac:     c.MAC,
		ip:      c.IP,
		hostMAC: c.HostMAC,
		metrics: newStackMetrics(),
	}

	c.Driver.SetFrameHandler(f.HandleFrame)
	return f, nil
}

// Bind prepares to receive UDP datagrams addressed to port.
func (f *Interface) Bind(port uint16) error {
	return f.ports.Bind(port)
}

// Unbind releases port; queued and future datagrams for it are dropped.
func (f *Interface) Unbind(port uint16) error {
	return f.ports.Unbind(port)
}

// Recv blocks until a datagram arrives for port and copies up to len(buf)
// bytes of payload into buf. It returns the copied length and the source
// address.
func (f *Interface) Recv(port uint16, buf []byte) (int, iputil.IP4, uint16, error) {
	return f.ports.Recv(port, buf)
}
