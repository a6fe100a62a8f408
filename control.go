package netplane

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ember-os/netplane/e1000"
	"github.com/ember-os/netplane/iputil"
)

// Every interaction here needs to take extra care to copy memory and not return or use arguments "as is" when touching
// core. This means copying slices, de-referencing pointers and taking the actual value, etc

type Control struct {
	f          *Interface
	driver     *e1000.Driver
	l          *logrus.Logger
	cancel     context.CancelFunc
	statsStart func()
}

// Start brings the device up, this is a nonblocking call. To block use Control.ShutdownBlock()
func (c *Control) Start() error {
	if err := c.driver.Init(); err != nil {
		return err
	}

	// Call the delayed funcs that waited patiently for the device to come up.
	if c.statsStart != nil {
		go c.statsStart()
	}

	c.l.Info("Device up")
	return nil
}

// Stop signals shutdown, returns after the shutdown is complete
func (c *Control) Stop() {
	c.cancel()
	c.l.Info("Goodbye")
}

// ShutdownBlock will listen for and block on term and interrupt signals, calling Control.Stop() once signalled
func (c *Control) ShutdownBlock() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	signal.Notify(sigChan, syscall.SIGINT)

	rawSig := <-sigChan
	sig := rawSig.String()
	c.l.WithField("signal", sig).Info("Caught signal, shutting down")
	c.Stop()
}

// Interrupt services the device. This is the entry point a trap handler
// calls when the interrupt line is raised.
func (c *Control) Interrupt() {
	c.driver.Interrupt()
}

// Bind claims port for receiving.
func (c *Control) Bind(port uint16) error {
	return c.f.Bind(port)
}

// Unbind releases port.
func (c *Control) Unbind(port uint16) error {
	return c.f.Unbind(port)
}

// Send transmits one datagram to the fixed peer.
func (c *Control) Send(srcPort uint16, dstIP iputil.IP4, dstPort uint16, payload []byte) error {
	return c.f.Send(srcPort, dstIP, dstPort, payload)
}

// Recv blocks for the next datagram on port, copying the payload into buf.
func (c *Control) Recv(port uint16, buf []byte) (int, iputil.IP4, uint16, error) {
	return c.f.Recv(port, buf)
}
