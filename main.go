package netplane

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"go.yaml.in/yaml/v3"

	"github.com/ember-os/netplane/config"
	"github.com/ember-os/netplane/e1000"
	"github.com/ember-os/netplane/iputil"
	"github.com/ember-os/netplane/mem"
	"github.com/ember-os/netplane/socket"
	"github.com/ember-os/netplane/util"
)

type m = map[string]any

// Main builds the whole data path over dev: buffer pool, ring driver, port
// table, and the interface wiring them together. The device is brought up
// here; nothing runs until Control.Start.
func Main(c *config.C, configTest bool, buildVersion string, logger *logrus.Logger, dev e1000.Device) (retcon *Control, reterr error) {
	ctx, cancel := context.WithCancel(context.Background())
	// Automatically cancel the context if Main returns an error, to signal all created goroutines to quit.
	defer func() {
		if reterr != nil {
			cancel()
		}
	}()

	l := logger
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp: true,
	}

	// Print the config if in test, the exit comes later
	if configTest {
		b, err := yaml.Marshal(c.Settings)
		if err != nil {
			return nil, err
		}

		// Print the final config
		l.Println(string(b))
	}

	err := configLogger(l, c)
	if err != nil {
		return nil, util.NewContextualError("Failed to configure the logger", nil, err)
	}

	c.RegisterReloadCallback(func(c *config.C) {
		err := configLogger(l, c)
		if err != nil {
			l.WithError(err).Error("Failed to configure the logger")
		}
	})

	mac, err := parseMAC(c.GetString("device.mac", "52:54:00:12:34:56"))
	if err != nil {
		return nil, util.NewContextualError("Failed to parse device.mac", nil, err)
	}

	ip, err := iputil.ParseIP4(c.GetString("device.ip", "10.0.2.15"))
	if err != nil {
		return nil, util.NewContextualError("Failed to parse device.ip", nil, err)
	}

	hostMAC, err := parseMAC(c.GetString("host.mac", "52:55:0a:00:02:02"))
	if err != nil {
		return nil, util.NewContextualError("Failed to parse host.mac", nil, err)
	}

	hostIP, err := iputil.ParseIP4(c.GetString("host.ip", "10.0.2.2"))
	if err != nil {
		return nil, util.NewContextualError("Failed to parse host.ip", nil, err)
	}

	pages := c.GetInt("mem.pages", 128)
	if pages < e1000.RxRingSize+e1000.TxRingSize {
		return nil, util.NewContextualError(
			"mem.pages is too small to populate the rings",
			m{"pages": pages, "min": e1000.RxRingSize + e1000.TxRingSize},
			nil,
		)
	}
	pool := mem.NewPool(l, pages)

	ports := socket.NewTable(l)
	driver := e1000.NewDriver(l, dev, pool, mac)

	ifce, err := NewInterface(l, &InterfaceConfig{
		Driver:  driver,
		Ports:   ports,
		Pool:    pool,
		MAC:     mac,
		IP:      ip,
		HostMAC: hostMAC,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize interface: %s", err)
	}

	l.WithField("mac", net.HardwareAddr(mac[:]).String()).WithField("ip", ip).
		WithField("peer", hostIP).Info("Interface created")

	statsStart, err := startStats(l, c, buildVersion, configTest)
	if err != nil {
		return nil, util.NewContextualError("Failed to start stats emitter", nil, err)
	}

	if configTest {
		return nil, nil
	}

	c.CatchHUP(ctx)

	return &Control{ifce, driver, l, cancel, statsStart}, nil
}

func parseMAC(s string) ([6]byte, error) {
	var out [6]byte
	hw, err := net.ParseMAC(s)
	if err != nil {
		return out, err
	}
	if len(hw) != 6 {
		return out, fmt.Errorf("not a 6 byte hardware address: %s", s)
	}
	copy(out[:], hw)
	return out, nil
}
