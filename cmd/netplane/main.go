package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ember-os/netplane"
	"github.com/ember-os/netplane/config"
	"github.com/ember-os/netplane/e1000"
	"github.com/ember-os/netplane/socket"
	"github.com/ember-os/netplane/util"
)

// A version string that can be set with
//
//	-ldflags "-X main.Build=SOMEVERSION"
//
// at compile-time.
var Build string

func init() {
	if Build == "" {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}

		Build = strings.TrimPrefix(info.Main.Version, "v")
	}
}

func main() {
	configPath := flag.String("config", "", "Path to either a file or directory to load configuration from")
	configTest := flag.Bool("test", false, "Test the config and print the end result. Non zero exit indicates a faulty config")
	printVersion := flag.Bool("version", false, "Print version")
	printUsage := flag.Bool("help", false, "Print command line usage")

	flag.Parse()

	if *printVersion {
		fmt.Printf("Version: %s\n", Build)
		os.Exit(0)
	}

	if *printUsage {
		flag.Usage()
		os.Exit(0)
	}

	if *configPath == "" {
		fmt.Println("-config flag must be set")
		flag.Usage()
		os.Exit(1)
	}

	l := logrus.New()
	l.Out = os.Stdout

	c := config.NewC(l)
	err := c.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %s", err)
		os.Exit(1)
	}

	// There is no real hardware to drive from userspace; run the data path
	// against the simulated device so the whole stack can be exercised.
	dev := e1000.NewSimNIC(l)

	ctrl, err := netplane.Main(c, *configTest, Build, l, dev)
	if err != nil {
		util.LogWithContextIfNeeded("Failed to start", err, l)
		os.Exit(1)
	}

	if !*configTest {
		if err := ctrl.Start(); err != nil {
			util.LogWithContextIfNeeded("Failed to bring the device up", err, l)
			os.Exit(1)
		}
		dev.SetInterruptFunc(ctrl.Interrupt)

		if port := c.GetInt("echo.port", 0); port > 0 {
			go echo(l, ctrl, uint16(port))
		}

		ctrl.ShutdownBlock()
	}

	os.Exit(0)
}

// echo binds port and sends every datagram straight back where it came from.
func echo(l *logrus.Logger, ctrl *netplane.Control, port uint16) {
	if err := ctrl.Bind(port); err != nil {
		l.WithError(err).WithField("port", port).Error("Failed to bind echo port")
		return
	}
	l.WithField("port", port).Info("Echo service listening")

	buf := make([]byte, socket.MaxDatagram)
	for {
		n, srcIP, srcPort, err := ctrl.Recv(port, buf)
		if err != nil {
			l.WithError(err).Error("Echo receive failed")
			return
		}

		if err := ctrl.Send(port, srcIP, srcPort, buf[:n]); err != nil {
			l.WithError(err).Error("Echo send failed")
		}
	}
}
