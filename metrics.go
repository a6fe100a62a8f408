package netplane

import "github.com/rcrowley/go-metrics"

// stackMetrics counts what the demultiplexer did with inbound frames and
// what the stack put on the wire. Drops are per cause so congestion and
// noise are distinguishable from the stats sink.
type stackMetrics struct {
	rxARP       metrics.Counter
	rxIPv4      metrics.Counter
	rxUDP       metrics.Counter
	rxNonUDP    metrics.Counter
	rxMalformed metrics.Counter
	rxNoise     metrics.Counter

	arpReplies metrics.Counter
	arpIgnored metrics.Counter

	txUDP metrics.Counter
}

func newStackMetrics() *stackMetrics {
	return &stackMetrics{
		rxARP:       metrics.GetOrRegisterCounter("netstack.rx.arp", nil),
		rxIPv4:      metrics.GetOrRegisterCounter("netstack.rx.ipv4", nil),
		rxUDP:       metrics.GetOrRegisterCounter("netstack.rx.udp", nil),
		rxNonUDP:    metrics.GetOrRegisterCounter("netstack.rx.drop.non_udp", nil),
		rxMalformed: metrics.GetOrRegisterCounter("netstack.rx.drop.malformed", nil),
		rxNoise:     metrics.GetOrRegisterCounter("netstack.rx.drop.noise", nil),
		arpReplies:  metrics.GetOrRegisterCounter("netstack.arp.replies", nil),
		arpIgnored:  metrics.GetOrRegisterCounter("netstack.arp.ignored", nil),
		txUDP:       metrics.GetOrRegisterCounter("netstack.tx.udp", nil),
	}
}
