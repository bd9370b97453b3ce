package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "p2p",
		Name:      "messages_received_total",
		Help:      "Count of inbound messages by kind and outcome.",
	}, []string{"kind", "status"})

	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "p2p",
		Name:      "messages_sent_total",
		Help:      "Count of outbound messages by kind and outcome.",
	}, []string{"kind", "status"})

	peersKnown = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "p2p",
		Name:      "peers",
		Help:      "Number of known peers.",
	})
)

type Network struct{}

func NewNetwork() *Network {
	return &Network{}
}

func (Network) ObserveReceived(kind string, err error) {
	if kind == "" {
		kind = "unknown"
	}
	messagesReceived.WithLabelValues(kind, statusOf(err)).Inc()
}

func (Network) ObserveSent(kind string, err error) {
	messagesSent.WithLabelValues(kind, statusOf(err)).Inc()
}

func (Network) ObservePeers(count int) {
	peersKnown.Set(float64(count))
}
