// Package metrics exposes Prometheus counters/gauges for pure
// observation of the protocol core. Nothing here gates a protocol
// decision or affects any correctness invariant.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EnvelopesAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "olaf_envelopes_accepted_total",
		Help: "Signed envelopes accepted by the server state machine.",
	})

	EnvelopesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "olaf_envelopes_dropped_total",
		Help: "Signed envelopes dropped by the server state machine, by reason.",
	}, []string{"reason"})

	ConnectedLocalClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "olaf_connected_local_clients",
		Help: "Currently attached local client sessions.",
	})

	ConnectedPeerServers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "olaf_connected_peer_servers",
		Help: "Currently connected peer-server sessions.",
	})

	BytesUploaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "olaf_file_bytes_uploaded_total",
		Help: "Total bytes accepted by the file upload endpoint.",
	})

	BytesDownloaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "olaf_file_bytes_downloaded_total",
		Help: "Total bytes streamed by the file download endpoint.",
	})
)

func init() {
	prometheus.MustRegister(
		EnvelopesAccepted,
		EnvelopesDropped,
		ConnectedLocalClients,
		ConnectedPeerServers,
		BytesUploaded,
		BytesDownloaded,
	)
}
