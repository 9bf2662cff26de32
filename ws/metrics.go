package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minichat_channel_connects_total",
		Help: "Successful event channel connections.",
	})
	connectFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minichat_channel_connect_failures_total",
		Help: "Failed event channel dial attempts.",
	})
	eventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minichat_channel_events_received_total",
		Help: "Inbound channel events by event name.",
	}, []string{"event"})
	intentsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minichat_channel_intents_sent_total",
		Help: "Outbound channel intents by event name.",
	}, []string{"event"})
	sendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minichat_channel_send_errors_total",
		Help: "Websocket write failures.",
	})
)
