// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lanKeyExchanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cremalink_lan_key_exchanges_total",
		Help: "Completed LAN key exchanges",
	})

	lanPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cremalink_lan_command_polls_total",
		Help: "Command polls served to the machine by payload kind (command|empty)",
	}, []string{"kind"})

	lanDatapoints = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cremalink_lan_datapoints_total",
		Help: "Datapoints pushed by the machine by kind (monitor|property) and result",
	}, []string{"kind", "result"})

	lanQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cremalink_lan_queue_depth",
		Help: "Commands waiting for the machine to poll",
	})

	lanQueueRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cremalink_lan_queue_rejected_total",
		Help: "Commands rejected because the queue was full",
	})

	lanRegistrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cremalink_lan_registrations_total",
		Help: "local_reg attempts by result",
	}, []string{"result"})

	monitorStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cremalink_monitor_status",
		Help: "Last decoded machine status code",
	}, []string{"device"})

	monitorUpdated = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cremalink_monitor_last_update_timestamp_seconds",
		Help: "Unix time of the last monitor frame",
	}, []string{"device"})

	historyWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cremalink_history_writes_total",
		Help: "Monitor history writes by sink and result",
	}, []string{"sink", "result"})
)

// RecordKeyExchange counts a completed key exchange.
func RecordKeyExchange() { lanKeyExchanges.Inc() }

// RecordCommandPoll counts a command poll; empty reports an empty payload.
func RecordCommandPoll(empty bool) {
	if empty {
		lanPolls.WithLabelValues("empty").Inc()
		return
	}
	lanPolls.WithLabelValues("command").Inc()
}

// RecordDatapoint counts a datapoint push.
func RecordDatapoint(monitor bool, err error) {
	kind := "property"
	if monitor {
		kind = "monitor"
	}
	lanDatapoints.WithLabelValues(kind, resultLabel(err)).Inc()
}

// SetQueueDepth publishes the command queue length.
func SetQueueDepth(n int) { lanQueueDepth.Set(float64(n)) }

// RecordQueueRejected counts a rejected enqueue.
func RecordQueueRejected() { lanQueueRejected.Inc() }

// RecordRegistration counts a local_reg attempt.
func RecordRegistration(err error) { lanRegistrations.WithLabelValues(resultLabel(err)).Inc() }

// RecordMonitor publishes the status of a decoded monitor frame.
func RecordMonitor(device string, status int, at time.Time) {
	monitorStatus.WithLabelValues(device).Set(float64(status))
	monitorUpdated.WithLabelValues(device).Set(float64(at.Unix()))
}

// RecordHistoryWrite counts a history sink write.
func RecordHistoryWrite(sink string, err error) {
	historyWrites.WithLabelValues(sink, resultLabel(err)).Inc()
}
