package backend

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the chatd counters exposed on the admin /metrics endpoint.
type Metrics struct {
	MessagesSent    prometheus.Counter
	MessagesRead    prometheus.Counter
	MessagesDeleted prometheus.Counter
	SignIns         prometheus.Counter
	AuthFailures    prometheus.Counter
	RateLimited     prometheus.Counter
	ContactSyncs    prometheus.Counter
	FeedSubscribers prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quickchat", Name: "messages_sent_total", Help: "Messages accepted for delivery.",
		}),
		MessagesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quickchat", Name: "messages_read_total", Help: "Messages marked read.",
		}),
		MessagesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quickchat", Name: "messages_deleted_total", Help: "Messages deleted by their sender.",
		}),
		SignIns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quickchat", Name: "sign_ins_total", Help: "Successful sign-ins and sign-ups.",
		}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quickchat", Name: "auth_failures_total", Help: "Rejected credentials or tokens.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quickchat", Name: "send_rate_limited_total", Help: "Sends rejected by the per-user rate limit.",
		}),
		ContactSyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quickchat", Name: "contact_syncs_total", Help: "Address book uploads.",
		}),
		FeedSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quickchat", Name: "feed_subscribers", Help: "Open live change feed subscriptions.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.MessagesSent, m.MessagesRead, m.MessagesDeleted, m.SignIns,
			m.AuthFailures, m.RateLimited, m.ContactSyncs, m.FeedSubscribers)
	}
	return m
}
