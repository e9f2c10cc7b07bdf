package nats

import (
	"time"

	"github.com/nats-io/nats.go"
)

// Route binds a subject to a durable consumer.
type Route struct {
	Subject string
	Durable string
	AckWait time.Duration
	Handler nats.MsgHandler
}

// Routes lists every subject the service consumes. The derive route is only
// present when thumbnails are dispatched through NATS.
func Routes(h *Handlers, consumeDerive bool) []Route {
	routes := []Route{
		{
			Subject: SubjectUserDeleted,
			Durable: "asset-service-users-deleted",
			AckWait: 2 * time.Minute,
			Handler: h.HandleUserDeleted,
		},
	}
	if consumeDerive {
		routes = append(routes, Route{
			Subject: SubjectDerive,
			Durable: "asset-service-derive",
			AckWait: time.Minute,
			Handler: h.HandleDeriveRequested,
		})
	}
	return routes
}
