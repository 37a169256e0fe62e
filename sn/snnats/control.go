package snnats

import (
	"log/slog"

	"github.com/nats-io/nats.go/micro"
)

const (
	StopMonitorSubject  = "sentor.stop_monitor"
	StartMonitorSubject = "sentor.start_monitor"
)

// ControlReply is the body of every control endpoint reply.
type ControlReply struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Controller is the set of operations exposed by [ServeControl].
type Controller interface {
	StopMonitors()
	StartMonitors()
}

// ServeControl registers a micro service named "sentor"
// with endpoints that stop and start every monitor of ctl.
// Stop the returned service to unregister it.
func ServeControl(log *slog.Logger, c *Conn, ctl Controller) (micro.Service, error) {
	srv, err := micro.AddService(c.nc, micro.Config{
		Name:        "sentor",
		Version:     "1.0.0",
		Description: "Start and stop subject monitoring",
		Metadata:    map[string]string{"node": c.node},
	})
	if err != nil {
		return nil, err
	}

	endpoints := []struct {
		name, subject, reply string
		fn                   func()
	}{
		{"stop_monitor", StopMonitorSubject, "sentor stopped monitoring", ctl.StopMonitors},
		{"start_monitor", StartMonitorSubject, "sentor started monitoring", ctl.StartMonitors},
	}
	for _, ep := range endpoints {
		err := srv.AddEndpoint(ep.name, micro.HandlerFunc(func(req micro.Request) {
			ep.fn()
			log.Warn(ep.reply)
			if err := req.RespondJSON(ControlReply{Success: true, Message: ep.reply}); err != nil {
				log.Debug("Failed to respond to control request", "endpoint", ep.name, "err", err)
			}
		}), micro.WithEndpointSubject(ep.subject))
		if err != nil {
			_ = srv.Stop()
			return nil, err
		}
	}

	return srv, nil
}
