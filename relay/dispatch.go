package relay

import (
	"log/slog"

	"location-relay/models"
)

// Mode selects who receives location broadcasts.
type Mode string

const (
	// ModeAll delivers every update and stop to every connection.
	ModeAll Mode = "all"
	// ModeTopic delivers a driver's updates and stops only to connections
	// that subscribed to that driver.
	ModeTopic Mode = "topic"
)

// Sink receives every broadcast in addition to connections. Implementations
// must return immediately; the relay loop calls them inline.
type Sink interface {
	LocationUpdated(rec models.LocationRecord)
	TrackingStopped(driverID string)
}

type dispatcher struct {
	mode  Mode
	conns map[string]Conn
	// topics maps driver id to subscribed connection ids, subs is the reverse.
	topics map[string]map[string]struct{}
	subs   map[string]map[string]struct{}
	sinks  []Sink
	log    *slog.Logger
}

func newDispatcher(mode Mode, sinks []Sink, log *slog.Logger) *dispatcher {
	if mode == "" {
		mode = ModeAll
	}
	return &dispatcher{
		mode:   mode,
		conns:  make(map[string]Conn),
		topics: make(map[string]map[string]struct{}),
		subs:   make(map[string]map[string]struct{}),
		sinks:  sinks,
		log:    log,
	}
}

func (d *dispatcher) attach(c Conn) {
	d.conns[c.ID()] = c
}

// detach forgets the connection and its subscriptions. It reports whether
// the connection was attached.
func (d *dispatcher) detach(connID string) bool {
	if _, ok := d.conns[connID]; !ok {
		return false
	}
	delete(d.conns, connID)
	for driverID := range d.subs[connID] {
		d.unsubscribe(connID, driverID)
	}
	delete(d.subs, connID)
	return true
}

func (d *dispatcher) subscribe(connID, driverID string) bool {
	if _, ok := d.conns[connID]; !ok {
		return false
	}
	if d.topics[driverID] == nil {
		d.topics[driverID] = make(map[string]struct{})
	}
	d.topics[driverID][connID] = struct{}{}
	if d.subs[connID] == nil {
		d.subs[connID] = make(map[string]struct{})
	}
	d.subs[connID][driverID] = struct{}{}
	return true
}

func (d *dispatcher) unsubscribe(connID, driverID string) {
	if members, ok := d.topics[driverID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(d.topics, driverID)
		}
	}
	if drivers, ok := d.subs[connID]; ok {
		delete(drivers, driverID)
	}
}

func (d *dispatcher) broadcastUpdate(rec models.LocationRecord) {
	d.fanout(rec.DriverID, models.EventLocation, rec)
	for _, s := range d.sinks {
		s.LocationUpdated(rec)
	}
}

func (d *dispatcher) broadcastStop(driverID string) {
	d.fanout(driverID, models.EventLocationStop, models.DriverRef{DriverID: driverID})
	for _, s := range d.sinks {
		s.TrackingStopped(driverID)
	}
}

func (d *dispatcher) fanout(driverID, eventType string, payload any) {
	frame, err := models.Encode(eventType, payload)
	if err != nil {
		d.log.Error("encode broadcast", "action", "broadcast_encode_failed", "event", eventType, "error", err)
		return
	}

	if d.mode == ModeTopic {
		for connID := range d.topics[driverID] {
			if c, ok := d.conns[connID]; ok {
				d.deliver(c, eventType, frame)
			}
		}
		return
	}
	for _, c := range d.conns {
		d.deliver(c, eventType, frame)
	}
}

func (d *dispatcher) unicast(c Conn, eventType string, payload any) {
	frame, err := models.Encode(eventType, payload)
	if err != nil {
		d.log.Error("encode reply", "action", "reply_encode_failed", "event", eventType, "error", err)
		return
	}
	d.deliver(c, eventType, frame)
}

func (d *dispatcher) deliver(c Conn, eventType string, frame []byte) {
	if !c.Send(frame) {
		d.log.Warn("frame dropped", "action", "frame_dropped", "conn_id", c.ID(), "event", eventType)
	}
}

func (d *dispatcher) len() int {
	return len(d.conns)
}
