package publisher

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher carries position fixes in and tracking events out.
type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	NATSReceivedInc()
	NATSDecodeErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("route-tracker"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// Subscribe delivers every decodable position on subject to handle. Messages
// are handled one at a time in arrival order.
func (p *NATSPublisher) Subscribe(subject string, handle func(PositionMessage)) (*nats.Subscription, error) {
	return p.nc.Subscribe(subject, func(m *nats.Msg) {
		if p.metrics != nil {
			p.metrics.NATSReceivedInc()
		}
		msg, err := DecodePosition(m.Subject, m.Data)
		if err != nil {
			if p.metrics != nil {
				p.metrics.NATSDecodeErrInc()
			}
			log.Printf("drop position subject=%s: %v", m.Subject, err)
			return
		}
		handle(msg)
	})
}

// DecodePosition parses a position message. Route and trip fall back to the
// <route>.<trip> subject tokens when the body omits them.
func DecodePosition(subject string, data []byte) (PositionMessage, error) {
	var msg PositionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return PositionMessage{}, err
	}
	if tokens := strings.Split(subject, "."); len(tokens) >= 2 {
		if msg.RouteID == "" {
			msg.RouteID = tokens[len(tokens)-2]
		}
		if msg.TripID == "" {
			msg.TripID = tokens[len(tokens)-1]
		}
	}
	if msg.TripID == "" {
		return PositionMessage{}, errMissingTrip
	}
	return msg, nil
}

func (p *NATSPublisher) PublishSection(msg SectionMessage) error {
	return p.publish(EventSubject(p.prefix, msg.RouteID, msg.TripID, "section"), msg)
}

func (p *NATSPublisher) PublishDeviation(msg DeviationMessage) error {
	return p.publish(EventSubject(p.prefix, msg.RouteID, msg.TripID, "deviation"), msg)
}

func (p *NATSPublisher) publish(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}
