package publisher

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"sleigh-tracker/internal/playback"
)

// Metrics receives publish outcomes. *metrics.Collector implements it.
type Metrics interface {
	PublishedInc(sink string)
	PublishErrInc(sink string)
	PublishObserve(d time.Duration)
	SetSinkConnected(connected bool)
}

type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher sends frames to <prefix>.frames and arrivals to <prefix>.arrivals.
type NATSPublisher struct {
	nc          *nats.Conn
	conn        natsConn
	prefix      string
	logSubjects bool
	metrics     Metrics
	log         *slog.Logger
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m Metrics, log *slog.Logger) (*NATSPublisher, error) {
	if log == nil {
		log = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("sleigh-tracker"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetSinkConnected(false)
			}
			log.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetSinkConnected(true)
			}
			log.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetSinkConnected(false)
			}
			log.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.SetSinkConnected(true)
	}
	p := newNATSPublisher(nc, prefix, logSubjects, m, log)
	p.nc = nc
	return p, nil
}

func newNATSPublisher(conn natsConn, prefix string, logSubjects bool, m Metrics, log *slog.Logger) *NATSPublisher {
	return &NATSPublisher{
		conn:        conn,
		prefix:      subjectPrefix(prefix),
		logSubjects: logSubjects,
		metrics:     m,
		log:         log,
	}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

func (p *NATSPublisher) PublishFrame(f playback.Frame) error {
	return p.publish(p.prefix+".frames", f)
}

func (p *NATSPublisher) PublishArrival(a playback.Arrival) error {
	return p.publish(p.prefix+".arrivals", a)
}

func (p *NATSPublisher) publish(subject string, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.log.Debug("nats publish", "subject", subject)
	}
	start := time.Now()
	err = p.conn.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.PublishErrInc("nats")
		} else {
			p.metrics.PublishedInc("nats")
		}
	}
	return err
}

// subjectPrefix turns s into a dot-separated run of valid NATS tokens.
func subjectPrefix(s string) string {
	var tokens []string
	for _, part := range strings.Split(s, ".") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		tokens = append(tokens, subjectToken(part))
	}
	if len(tokens) == 0 {
		return "sleigh"
	}
	return strings.Join(tokens, ".")
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
