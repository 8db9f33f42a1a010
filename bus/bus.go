// Package bus publishes telemetry records to MQTT broker.
package bus

import (
	"context"
	"os"
	"strings"

	"github.com/256dpi/gomqtt/packet"
	"github.com/aerolink/mavbridge/helpers"
	"github.com/aerolink/mavbridge/log2"
	"github.com/juju/errors"
)

const EnvEndpoints = "MAVBRIDGE_BUS_ENDPOINTS"
const DefaultEndpoint = "tcp://127.0.0.1:1883"

// Publisher sends one opaque payload on topic, at-most-once.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

type Config struct {
	Endpoints         []string
	ClientID          string
	KeepaliveSec      int
	NetworkTimeoutSec int
	LogDebug          bool
}

// ResolveEndpoints priority: environment, config, compiled default.
func ResolveEndpoints(env string, config []string) []string {
	if env != "" {
		var r []string
		for _, s := range strings.Split(env, ",") {
			if s = strings.TrimSpace(s); s != "" {
				r = append(r, s)
			}
		}
		if len(r) != 0 {
			return r
		}
	}
	if len(config) != 0 {
		return config
	}
	return []string{DefaultEndpoint}
}

// Session is connection to bus. Safe for concurrent use.
type Session struct {
	c      *Client
	log    *log2.Log
	topics map[string]*Topic
}

func NewSession(config Config, log *log2.Log) (*Session, error) {
	l := log.Clone(log2.LInfo).Component("bus")
	if config.LogDebug {
		l.SetLevel(log2.LDebug)
	}
	keepalive := config.KeepaliveSec
	if keepalive == 0 {
		keepalive = DefaultKeepaliveSec
	}
	opt := ClientOptions{
		Endpoints:      ResolveEndpoints(os.Getenv(EnvEndpoints), config.Endpoints),
		ClientID:       config.ClientID,
		KeepaliveSec:   uint16(keepalive),
		NetworkTimeout: helpers.IntSecondDefault(config.NetworkTimeoutSec, DefaultNetworkTimeout),
		Log:            l,
	}
	c, err := NewClient(opt)
	if err != nil {
		return nil, errors.Annotate(err, "bus")
	}
	l.Infof("endpoints=%v", opt.Endpoints)
	return &Session{c: c, log: l, topics: make(map[string]*Topic)}, nil
}

// Declare must be called for every topic before concurrent Publish.
func (self *Session) Declare(name string) (*Topic, error) {
	if err := validateTopic(name); err != nil {
		return nil, err
	}
	if t, ok := self.topics[name]; ok {
		return t, nil
	}
	t := &Topic{name: name, s: self}
	self.topics[name] = t
	return t, nil
}

func (self *Session) Publish(ctx context.Context, topic string, payload []byte) error {
	t, ok := self.topics[topic]
	if !ok {
		return errors.NotFoundf("bus topic=%s not declared", topic)
	}
	return t.Publish(ctx, payload)
}

func (self *Session) WaitReady(ctx context.Context) error { return self.c.WaitReady(ctx) }
func (self *Session) Connected() bool                     { return self.c.Connected() }
func (self *Session) Close() error                        { return self.c.Close() }

// Topic is immutable handle of declared topic.
type Topic struct {
	name string
	s    *Session
}

func (self *Topic) Name() string { return self.name }

func (self *Topic) Publish(ctx context.Context, payload []byte) error {
	msg := &packet.Message{Topic: self.name, Payload: payload, QOS: packet.QOSAtMostOnce}
	if err := self.s.c.Publish(ctx, msg); err != nil {
		return errors.Annotatef(err, "bus publish topic=%s", self.name)
	}
	return nil
}

func validateTopic(name string) error {
	if name == "" {
		return errors.NotValidf("bus topic empty")
	}
	if strings.ContainsAny(name, "#+\x00") {
		return errors.NotValidf("bus topic=%s wildcard or NUL", name)
	}
	if len(name) > 0xffff {
		return errors.NotValidf("bus topic length=%d", len(name))
	}
	return nil
}
