package bus

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/256dpi/gomqtt/client"
	"github.com/256dpi/gomqtt/client/future"
	"github.com/256dpi/gomqtt/packet"
	"github.com/256dpi/gomqtt/transport"
	"github.com/aerolink/mavbridge/helpers/atomic_clock"
	"github.com/aerolink/mavbridge/log2"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

const DefaultNetworkTimeout = 10 * time.Second
const DefaultReconnectDelay = 3 * time.Second
const DefaultKeepaliveSec = 30

var ErrClientClosing = fmt.Errorf("MQTT client is closing")

type ClientOptions struct {
	Endpoints      []string
	ReconnectDelay time.Duration
	NetworkTimeout time.Duration
	KeepaliveSec   uint16
	ClientID       string
	Log            *log2.Log

	conpkt *packet.Connect
	dialer *transport.Dialer
}

// Publish-only MQTT client.
// - NewClient() returns only configuration errors, network IO is done in background
// - Connect with clean session only, no subscriptions
// - Unlimited reconnect attempts until Close(), next endpoint on every attempt
// - QOS 0 only, nothing is stored or retried
// - Publish while offline returns ErrClientNotConnected immediately
type Client struct {
	sync.Mutex

	alive   *alive.Alive
	current *clientConn
	attempt uint32
	opt     ClientOptions
}

func NewClient(opt ClientOptions) (*Client, error) {
	if len(opt.Endpoints) == 0 {
		return nil, errors.NotValidf("config error bus endpoints empty")
	}
	if opt.NetworkTimeout == 0 {
		opt.NetworkTimeout = DefaultNetworkTimeout
	}
	if opt.ReconnectDelay == 0 {
		opt.ReconnectDelay = DefaultReconnectDelay
	}
	var username, password string
	for _, e := range opt.Endpoints {
		u, err := url.ParseRequestURI(e)
		if err != nil {
			return nil, errors.Annotatef(err, "config error bus endpoint=%s", e)
		}
		if u.User != nil && username == "" {
			username = u.User.Username()
			password, _ = u.User.Password()
		}
	}
	opt.conpkt = packet.NewConnect()
	opt.conpkt.ClientID = defaultString(opt.ClientID, username)
	opt.conpkt.KeepAlive = opt.KeepaliveSec
	opt.conpkt.CleanSession = true
	opt.conpkt.Username = username
	opt.conpkt.Password = password
	opt.dialer = transport.NewDialer(transport.DialConfig{Timeout: opt.NetworkTimeout})

	c := &Client{
		alive: alive.NewAlive(),
		opt:   opt,
	}
	_ = c.clientConn(true)

	c.alive.Add(1)
	go c.worker()
	return c, nil
}

func (c *Client) Close() error {
	cc := c.clientConn(false)
	err := c.Disconnect()
	c.alive.Stop()
	c.alive.Wait()
	if cc != nil {
		cc.alive.Wait()
	}
	return err
}

func (c *Client) Disconnect() error {
	err := client.ErrClientNotConnected
	if cc := c.clientConn(false); cc != nil {
		err = cc.send(packet.NewDisconnect())
		err = cc.die(err)
	}
	return err
}

// Connected reports whether CONNACK was accepted on current connection.
func (c *Client) Connected() bool {
	cc := c.clientConn(false)
	return cc != nil && cc.ready()
}

// Publish sends message with QOS 0. Never waits for connection.
func (c *Client) Publish(ctx context.Context, msg *packet.Message) error {
	if msg.QOS != packet.QOSAtMostOnce {
		panic("code error bus supports only QOS 0")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cc := c.clientConn(false)
	if cc == nil {
		if !c.alive.IsRunning() {
			return ErrClientClosing
		}
		return client.ErrClientNotConnected
	}
	if !cc.ready() {
		return client.ErrClientNotConnected
	}
	publish := packet.NewPublish()
	publish.Message = *msg
	if err := cc.send(publish); err != nil {
		return errors.Annotate(err, "send PUBLISH")
	}
	return nil
}

// Returns, in this order:
// - ErrClientClosing if client stopped with Close()
// - nil if connected within context limit
// - context.Canceled if context canceled/expired before successful connection
func (c *Client) WaitReady(ctx context.Context) error {
	donech := ctx.Done()
	stopch := c.alive.StopChan()
	for {
		cc := c.clientConn(false)
		if cc == nil {
			select {
			case <-time.After(50 * time.Millisecond):
				continue

			case <-donech:
				return context.Canceled

			case <-stopch:
				return ErrClientClosing
			}
		}

		switch cc.waitReady(ctx) {
		case nil:
			return nil

		case context.Canceled:
			return context.Canceled

		case ErrClientClosing: // current connection is lost, just try again
		}
	}
}

func (c *Client) clientConn(create bool) *clientConn {
	c.Lock()
	defer c.Unlock()
	if !c.alive.IsRunning() {
		return nil
	}
	if c.current != nil && !c.current.alive.IsRunning() {
		c.current = nil
	}
	if c.current == nil && create {
		broker := c.opt.Endpoints[int(c.attempt)%len(c.opt.Endpoints)]
		c.attempt++
		c.current = newClientConn(c.opt, broker)
	}
	return c.current
}

func (c *Client) worker() {
	defer c.alive.Done()
	stopch := c.alive.StopChan()
	for {
		cc := c.clientConn(true)
		if cc == nil {
			return
		}
		select {
		case <-cc.alive.WaitChan():

		case <-stopch:
			_ = cc.die(ErrClientClosing)
			return
		}

		c.opt.Log.Debugf("wait ReconnectDelay=%v", c.opt.ReconnectDelay)
		select {
		case <-time.After(c.opt.ReconnectDelay):

		case <-stopch:
			return
		}
	}
}

// Single client connection. `transport.Conn` with CONNECT and pings.
// State is set once at creation, except transport.Conn which requires blocking Dial.
type clientConn struct {
	alive  *alive.Alive
	broker string
	closed uint32
	confu  *future.Future
	conn   atomic.Value // transport.Conn
	opt    ClientOptions
	pingat *atomic_clock.Clock // timestamp of last outgoing control packet
	pongat *atomic_clock.Clock // timestamp of last incoming control packet
	sendmu sync.Mutex
}

func newClientConn(opt ClientOptions, broker string) *clientConn {
	cc := &clientConn{
		alive:  alive.NewAlive(),
		broker: broker,
		confu:  future.New(),
		opt:    opt,
		pingat: atomic_clock.New(0),
		pongat: atomic_clock.New(0),
	}
	cc.alive.Add(1)
	go cc.connect()
	return cc
}

func (cc *clientConn) die(e error) error {
	if e == nil {
		e = ErrClientClosing
	}
	if !atomic.CompareAndSwapUint32(&cc.closed, 0, 1) {
		return e
	}
	cc.opt.Log.Debugf("broker=%s connection closed err=%v", cc.broker, e)
	cc.alive.Stop()
	cc.confu.Cancel(e)
	if conn := cc.getConn(); conn != nil {
		_ = conn.Close()
	}
	return e
}

func (cc *clientConn) getConn() transport.Conn {
	if x := cc.conn.Load(); x != nil {
		return x.(transport.Conn)
	}
	return nil
}

func (cc *clientConn) ready() bool {
	ok, _ := cc.confu.Result().(bool)
	return ok && cc.alive.IsRunning()
}

// dial, send CONNECT, wait CONNACK, start pinger and reader
func (cc *clientConn) connect() {
	defer cc.alive.Done()

	conn, err := cc.opt.dialer.Dial(cc.broker)
	if err != nil {
		_ = cc.die(errors.Annotatef(err, "connect: dial broker=%s", cc.broker))
		return
	}
	if !cc.alive.IsRunning() {
		_ = conn.Close()
		return
	}
	cc.conn.Store(conn)
	if err = cc.send(cc.opt.conpkt); err != nil {
		return
	}

	{ // expect CONNACK
		conn.SetReadTimeout(cc.opt.NetworkTimeout)
		pkt, err := conn.Receive()
		if err != nil {
			_ = cc.die(errors.Annotate(err, "connect: expect CONNACK"))
			return
		}
		connack, ok := pkt.(*packet.Connack)
		if !ok {
			err = errors.Annotatef(client.ErrClientExpectedConnack, "connect: server error pkt=%s", PacketString(pkt))
			_ = cc.die(err)
			return
		}
		cc.opt.Log.Debugf("CONNACK=%s", connack.String())
		if connack.ReturnCode != packet.ConnectionAccepted {
			_ = cc.die(errors.Annotate(client.ErrClientConnectionDenied, connack.ReturnCode.String()))
			return
		}
		conn.SetReadTimeout(0)
		cc.confu.Complete(true)
	}
	cc.opt.Log.Infof("connected broker=%s", cc.broker)

	if !cc.alive.Add(2) {
		_ = cc.die(context.Canceled)
		return
	}
	cc.pongat.SetNow()
	go cc.pinger()
	go cc.reader()
}

// Sends ping packets to keep the connection alive.
// PINGREQ is only sent if Keepalive-NetworkTimeout has passed since last command.
func (cc *clientConn) pinger() {
	defer cc.alive.Done()
	if cc.opt.KeepaliveSec == 0 {
		return
	}

	// [MQTT-3.1.2-24] control packets must arrive at most KeepaliveSec*1.5 apart.
	keepalive := keepaliveAndHalf(cc.opt.KeepaliveSec)
	interval := keepalive - cc.opt.NetworkTimeout
	if interval <= 0 {
		interval = keepalive / 2
	}
	stopch := cc.alive.StopChan()
	for cc.alive.IsRunning() {
		now := atomic_clock.Now()
		window := now.Sub(cc.pingat)
		sincePong := now.Sub(cc.pongat)

		if window > 0 && window < interval {
			select {
			case <-time.After(interval - window):
				continue

			case <-stopch:
				return
			}
		} else if window >= interval {
			if err := cc.send(packet.NewPingreq()); err != nil {
				return
			}
		}

		if sincePong > keepalive {
			_ = cc.die(client.ErrClientMissingPong)
			return
		}
	}
}

func (cc *clientConn) reader() {
	defer cc.alive.Done()

	conn := cc.getConn()
	for {
		pkt, err := conn.Receive()
		if !cc.alive.IsRunning() {
			return
		}
		switch err {
		case nil: // success path

		case io.EOF:
			cc.opt.Log.Errorf("broker=%s closed connection", cc.broker)
			_ = cc.die(nil)
			return

		default:
			_ = cc.die(errors.Annotate(err, "receive"))
			return
		}

		switch pkt.(type) {
		case *packet.Pingresp:
			cc.pongat.SetNow()

		case *packet.Connack:
			_ = cc.die(errors.Errorf("server error duplicate CONNACK pkt=%s", PacketString(pkt)))
			return

		default:
			cc.opt.Log.Debugf("unexpected packet %s", PacketString(pkt))
		}
	}
}

func (cc *clientConn) send(p packet.Generic) error {
	if cc == nil {
		return client.ErrClientNotConnected
	}
	conn := cc.getConn()
	if conn == nil {
		return client.ErrClientNotConnected
	}
	cc.sendmu.Lock()
	err := conn.Send(p, false)
	cc.sendmu.Unlock()
	if err != nil {
		err = errors.Annotatef(err, "send %s", p.Type().String())
		return cc.die(err)
	}
	cc.pingat.SetNow()
	return nil
}

// Returns, in this order:
// - ErrClientClosing if clientConn is in final invalid state
// - nil if connected within context limit
// - context.Canceled if context canceled/expired before successful connection
func (cc *clientConn) waitReady(ctx context.Context) error {
	if cc == nil {
		return ErrClientClosing
	}

	pollInterval := 100 * time.Millisecond
	donech := ctx.Done()
	for {
		if !cc.alive.IsRunning() {
			return ErrClientClosing
		}
		_ = cc.confu.Wait(pollInterval)
		if cc.ready() {
			return nil
		}

		select {
		case <-donech:
			return context.Canceled
		default:
		}
	}
}
