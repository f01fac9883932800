// Package msgrpc is a msgpack-rpc client multiplexed over one stream.
//
// Many goroutines may call concurrently. Each request gets its own msgid and
// a one-shot delivery channel; a single reader goroutine decodes every
// incoming frame and routes responses by msgid, so replies may arrive in any
// order. Notifications are fanned out to subscribers without blocking the
// reader. When the stream ends every outstanding call fails and the client
// is finished for good.
package msgrpc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jpl-au/nvimcp/internal/telemetry"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultNotifyBuffer is the subscription buffer used when Subscribe is
// given a size below 1.
const DefaultNotifyBuffer = 64

// Notification is an unsolicited message from the peer.
type Notification struct {
	Method string
	Params []any
}

type response struct {
	result any
	err    error
}

type subscription struct {
	method string
	ch     chan Notification
	closed bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for dropped notifications and stray
// responses. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Client is one msgpack-rpc session. Create with New.
type Client struct {
	stream io.ReadWriteCloser
	dec    *msgpack.Decoder
	log    *slog.Logger

	wmu sync.Mutex // serialises frame writes

	pmu     sync.Mutex
	pending map[uint32]chan response
	nextID  uint32
	closed  bool
	err     error

	smu  sync.RWMutex
	subs map[string][]*subscription

	closeOnce sync.Once
	done      chan struct{}
}

// New starts a client on stream. The client owns stream from here on and
// closes it when the session ends.
func New(stream io.ReadWriteCloser, opts ...Option) *Client {
	c := &Client{
		stream:  stream,
		dec:     NewDecoder(stream),
		log:     slog.Default(),
		pending: make(map[uint32]chan response),
		subs:    make(map[string][]*subscription),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

// Call sends a request and waits for its response. Cancelling ctx abandons
// the wait; a reply arriving afterwards is discarded.
func (c *Client) Call(ctx context.Context, method string, args ...any) (any, error) {
	ctx, span := telemetry.StartSpan(ctx, "rpc "+method, telemetry.AttrRPCMethod.String(method))
	result, err := c.call(ctx, method, args)
	telemetry.RPCCalls.WithLabelValues(method, telemetry.Outcome(err)).Inc()
	telemetry.End(span, err)
	return result, err
}

func (c *Client) call(ctx context.Context, method string, args []any) (any, error) {
	ch := make(chan response, 1)

	c.pmu.Lock()
	if c.closed {
		err := c.err
		c.pmu.Unlock()
		return nil, err
	}
	id := c.allocID()
	c.pending[id] = ch
	c.pmu.Unlock()

	telemetry.RPCInflight.Inc()
	defer telemetry.RPCInflight.Dec()

	frame, err := EncodeRequest(id, method, args)
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}
	if err := c.write(frame); err != nil {
		c.forget(id)
		return nil, fmt.Errorf("%w: write %s: %w", ErrConnectionClosed, method, err)
	}

	select {
	case r := <-ch:
		return r.result, r.err
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

// allocID returns the next msgid not currently pending. Callers hold pmu.
func (c *Client) allocID() uint32 {
	for {
		c.nextID++
		if _, busy := c.pending[c.nextID]; !busy {
			return c.nextID
		}
	}
}

func (c *Client) forget(id uint32) {
	c.pmu.Lock()
	delete(c.pending, id)
	c.pmu.Unlock()
}

// write sends one encoded frame. A failed write leaves the stream in an
// unknown state, so the session is torn down.
func (c *Client) write(frame []byte) error {
	c.wmu.Lock()
	_, err := c.stream.Write(frame)
	c.wmu.Unlock()
	if err != nil {
		c.stream.Close()
	}
	return err
}

// Notify sends a notification frame. No reply is expected.
func (c *Client) Notify(method string, args ...any) error {
	select {
	case <-c.done:
		return c.Err()
	default:
	}
	frame, err := EncodeNotification(method, args)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	if err := c.write(frame); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrConnectionClosed, method, err)
	}
	return nil
}

// Subscribe returns a channel receiving notifications for method and a
// function that ends the subscription. The reader never waits on the
// channel: when it is full the notification is dropped and logged. The
// channel is closed on unsubscribe or when the session ends.
func (c *Client) Subscribe(method string, buffer int) (<-chan Notification, func()) {
	if buffer < 1 {
		buffer = DefaultNotifyBuffer
	}
	sub := &subscription{method: method, ch: make(chan Notification, buffer)}

	c.smu.Lock()
	if c.subs == nil {
		c.smu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	c.subs[method] = append(c.subs[method], sub)
	c.smu.Unlock()

	return sub.ch, func() { c.unsubscribe(sub) }
}

func (c *Client) unsubscribe(sub *subscription) {
	c.smu.Lock()
	defer c.smu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	list := c.subs[sub.method]
	for i, s := range list {
		if s == sub {
			c.subs[sub.method] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(c.subs[sub.method]) == 0 {
		delete(c.subs, sub.method)
	}
}

// Done is closed once the session has ended and all pending calls have
// been failed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the session ended, or nil while it is live.
func (c *Client) Err() error {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	return c.err
}

// Close ends the session and waits for the reader to finish. Pending calls
// fail with ErrConnectionClosed. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.stream.Close()
	})
	<-c.done
	return nil
}

func (c *Client) readLoop() {
	var cause error
	for {
		f, err := ReadFrame(c.dec)
		if err != nil {
			if _, ok := err.(*ProtocolError); ok {
				cause = err
			} else {
				cause = classify(err)
			}
			break
		}
		c.dispatch(f)
	}
	c.teardown(cause)
}

func (c *Client) dispatch(f Frame) {
	switch f.Type {
	case TypeResponse:
		c.pmu.Lock()
		ch, ok := c.pending[f.MsgID]
		delete(c.pending, f.MsgID)
		c.pmu.Unlock()
		if !ok {
			c.log.Warn("discarding response for unknown msgid", "msgid", f.MsgID)
			return
		}
		if f.Error != nil {
			ch <- response{err: remoteError(f.Error)}
			return
		}
		ch <- response{result: f.Result}

	case TypeNotification:
		n := Notification{Method: f.Method, Params: f.Params}
		c.smu.RLock()
		for _, sub := range c.subs[f.Method] {
			select {
			case sub.ch <- n:
			default:
				telemetry.NotificationsDropped.WithLabelValues(f.Method).Inc()
				c.log.Warn("dropping notification, subscriber is full", "method", f.Method)
			}
		}
		c.smu.RUnlock()

	case TypeRequest:
		// The gateway exposes no methods to the editor. Reply off the
		// reader goroutine so a slow write can never stall decoding.
		go c.reject(f.MsgID, f.Method)
	}
}

func (c *Client) reject(id uint32, method string) {
	frame, err := EncodeResponse(id, "method not supported: "+method, nil)
	if err != nil {
		return
	}
	if err := c.write(frame); err != nil {
		c.log.Debug("reply to peer request failed", "method", method, "error", err)
	}
}

// teardown fails all pending calls with cause, closes every subscription
// and marks the session finished.
func (c *Client) teardown(cause error) {
	c.pmu.Lock()
	c.closed = true
	c.err = cause
	pending := c.pending
	c.pending = make(map[uint32]chan response)
	c.pmu.Unlock()

	for _, ch := range pending {
		ch <- response{err: cause}
	}

	c.smu.Lock()
	for _, list := range c.subs {
		for _, sub := range list {
			if !sub.closed {
				sub.closed = true
				close(sub.ch)
			}
		}
	}
	c.subs = nil
	c.smu.Unlock()

	c.closeOnce.Do(func() {
		c.stream.Close()
	})
	close(c.done)
}
