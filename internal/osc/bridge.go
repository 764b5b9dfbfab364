package osc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/jwhector/yggdrasil/internal/observe"
	"go.opentelemetry.io/otel/metric"
)

// Bridge is the interface the audio router and timing engine speak. The
// production implementation is [UDPBridge]; tests use [NullBridge].
type Bridge interface {
	// Send transmits one message to the DAW.
	Send(m Message) error

	// Handle registers fn for every incoming message at address.
	Handle(address string, fn Handler)

	// HandleOnce registers fn for the next incoming message at address and
	// removes it after it fires.
	HandleOnce(address string, fn Handler)

	// Close stops the bridge.
	Close() error
}

// Handler receives decoded incoming messages.
type Handler func(m Message)

// handlerEntry pairs a handler with its once flag.
type handlerEntry struct {
	fn   Handler
	once bool
}

// dispatcher is the shared per-address handler table. Embedded by both
// bridge implementations.
type dispatcher struct {
	mu       sync.Mutex
	handlers map[string][]handlerEntry
}

func newDispatcher() dispatcher {
	return dispatcher{handlers: map[string][]handlerEntry{}}
}

// Handle registers a persistent handler.
func (d *dispatcher) Handle(address string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[address] = append(d.handlers[address], handlerEntry{fn: fn})
}

// HandleOnce registers a self-removing handler.
func (d *dispatcher) HandleOnce(address string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[address] = append(d.handlers[address], handlerEntry{fn: fn, once: true})
}

// dispatch fans a decoded message out to its address handlers, dropping
// once-handlers after they fire.
func (d *dispatcher) dispatch(m Message) {
	d.mu.Lock()
	entries := d.handlers[m.Address]
	var kept []handlerEntry
	fns := make([]Handler, 0, len(entries))
	for _, e := range entries {
		fns = append(fns, e.fn)
		if !e.once {
			kept = append(kept, e)
		}
	}
	if len(entries) > 0 {
		d.handlers[m.Address] = kept
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(m)
	}
}

// UDPBridge sends and receives OSC-shaped datagrams over UDP.
type UDPBridge struct {
	dispatcher

	sendConn *net.UDPConn
	recvConn *net.UDPConn
	metrics  *observe.Metrics

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Compile-time interface checks.
var _ Bridge = (*UDPBridge)(nil)
var _ Bridge = (*NullBridge)(nil)

// UDPConfig configures a [UDPBridge].
type UDPConfig struct {
	// Host is the DAW's address (e.g. "127.0.0.1").
	Host string

	// SendPort is the DAW's listening port.
	SendPort int

	// RecvPort is the local port for incoming DAW messages. 0 disables the
	// receive side.
	RecvPort int

	// Metrics records datagram counters. Optional.
	Metrics *observe.Metrics
}

// DialUDP creates the bridge and starts the receive loop.
func DialUDP(cfg UDPConfig) (*UDPBridge, error) {
	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.Host, cfg.SendPort))
	if err != nil {
		return nil, fmt.Errorf("osc: resolve %s:%d: %w", cfg.Host, cfg.SendPort, err)
	}
	sendConn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("osc: dial: %w", err)
	}

	b := &UDPBridge{
		dispatcher: newDispatcher(),
		sendConn:   sendConn,
		metrics:    cfg.Metrics,
		done:       make(chan struct{}),
	}

	if cfg.RecvPort > 0 {
		laddr := &net.UDPAddr{Port: cfg.RecvPort}
		recvConn, err := net.ListenUDP("udp", laddr)
		if err != nil {
			sendConn.Close()
			return nil, fmt.Errorf("osc: listen on %d: %w", cfg.RecvPort, err)
		}
		b.recvConn = recvConn
		b.wg.Add(1)
		go b.receiveLoop()
	}

	slog.Info("daw bridge up", "host", cfg.Host, "send_port", cfg.SendPort, "recv_port", cfg.RecvPort)
	return b, nil
}

// Send encodes and transmits m. Errors are returned for logging but the
// caller never retries mid-show — UDP loss is tolerated by design.
func (b *UDPBridge) Send(m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	if _, err := b.sendConn.Write(data); err != nil {
		return fmt.Errorf("osc: send %s: %w", m.Address, err)
	}
	if b.metrics != nil {
		b.metrics.RecordOSCSent(context.Background(), m.Address)
	}
	return nil
}

// receiveLoop decodes incoming datagrams and dispatches them. Malformed
// packets are discarded.
func (b *UDPBridge) receiveLoop() {
	defer b.wg.Done()
	buf := make([]byte, 64*1024)
	for {
		n, _, err := b.recvConn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-b.done:
				return
			default:
				slog.Warn("daw bridge read error", "err", err)
				return
			}
		}
		m, err := Decode(buf[:n])
		if err != nil {
			slog.Debug("discarding malformed datagram", "err", err)
			continue
		}
		if b.metrics != nil {
			b.metrics.OSCReceived.Add(context.Background(), 1,
				metric.WithAttributes(observe.Attr("address", m.Address)))
		}
		b.dispatch(m)
	}
}

// Close stops the receive loop and closes both sockets.
func (b *UDPBridge) Close() error {
	b.stopOnce.Do(func() {
		close(b.done)
		if b.recvConn != nil {
			b.recvConn.Close()
		}
		b.sendConn.Close()
	})
	b.wg.Wait()
	return nil
}

// NullBridge accepts the full bridge interface, logs sends, and never
// transmits. Tests can inject incoming messages with [NullBridge.Inject]
// and inspect outgoing traffic with [NullBridge.Sent].
type NullBridge struct {
	dispatcher

	mu   sync.Mutex
	sent []Message
}

// NewNull creates a NullBridge.
func NewNull() *NullBridge {
	return &NullBridge{dispatcher: newDispatcher()}
}

// Send records m without transmitting.
func (b *NullBridge) Send(m Message) error {
	b.mu.Lock()
	b.sent = append(b.sent, m)
	b.mu.Unlock()
	slog.Debug("null bridge send", "address", m.Address, "args", len(m.Args))
	return nil
}

// Sent returns a copy of everything sent so far.
func (b *NullBridge) Sent() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.sent...)
}

// Reset clears the sent log.
func (b *NullBridge) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = nil
}

// Inject dispatches m as if it had arrived from the DAW.
func (b *NullBridge) Inject(m Message) {
	b.dispatch(m)
}

// Close is a no-op.
func (b *NullBridge) Close() error { return nil }
