package kernel

import (
	"context"
	"log"
	"sync"

	"github.com/go-zeromq/zmq4"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// Transport moves raw multipart frames on the five channels. The ZeroMQ
// implementation is the production one; tests use an in-process fake.
type Transport interface {
	// Bind acquires every endpoint or fails without binding any.
	Bind(info ConnectionInfo) error

	// Send writes one multipart message on a channel. iopub fans out to
	// all current subscribers.
	Send(ch Channel, frames [][]byte) error

	// Recv blocks for the next multipart message on a channel.
	Recv(ch Channel) ([][]byte, error)

	// Close releases all sockets.
	Close() error
}

// ZMQTransport is the ZeroMQ socket set: shell/stdin/control as ROUTER,
// iopub as PUB, heartbeat as REP with a built-in echo loop.
type ZMQTransport struct {
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	sockets map[Channel]zmq4.Socket
	hbDone  chan struct{}
}

// NewZMQTransport creates an unbound transport.
func NewZMQTransport(ctx context.Context) *ZMQTransport {
	ctx, cancel := context.WithCancel(ctx)
	return &ZMQTransport{
		ctx:     ctx,
		cancel:  cancel,
		sockets: make(map[Channel]zmq4.Socket),
		hbDone:  make(chan struct{}),
	}
}

// Bind opens all five endpoints. Any failure closes what was already
// bound and reports which endpoint could not be acquired.
func (t *ZMQTransport) Bind(info ConnectionInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	builders := []struct {
		ch   Channel
		make func() zmq4.Socket
	}{
		{ChannelShell, func() zmq4.Socket { return zmq4.NewRouter(t.ctx) }},
		{ChannelIOPub, func() zmq4.Socket { return zmq4.NewPub(t.ctx) }},
		{ChannelStdin, func() zmq4.Socket { return zmq4.NewRouter(t.ctx) }},
		{ChannelControl, func() zmq4.Socket { return zmq4.NewRouter(t.ctx) }},
		{ChannelHeartbeat, func() zmq4.Socket { return zmq4.NewRep(t.ctx) }},
	}
	for _, b := range builders {
		sock := b.make()
		endpoint := info.Endpoint(b.ch)
		if err := sock.Listen(endpoint); err != nil {
			sock.Close()
			t.closeLocked()
			return lserror.Transport("bind " + string(b.ch) + " at " + endpoint + ": " + err.Error())
		}
		t.sockets[b.ch] = sock
	}

	go t.heartbeatLoop()
	log.Printf("[Kernel] transport bound at %s (shell=%d iopub=%d)", info.IP, info.ShellPort, info.IOPubPort)
	return nil
}

// Send writes frames on the channel's socket.
func (t *ZMQTransport) Send(ch Channel, frames [][]byte) error {
	sock, err := t.socket(ch)
	if err != nil {
		return err
	}
	if err := sock.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		return lserror.Transport("send on " + string(ch) + ": " + err.Error())
	}
	return nil
}

// Recv blocks for the next message on the channel's socket.
func (t *ZMQTransport) Recv(ch Channel) ([][]byte, error) {
	sock, err := t.socket(ch)
	if err != nil {
		return nil, err
	}
	msg, err := sock.Recv()
	if err != nil {
		return nil, lserror.Transport("recv on " + string(ch) + ": " + err.Error())
	}
	return msg.Frames, nil
}

// Close tears down every socket and stops the heartbeat loop.
func (t *ZMQTransport) Close() error {
	t.cancel()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
	return nil
}

func (t *ZMQTransport) socket(ch Channel) (zmq4.Socket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sock, exists := t.sockets[ch]
	if !exists {
		return nil, lserror.Transport("channel " + string(ch) + " is not bound")
	}
	return sock, nil
}

func (t *ZMQTransport) closeLocked() {
	for ch, sock := range t.sockets {
		sock.Close()
		delete(t.sockets, ch)
	}
}

// heartbeatLoop echoes every ping back unchanged until the transport
// closes.
func (t *ZMQTransport) heartbeatLoop() {
	defer close(t.hbDone)
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}
		frames, err := t.Recv(ChannelHeartbeat)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			log.Printf("[Kernel] heartbeat recv: %v", err)
			continue
		}
		if err := t.Send(ChannelHeartbeat, frames); err != nil && t.ctx.Err() == nil {
			log.Printf("[Kernel] heartbeat send: %v", err)
		}
	}
}
