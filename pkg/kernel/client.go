package kernel

import (
	"context"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// Client drives a running kernel's shell channel. The interactive
// connect prompt and remote tooling use it.
type Client struct {
	codec   Codec
	key     []byte
	session string
	sock    zmq4.Socket
	cancel  context.CancelFunc
}

// Dial connects to the shell endpoint named by the connection info.
func Dial(ctx context.Context, info ConnectionInfo) (*Client, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	codec, err := CodecFor("jupyter-" + ProtocolVersion)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithCancel(ctx)
	sock := zmq4.NewDealer(cctx)
	endpoint := info.Endpoint(ChannelShell)
	if err := sock.Dial(endpoint); err != nil {
		cancel()
		return nil, lserror.Transport("dial " + endpoint + ": " + err.Error())
	}

	return &Client{
		codec:   codec,
		key:     []byte(info.Key),
		session: "client-" + uuid.New().String(),
		sock:    sock,
		cancel:  cancel,
	}, nil
}

// Session returns the client's Jupyter session id.
func (c *Client) Session() string { return c.session }

// Request sends one shell message and waits for its reply.
func (c *Client) Request(msgType string, content map[string]any) (*Message, error) {
	msg := NewMessage(msgType, c.session)
	msg.Content = content
	frames, err := c.codec.Encode(msg, c.key)
	if err != nil {
		return nil, err
	}
	if err := c.sock.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		return nil, lserror.Transport("send: " + err.Error())
	}
	raw, err := c.sock.Recv()
	if err != nil {
		return nil, lserror.Transport("recv: " + err.Error())
	}
	return c.codec.Decode(raw.Frames, c.key)
}

// Execute runs code on the kernel and returns the reply content.
func (c *Client) Execute(code string) (map[string]any, error) {
	reply, err := c.Request("execute_request", map[string]any{
		"code":          code,
		"silent":        false,
		"store_history": true,
	})
	if err != nil {
		return nil, err
	}
	return reply.Content, nil
}

// KernelInfo fetches the kernel's info block.
func (c *Client) KernelInfo() (map[string]any, error) {
	reply, err := c.Request("kernel_info_request", map[string]any{})
	if err != nil {
		return nil, err
	}
	return reply.Content, nil
}

// Tool issues a tool request (list, info, invoke, test, search).
func (c *Client) Tool(content map[string]any) (map[string]any, error) {
	reply, err := c.Request("tool_request", content)
	if err != nil {
		return nil, err
	}
	return reply.Content, nil
}

// Close tears the connection down.
func (c *Client) Close() error {
	c.cancel()
	return c.sock.Close()
}
