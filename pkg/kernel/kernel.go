package kernel

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/llmspell-dev/llmspell/internal/observability"
	"github.com/llmspell-dev/llmspell/pkg/executor"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
	"github.com/llmspell-dev/llmspell/pkg/sessions"
	"github.com/llmspell-dev/llmspell/pkg/state"
	"github.com/llmspell-dev/llmspell/pkg/tenancy"
	"github.com/llmspell-dev/llmspell/pkg/tools"
)

// DefaultMaxClients bounds concurrent shell clients.
const DefaultMaxClients = 16

// Interpreter executes code sent via execute_request. The runtime plugs
// its script engines in here.
type Interpreter func(ctx context.Context, sessionID, code string) (any, error)

// Config carries everything a kernel needs to serve.
type Config struct {
	ID              string
	Connection      ConnectionInfo
	SessionBackend  string
	MaxClients      int
	Interpreter     Interpreter
	Tenants         *tenancy.Registry
	TenantForClient func(clientID string) string
}

// Kernel multiplexes the five channels onto the executor. One kernel
// serves many Jupyter sessions; each shell client is tracked and removed
// on disconnect.
type Kernel struct {
	id        string
	info      ConnectionInfo
	codec     Codec
	transport Transport
	exec      *executor.Executor
	sessions  *sessions.Manager
	comms     *CommManager
	tools     *tools.Registry

	sessionBackend string
	maxClients     int
	interp         Interpreter
	tenants        *tenancy.Registry
	tenantFor      func(clientID string) string

	mu       sync.Mutex
	clients  map[string]time.Time
	restart  bool
	shutdown chan struct{}
	downOnce sync.Once

	execMu     sync.Mutex
	execCancel context.CancelFunc
}

// New assembles a kernel over an already-built executor and its stores.
func New(cfg Config, transport Transport, exec *executor.Executor,
	sessionMgr *sessions.Manager, stateMgr *state.Manager, toolReg *tools.Registry) (*Kernel, error) {

	codec, err := CodecFor("jupyter-" + ProtocolVersion)
	if err != nil {
		return nil, err
	}
	id := cfg.ID
	if id == "" {
		id = uuid.New().String()
	}
	maxClients := cfg.MaxClients
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	backend := cfg.SessionBackend
	if backend == "" {
		backend = "memory"
	}
	return &Kernel{
		id:             id,
		info:           cfg.Connection,
		codec:          codec,
		transport:      transport,
		exec:           exec,
		sessions:       sessionMgr,
		comms:          NewCommManager(sessionMgr, stateMgr),
		tools:          toolReg,
		sessionBackend: backend,
		maxClients:     maxClients,
		interp:         cfg.Interpreter,
		tenants:        cfg.Tenants,
		tenantFor:      cfg.TenantForClient,
		clients:        make(map[string]time.Time),
		shutdown:       make(chan struct{}),
	}, nil
}

// ID returns the kernel id.
func (k *Kernel) ID() string { return k.id }

// Comms exposes the comm manager.
func (k *Kernel) Comms() *CommManager { return k.comms }

// Shutdown returns a channel closed when a shutdown_request arrives.
func (k *Kernel) Shutdown() <-chan struct{} { return k.shutdown }

// Restart reports whether the shutdown asked for a restart.
func (k *Kernel) Restart() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.restart
}

// Serve binds the transport and pumps shell and control until shutdown or
// ctx cancellation. The heartbeat echo runs inside the transport.
func (k *Kernel) Serve(ctx context.Context) error {
	if err := k.transport.Bind(k.info); err != nil {
		return err
	}
	defer k.transport.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-k.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	for _, ch := range []Channel{ChannelShell, ChannelControl} {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			k.pump(ctx, ch)
		}(ch)
	}
	wg.Wait()
	log.Printf("[Kernel] %s stopped (restart=%v)", k.id, k.Restart())
	return nil
}

// pump reads, dispatches and replies on one channel until ctx ends.
// Decode failures produce an error reply; they never kill the loop.
func (k *Kernel) pump(ctx context.Context, ch Channel) {
	key := []byte(k.info.Key)
	for {
		if ctx.Err() != nil {
			return
		}
		frames, err := k.transport.Recv(ch)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Kernel] recv on %s: %v", ch, err)
			continue
		}
		msg, err := k.codec.Decode(frames, key)
		if err != nil {
			log.Printf("[Kernel] decode on %s: %v", ch, err)
			k.send(ch, &Message{
				Header:  Header{MsgID: uuid.New().String(), MsgType: "error", Version: ProtocolVersion},
				Content: ErrorContent(err),
			})
			continue
		}
		reply := k.Dispatch(ctx, ch, msg)
		if reply != nil {
			k.send(ch, reply)
		}
	}
}

func (k *Kernel) send(ch Channel, msg *Message) {
	frames, err := k.codec.Encode(msg, []byte(k.info.Key))
	if err != nil {
		log.Printf("[Kernel] encode for %s: %v", ch, err)
		return
	}
	if err := k.transport.Send(ch, frames); err != nil {
		log.Printf("[Kernel] send on %s: %v", ch, err)
	}
}

// publish broadcasts a message on iopub. Transport may be absent in
// embedded use; then broadcasts are dropped.
func (k *Kernel) publish(msg *Message) {
	if k.transport == nil {
		return
	}
	k.send(ChannelIOPub, msg)
}

// Dispatch routes one decoded message to its handler and returns the
// reply, or nil when the message type produces none. Handler errors come
// back as a status=error reply with a sanitized message.
func (k *Kernel) Dispatch(ctx context.Context, ch Channel, msg *Message) *Message {
	observability.RecordKernelMessage(string(ch), msg.Header.MsgType)
	k.trackClient(msg.Header.Session)
	ctx = k.tenantContext(ctx, msg.Header.Session)

	switch msg.Header.MsgType {
	case "kernel_info_request":
		return Reply(msg, "kernel_info_reply", k.kernelInfo())
	case "execute_request":
		return k.handleExecute(ctx, msg)
	case "shutdown_request":
		return k.handleShutdown(ch, msg)
	case "interrupt_request":
		k.Interrupt()
		return Reply(msg, "interrupt_reply", map[string]any{"status": "ok"})
	case "comm_open":
		return k.handleCommOpen(ctx, msg)
	case "comm_msg":
		return k.handleCommMsg(ctx, msg)
	case "comm_close":
		commID, _ := msg.Content["comm_id"].(string)
		k.comms.Close(commID)
		return nil
	case "tool_request":
		return Reply(msg, "tool_reply", k.HandleToolRequest(ctx, msg.Content))
	default:
		return Reply(msg, "error", ErrorContent(
			lserror.Validation("msg_type", "unsupported message type: "+msg.Header.MsgType)))
	}
}

// Interrupt cancels the in-flight execution, if any.
func (k *Kernel) Interrupt() {
	k.execMu.Lock()
	cancel := k.execCancel
	k.execMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// DisconnectClient drops a client's tracking entry. The tenant context
// lives only inside per-request contexts, so nothing else lingers.
func (k *Kernel) DisconnectClient(clientID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.clients, clientID)
	observability.SetClientsConnected(len(k.clients))
}

// ClientCount returns the number of tracked clients.
func (k *Kernel) ClientCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.clients)
}

func (k *Kernel) trackClient(clientID string) {
	if clientID == "" {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.clients[clientID] = time.Now()
	observability.SetClientsConnected(len(k.clients))
}

// tenantContext attaches the client's tenant when a mapping is configured.
func (k *Kernel) tenantContext(ctx context.Context, clientID string) context.Context {
	if k.tenants == nil || k.tenantFor == nil {
		return ctx
	}
	if id := k.tenantFor(clientID); id != "" {
		return tenancy.WithTenant(ctx, id)
	}
	return ctx
}

func (k *Kernel) kernelInfo() map[string]any {
	return map[string]any{
		"status":                 "ok",
		"protocol_version":       ProtocolVersion,
		"implementation":         Implementation,
		"implementation_version": Version,
		"language_info": map[string]any{
			"name":           "llmspell",
			"version":        Version,
			"mimetype":       "text/plain",
			"file_extension": ".spell",
		},
		"banner": "llmspell kernel " + Version,
		"llmspell_session_metadata": map[string]any{
			"session_persistence_backend": k.sessionBackend,
			"comm_targets":                k.comms.Targets(),
			"max_clients":                 k.maxClients,
		},
	}
}

func (k *Kernel) handleExecute(ctx context.Context, msg *Message) *Message {
	code, _ := msg.Content["code"].(string)
	silent, _ := msg.Content["silent"].(bool)

	session, err := k.sessions.GetOrCreate(ctx, msg.Header.Session, k.id)
	if err != nil {
		return Reply(msg, "execute_reply", ErrorContent(err))
	}
	count, err := k.sessions.RecordExecution(ctx, session.ID)
	if err != nil {
		return Reply(msg, "execute_reply", ErrorContent(err))
	}

	if !silent {
		k.publish(Reply(msg, "status", map[string]any{"execution_state": "busy"}))
		k.publish(Reply(msg, "execute_input", map[string]any{
			"code":            code,
			"execution_count": count,
		}))
		defer k.publish(Reply(msg, "status", map[string]any{"execution_state": "idle"}))
	}

	if k.interp == nil {
		return Reply(msg, "execute_reply", map[string]any{
			"status":          "error",
			"execution_count": count,
			"error":           "no interpreter configured",
		})
	}

	execCtx, cancel := context.WithCancel(ctx)
	k.execMu.Lock()
	k.execCancel = cancel
	k.execMu.Unlock()
	result, err := k.interp(execCtx, session.ID, code)
	cancel()
	k.execMu.Lock()
	k.execCancel = nil
	k.execMu.Unlock()

	if err != nil {
		return Reply(msg, "execute_reply", map[string]any{
			"status":          "error",
			"execution_count": count,
			"error":           err.Error(),
		})
	}
	reply := map[string]any{
		"status":          "ok",
		"execution_count": count,
	}
	if result != nil {
		reply["payload"] = result
	}
	return Reply(msg, "execute_reply", reply)
}

func (k *Kernel) handleShutdown(ch Channel, msg *Message) *Message {
	restart, _ := msg.Content["restart"].(bool)
	k.mu.Lock()
	k.restart = restart
	k.mu.Unlock()
	k.downOnce.Do(func() { close(k.shutdown) })
	if ch != ChannelControl {
		log.Printf("[Kernel] shutdown_request on %s, honoring anyway", ch)
	}
	return Reply(msg, "shutdown_reply", map[string]any{
		"status":  "ok",
		"restart": restart,
	})
}

func (k *Kernel) handleCommOpen(ctx context.Context, msg *Message) *Message {
	commID, _ := msg.Content["comm_id"].(string)
	target, _ := msg.Content["target_name"].(string)
	if _, err := k.comms.Open(ctx, commID, target, msg.Header.Session, k.id); err != nil {
		// Per protocol, a failed open closes the comm on the client side.
		reply := Reply(msg, "comm_close", map[string]any{"comm_id": commID})
		reply.Content["error"] = err.Error()
		return reply
	}
	return nil
}

func (k *Kernel) handleCommMsg(ctx context.Context, msg *Message) *Message {
	commID, _ := msg.Content["comm_id"].(string)
	data, _ := msg.Content["data"].(map[string]any)
	result, err := k.comms.Handle(ctx, commID, data)
	content := map[string]any{"comm_id": commID}
	if err != nil {
		content["data"] = map[string]any{"status": "error", "error": err.Error()}
	} else {
		content["data"] = map[string]any{"status": "ok", "data": result}
	}
	return Reply(msg, "comm_msg", content)
}
