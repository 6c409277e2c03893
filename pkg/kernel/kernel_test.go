package kernel

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/llmspell-dev/llmspell/pkg/agents"
	"github.com/llmspell-dev/llmspell/pkg/executor"
	"github.com/llmspell-dev/llmspell/pkg/hooks"
	"github.com/llmspell-dev/llmspell/pkg/sessions"
	"github.com/llmspell-dev/llmspell/pkg/state"
	"github.com/llmspell-dev/llmspell/pkg/tools"
)

func newTestKernel(t *testing.T, cfg Config) *Kernel {
	t.Helper()
	pipeline := hooks.NewPipeline(hooks.NewRegistry(),
		hooks.NewBreakerManager(hooks.DefaultBreakerConfig()),
		hooks.NewPerformanceMonitor())
	stateMgr := state.NewManager(state.NewMemoryBackend())
	t.Cleanup(func() { stateMgr.Close() })

	toolReg := tools.NewRegistry()
	if err := tools.RegisterBuiltins(toolReg); err != nil {
		t.Fatal(err)
	}
	agentReg := agents.NewRegistry()
	factory := agents.NewFactory(agentReg, toolReg, pipeline)
	if err := agents.RegisterBuiltinTypes(agentReg, factory); err != nil {
		t.Fatal(err)
	}

	exec := executor.New(pipeline, executor.NewTimeoutManager(0, time.Minute),
		stateMgr, toolReg, agentReg)
	sessionMgr := sessions.NewManager(stateMgr)

	k, err := New(cfg, nil, exec, sessionMgr, stateMgr, toolReg)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func dispatch(t *testing.T, k *Kernel, ch Channel, msgType string, content map[string]any) *Message {
	t.Helper()
	msg := NewMessage(msgType, "jupyter-session-1")
	if content != nil {
		msg.Content = content
	}
	return k.Dispatch(context.Background(), ch, msg)
}

func TestKernelInfo(t *testing.T) {
	k := newTestKernel(t, Config{SessionBackend: "memory"})

	reply := dispatch(t, k, ChannelShell, "kernel_info_request", nil)
	if reply == nil || reply.Header.MsgType != "kernel_info_reply" {
		t.Fatalf("reply = %+v", reply)
	}
	c := reply.Content
	if c["protocol_version"] != ProtocolVersion {
		t.Errorf("protocol_version = %v, want %s", c["protocol_version"], ProtocolVersion)
	}
	if c["implementation"] != Implementation {
		t.Errorf("implementation = %v, want %s", c["implementation"], Implementation)
	}
	if _, ok := c["language_info"].(map[string]any); !ok {
		t.Error("language_info missing")
	}

	meta, ok := c["llmspell_session_metadata"].(map[string]any)
	if !ok {
		t.Fatal("llmspell_session_metadata missing")
	}
	if meta["session_persistence_backend"] != "memory" {
		t.Errorf("session_persistence_backend = %v", meta["session_persistence_backend"])
	}
	targets, _ := meta["comm_targets"].([]string)
	for _, want := range []string{TargetSession, TargetState} {
		found := false
		for _, got := range targets {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Errorf("comm_targets %v missing %s", targets, want)
		}
	}
	if meta["max_clients"] != DefaultMaxClients {
		t.Errorf("max_clients = %v, want %d", meta["max_clients"], DefaultMaxClients)
	}
}

func TestToolInvokeHappyPath(t *testing.T) {
	k := newTestKernel(t, Config{})

	reply := k.HandleToolRequest(context.Background(), map[string]any{
		"command": "invoke",
		"name":    "calculator",
		"params":  map[string]any{"expression": "2 + 2"},
		"timeout": float64(5),
	})
	if reply["status"] != "ok" {
		t.Fatalf("reply = %v", reply)
	}
	if reply["tool"] != "calculator" {
		t.Errorf("tool = %v", reply["tool"])
	}
	if _, ok := reply["duration_ms"].(int64); !ok {
		t.Errorf("duration_ms = %T(%v)", reply["duration_ms"], reply["duration_ms"])
	}
	result, ok := reply["result"].(map[string]any)
	if !ok {
		t.Fatalf("result = %T", reply["result"])
	}
	if result["value"].(float64) != 4 {
		t.Errorf("value = %v, want 4", result["value"])
	}
}

func TestToolInvokeNotFound(t *testing.T) {
	k := newTestKernel(t, Config{})

	reply := k.HandleToolRequest(context.Background(), map[string]any{
		"command": "invoke",
		"name":    "nonexistent_tool",
		"params":  map[string]any{},
	})
	if reply["status"] != "error" {
		t.Fatalf("reply = %v", reply)
	}
	if msg, _ := reply["error"].(string); !strings.Contains(msg, "not found") {
		t.Errorf("error = %q, want it to mention not found", msg)
	}
}

func TestToolInvokeRejectsNonObjectParams(t *testing.T) {
	k := newTestKernel(t, Config{})

	reply := k.HandleToolRequest(context.Background(), map[string]any{
		"command": "invoke",
		"name":    "calculator",
		"params":  []any{"not", "object"},
	})
	if reply["status"] != "error" {
		t.Fatalf("reply = %v", reply)
	}
	msg, _ := reply["error"].(string)
	if !strings.Contains(msg, "validation") || !strings.Contains(msg, "object") {
		t.Errorf("error = %q, want validation/object", msg)
	}
}

func TestToolListInfoSearch(t *testing.T) {
	k := newTestKernel(t, Config{})
	ctx := context.Background()

	reply := k.HandleToolRequest(ctx, map[string]any{"command": "list"})
	if reply["status"] != "ok" {
		t.Fatalf("list failed: %v", reply)
	}
	if list, _ := reply["tools"].([]any); len(list) == 0 {
		t.Error("list returned no tools")
	}

	reply = k.HandleToolRequest(ctx, map[string]any{"command": "info", "name": "calculator"})
	if reply["status"] != "ok" {
		t.Fatalf("info failed: %v", reply)
	}
	info, _ := reply["tool"].(map[string]any)
	if info["name"] != "calculator" || info["schema"] == nil {
		t.Errorf("info = %v", info)
	}

	reply = k.HandleToolRequest(ctx, map[string]any{"command": "info", "name": "ghost"})
	if reply["status"] != "error" {
		t.Errorf("info on unknown tool = %v", reply)
	}

	reply = k.HandleToolRequest(ctx, map[string]any{"command": "search", "query": []any{"arithmetic"}})
	if reply["status"] != "ok" {
		t.Fatalf("search failed: %v", reply)
	}
	found := false
	for _, item := range reply["tools"].([]any) {
		if item.(map[string]any)["name"] == "calculator" {
			found = true
		}
	}
	if !found {
		t.Error("search for arithmetic did not return the calculator")
	}

	reply = k.HandleToolRequest(ctx, map[string]any{"command": "search"})
	if reply["status"] != "error" {
		t.Errorf("empty search = %v", reply)
	}

	reply = k.HandleToolRequest(ctx, map[string]any{"command": "test", "name": "calculator", "verbose": true})
	if reply["status"] != "ok" || reply["passed"] != true || reply["descriptor"] == nil {
		t.Errorf("test = %v", reply)
	}

	reply = k.HandleToolRequest(ctx, map[string]any{"command": "frobnicate"})
	if reply["status"] != "error" {
		t.Errorf("unknown command = %v", reply)
	}
}

func TestExecuteRequest(t *testing.T) {
	k := newTestKernel(t, Config{
		Interpreter: func(ctx context.Context, sessionID, code string) (any, error) {
			return map[string]any{"echo": code}, nil
		},
	})

	for want := 1; want <= 3; want++ {
		reply := dispatch(t, k, ChannelShell, "execute_request", map[string]any{"code": "noop()"})
		if reply.Header.MsgType != "execute_reply" {
			t.Fatalf("reply type = %s", reply.Header.MsgType)
		}
		if reply.Content["status"] != "ok" {
			t.Fatalf("reply = %v", reply.Content)
		}
		if got := reply.Content["execution_count"].(int); got != want {
			t.Errorf("execution_count = %d, want %d", got, want)
		}
	}

	payload, _ := dispatch(t, k, ChannelShell, "execute_request",
		map[string]any{"code": "x"}).Content["payload"].(map[string]any)
	if payload["echo"] != "x" {
		t.Errorf("payload = %v", payload)
	}
}

func TestExecuteRequestWithoutInterpreter(t *testing.T) {
	k := newTestKernel(t, Config{})

	reply := dispatch(t, k, ChannelShell, "execute_request", map[string]any{"code": "x"})
	if reply.Content["status"] != "error" {
		t.Fatalf("reply = %v", reply.Content)
	}
	// The session still counted the attempt.
	if reply.Content["execution_count"].(int) != 1 {
		t.Errorf("execution_count = %v", reply.Content["execution_count"])
	}
}

func TestShutdownRequest(t *testing.T) {
	k := newTestKernel(t, Config{})

	reply := dispatch(t, k, ChannelControl, "shutdown_request", map[string]any{"restart": true})
	if reply.Header.MsgType != "shutdown_reply" {
		t.Fatalf("reply type = %s", reply.Header.MsgType)
	}
	if reply.Content["status"] != "ok" || reply.Content["restart"] != true {
		t.Errorf("reply = %v", reply.Content)
	}
	select {
	case <-k.Shutdown():
	default:
		t.Error("shutdown channel not closed")
	}
	if !k.Restart() {
		t.Error("restart flag not recorded")
	}
}

func TestInterruptRequest(t *testing.T) {
	started := make(chan struct{})
	k := newTestKernel(t, Config{
		Interpreter: func(ctx context.Context, sessionID, code string) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	done := make(chan *Message, 1)
	go func() {
		done <- dispatch(t, k, ChannelShell, "execute_request", map[string]any{"code": "spin()"})
	}()

	<-started
	reply := dispatch(t, k, ChannelControl, "interrupt_request", nil)
	if reply.Content["status"] != "ok" {
		t.Fatalf("interrupt reply = %v", reply.Content)
	}

	select {
	case execReply := <-done:
		if execReply.Content["status"] != "error" {
			t.Errorf("interrupted execute = %v", execReply.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("execute_request did not return after interrupt")
	}
}

func TestClientTracking(t *testing.T) {
	k := newTestKernel(t, Config{})

	for _, session := range []string{"client-a", "client-b"} {
		msg := NewMessage("kernel_info_request", session)
		k.Dispatch(context.Background(), ChannelShell, msg)
	}
	if k.ClientCount() != 2 {
		t.Errorf("ClientCount = %d, want 2", k.ClientCount())
	}
	k.DisconnectClient("client-a")
	if k.ClientCount() != 1 {
		t.Errorf("ClientCount after disconnect = %d, want 1", k.ClientCount())
	}
}

func TestUnsupportedMessageType(t *testing.T) {
	k := newTestKernel(t, Config{})

	reply := dispatch(t, k, ChannelShell, "dance_request", nil)
	if reply.Header.MsgType != "error" {
		t.Fatalf("reply type = %s", reply.Header.MsgType)
	}
	if reply.Content["status"] != "error" {
		t.Errorf("reply = %v", reply.Content)
	}
}
