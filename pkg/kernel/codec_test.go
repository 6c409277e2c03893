package kernel

import (
	"testing"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

func TestCodecRoundTrip(t *testing.T) {
	codec := JupyterCodec{}
	key := []byte("secret")

	msg := NewMessage("execute_request", "session-1")
	msg.Identities = [][]byte{[]byte("client-a")}
	msg.Content = map[string]any{"code": "2 + 2", "silent": false}
	msg.Metadata = map[string]any{"origin": "test"}

	frames, err := codec.Encode(msg, key)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := codec.Decode(frames, key)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Header.MsgID != msg.Header.MsgID {
		t.Errorf("msg_id = %q, want %q", decoded.Header.MsgID, msg.Header.MsgID)
	}
	if decoded.Header.MsgType != "execute_request" || decoded.Header.Session != "session-1" {
		t.Errorf("header = %+v", decoded.Header)
	}
	if len(decoded.Identities) != 1 || string(decoded.Identities[0]) != "client-a" {
		t.Errorf("identities = %v", decoded.Identities)
	}
	if decoded.Content["code"] != "2 + 2" {
		t.Errorf("content = %v", decoded.Content)
	}
	if decoded.Metadata["origin"] != "test" {
		t.Errorf("metadata = %v", decoded.Metadata)
	}
}

func TestCodecReplyLinksParent(t *testing.T) {
	parent := NewMessage("execute_request", "session-1")
	parent.Identities = [][]byte{[]byte("client-a")}

	reply := Reply(parent, "execute_reply", map[string]any{"status": "ok"})
	if reply.ParentHeader.MsgID != parent.Header.MsgID {
		t.Errorf("parent_header.msg_id = %q, want %q", reply.ParentHeader.MsgID, parent.Header.MsgID)
	}
	if reply.Header.Session != "session-1" {
		t.Errorf("reply session = %q", reply.Header.Session)
	}
	if reply.Header.MsgID == parent.Header.MsgID {
		t.Error("reply must get a fresh msg_id")
	}
	if len(reply.Identities) != 1 || string(reply.Identities[0]) != "client-a" {
		t.Errorf("reply identities = %v", reply.Identities)
	}
}

func TestCodecDecodeMalformed(t *testing.T) {
	codec := JupyterCodec{}
	key := []byte("secret")

	good, err := codec.Encode(NewMessage("kernel_info_request", "s"), key)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	tests := []struct {
		name   string
		frames [][]byte
	}{
		{"empty", nil},
		{"missing delimiter", good[1:]},
		{"too few frames after delimiter", good[:len(good)-1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := codec.Decode(tt.frames, key); lserror.KindOf(err) != lserror.KindMalformedFrame {
				t.Fatalf("got %v, want malformed frame", err)
			}
		})
	}
}

func TestCodecSignature(t *testing.T) {
	codec := JupyterCodec{}
	frames, err := codec.Encode(NewMessage("kernel_info_request", "s"), []byte("secret"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if _, err := codec.Decode(frames, []byte("wrong-key")); lserror.KindOf(err) != lserror.KindMalformedFrame {
		t.Errorf("wrong key: got %v, want malformed frame", err)
	}

	// An empty key disables verification.
	if _, err := codec.Decode(frames, nil); err != nil {
		t.Errorf("unsigned decode failed: %v", err)
	}
}

func TestCodecRegistry(t *testing.T) {
	if _, err := CodecFor("jupyter-" + ProtocolVersion); err != nil {
		t.Fatalf("built-in codec missing: %v", err)
	}
	if _, err := CodecFor("morse-1.0"); lserror.KindOf(err) != lserror.KindNotFound {
		t.Errorf("unknown codec: got %v, want not found", err)
	}
}
