package kernel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// Delimiter separates transport identities from the signed message frames.
const Delimiter = "<IDS|MSG>"

// Codec encodes and decodes one protocol's multipart framing. Adapters
// for other protocols register under their own tag.
type Codec interface {
	// Encode renders msg as wire frames, signing with key.
	Encode(msg *Message, key []byte) ([][]byte, error)

	// Decode parses wire frames, verifying the signature when key is set.
	Decode(frames [][]byte, key []byte) (*Message, error)
}

var (
	codecMu sync.RWMutex
	codecs  = map[string]Codec{}
)

// RegisterCodec installs a protocol codec under tag.
func RegisterCodec(tag string, c Codec) {
	codecMu.Lock()
	defer codecMu.Unlock()
	codecs[tag] = c
}

// CodecFor returns the codec registered under tag.
func CodecFor(tag string) (Codec, error) {
	codecMu.RLock()
	defer codecMu.RUnlock()
	c, exists := codecs[tag]
	if !exists {
		return nil, lserror.NotFound("protocol codec " + tag)
	}
	return c, nil
}

func init() {
	RegisterCodec("jupyter-"+ProtocolVersion, JupyterCodec{})
}

// JupyterCodec is the wire format: identities, the delimiter, an
// hmac-sha256 signature, then header / parent_header / metadata / content
// as JSON frames.
type JupyterCodec struct{}

// Encode renders the message. Encode then Decode is the identity.
func (JupyterCodec) Encode(msg *Message, key []byte) ([][]byte, error) {
	header, err := json.Marshal(msg.Header)
	if err != nil {
		return nil, lserror.Internal(err)
	}
	parent, err := json.Marshal(msg.ParentHeader)
	if err != nil {
		return nil, lserror.Internal(err)
	}
	metadata, err := json.Marshal(orEmpty(msg.Metadata))
	if err != nil {
		return nil, lserror.Internal(err)
	}
	content, err := json.Marshal(orEmpty(msg.Content))
	if err != nil {
		return nil, lserror.Internal(err)
	}

	frames := make([][]byte, 0, len(msg.Identities)+6)
	frames = append(frames, msg.Identities...)
	frames = append(frames, []byte(Delimiter))
	frames = append(frames, []byte(sign(key, header, parent, metadata, content)))
	frames = append(frames, header, parent, metadata, content)
	return frames, nil
}

// Decode parses frames. Missing delimiter or fewer than five frames after
// it is a malformed frame; so is a bad signature.
func (JupyterCodec) Decode(frames [][]byte, key []byte) (*Message, error) {
	delim := -1
	for i, frame := range frames {
		if string(frame) == Delimiter {
			delim = i
			break
		}
	}
	if delim < 0 {
		return nil, lserror.MalformedFrame("missing " + Delimiter + " delimiter")
	}
	rest := frames[delim+1:]
	if len(rest) < 5 {
		return nil, lserror.MalformedFrame("expected 5 frames after delimiter, got " + strconv.Itoa(len(rest)))
	}

	signature, header, parent, metadata, content := rest[0], rest[1], rest[2], rest[3], rest[4]
	if len(key) > 0 {
		want := sign(key, header, parent, metadata, content)
		if !hmac.Equal([]byte(want), signature) {
			return nil, lserror.MalformedFrame("signature mismatch")
		}
	}

	msg := &Message{Identities: frames[:delim]}
	if err := json.Unmarshal(header, &msg.Header); err != nil {
		return nil, lserror.MalformedFrame("bad header: " + err.Error())
	}
	if err := json.Unmarshal(parent, &msg.ParentHeader); err != nil {
		return nil, lserror.MalformedFrame("bad parent_header: " + err.Error())
	}
	if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
		return nil, lserror.MalformedFrame("bad metadata: " + err.Error())
	}
	if err := json.Unmarshal(content, &msg.Content); err != nil {
		return nil, lserror.MalformedFrame("bad content: " + err.Error())
	}
	return msg, nil
}

func sign(key []byte, parts ...[]byte) string {
	if len(key) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, key)
	for _, p := range parts {
		mac.Write(p)
	}
	return hex.EncodeToString(mac.Sum(nil))
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
