package kernel

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// ConnectionInfo describes the kernel's endpoints and signing key. It is
// the Jupyter connection-file shape.
type ConnectionInfo struct {
	Transport       string `json:"transport"`
	IP              string `json:"ip"`
	Key             string `json:"key"`
	SignatureScheme string `json:"signature_scheme"`
	ShellPort       int    `json:"shell_port"`
	IOPubPort       int    `json:"iopub_port"`
	StdinPort       int    `json:"stdin_port"`
	ControlPort     int    `json:"control_port"`
	HBPort          int    `json:"hb_port"`
	KernelID        string `json:"kernel_id"`
}

// Endpoint renders the address for one channel.
func (c ConnectionInfo) Endpoint(ch Channel) string {
	transport := c.Transport
	if transport == "" {
		transport = "tcp"
	}
	port := 0
	switch ch {
	case ChannelShell:
		port = c.ShellPort
	case ChannelIOPub:
		port = c.IOPubPort
	case ChannelStdin:
		port = c.StdinPort
	case ChannelControl:
		port = c.ControlPort
	case ChannelHeartbeat:
		port = c.HBPort
	}
	return fmt.Sprintf("%s://%s:%d", transport, c.IP, port)
}

// Validate rejects connection info the transport cannot bind.
func (c ConnectionInfo) Validate() error {
	if c.IP == "" {
		return lserror.Validation("ip", "connection ip must not be empty")
	}
	if c.ShellPort <= 0 || c.IOPubPort <= 0 || c.StdinPort <= 0 ||
		c.ControlPort <= 0 || c.HBPort <= 0 {
		return lserror.Validation("ports", "all five channel ports must be set")
	}
	return nil
}

// legacyConnection is the older single-port shape. Conversion fills the
// remaining ports as shell_port+1..4.
type legacyConnection struct {
	KernelID  string `json:"kernel_id"`
	IP        string `json:"ip"`
	ShellPort int    `json:"shell_port"`
}

// ParseConnection decodes a connection file, auto-detecting the Jupyter
// and legacy shapes by content.
func ParseConnection(data []byte) (ConnectionInfo, error) {
	var probe map[string]any
	if err := json.Unmarshal(data, &probe); err != nil {
		return ConnectionInfo{}, lserror.Validation("connection", "connection file is not JSON: "+err.Error())
	}

	// A Jupyter file always carries iopub_port; the legacy shape has only
	// kernel_id, ip and shell_port.
	if _, jupyter := probe["iopub_port"]; jupyter {
		var info ConnectionInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return ConnectionInfo{}, lserror.Validation("connection", err.Error())
		}
		if info.SignatureScheme == "" {
			info.SignatureScheme = "hmac-sha256"
		}
		return info, info.Validate()
	}

	var legacy legacyConnection
	if err := json.Unmarshal(data, &legacy); err != nil {
		return ConnectionInfo{}, lserror.Validation("connection", err.Error())
	}
	if legacy.ShellPort <= 0 {
		return ConnectionInfo{}, lserror.Validation("shell_port", "legacy connection file needs a shell_port")
	}
	info := ConnectionInfo{
		Transport:       "tcp",
		IP:              legacy.IP,
		SignatureScheme: "hmac-sha256",
		ShellPort:       legacy.ShellPort,
		IOPubPort:       legacy.ShellPort + 1,
		StdinPort:       legacy.ShellPort + 2,
		ControlPort:     legacy.ShellPort + 3,
		HBPort:          legacy.ShellPort + 4,
		KernelID:        legacy.KernelID,
	}
	return info, info.Validate()
}

// LoadConnection reads and parses a connection file from disk.
func LoadConnection(path string) (ConnectionInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ConnectionInfo{}, lserror.Backend(err)
	}
	return ParseConnection(data)
}

// WriteConnection persists the Jupyter-shape connection file.
func WriteConnection(path string, info ConnectionInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return lserror.Internal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return lserror.Backend(err)
	}
	return nil
}
