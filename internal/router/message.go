package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kimaguri/htflow-panel/internal/server"
)

// Message is one structured message exchanged with a UI surface. On the wire
// it is a flat JSON object whose "command" field names the message.
type Message struct {
	Command string
	Payload map[string]any
}

// MarshalJSON flattens the payload next to the command name
func (m Message) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Payload)+1)
	for k, v := range m.Payload {
		out[k] = v
	}
	out["command"] = m.Command
	return json.Marshal(out)
}

// UnmarshalJSON reads a flat message object
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cmd, _ := raw["command"].(string)
	if cmd == "" {
		return errors.New("message has no command")
	}
	delete(raw, "command")
	m.Command = cmd
	m.Payload = raw
	return nil
}

// Decode parses a message read from a surface
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}

// NewMessage builds a message from alternating key/value pairs
func NewMessage(command string, kv ...any) Message {
	m := Message{Command: command, Payload: make(map[string]any, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			m.Payload[k] = kv[i+1]
		}
	}
	return m
}

// Value returns the raw payload field
func (m Message) Value(key string) any {
	if m.Payload == nil {
		return nil
	}
	return m.Payload[key]
}

// String returns a trimmed string field, or "" when absent or not a string
func (m Message) String(key string) string {
	s, _ := m.Value(key).(string)
	return strings.TrimSpace(s)
}

// Bool returns a boolean field; absent or non-boolean values are false
func (m Message) Bool(key string) bool {
	switch v := m.Value(key).(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// Port returns a usable port field. ok is false when the field is missing,
// empty or out of range.
func (m Message) Port(key string) (int, bool) {
	return server.ParsePort(m.Value(key))
}

// Outbound message names
const (
	CmdServerStarted     = "serverStarted"
	CmdServerStopped     = "serverStopped"
	CmdLiveServerStarted = "liveServerStarted"
	CmdLiveServerStopped = "liveServerStopped"
	CmdLiveServerError   = "liveServerError"
	CmdFileChanged       = "fileChanged"
	CmdCommandResults    = "commandResults"
	CmdAuditResults      = "auditResults"
	CmdWorkspaceInfo     = "workspaceInfo"
	CmdNotification      = "notification"
	CmdServerList        = "serverList"
	CmdAck               = "ack"
)

func serverStarted(id string, info server.Info) Message {
	return NewMessage(CmdServerStarted, "serverId", id, "serverInfo", info)
}

func serverStopped(id string, port int) Message {
	return NewMessage(CmdServerStopped, "serverId", id, "port", port)
}

func liveServerStarted(id string, port int, mode string) Message {
	return NewMessage(CmdLiveServerStarted, "port", port, "serverId", id, "mode", mode)
}

func liveServerStopped() Message {
	return NewMessage(CmdLiveServerStopped)
}

func liveServerError(err error) Message {
	return NewMessage(CmdLiveServerError, "error", err.Error())
}

// FileChanged builds the message sent when a watched file is written
func FileChanged(relPath, name string) Message {
	return NewMessage(CmdFileChanged, "filePath", relPath, "fileName", name)
}

// CommandData is the body of a commandResults message
type CommandData struct {
	Command  string `json:"command"`
	Output   string `json:"output"`
	Success  bool   `json:"success"`
	ExitCode int    `json:"exitCode"`
	Duration int64  `json:"duration"`
}

func commandResults(d CommandData) Message {
	return NewMessage(CmdCommandResults, "data", d)
}

func auditResults(output string) Message {
	return NewMessage(CmdAuditResults, "output", output)
}

func notification(level, text string, timeoutMs int64) Message {
	m := NewMessage(CmdNotification, "level", level, "text", text)
	if timeoutMs > 0 {
		m.Payload["timeoutMs"] = timeoutMs
	}
	return m
}

func ack(command string) Message {
	return NewMessage(CmdAck, "received", command)
}
