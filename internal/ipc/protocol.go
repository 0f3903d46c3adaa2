package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/psh-project/psh/internal/state"
)

// Frame tags identify the type of each IPC message.
// Client-to-server tags are in the 0x01-0x0F range.
// Server-to-client tags are in the 0x10-0x1F range.
const (
	TagGetEnv    byte = 0x01 // C→S: no payload
	TagSetEnv    byte = 0x02 // C→S: structpb.Struct of variables to set
	TagGetStatus byte = 0x03 // C→S: no payload

	TagEnv    byte = 0x10 // S→C: structpb.Struct of every variable
	TagOK     byte = 0x11 // S→C: no payload
	TagStatus byte = 0x12 // S→C: structpb.Struct {current_command, working_dir}
	TagError  byte = 0x1F // S→C: wrapperspb.StringValue
)

// MaxFrameSize bounds the payload a reader will allocate.
const MaxFrameSize = 16 << 20

// Status struct field names.
const (
	fieldCurrentCommand = "current_command"
	fieldWorkingDir     = "working_dir"
)

// RemoteError is an error reported by the other end of a connection.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string { return "remote: " + e.Msg }

// WriteFrame writes a tagged frame: [tag:1][len:4 big-endian][payload:len].
func WriteFrame(w io.Writer, tag byte, payload []byte) error {
	var header [5]byte
	header[0] = tag
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one tagged frame, returning the tag and payload.
func ReadFrame(r io.Reader) (byte, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	tag := header[0]
	length := binary.BigEndian.Uint32(header[1:])
	if length > MaxFrameSize {
		return 0, nil, fmt.Errorf("frame of %d bytes exceeds limit of %d", length, MaxFrameSize)
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return tag, payload, nil
}

// WriteMessage writes a tagged frame with a protobuf-encoded payload.
func WriteMessage(w io.Writer, tag byte, m proto.Message) error {
	data, err := proto.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return WriteFrame(w, tag, data)
}

// WriteError writes a TagError frame carrying msg.
func WriteError(w io.Writer, msg string) error {
	return WriteMessage(w, TagError, wrapperspb.String(strings.ToValidUTF8(msg, "\uFFFD")))
}

// ReadReply reads one frame and decodes it into m when its tag is want. A
// TagError frame is returned as a *RemoteError. A nil m accepts an empty
// payload.
func ReadReply(r io.Reader, want byte, m proto.Message) error {
	tag, payload, err := ReadFrame(r)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	switch tag {
	case want:
	case TagError:
		var msg wrapperspb.StringValue
		if err := proto.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("decode error reply: %w", err)
		}
		return &RemoteError{Msg: msg.GetValue()}
	default:
		return fmt.Errorf("unexpected reply tag 0x%02x, want 0x%02x", tag, want)
	}
	if m == nil {
		return nil
	}
	if err := proto.Unmarshal(payload, m); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

// EncodeEnv packs an environment into a Struct of string values. Invalid
// UTF-8 is replaced so the message always marshals.
func EncodeEnv(env map[string]string) *structpb.Struct {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(env))}
	for k, v := range env {
		s.Fields[strings.ToValidUTF8(k, "\uFFFD")] = structpb.NewStringValue(strings.ToValidUTF8(v, "\uFFFD"))
	}
	return s
}

// DecodeEnv unpacks a Struct produced by EncodeEnv. Non-string values are
// skipped.
func DecodeEnv(s *structpb.Struct) map[string]string {
	env := make(map[string]string, len(s.GetFields()))
	for k, v := range s.GetFields() {
		if sv, ok := v.GetKind().(*structpb.Value_StringValue); ok {
			env[k] = sv.StringValue
		}
	}
	return env
}

// EncodeStatus packs a shell status.
func EncodeStatus(st state.Status) *structpb.Struct {
	return EncodeEnv(map[string]string{
		fieldCurrentCommand: st.CurrentCommand,
		fieldWorkingDir:     st.WorkingDir,
	})
}

// DecodeStatus unpacks a Struct produced by EncodeStatus.
func DecodeStatus(s *structpb.Struct) state.Status {
	fields := DecodeEnv(s)
	return state.Status{
		CurrentCommand: fields[fieldCurrentCommand],
		WorkingDir:     fields[fieldWorkingDir],
	}
}
