// codec.go encodes and decodes msgpack-rpc frames.
//
// Wire shapes:
//
//	request:      [0, msgid, method, params]
//	response:     [1, msgid, error, result]
//	notification: [2, method, params]
//
// Neovim also sends its Buffer, Window and Tabpage handles as msgpack
// extension types 0, 1 and 2. They are registered here so a frame carrying a
// handle still decodes; ToJSON rejects them afterwards.

package msgrpc

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame type tags.
const (
	TypeRequest      = 0
	TypeResponse     = 1
	TypeNotification = 2
)

// Neovim handle types. Each is the integer handle the editor uses.
type (
	Buffer  int64
	Window  int64
	Tabpage int64
)

// handle is implemented by the extension types above.
type handle interface{ extName() string }

func (Buffer) extName() string { return "buffer" }
func (Window) extName() string { return "window" }
func (Tabpage) extName() string { return "tabpage" }

func (b *Buffer) MarshalMsgpack() ([]byte, error) { return msgpack.Marshal(int64(*b)) }
func (b *Buffer) UnmarshalMsgpack(data []byte) error { return unmarshalHandle(data, (*int64)(b)) }
func (w *Window) MarshalMsgpack() ([]byte, error) { return msgpack.Marshal(int64(*w)) }
func (w *Window) UnmarshalMsgpack(data []byte) error { return unmarshalHandle(data, (*int64)(w)) }
func (p *Tabpage) MarshalMsgpack() ([]byte, error) { return msgpack.Marshal(int64(*p)) }
func (p *Tabpage) UnmarshalMsgpack(data []byte) error { return unmarshalHandle(data, (*int64)(p)) }

func unmarshalHandle(data []byte, dst *int64) error {
	return msgpack.Unmarshal(data, dst)
}

func init() {
	msgpack.RegisterExt(0, (*Buffer)(nil))
	msgpack.RegisterExt(1, (*Window)(nil))
	msgpack.RegisterExt(2, (*Tabpage)(nil))
}

// HandleID returns the integer behind a Buffer, Window or Tabpage value.
func HandleID(v any) (int64, bool) {
	switch h := v.(type) {
	case Buffer:
		return int64(h), true
	case *Buffer:
		return int64(*h), true
	case Window:
		return int64(h), true
	case *Window:
		return int64(*h), true
	case Tabpage:
		return int64(h), true
	case *Tabpage:
		return int64(*h), true
	}
	return 0, false
}

// Frame is one decoded message. Fields not used by Type are zero.
type Frame struct {
	Type   int
	MsgID  uint32
	Method string
	Params []any
	Error  any
	Result any
}

// NewDecoder returns a decoder that yields map[any]any maps, so integer map
// keys survive decoding. Numbers keep their wire width and binary stays
// []byte; ToJSON normalises both.
func NewDecoder(r io.Reader) *msgpack.Decoder {
	dec := msgpack.NewDecoder(r)
	dec.SetMapDecoder(func(d *msgpack.Decoder) (any, error) {
		return d.DecodeUntypedMap()
	})
	return dec
}

// Marshal encodes v the way frames are encoded: compact integers, and
// struct fields named by their json tags.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeRequest returns the bytes of a request frame.
func EncodeRequest(msgid uint32, method string, params []any) ([]byte, error) {
	if params == nil {
		params = []any{}
	}
	return Marshal([]any{TypeRequest, msgid, method, params})
}

// EncodeResponse returns the bytes of a response frame.
func EncodeResponse(msgid uint32, errVal, result any) ([]byte, error) {
	return Marshal([]any{TypeResponse, msgid, errVal, result})
}

// EncodeNotification returns the bytes of a notification frame.
func EncodeNotification(method string, params []any) ([]byte, error) {
	if params == nil {
		params = []any{}
	}
	return Marshal([]any{TypeNotification, method, params})
}

// ReadFrame decodes the next frame. Stream failures come back unclassified;
// shape violations come back as *ProtocolError.
func ReadFrame(dec *msgpack.Decoder) (Frame, error) {
	v, err := dec.DecodeInterface()
	if err != nil {
		return Frame{}, err
	}
	return parseFrame(v)
}

func parseFrame(v any) (Frame, error) {
	arr, ok := v.([]any)
	if !ok {
		return Frame{}, &ProtocolError{Reason: fmt.Sprintf("frame is %T, not an array", v)}
	}
	if len(arr) < 3 {
		return Frame{}, &ProtocolError{Reason: fmt.Sprintf("frame has %d elements", len(arr))}
	}
	kind, ok := toInt64(arr[0])
	if !ok {
		return Frame{}, &ProtocolError{Reason: fmt.Sprintf("frame type is %T", arr[0])}
	}

	switch kind {
	case TypeRequest:
		if len(arr) != 4 {
			return Frame{}, &ProtocolError{Reason: "request frame must have 4 elements"}
		}
		id, err := msgID(arr[1])
		if err != nil {
			return Frame{}, err
		}
		method, ok := arr[2].(string)
		if !ok {
			return Frame{}, &ProtocolError{Reason: "request method is not a string"}
		}
		params, err := paramList(arr[3])
		if err != nil {
			return Frame{}, err
		}
		return Frame{Type: TypeRequest, MsgID: id, Method: method, Params: params}, nil

	case TypeResponse:
		if len(arr) != 4 {
			return Frame{}, &ProtocolError{Reason: "response frame must have 4 elements"}
		}
		id, err := msgID(arr[1])
		if err != nil {
			return Frame{}, err
		}
		return Frame{Type: TypeResponse, MsgID: id, Error: arr[2], Result: arr[3]}, nil

	case TypeNotification:
		if len(arr) != 3 {
			return Frame{}, &ProtocolError{Reason: "notification frame must have 3 elements"}
		}
		method, ok := arr[1].(string)
		if !ok {
			return Frame{}, &ProtocolError{Reason: "notification method is not a string"}
		}
		params, err := paramList(arr[2])
		if err != nil {
			return Frame{}, err
		}
		return Frame{Type: TypeNotification, Method: method, Params: params}, nil
	}
	return Frame{}, &ProtocolError{Reason: fmt.Sprintf("unknown frame type %d", kind)}
}

func msgID(v any) (uint32, error) {
	n, ok := toInt64(v)
	if !ok || n < 0 || n > math.MaxUint32 {
		return 0, &ProtocolError{Reason: fmt.Sprintf("invalid msgid %v", v)}
	}
	return uint32(n), nil
}

func paramList(v any) ([]any, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return p, nil
	}
	return nil, &ProtocolError{Reason: fmt.Sprintf("params are %T, not an array", v)}
}

// AsInt64 converts any decoded integer to int64.
func AsInt64(v any) (int64, bool) {
	return toInt64(v)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}
