// Package protocol defines the tagged message unions exchanged with clients
// and their JSON wire form.
//
// Messages travel as self-describing text frames with exactly one variant tag,
// for example:
//
//	{"Join":{"room":"r1","name":"alice"}}
//	{"Progress":{"id":"alice","pos":7}}
//
// Encoding is a strict round-trip: Decode(Encode(m)) == m for every
// well-formed message. Frames with unknown tags, zero tags, multiple tags, or
// missing required fields fail decoding with ErrMalformed; the receiver is
// expected to answer with Error{code: MalformedMessage} and drop the frame.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"unicode/utf8"
)

// ErrMalformed is returned by DecodeClient and DecodeServer for any frame
// that does not describe exactly one well-formed variant.
var ErrMalformed = errors.New("protocol: malformed message")

// ErrorCode identifies the failure class carried in an Error message.
type ErrorCode string

const (
	CodeMalformedMessage ErrorCode = "MalformedMessage"
	CodeExpectedJoin     ErrorCode = "ExpectedJoin"
	CodeNameTaken        ErrorCode = "NameTaken"
	CodeNameInvalid      ErrorCode = "NameInvalid"
	CodeRoomFull         ErrorCode = "RoomFull"
	CodeWrongState       ErrorCode = "WrongState"
	CodeRateLimited      ErrorCode = "RateLimited"
	CodeLagging          ErrorCode = "Lagging"
	CodeInternal         ErrorCode = "Internal"
)

// ClosesConnection reports whether the connection must be closed after
// delivering an Error with this code. All other codes are recoverable and the
// client may retry.
func (c ErrorCode) ClosesConnection() bool {
	switch c {
	case CodeExpectedJoin, CodeLagging, CodeInternal:
		return true
	}
	return false
}

// --- Client → Server ---

// Join requests admission to a room under a display name.
type Join struct {
	Room string `json:"room"`
	Name string `json:"name"`
}

// Key is a single keystroke attempt. Ts is the client clock in unsigned
// millis and is advisory only; the server times authoritatively.
type Key struct {
	Ch string `json:"ch"`
	Ts uint64 `json:"ts"`
}

// Reset asks the room to return from Finished to Waiting.
type Reset struct{}

// ClientMsg is the tagged union of messages a client may send. Exactly one
// variant pointer is non-nil in a well-formed message.
type ClientMsg struct {
	Join  *Join  `json:"Join,omitempty"`
	Key   *Key   `json:"Key,omitempty"`
	Reset *Reset `json:"Reset,omitempty"`
}

func (m ClientMsg) validate() error {
	set := 0
	if m.Join != nil {
		set++
		if m.Join.Room == "" || m.Join.Name == "" {
			return ErrMalformed
		}
	}
	if m.Key != nil {
		set++
		if utf8.RuneCountInString(m.Key.Ch) != 1 {
			return ErrMalformed
		}
	}
	if m.Reset != nil {
		set++
	}
	if set != 1 {
		return ErrMalformed
	}
	return nil
}

// --- Server → Client ---

// Lobby is the authoritative roster snapshot, in stable join order.
type Lobby struct {
	Players []string `json:"players"`
}

// Countdown reveals the passage; typing stays gated until Start.
type Countdown struct {
	Passage    string `json:"passage"`
	StartsInMs int64  `json:"starts_in_ms"`
}

// Start marks the beginning of the race on the server monotonic clock.
type Start struct {
	T0Ms uint64 `json:"t0_ms"`
}

// Progress reports a player's cursor position.
type Progress struct {
	ID  string `json:"id"`
	Pos int    `json:"pos"`
}

// Finish reports a completed passage with the authoritative metrics.
type Finish struct {
	ID     string  `json:"id"`
	WPM    float64 `json:"wpm"`
	NetWPM float64 `json:"net_wpm"`
}

// StateChange is the coarse signal emitted after every room transition.
type StateChange struct {
	State string `json:"state"`
}

// Error carries a failure code for the offending subscriber only.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ServerMsg is the tagged union of messages the server may send.
type ServerMsg struct {
	Lobby       *Lobby       `json:"Lobby,omitempty"`
	Countdown   *Countdown   `json:"Countdown,omitempty"`
	Start       *Start       `json:"Start,omitempty"`
	Progress    *Progress    `json:"Progress,omitempty"`
	Finish      *Finish      `json:"Finish,omitempty"`
	StateChange *StateChange `json:"StateChange,omitempty"`
	Error       *Error       `json:"Error,omitempty"`
}

func (m ServerMsg) validate() error {
	set := 0
	if m.Lobby != nil {
		set++
	}
	if m.Countdown != nil {
		set++
		if m.Countdown.Passage == "" {
			return ErrMalformed
		}
	}
	if m.Start != nil {
		set++
	}
	if m.Progress != nil {
		set++
		if m.Progress.ID == "" || m.Progress.Pos < 0 {
			return ErrMalformed
		}
	}
	if m.Finish != nil {
		set++
		if m.Finish.ID == "" {
			return ErrMalformed
		}
	}
	if m.StateChange != nil {
		set++
		if m.StateChange.State == "" {
			return ErrMalformed
		}
	}
	if m.Error != nil {
		set++
		if m.Error.Code == "" {
			return ErrMalformed
		}
	}
	if set != 1 {
		return ErrMalformed
	}
	return nil
}

// --- Codec ---

// EncodeClient serializes a well-formed ClientMsg to its wire frame.
func EncodeClient(m ClientMsg) ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// DecodeClient parses a wire frame into a ClientMsg. Unknown tags and
// missing required fields yield ErrMalformed.
func DecodeClient(data []byte) (ClientMsg, error) {
	var m ClientMsg
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return ClientMsg{}, ErrMalformed
	}
	if err := m.validate(); err != nil {
		return ClientMsg{}, err
	}
	return m, nil
}

// EncodeServer serializes a well-formed ServerMsg to its wire frame.
func EncodeServer(m ServerMsg) ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// DecodeServer parses a wire frame into a ServerMsg.
func DecodeServer(data []byte) (ServerMsg, error) {
	var m ServerMsg
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return ServerMsg{}, ErrMalformed
	}
	if err := m.validate(); err != nil {
		return ServerMsg{}, err
	}
	return m, nil
}

// ErrorMsg builds an Error frame for the given code.
func ErrorMsg(code ErrorCode, message string) ServerMsg {
	return ServerMsg{Error: &Error{Code: code, Message: message}}
}
