package network

import (
	"encoding/json"
	"errors"
)

var (
	// ErrMalformedFrame covers frames that are not valid JSON or whose
	// fields do not decode. Policy: silent drop.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownFrame covers syntactically valid frames with an
	// unrecognized tag. Policy: silent ignore.
	ErrUnknownFrame = errors.New("unknown frame type")
)

// ClientFrame is the tagged variant over the known inbound frame kinds.
// Exactly one of the pointers is non-nil after a successful decode.
type ClientFrame struct {
	Type  string
	Hello *HelloFrame
	Input *InputFrame
	Ping  *PingFrame
	Pong  *PongFrame
}

// envelope extracts the tag before the payload is decoded.
type envelope struct {
	T string `json:"t"`
}

// DecodeClientFrame parses one inbound text frame into its tagged variant.
func DecodeClientFrame(data []byte) (ClientFrame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ClientFrame{}, ErrMalformedFrame
	}

	frame := ClientFrame{Type: env.T}
	switch env.T {
	case TypeHello:
		frame.Hello = &HelloFrame{}
		if err := json.Unmarshal(data, frame.Hello); err != nil {
			return ClientFrame{}, ErrMalformedFrame
		}
	case TypeInput:
		frame.Input = &InputFrame{}
		if err := json.Unmarshal(data, frame.Input); err != nil {
			return ClientFrame{}, ErrMalformedFrame
		}
	case TypePing:
		frame.Ping = &PingFrame{}
		if err := json.Unmarshal(data, frame.Ping); err != nil {
			return ClientFrame{}, ErrMalformedFrame
		}
	case TypePong:
		frame.Pong = &PongFrame{}
		if err := json.Unmarshal(data, frame.Pong); err != nil {
			return ClientFrame{}, ErrMalformedFrame
		}
	default:
		return ClientFrame{}, ErrUnknownFrame
	}
	return frame, nil
}

// Encode marshals an outbound frame. The frame structs contain only
// finite numbers and strings, so failure means a programming error;
// callers treat a nil result as a dropped frame.
func Encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// EncodeWelcome builds the greeting sent right after the upgrade.
func EncodeWelcome(sessionID string, now int64) []byte {
	return Encode(WelcomeFrame{T: TypeWelcome, SessionID: sessionID, ServerNow: now})
}

// EncodeJoined confirms a successful hello.
func EncodeJoined(roomID, playerID string) []byte {
	return Encode(JoinedFrame{T: TypeJoined, RoomID: roomID, PlayerID: playerID})
}

// EncodeError builds a user-visible rejection frame.
func EncodeError(code string) []byte {
	return Encode(ErrorFrame{T: TypeError, Error: code})
}

// EncodeLatency reports a measured RTT.
func EncodeLatency(rttMs int64) []byte {
	return Encode(LatencyFrame{T: TypeLatency, RttMs: rttMs})
}

// EncodeServerPing builds the heartbeat ping.
func EncodeServerPing(pingID int64) []byte {
	return Encode(ServerPingFrame{T: TypePing, PingID: pingID})
}

// EncodeServerPong answers a client ping.
func EncodeServerPong(now, pingID int64) []byte {
	return Encode(ServerPongFrame{T: TypePong, Now: now, PingID: pingID})
}

// EncodeDead builds the death notification.
func EncodeDead() []byte {
	return Encode(DeadFrame{T: TypeDead})
}

// EncodeRoomClosed notifies spectators of a closing room.
func EncodeRoomClosed(roomID, reason string) []byte {
	return Encode(RoomClosedFrame{T: TypeRoomClosed, RoomID: roomID, Reason: reason})
}
