package network

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHello(t *testing.T) {
	frame, err := DecodeClientFrame([]byte(`{"t":"hello","name":"  Worm  "}`))
	require.NoError(t, err)
	require.NotNil(t, frame.Hello)
	assert.Equal(t, TypeHello, frame.Type)
	assert.Equal(t, "  Worm  ", frame.Hello.Name)
}

func TestDecodeInput(t *testing.T) {
	frame, err := DecodeClientFrame([]byte(`{"t":"input","playerId":"p1","directionRad":1.5,"boosting":true}`))
	require.NoError(t, err)
	require.NotNil(t, frame.Input)
	assert.Equal(t, "p1", frame.Input.PlayerID)
	require.NotNil(t, frame.Input.DirectionRad)
	assert.Equal(t, 1.5, *frame.Input.DirectionRad)
	require.NotNil(t, frame.Input.Boosting)
	assert.True(t, *frame.Input.Boosting)
}

func TestDecodeInputOptionalFields(t *testing.T) {
	frame, err := DecodeClientFrame([]byte(`{"t":"input","playerId":"p1"}`))
	require.NoError(t, err)
	assert.Nil(t, frame.Input.DirectionRad)
	assert.Nil(t, frame.Input.Boosting)
}

func TestDecodePingPong(t *testing.T) {
	frame, err := DecodeClientFrame([]byte(`{"t":"ping","pingId":77}`))
	require.NoError(t, err)
	assert.EqualValues(t, 77, frame.Ping.PingID)

	frame, err = DecodeClientFrame([]byte(`{"t":"pong","pingId":42}`))
	require.NoError(t, err)
	assert.EqualValues(t, 42, frame.Pong.PingID)
}

func TestDecodeUnknownTag(t *testing.T) {
	_, err := DecodeClientFrame([]byte(`{"t":"teleport","x":1}`))
	assert.ErrorIs(t, err, ErrUnknownFrame)
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		``,
		`{"t":"input","directionRad":"sideways"}`,
		`{"t":"hello","name":7}`,
	} {
		_, err := DecodeClientFrame([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedFrame, "input: %s", raw)
	}
}

func TestEncodeFramesCarryTags(t *testing.T) {
	cases := map[string][]byte{
		"welcome":     EncodeWelcome("s1", 1000),
		"joined":      EncodeJoined("r1", "p1"),
		"error":       EncodeError(ErrInvalidName),
		"latency":     EncodeLatency(25),
		"ping":        EncodeServerPing(9),
		"pong":        EncodeServerPong(1000, 9),
		"dead":        EncodeDead(),
		"room_closed": EncodeRoomClosed("r1", "manual"),
	}
	for want, data := range cases {
		var env struct {
			T string `json:"t"`
		}
		require.NoError(t, json.Unmarshal(data, &env))
		assert.Equal(t, want, env.T)
	}
}

func TestJoinedRoundTrip(t *testing.T) {
	data := EncodeJoined("room-9", "player-3")

	var decoded JoinedFrame
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "room-9", decoded.RoomID)
	assert.Equal(t, "player-3", decoded.PlayerID)
}
