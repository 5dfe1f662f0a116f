// Package metrics holds the process-wide monotonic counters and the admin
// event log. Counters only ever increase; they reset at process start.
package metrics

import "sync/atomic"

// Counter is an append-only monotonic counter safe for concurrent use.
type Counter struct {
	v atomic.Int64
}

// Add increments the counter.
func (c *Counter) Add(n int64) {
	c.v.Add(n)
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	return c.v.Load()
}

// Process-wide counters.
var (
	InputSpoofRejected Counter
	InputThrottled     Counter
	InputInvalid       Counter

	FramesSent    Counter
	FramesDropped Counter

	PlayersJoined Counter
	PlayersDied   Counter

	RoomsOpened        Counter
	RoomsClosedManual  Counter
	RoomsClosedTimeout Counter

	Kicks      Counter
	BansIssued Counter

	SessionsOpened Counter
	SessionsClosed Counter
)

// Snapshot returns all counters by name for the stats endpoint.
func Snapshot() map[string]int64 {
	return map[string]int64{
		"inputSpoofRejected": InputSpoofRejected.Value(),
		"inputThrottled":     InputThrottled.Value(),
		"inputInvalid":       InputInvalid.Value(),
		"framesSent":         FramesSent.Value(),
		"framesDropped":      FramesDropped.Value(),
		"playersJoined":      PlayersJoined.Value(),
		"playersDied":        PlayersDied.Value(),
		"roomsOpened":        RoomsOpened.Value(),
		"roomsClosedManual":  RoomsClosedManual.Value(),
		"roomsClosedTimeout": RoomsClosedTimeout.Value(),
		"kicks":              Kicks.Value(),
		"bansIssued":         BansIssued.Value(),
		"sessionsOpened":     SessionsOpened.Value(),
		"sessionsClosed":     SessionsClosed.Value(),
	}
}
