package timesync

import (
	"io"
	"time"

	"github.com/richb-hanover/crusader/pkg/wire"
)

// HandleFrame echoes f back immediately if it is a Timestamp probe,
// appending the server's own time as wall-clock Unix microseconds (not a
// monotonic reading, so a wall-clock step on the server shifts it). It reports
// whether f was a Timestamp frame (handled) so the server's generic
// control-message dispatch loop can fall through to its other cases
// otherwise.
func HandleFrame(w io.Writer, f wire.Frame) (handled bool, err error) {
	if f.Tag != wire.TagTimestamp {
		return false, nil
	}
	var ts wire.Timestamp
	if err := f.Decode(&ts); err != nil {
		return true, err
	}
	echo := wire.TimestampEcho{
		ID:         ts.ID,
		ClientTime: ts.ClientTime,
		ServerTime: time.Now().UnixMicro(),
	}
	return true, wire.WriteFrame(w, wire.TagTimestampEcho, echo)
}
