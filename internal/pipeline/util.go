package pipeline

import (
	"fmt"
	"time"

	"github.com/allinbits/labs/projects/sudokuctl/internal/codec"
	"github.com/allinbits/labs/projects/sudokuctl/internal/shadow"
)

// epochTime anchors the deterministic created_at derivation (§4.6); any
// fixed UTC instant works since only the offset added to it is meaningful.
var epochTime = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func durationMs(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }

// eventLine encodes a shadow event as one canonical-JSON line for the
// event log, matching every other artifact's encoding rather than
// encoding/json.Marshal's raw output.
func eventLine(ev shadow.Event) ([]byte, error) {
	generic, err := codec.ToGenericMap(ev)
	if err != nil {
		return nil, fmt.Errorf("pipeline: generalize shadow event: %w", err)
	}
	return codec.Canonicalize(generic)
}
