package metrics

import (
	"fmt"
	"io"
	"time"
)

// CheckpointWriter appends a throughput summary line every 100 blocks
// (batch size, execution time, cumulative TPS), the operational
// checkpoint.txt telemetry log. TPS is derived directly from the
// time.Duration execution took, not from a hardcoded divisor, so it
// stays correct regardless of the clock source's resolution.
type CheckpointWriter struct {
	out            io.Writer
	every          int
	blocksSeen     int
	cumulativeTxs  uint64
	cumulativeTime time.Duration
}

// NewCheckpointWriter returns a writer that appends a summary line to
// out every `every` blocks (the spec's cadence is 100).
func NewCheckpointWriter(out io.Writer, every int) *CheckpointWriter {
	if every <= 0 {
		every = 100
	}
	return &CheckpointWriter{out: out, every: every}
}

// Record accounts for one block's batch size and execution time, and
// emits a summary line once `every` blocks have accumulated.
func (c *CheckpointWriter) Record(batchSize int, executionTime time.Duration) error {
	c.blocksSeen++
	c.cumulativeTxs += uint64(batchSize)
	c.cumulativeTime += executionTime

	if c.blocksSeen%c.every != 0 {
		return nil
	}

	tps := 0.0
	if c.cumulativeTime > 0 {
		tps = float64(c.cumulativeTxs) / c.cumulativeTime.Seconds()
	}
	_, err := fmt.Fprintf(c.out, "blocks=%d batchSize=%d executionTime=%s cumulativeTPS=%.2f\n",
		c.blocksSeen, batchSize, executionTime, tps)
	return err
}
