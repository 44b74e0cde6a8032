package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementUnit = "hvac_unit"
	MeasurementPoll = "hvac_poll"
)

// UnitSample is one unit's status at the end of a poll.
type UnitSample struct {
	Unit       string
	Block      int
	Power      bool
	Mode       string
	Target     float64
	Fan        string
	FilterSign bool

	// RoomTemp is nil when the unit reported no valid reading.
	RoomTemp *float64
}

// PollSample summarises one poll cycle.
type PollSample struct {
	Duration   time.Duration
	Answered   int
	Unanswered int
	Updated    int
	Changed    int
	Rejected   int
}

// WriteUnitSample records a unit sample.
//
// Tags: unit, block, hvac_mode, fan_mode. The room temperature field is
// omitted when the sample has none so that gaps show as gaps.
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteUnitSample(s UnitSample, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(unitPoint(s, at))
}

// WritePollSample records the statistics of one poll cycle.
func (c *Client) WritePollSample(p PollSample, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(pollPoint(p, at))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

func unitPoint(s UnitSample, at time.Time) *write.Point {
	fields := map[string]interface{}{
		"power":              s.Power,
		"target_temperature": s.Target,
		"filter_sign":        s.FilterSign,
	}
	if s.RoomTemp != nil {
		fields["room_temperature"] = *s.RoomTemp
	}

	tags := map[string]string{
		"unit":      s.Unit,
		"hvac_mode": s.Mode,
		"fan_mode":  s.Fan,
	}
	if s.Block > 0 {
		tags["block"] = strconv.Itoa(s.Block)
	}

	return write.NewPoint(MeasurementUnit, tags, fields, at)
}

func pollPoint(p PollSample, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementPoll,
		nil,
		map[string]interface{}{
			"duration_ms": float64(p.Duration) / float64(time.Millisecond),
			"answered":    p.Answered,
			"unanswered":  p.Unanswered,
			"updated":     p.Updated,
			"changed":     p.Changed,
			"rejected":    p.Rejected,
		},
		at,
	)
}
