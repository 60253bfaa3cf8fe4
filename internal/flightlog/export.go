package flightlog

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var tickColumns = []string{
	"t", "detection", "landing", "altitude", "err_x", "err_y",
	"forward", "right", "down", "command",
}

// WriteTicksCSV writes ticks as CSV with a header row. The t column is
// seconds since start, which is usually the session start time.
func WriteTicksCSV(w io.Writer, start time.Time, ticks []TickRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tickColumns); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	for _, t := range ticks {
		row := []string{
			strconv.FormatFloat(t.At.Sub(start).Seconds(), 'f', 3, 64),
			t.DetectionMode,
			t.LandingMode,
			f(t.Altitude),
			f(t.ErrorX),
			f(t.ErrorY),
			f(t.Velocity.Forward),
			f(t.Velocity.Right),
			f(t.Velocity.Down),
			t.Command,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
