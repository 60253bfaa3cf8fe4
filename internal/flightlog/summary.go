package flightlog

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/precision.land/internal/detection"
	"github.com/banshee-data/precision.land/internal/landing"
)

// Summary condenses one session for tuning review.
type Summary struct {
	Session     Session
	Duration    time.Duration
	TimeInMode  map[string]time.Duration // landing procedure modes
	Transitions int
	Ticks       int

	// Filtered error statistics over ticks spent descending on a tracked
	// marker (ADJUST_POSITION or LANDING while TRACKING).
	GuidedTicks int
	MeanErrorX  float64
	StdErrorX   float64
	MeanErrorY  float64
	StdErrorY   float64
	MeanDescent float64 // m/s
	MinAltitude float64
}

// Summarise builds the Summary of one session.
func (s *Store) Summarise(ctx context.Context, id string) (Summary, error) {
	sess, err := s.Session(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	transitions, err := s.Transitions(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	ticks, err := s.Ticks(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return summarise(sess, transitions, ticks), nil
}

func summarise(sess Session, transitions []TransitionRecord, ticks []TickRecord) Summary {
	sum := Summary{
		Session:     sess,
		TimeInMode:  make(map[string]time.Duration),
		Transitions: len(transitions),
		Ticks:       len(ticks),
	}

	end := sess.EndedAt
	if end.IsZero() {
		end = sess.StartedAt
		if n := len(ticks); n > 0 && ticks[n-1].At.After(end) {
			end = ticks[n-1].At
		}
		if n := len(transitions); n > 0 && transitions[n-1].At.After(end) {
			end = transitions[n-1].At
		}
	}
	sum.Duration = end.Sub(sess.StartedAt)

	var landingSteps []TransitionRecord
	for _, tr := range transitions {
		if tr.Machine == MachineLanding {
			landingSteps = append(landingSteps, tr)
		}
	}
	for i, tr := range landingSteps {
		until := end
		if i+1 < len(landingSteps) {
			until = landingSteps[i+1].At
		}
		if d := until.Sub(tr.At); d > 0 {
			sum.TimeInMode[tr.To] += d
		}
	}

	var ex, ey, down []float64
	for i, t := range ticks {
		if i == 0 || t.Altitude < sum.MinAltitude {
			sum.MinAltitude = t.Altitude
		}
		if t.DetectionMode != string(detection.Tracking) {
			continue
		}
		if t.LandingMode != string(landing.AdjustPosition) && t.LandingMode != string(landing.Landing) {
			continue
		}
		ex = append(ex, t.ErrorX)
		ey = append(ey, t.ErrorY)
		down = append(down, t.Velocity.Down)
	}
	sum.GuidedTicks = len(ex)
	if len(ex) > 0 {
		sum.MeanErrorX, sum.StdErrorX = meanStd(ex)
		sum.MeanErrorY, sum.StdErrorY = meanStd(ey)
		sum.MeanDescent = stat.Mean(down, nil)
	}
	return sum
}

// meanStd is stat.MeanStdDev with a zero deviation for single samples, where
// gonum returns NaN.
func meanStd(x []float64) (float64, float64) {
	if len(x) == 1 {
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}

// WriteSummaries prints summaries as an aligned table.
func WriteSummaries(w io.Writer, sums []Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tDURATION\tOUTCOME\tTICKS\tERR_X\tERR_Y\tDESCENT\tMODES")
	for _, s := range sums {
		outcome := s.Session.Outcome
		if s.Session.Open() {
			outcome = "open"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.3f±%.3f\t%.3f±%.3f\t%.2f\t%s\n",
			s.Session.ID,
			s.Session.StartedAt.UTC().Format(time.RFC3339),
			s.Duration.Round(100*time.Millisecond),
			outcome,
			s.Ticks,
			s.MeanErrorX, s.StdErrorX,
			s.MeanErrorY, s.StdErrorY,
			s.MeanDescent,
			formatModes(s.TimeInMode),
		)
	}
	return tw.Flush()
}

func formatModes(m map[string]time.Duration) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%s", k, m[k].Round(100*time.Millisecond))
	}
	return out
}
