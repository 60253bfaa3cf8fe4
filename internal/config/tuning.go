package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Candidate selection policies accepted by selection_policy.
const (
	SelectSmallestArea   = "smallest_area"
	SelectDivergenceSwap = "divergence_swap"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid tuning value")

// AltitudeBand is one row of the altitude-tiered schedule.
type AltitudeBand struct {
	Tolerance    float64 `json:"tolerance"`     // normalised centring tolerance
	DescentSpeed float64 `json:"descent_speed"` // m/s, positive down
}

// TuningConfig represents the root configuration for landing guidance.
// Fields omitted from the JSON file fall back to the defaults returned by
// the Get* accessors.
type TuningConfig struct {
	// Marker geometry
	MaxEdgeRatio    *float64 `json:"max_edge_ratio,omitempty"`
	MinTagArea      *float64 `json:"min_tag_area,omitempty"` // px²
	SelectionPolicy *string  `json:"selection_policy,omitempty"`
	SwapAreaDelta   *float64 `json:"swap_area_delta,omitempty"` // px²
	DetectionGrace  *string  `json:"detection_grace,omitempty"` // duration string like "3s"

	// Signal conditioning
	FilterAlpha *float64 `json:"filter_alpha,omitempty"`

	// PID bank
	ForwardKp          *float64 `json:"forward_kp,omitempty"`
	ForwardKi          *float64 `json:"forward_ki,omitempty"`
	ForwardKd          *float64 `json:"forward_kd,omitempty"`
	LateralKp          *float64 `json:"lateral_kp,omitempty"`
	LateralKi          *float64 `json:"lateral_ki,omitempty"`
	LateralKd          *float64 `json:"lateral_kd,omitempty"`
	DescentKp          *float64 `json:"descent_kp,omitempty"`
	DescentKi          *float64 `json:"descent_ki,omitempty"`
	DescentKd          *float64 `json:"descent_kd,omitempty"`
	IntegralLimit      *float64 `json:"integral_limit,omitempty"`
	MaxHorizontalSpeed *float64 `json:"max_horizontal_speed,omitempty"` // m/s
	AltitudeFeedback   *bool    `json:"altitude_feedback,omitempty"`

	// Altitude schedule
	BandHeight        *float64       `json:"band_height,omitempty"` // metres
	AltitudeBands     []AltitudeBand `json:"altitude_bands,omitempty"`
	CreepDescentSpeed *float64       `json:"creep_descent_speed,omitempty"` // m/s

	// Detection confidence
	NoDetectionThreshold   *int    `json:"no_detection_threshold,omitempty"`
	FirstAcquireDetections *int    `json:"first_acquire_detections,omitempty"`
	ReacquireDetections    *int    `json:"reacquire_detections,omitempty"`
	SearchTimeout          *string `json:"search_timeout,omitempty"`

	// Landing procedure
	WaitDuration           *string  `json:"wait_duration,omitempty"`
	WaitDetectionThreshold *int     `json:"wait_detection_threshold,omitempty"`
	LandingFloor           *float64 `json:"landing_floor,omitempty"` // metres
	LossTimeout            *string  `json:"loss_timeout,omitempty"`
	CircleRadius           *float64 `json:"circle_radius,omitempty"`       // metres
	CircleAngularRate      *float64 `json:"circle_angular_rate,omitempty"` // rad/s
	CircleRamp             *string  `json:"circle_ramp,omitempty"`
	LandingWindow          *string  `json:"landing_window,omitempty"`
	LandingDescentSpeed    *float64 `json:"landing_descent_speed,omitempty"` // m/s
	GroundAltitude         *float64 `json:"ground_altitude,omitempty"`       // metres
	DisarmDelay            *string  `json:"disarm_delay,omitempty"`

	// Control loop
	LoopRateHz           *float64 `json:"loop_rate_hz,omitempty"`
	SafetyFloor          *float64 `json:"safety_floor,omitempty"`    // metres
	LandedAltitude       *float64 `json:"landed_altitude,omitempty"` // metres
	StatusInterval       *string  `json:"status_interval,omitempty"`
	DispatchFailureLimit *int     `json:"dispatch_failure_limit,omitempty"`

	// Flight log
	FlightLogBuffer    *int `json:"flight_log_buffer,omitempty"`
	FlightLogTickEvery *int `json:"flight_log_tick_every,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Every accessor then returns its compiled default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // from cmd/<bin>/ or deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	if c.MaxEdgeRatio != nil && *c.MaxEdgeRatio < 1 {
		return fmt.Errorf("%w: max_edge_ratio must be >= 1, got %f", ErrInvalid, *c.MaxEdgeRatio)
	}
	if c.MinTagArea != nil && *c.MinTagArea < 0 {
		return fmt.Errorf("%w: min_tag_area must be non-negative, got %f", ErrInvalid, *c.MinTagArea)
	}
	if c.SelectionPolicy != nil {
		switch *c.SelectionPolicy {
		case SelectSmallestArea, SelectDivergenceSwap:
		default:
			return fmt.Errorf("%w: unknown selection_policy %q", ErrInvalid, *c.SelectionPolicy)
		}
	}
	if c.FilterAlpha != nil && (*c.FilterAlpha <= 0 || *c.FilterAlpha > 1) {
		return fmt.Errorf("%w: filter_alpha must be in (0, 1], got %f", ErrInvalid, *c.FilterAlpha)
	}
	if c.IntegralLimit != nil && *c.IntegralLimit <= 0 {
		return fmt.Errorf("%w: integral_limit must be positive, got %f", ErrInvalid, *c.IntegralLimit)
	}
	if c.BandHeight != nil && *c.BandHeight <= 0 {
		return fmt.Errorf("%w: band_height must be positive, got %f", ErrInvalid, *c.BandHeight)
	}
	for i := 1; i < len(c.AltitudeBands); i++ {
		prev, cur := c.AltitudeBands[i-1], c.AltitudeBands[i]
		if cur.Tolerance < prev.Tolerance || cur.DescentSpeed < prev.DescentSpeed {
			return fmt.Errorf("%w: altitude_bands[%d] decreases relative to band %d", ErrInvalid, i, i-1)
		}
	}
	if c.NoDetectionThreshold != nil && *c.NoDetectionThreshold < 1 {
		return fmt.Errorf("%w: no_detection_threshold must be >= 1, got %d", ErrInvalid, *c.NoDetectionThreshold)
	}
	if c.LoopRateHz != nil && (*c.LoopRateHz < 1 || *c.LoopRateHz > 200) {
		return fmt.Errorf("%w: loop_rate_hz must be in [1, 200], got %f", ErrInvalid, *c.LoopRateHz)
	}

	durations := map[string]*string{
		"detection_grace": c.DetectionGrace,
		"search_timeout":  c.SearchTimeout,
		"wait_duration":   c.WaitDuration,
		"loss_timeout":    c.LossTimeout,
		"circle_ramp":     c.CircleRamp,
		"landing_window":  c.LandingWindow,
		"disarm_delay":    c.DisarmDelay,
		"status_interval": c.StatusInterval,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		if _, err := time.ParseDuration(*v); err != nil {
			return fmt.Errorf("%w: invalid %s '%s': %v", ErrInvalid, name, *v, err)
		}
	}

	return nil
}

func getFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func getInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetMaxEdgeRatio returns the max_edge_ratio value or the default.
func (c *TuningConfig) GetMaxEdgeRatio() float64 { return getFloat(c.MaxEdgeRatio, 2.0) }

// GetMinTagArea returns the min_tag_area value or the default.
func (c *TuningConfig) GetMinTagArea() float64 { return getFloat(c.MinTagArea, 100) }

// GetSelectionPolicy returns the selection_policy value or the default.
func (c *TuningConfig) GetSelectionPolicy() string {
	if c.SelectionPolicy == nil || *c.SelectionPolicy == "" {
		return SelectSmallestArea
	}
	return *c.SelectionPolicy
}

// GetSwapAreaDelta returns the swap_area_delta value or the default.
func (c *TuningConfig) GetSwapAreaDelta() float64 { return getFloat(c.SwapAreaDelta, 100) }

// GetDetectionGrace returns the detection_grace window or the default.
func (c *TuningConfig) GetDetectionGrace() time.Duration {
	return getDuration(c.DetectionGrace, 3*time.Second)
}

// GetFilterAlpha returns the filter_alpha value or the default.
func (c *TuningConfig) GetFilterAlpha() float64 { return getFloat(c.FilterAlpha, 0.2) }

// Gains returns (kp, ki, kd) for the named axis: "forward", "lateral" or
// "descent". Unknown axes return zero gains.
func (c *TuningConfig) Gains(axis string) (kp, ki, kd float64) {
	switch axis {
	case "forward":
		return getFloat(c.ForwardKp, 0.5), getFloat(c.ForwardKi, 0.1), getFloat(c.ForwardKd, 0.01)
	case "lateral":
		return getFloat(c.LateralKp, 0.5), getFloat(c.LateralKi, 0.1), getFloat(c.LateralKd, 0.01)
	case "descent":
		return getFloat(c.DescentKp, 0.3), getFloat(c.DescentKi, 0.05), getFloat(c.DescentKd, 0.005)
	}
	return 0, 0, 0
}

// GetIntegralLimit returns the integral_limit value or the default.
func (c *TuningConfig) GetIntegralLimit() float64 { return getFloat(c.IntegralLimit, 1.0) }

// GetMaxHorizontalSpeed returns the max_horizontal_speed value or the default.
func (c *TuningConfig) GetMaxHorizontalSpeed() float64 { return getFloat(c.MaxHorizontalSpeed, 1.0) }

// GetAltitudeFeedback returns the altitude_feedback value or the default.
func (c *TuningConfig) GetAltitudeFeedback() bool {
	if c.AltitudeFeedback == nil {
		return false
	}
	return *c.AltitudeFeedback
}

// GetBandHeight returns the band_height value or the default.
func (c *TuningConfig) GetBandHeight() float64 { return getFloat(c.BandHeight, 0.5) }

// GetAltitudeBands returns the altitude_bands table or the default table.
// The last band applies to every altitude above it.
func (c *TuningConfig) GetAltitudeBands() []AltitudeBand {
	if len(c.AltitudeBands) == 0 {
		return []AltitudeBand{
			{Tolerance: 0.10, DescentSpeed: 0.05},
			{Tolerance: 0.10, DescentSpeed: 0.10},
			{Tolerance: 0.10, DescentSpeed: 0.20},
			{Tolerance: 0.10, DescentSpeed: 0.20},
			{Tolerance: 0.15, DescentSpeed: 0.25},
			{Tolerance: 0.175, DescentSpeed: 0.25},
			{Tolerance: 0.20, DescentSpeed: 0.30},
		}
	}
	out := make([]AltitudeBand, len(c.AltitudeBands))
	copy(out, c.AltitudeBands)
	return out
}

// GetCreepDescentSpeed returns the creep_descent_speed value or the default.
func (c *TuningConfig) GetCreepDescentSpeed() float64 { return getFloat(c.CreepDescentSpeed, 0.01) }

// GetNoDetectionThreshold returns the no_detection_threshold value or the default.
func (c *TuningConfig) GetNoDetectionThreshold() int { return getInt(c.NoDetectionThreshold, 20) }

// GetFirstAcquireDetections returns the first_acquire_detections value or the default.
func (c *TuningConfig) GetFirstAcquireDetections() int { return getInt(c.FirstAcquireDetections, 30) }

// GetReacquireDetections returns the reacquire_detections value or the default.
func (c *TuningConfig) GetReacquireDetections() int { return getInt(c.ReacquireDetections, 1) }

// GetSearchTimeout returns the search_timeout value or the default.
func (c *TuningConfig) GetSearchTimeout() time.Duration {
	return getDuration(c.SearchTimeout, 5*time.Second)
}

// GetWaitDuration returns the wait_duration value or the default.
func (c *TuningConfig) GetWaitDuration() time.Duration {
	return getDuration(c.WaitDuration, 5*time.Second)
}

// GetWaitDetectionThreshold returns the wait_detection_threshold value or the default.
func (c *TuningConfig) GetWaitDetectionThreshold() int { return getInt(c.WaitDetectionThreshold, 30) }

// GetLandingFloor returns the landing_floor value or the default.
func (c *TuningConfig) GetLandingFloor() float64 { return getFloat(c.LandingFloor, 0.5) }

// GetLossTimeout returns the loss_timeout value or the default.
func (c *TuningConfig) GetLossTimeout() time.Duration {
	return getDuration(c.LossTimeout, 3*time.Second)
}

// GetCircleRadius returns the circle_radius value or the default.
func (c *TuningConfig) GetCircleRadius() float64 { return getFloat(c.CircleRadius, 0.5) }

// GetCircleAngularRate returns the circle_angular_rate value or the default.
func (c *TuningConfig) GetCircleAngularRate() float64 { return getFloat(c.CircleAngularRate, 0.5) }

// GetCircleRamp returns the circle_ramp value or the default.
func (c *TuningConfig) GetCircleRamp() time.Duration {
	return getDuration(c.CircleRamp, 5*time.Second)
}

// GetLandingWindow returns the landing_window value or the default.
func (c *TuningConfig) GetLandingWindow() time.Duration {
	return getDuration(c.LandingWindow, 5*time.Second)
}

// GetLandingDescentSpeed returns the landing_descent_speed value or the default.
func (c *TuningConfig) GetLandingDescentSpeed() float64 { return getFloat(c.LandingDescentSpeed, 0.2) }

// GetGroundAltitude returns the ground_altitude value or the default.
func (c *TuningConfig) GetGroundAltitude() float64 { return getFloat(c.GroundAltitude, 0.1) }

// GetDisarmDelay returns the disarm_delay value or the default.
func (c *TuningConfig) GetDisarmDelay() time.Duration {
	return getDuration(c.DisarmDelay, 10*time.Second)
}

// GetLoopRateHz returns the loop_rate_hz value or the default.
func (c *TuningConfig) GetLoopRateHz() float64 { return getFloat(c.LoopRateHz, 20) }

// GetSafetyFloor returns the safety_floor value or the default.
func (c *TuningConfig) GetSafetyFloor() float64 { return getFloat(c.SafetyFloor, 0.3) }

// GetLandedAltitude returns the landed_altitude value or the default.
func (c *TuningConfig) GetLandedAltitude() float64 { return getFloat(c.LandedAltitude, 0.5) }

// GetStatusInterval returns the status_interval value or the default.
func (c *TuningConfig) GetStatusInterval() time.Duration {
	return getDuration(c.StatusInterval, time.Second)
}

// GetDispatchFailureLimit returns the dispatch_failure_limit value or the default.
func (c *TuningConfig) GetDispatchFailureLimit() int { return getInt(c.DispatchFailureLimit, 3) }

// GetFlightLogBuffer returns the flight_log_buffer value or the default.
func (c *TuningConfig) GetFlightLogBuffer() int { return getInt(c.FlightLogBuffer, 512) }

// GetFlightLogTickEvery returns the flight_log_tick_every value or the default.
func (c *TuningConfig) GetFlightLogTickEvery() int { return getInt(c.FlightLogTickEvery, 1) }
