package models

import "fmt"

// RangingResult is one per-access-point distance measurement. Distances
// arrive from the agent in millimeters and are converted exactly once,
// at merge time.
type RangingResult struct {
	BSSID            string `json:"bssid"`
	DistanceMm       int    `json:"distance_mm"`
	DistanceStdDevMm int    `json:"distance_std_dev_mm"`
}

func (r *RangingResult) DistanceMeters() float64 {
	return float64(r.DistanceMm) / 1000.0
}

func (r *RangingResult) DistanceStdDevMeters() float64 {
	return float64(r.DistanceStdDevMm) / 1000.0
}

// RangingFailure carries the provider-defined code of a failed ranging
// request. The code is opaque; it is logged and exported, never
// interpreted.
type RangingFailure struct {
	Code int `json:"code"`
}

func (f *RangingFailure) Error() string {
	return fmt.Sprintf("ranging request failed with code %d", f.Code)
}

// RangingOutcome is the single completion signal of one ranging request.
// Exactly one of Results and Failure is meaningful: Failure nil means
// success.
type RangingOutcome struct {
	Results []RangingResult `json:"results,omitempty"`
	Failure *RangingFailure `json:"failure,omitempty"`
}
