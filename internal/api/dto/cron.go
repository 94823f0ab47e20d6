package dto

// RolloverResponse summarizes one period rollover sweep.
type RolloverResponse struct {
	Processed  int `json:"processed"`
	Canceled   int `json:"canceled"`
	Downgraded int `json:"downgraded"`
	Activated  int `json:"activated"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// GracePeriodSweepResponse summarizes one grace period expiry sweep.
type GracePeriodSweepResponse struct {
	Processed int `json:"processed"`
	Canceled  int `json:"canceled"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}
