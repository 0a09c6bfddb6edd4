package request

import (
	"fmt"
	"time"
)

const MaxManualBlock = 30 * 24 * time.Hour

type BlockIdentityRequest struct {
	Duration string `json:"duration"`
	Reason   string `json:"reason"`
}

func (r *BlockIdentityRequest) Validate() (time.Duration, error) {
	if r.Duration == "" {
		return 0, fmt.Errorf("duration is required")
	}
	d, err := time.ParseDuration(r.Duration)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 || d > MaxManualBlock {
		return 0, fmt.Errorf("duration must be positive and at most %s", MaxManualBlock)
	}
	return d, nil
}
