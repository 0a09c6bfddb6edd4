package request

import (
	"fmt"
	"net"
)

type RecordLoginRequest struct {
	Address string `json:"address"`
	Success *bool  `json:"success"`
}

func (r *RecordLoginRequest) Validate() error {
	if net.ParseIP(r.Address) == nil {
		return fmt.Errorf("address must be an IP address")
	}
	if r.Success == nil {
		return fmt.Errorf("success is required")
	}
	return nil
}
