package request_test

import (
	"testing"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/handlers/http/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockIdentityRequest_Validate(t *testing.T) {
	d, err := (&request.BlockIdentityRequest{Duration: "90m"}).Validate()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	for _, bad := range []string{"", "soon", "-1h", "0s", "1000h"} {
		_, err := (&request.BlockIdentityRequest{Duration: bad}).Validate()
		assert.Error(t, err, bad)
	}
}

func TestRecordLoginRequest_Validate(t *testing.T) {
	yes := true
	assert.NoError(t, (&request.RecordLoginRequest{Address: "198.51.100.1", Success: &yes}).Validate())
	assert.Error(t, (&request.RecordLoginRequest{Address: "host.example", Success: &yes}).Validate())
	assert.Error(t, (&request.RecordLoginRequest{Address: "198.51.100.1"}).Validate())
}

func TestCheckReportRequest(t *testing.T) {
	req := request.CheckReportRequest{IdentityID: "  "}
	assert.Error(t, req.Validate())

	req = request.CheckReportRequest{
		IdentityID: " u1 ",
		Payload:    request.ReportPayload{Title: "t", Description: "d", Category: "c"},
	}
	require.NoError(t, req.Validate())
	event := req.Event()
	assert.Equal(t, "u1", event.IdentityID)
	assert.Equal(t, "t", event.Payload.Title)
}
