package common

const (
	RequestIDHeader       = "X-Request-Id"
	AnomalyDetectedHeader = "X-Anomaly-Detected"
	CorrelationIDHeader   = "X-Correlation-Id"

	ApiV1Prefix = "/api/v1"
)

// ClientAddressHeaders are consulted in order before the socket address.
var ClientAddressHeaders = []string{
	"X-Real-IP",
	"X-Forwarded-For",
	"X-Original-Forwarded-For",
	"True-Client-IP",
	"CF-Connecting-IP",
}
