package common

type contextKey string

const (
	RequestIDKey     contextKey = "request_id"
	ClientAddressKey contextKey = "client_address"
	AdminSubjectKey  contextKey = "admin_subject"
	IntrusionVerdict contextKey = "intrusion_verdict"
)
