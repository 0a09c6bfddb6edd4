package anomaly

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	domain "github.com/NeuralTrust/TrustGuard/pkg/domain/errors"
	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/avct/uasurfer"
)

type Thresholds struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	LoginAttempts     int `mapstructure:"login_attempts"`
	FailedLogins      int `mapstructure:"failed_logins"`
}

type Config struct {
	Thresholds       Thresholds        `mapstructure:"thresholds"`
	Severities       map[string]string `mapstructure:"severities"`
	SuspiciousPaths  []string          `mapstructure:"suspicious_paths"`
	SuspiciousAgents []string          `mapstructure:"suspicious_agents"`
}

var defaultSeverities = map[security.AnomalyType]security.Severity{
	security.AnomalyHighRequestRate:     security.SeverityMedium,
	security.AnomalyHighLoginAttempts:   security.SeverityMedium,
	security.AnomalyHighFailedLogins:    security.SeverityHigh,
	security.AnomalySuspiciousURL:       security.SeverityMedium,
	security.AnomalySuspiciousUserAgent: security.SeverityLow,
}

var (
	defaultSuspiciousPaths = []string{
		"admin", "wp-admin", "phpmyadmin", "backup", "old", "test", "dev",
		"staging", "beta", "config", "conf", "settings", "setup", "install",
	}
	defaultSuspiciousAgents = []string{
		"bot", "crawler", "spider", "scraper", "curl", "wget", "python", "java",
		"php", "perl", "ruby", "go-http", "okhttp", "apache", "nginx",
	}
)

func DefaultConfig() Config {
	return Config{
		Thresholds: Thresholds{
			RequestsPerMinute: 100,
			LoginAttempts:     5,
			FailedLogins:      3,
		},
		SuspiciousPaths:  append([]string(nil), defaultSuspiciousPaths...),
		SuspiciousAgents: append([]string(nil), defaultSuspiciousAgents...),
	}
}

type Detector interface {
	Detect(req security.RequestSnapshot, counts security.RequestCounts) []security.Anomaly
	Thresholds() Thresholds
}

type detector struct {
	thresholds Thresholds
	severities map[security.AnomalyType]security.Severity
	paths      map[string]struct{}
	agents     []string
}

// NewDetector validates the threshold table. Severity overrides are keyed by
// anomaly type.
func NewDetector(cfg Config) (Detector, error) {
	t := cfg.Thresholds
	if t.RequestsPerMinute <= 0 || t.LoginAttempts <= 0 || t.FailedLogins <= 0 {
		return nil, domain.NewConfigurationError("intrusion.anomaly.thresholds",
			"all thresholds must be positive, got %+v", t)
	}

	severities := make(map[security.AnomalyType]security.Severity, len(defaultSeverities))
	for k, v := range defaultSeverities {
		severities[k] = v
	}
	for name, value := range cfg.Severities {
		anomalyType := security.AnomalyType(strings.ToUpper(name))
		if _, ok := defaultSeverities[anomalyType]; !ok {
			return nil, domain.NewConfigurationError("intrusion.anomaly.severities",
				"unknown anomaly type %q", name)
		}
		severity, ok := security.ParseSeverity(value)
		if !ok {
			return nil, domain.NewConfigurationError("intrusion.anomaly.severities",
				"invalid severity %q for %s", value, name)
		}
		severities[anomalyType] = severity
	}

	pathList := cfg.SuspiciousPaths
	if len(pathList) == 0 {
		pathList = defaultSuspiciousPaths
	}
	paths := make(map[string]struct{}, len(pathList))
	for _, p := range pathList {
		paths[strings.ToLower(strings.Trim(p, "/ "))] = struct{}{}
	}

	agents := cfg.SuspiciousAgents
	if len(agents) == 0 {
		agents = defaultSuspiciousAgents
	}
	lowered := make([]string, 0, len(agents))
	for _, a := range agents {
		lowered = append(lowered, strings.ToLower(a))
	}

	return &detector{
		thresholds: t,
		severities: severities,
		paths:      paths,
		agents:     lowered,
	}, nil
}

func (d *detector) Thresholds() Thresholds {
	return d.thresholds
}

// Detect runs every check independently. Counts are supplied by the caller
// and must already include the current request.
func (d *detector) Detect(req security.RequestSnapshot, counts security.RequestCounts) []security.Anomaly {
	var anomalies []security.Anomaly

	if counts.RequestsPerMinute > d.thresholds.RequestsPerMinute {
		anomalies = append(anomalies, d.counter(security.AnomalyHighRequestRate,
			counts.RequestsPerMinute, d.thresholds.RequestsPerMinute, "requests per minute"))
	}
	if counts.LoginAttempts > d.thresholds.LoginAttempts {
		anomalies = append(anomalies, d.counter(security.AnomalyHighLoginAttempts,
			counts.LoginAttempts, d.thresholds.LoginAttempts, "login attempts per 5 minutes"))
	}
	if counts.FailedLogins > d.thresholds.FailedLogins {
		anomalies = append(anomalies, d.counter(security.AnomalyHighFailedLogins,
			counts.FailedLogins, d.thresholds.FailedLogins, "failed logins per 5 minutes"))
	}
	if segment, ok := d.suspiciousURL(req.URL); ok {
		anomalies = append(anomalies, security.Anomaly{
			Type:     security.AnomalySuspiciousURL,
			Severity: d.severities[security.AnomalySuspiciousURL],
			Metric:   1,
			Detail:   fmt.Sprintf("suspicious path segment %q", segment),
		})
	}
	if d.suspiciousAgent(req.UserAgent) {
		anomalies = append(anomalies, security.Anomaly{
			Type:     security.AnomalySuspiciousUserAgent,
			Severity: d.severities[security.AnomalySuspiciousUserAgent],
			Metric:   1,
			Detail:   fmt.Sprintf("suspicious user agent %q", req.UserAgent),
		})
	}
	return anomalies
}

func (d *detector) counter(t security.AnomalyType, metric, threshold int, unit string) security.Anomaly {
	return security.Anomaly{
		Type:      t,
		Severity:  d.severities[t],
		Metric:    float64(metric),
		Threshold: float64(threshold),
		Detail:    fmt.Sprintf("%d %s", metric, unit),
	}
}

// suspiciousURL matches whole path segments, ignoring a file extension, so
// /backup.zip matches "backup" while /developers does not match "dev".
func (d *detector) suspiciousURL(rawURL string) (string, bool) {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	for _, segment := range strings.Split(strings.ToLower(p), "/") {
		if segment == "" {
			continue
		}
		if _, ok := d.paths[segment]; ok {
			return segment, true
		}
		base := strings.TrimSuffix(segment, path.Ext(segment))
		if _, ok := d.paths[base]; ok {
			return segment, true
		}
	}
	return "", false
}

func (d *detector) suspiciousAgent(userAgent string) bool {
	if strings.TrimSpace(userAgent) == "" {
		return false
	}
	ua := strings.ToLower(userAgent)
	for _, marker := range d.agents {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return uasurfer.Parse(userAgent).IsBot()
}
