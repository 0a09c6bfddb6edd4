package signature

import "github.com/NeuralTrust/TrustGuard/pkg/domain/security"

var categorySeverity = map[security.ThreatCategory]security.Severity{
	security.ThreatSQLInjection:        security.SeverityCritical,
	security.ThreatCommandInjection:    security.SeverityCritical,
	security.ThreatXSS:                 security.SeverityHigh,
	security.ThreatPathTraversal:       security.SeverityHigh,
	security.ThreatMaliciousUpload:     security.SeverityHigh,
	security.ThreatDirectoryBruteforce: security.SeverityMedium,
}

func SeverityOf(category security.ThreatCategory) security.Severity {
	return categorySeverity[category]
}

var builtinDefinitions = []Definition{
	{Category: "sql_injection", Name: "tautology", Pattern: `(?i)['"]\s*(?:or|and)\b\s*['"]?\w+['"]?\s*=\s*['"]?\w+`},
	{Category: "sql_injection", Name: "numeric_tautology", Pattern: `(?i)\b(?:or|and)\s+\d+\s*=\s*\d+\b`},
	{Category: "sql_injection", Name: "union_select", Pattern: `(?i)\bunion\s+(?:all\s+)?select\b`},
	{Category: "sql_injection", Name: "stacked_query", Pattern: `(?i)['";]\s*;?\s*(?:drop|truncate|alter)\s+(?:table|database|schema)\b`},
	{Category: "sql_injection", Name: "stacked_delete", Pattern: `(?i);\s*delete\s+from\b`},
	{Category: "sql_injection", Name: "time_based", Pattern: `(?i)\b(?:sleep|benchmark)\s*\(\s*\d+|waitfor\s+delay\s+'`},

	{Category: "xss", Name: "script_tag", Pattern: `(?i)<script[^>]*>`},
	{Category: "xss", Name: "javascript_uri", Pattern: `(?i)javascript\s*:`},
	{Category: "xss", Name: "embedded_frame", Pattern: `(?i)<(?:iframe|object|embed)\b`},
	{Category: "xss", Name: "event_handler", Pattern: `(?i)<[a-z]+[^>]*\bon[a-z]+\s*=`},

	{Category: "path_traversal", Name: "dot_dot_slash", Pattern: `\.\./|\.\.\\`},
	{Category: "path_traversal", Name: "encoded_dot_dot", Pattern: `(?i)%2e%2e(?:%2f|%5c|/|\\)|\.\.%2f|\.\.%5c|%c0%ae%c0%ae`},
	{Category: "path_traversal", Name: "sensitive_file", Pattern: `(?i)/etc/(?:passwd|shadow|hosts)\b|(?:c:)?\\windows\\win\.ini`},

	{Category: "command_injection", Name: "chained_command", Pattern: `(?i)[;&|]\s*(?:rm|cat|ls|wget|curl|nc|netcat|bash|sh|whoami|id|uname|chmod|shutdown|reboot)(?:\s|$|[;|&<>])`},
	{Category: "command_injection", Name: "subshell", Pattern: `\$\([^)]+\)`},
	{Category: "command_injection", Name: "backtick", Pattern: "(?i)`\\s*(?:cat|ls|id|whoami|uname|wget|curl|rm|nc)\\b[^`]*`"},
	{Category: "command_injection", Name: "read_passwd", Pattern: `(?i)\b(?:cat|type|more|less|head|tail)\s+/etc/passwd`},
	{Category: "command_injection", Name: "remote_fetch", Pattern: `(?i)\b(?:wget|curl)\s+(?:-\S+\s+)*https?://`},

	{Category: "directory_bruteforce", Name: "cms_admin", Pattern: `(?i)/(?:wp-admin|wp-login\.php|phpmyadmin|pma|administrator)(?:/|\b)`},
	{Category: "directory_bruteforce", Name: "vcs_and_env", Pattern: `(?i)/(?:\.git|\.svn|\.hg)(?:/|\b)|/\.env\b|/\.ht(?:access|passwd)\b|/\.ds_store\b`},
	{Category: "directory_bruteforce", Name: "backup_file", Pattern: `(?i)/[\w.-]*\.(?:bak|old|orig|swp|sql|tar\.gz|tgz)(?:\?|\s|$)|/backup\.(?:zip|tar|gz|sql)\b`},
	{Category: "directory_bruteforce", Name: "server_status", Pattern: `(?i)/server-(?:status|info)\b`},

	{Category: "malicious_upload", Name: "executable_filename", Pattern: `(?i)filename\s*=\s*"?[^"\s;]+\.(?:php\d?|phtml|jsp|aspx?|sh|bat|cmd|exe|scr|pif)"?`},
	{Category: "malicious_upload", Name: "php_open_tag", Pattern: `(?i)<\?php`},
	{Category: "malicious_upload", Name: "jsp_directive", Pattern: `(?i)<%\s*@\s*(?:page|import)`},
	{Category: "malicious_upload", Name: "shebang", Pattern: `#!\s*/bin/(?:ba)?sh`},
	{Category: "malicious_upload", Name: "pe_header_base64", Pattern: `TVqQAAMAAAAEAAAA`},
}
