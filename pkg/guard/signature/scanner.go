package signature

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	domain "github.com/NeuralTrust/TrustGuard/pkg/domain/errors"
	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/valyala/fastjson"
)

// Definition is the configuration form of a signature. Severity is fixed per
// category.
type Definition struct {
	Category string `mapstructure:"category"`
	Name     string `mapstructure:"name"`
	Pattern  string `mapstructure:"pattern"`
}

type Signature struct {
	Category security.ThreatCategory
	Name     string
	Severity security.Severity
	pattern  *regexp.Regexp
}

type Scanner interface {
	Scan(req security.RequestSnapshot) []security.ThreatMatch
	Signatures() int
}

type scanner struct {
	byCategory map[security.ThreatCategory][]Signature
	count      int
}

// NewScanner compiles the built-in signatures plus any extra definitions.
// A definition with an unknown category or a pattern that does not compile is
// a ConfigurationError.
func NewScanner(extra []Definition) (Scanner, error) {
	s := &scanner{byCategory: make(map[security.ThreatCategory][]Signature)}
	all := make([]Definition, 0, len(builtinDefinitions)+len(extra))
	all = append(all, builtinDefinitions...)
	all = append(all, extra...)

	for i, def := range all {
		category := security.ThreatCategory(strings.ToLower(strings.TrimSpace(def.Category)))
		if !category.Valid() {
			return nil, domain.NewConfigurationError(
				fmt.Sprintf("signatures[%d].category", i), "unknown category %q", def.Category)
		}
		if strings.TrimSpace(def.Pattern) == "" {
			return nil, domain.NewConfigurationError(
				fmt.Sprintf("signatures[%d].pattern", i), "pattern is empty")
		}
		re, err := regexp.Compile(def.Pattern)
		if err != nil {
			return nil, domain.NewConfigurationError(
				fmt.Sprintf("signatures[%d].pattern", i), "%v", err)
		}
		name := def.Name
		if name == "" {
			name = fmt.Sprintf("%s_%d", category, i)
		}
		s.byCategory[category] = append(s.byCategory[category], Signature{
			Category: category,
			Name:     name,
			Severity: SeverityOf(category),
			pattern:  re,
		})
		s.count++
	}
	return s, nil
}

func (s *scanner) Signatures() int {
	return s.count
}

// Scan checks every category, in fixed order, against the whole request. Each
// category contributes at most one match.
func (s *scanner) Scan(req security.RequestSnapshot) []security.ThreatMatch {
	buffer := BuildBuffer(req)
	var matches []security.ThreatMatch
	for _, category := range security.ThreatCategories {
		for _, sig := range s.byCategory[category] {
			if sig.pattern.MatchString(buffer) {
				matches = append(matches, security.ThreatMatch{
					Category: category,
					Severity: sig.Severity,
					Pattern:  sig.Name,
				})
				break
			}
		}
	}
	return matches
}

// BuildBuffer concatenates URL, body, query and headers. Percent-encoded and
// JSON-escaped values are added in decoded form as well.
func BuildBuffer(req security.RequestSnapshot) string {
	var b strings.Builder

	b.WriteString(req.URL)
	b.WriteByte('\n')
	if decoded, err := url.QueryUnescape(req.URL); err == nil && decoded != req.URL {
		b.WriteString(decoded)
		b.WriteByte('\n')
	}

	if len(req.Body) > 0 {
		b.Write(req.Body)
		b.WriteByte('\n')
		if v, err := fastjson.ParseBytes(req.Body); err == nil {
			collectStrings(v, &b)
		}
	}

	if len(req.Query) > 0 {
		query := url.Values(req.Query).Encode()
		b.WriteString(query)
		b.WriteByte('\n')
		for _, key := range sortedKeys(req.Query) {
			for _, value := range req.Query[key] {
				b.WriteString(key)
				b.WriteByte('=')
				b.WriteString(value)
				b.WriteByte('\n')
			}
		}
	}

	headerKeys := make([]string, 0, len(req.Headers))
	for k := range req.Headers {
		headerKeys = append(headerKeys, k)
	}
	sort.Strings(headerKeys)
	for _, k := range headerKeys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(req.Headers[k])
		b.WriteByte('\n')
	}
	return b.String()
}

func collectStrings(v *fastjson.Value, b *strings.Builder) {
	switch v.Type() {
	case fastjson.TypeString:
		b.Write(v.GetStringBytes())
		b.WriteByte('\n')
	case fastjson.TypeArray:
		for _, item := range v.GetArray() {
			collectStrings(item, b)
		}
	case fastjson.TypeObject:
		v.GetObject().Visit(func(key []byte, item *fastjson.Value) {
			b.Write(key)
			b.WriteByte('\n')
			collectStrings(item, b)
		})
	}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
