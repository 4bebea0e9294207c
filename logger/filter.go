package logger

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	// DefaultMaskValue replaces sensitive values.
	DefaultMaskValue = "***"
	// DefaultMaxDepth bounds recursion into nested maps and slices.
	DefaultMaxDepth = 8
)

// FilterConfig lists the field names whose values are masked.
// Matching is case-insensitive and by substring.
type FilterConfig struct {
	SensitiveFields []string
	MaskValue       string
}

// DefaultFilterConfig masks credentials commonly seen by an API client.
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		SensitiveFields: []string{
			"password", "passwd", "secret",
			"api_key", "apikey", "token",
			"authorization", "cookie",
			"credential",
		},
		MaskValue: DefaultMaskValue,
	}
}

// SensitiveDataFilter masks values of sensitive keys, sensitive headers,
// URL passwords and sensitive query parameters.
type SensitiveDataFilter struct {
	fields []string
	mask   string
}

// NewSensitiveDataFilter builds a filter. A nil config means DefaultFilterConfig.
func NewSensitiveDataFilter(config *FilterConfig) *SensitiveDataFilter {
	if config == nil {
		config = DefaultFilterConfig()
	}
	mask := config.MaskValue
	if mask == "" {
		mask = DefaultMaskValue
	}
	fields := make([]string, 0, len(config.SensitiveFields))
	for _, f := range config.SensitiveFields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			fields = append(fields, f)
		}
	}
	return &SensitiveDataFilter{fields: fields, mask: mask}
}

// IsSensitive reports whether key names a sensitive field.
func (f *SensitiveDataFilter) IsSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range f.fields {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// FilterString masks value when key is sensitive. URLs are masked
// structurally wherever they appear.
func (f *SensitiveDataFilter) FilterString(key, value string) string {
	if value == "" {
		return value
	}
	if isURL(value) {
		masked := f.maskURL(value)
		if f.IsSensitive(key) && masked == value {
			return f.mask
		}
		return masked
	}
	if f.IsSensitive(key) {
		return f.mask
	}
	return value
}

// FilterValue masks sensitive entries inside common structured values.
func (f *SensitiveDataFilter) FilterValue(key string, value any) any {
	return f.filterValue(key, value, DefaultMaxDepth)
}

// FilterFields returns a masked copy of fields.
func (f *SensitiveDataFilter) FilterFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = f.FilterValue(k, v)
	}
	return out
}

// FilterHeader returns a copy of h with sensitive header values masked.
func (f *SensitiveDataFilter) FilterHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		if f.IsSensitive(k) {
			out[k] = []string{f.mask}
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func (f *SensitiveDataFilter) filterValue(key string, value any, depth int) any {
	if value == nil {
		return nil
	}
	if f.IsSensitive(key) {
		return f.mask
	}
	if depth <= 0 {
		return value
	}

	switch v := value.(type) {
	case string:
		return f.FilterString(key, v)
	case http.Header:
		return f.FilterHeader(v)
	case map[string][]string:
		return map[string][]string(f.FilterHeader(http.Header(v)))
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, s := range v {
			out[k] = f.FilterString(k, s)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = f.filterValue(k, item, depth-1)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = f.filterValue(key, item, depth-1)
		}
		return out
	case *url.URL:
		if v == nil {
			return v
		}
		return f.maskURL(v.String())
	default:
		return value
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// maskURL hides the userinfo password and the values of sensitive query
// parameters. Unparseable URLs are masked entirely.
func (f *SensitiveDataFilter) maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return f.mask
	}
	changed := false
	userinfo := ""
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			// url.UserPassword would percent-encode the mask.
			userinfo = url.User(u.User.Username()).String() + ":" + f.mask + "@"
			u.User = nil
			changed = true
		}
	}
	if u.RawQuery != "" {
		parts := strings.Split(u.RawQuery, "&")
		for i, p := range parts {
			k, _, _ := strings.Cut(p, "=")
			if name, err := url.QueryUnescape(k); err == nil && f.IsSensitive(name) {
				parts[i] = k + "=" + f.mask
				changed = true
			}
		}
		u.RawQuery = strings.Join(parts, "&")
	}
	if !changed {
		return raw
	}
	masked := u.String()
	if userinfo != "" {
		prefix := u.Scheme + "://"
		masked = prefix + userinfo + strings.TrimPrefix(masked, prefix)
	}
	return masked
}
