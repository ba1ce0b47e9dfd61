package config

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"sort"
	"strings"
)

// Cookies is the keyed map of platform session cookies. c_user and xs are
// mandatory; datr and fr are optional; additional keys pass through
// unchanged (the "open tail" in spec.md §3).
type Cookies map[string]string

// Known cookie keys (spec.md §3/§6): c_user and xs are required (see
// HasAuth); datr and fr are optional.
const (
	CookieCUser = "c_user"
	CookieXS    = "xs"
	CookieDatr  = "datr"
	CookieFr    = "fr"
)

// HasAuth reports whether the mandatory cookie keys are present.
func (c Cookies) HasAuth() bool {
	return c != nil && c[CookieCUser] != "" && c[CookieXS] != ""
}

// ToCookieString renders cookies in "k=v; k=v" header form, keys sorted
// for deterministic output. This is the inverse of ParseCookies for the
// cookie-header format (spec.md §8 round-trip property).
func (c Cookies) ToCookieString() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+c[k])
	}
	return strings.Join(parts, "; ")
}

// loadCookiesFromEnv builds a Cookies map from FB_COOKIES (a raw cookie
// header/JSON/base64 blob, parsed by ParseCookies) or from the discrete
// FB_C_USER/FB_XS/FB_DATR/FB_FR variables. FB_COOKIES takes precedence
// when both are set.
func loadCookiesFromEnv() (Cookies, error) {
	if raw, ok := os.LookupEnv("FB_COOKIES"); ok && raw != "" {
		return ParseCookies(raw)
	}

	c := Cookies{}
	if v, ok := os.LookupEnv("FB_C_USER"); ok {
		c[CookieCUser] = v
	}
	if v, ok := os.LookupEnv("FB_XS"); ok {
		c[CookieXS] = v
	}
	if v, ok := os.LookupEnv("FB_DATR"); ok {
		c[CookieDatr] = v
	}
	if v, ok := os.LookupEnv("FB_FR"); ok {
		c[CookieFr] = v
	}
	return c, nil
}

// ParseCookies accepts a JSON array ([{name,value,...}]), a JSON object
// ({name:value}), a cookie header ("k=v; k=v"), Netscape tab-separated
// lines, or the base64 encoding of any of the above, per spec.md §6.
func ParseCookies(raw string) (Cookies, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Cookies{}, nil
	}

	if decoded, ok := tryBase64Decode(raw); ok {
		raw = decoded
	}

	if cookies, ok := tryParseJSONArray(raw); ok {
		return cookies, nil
	}
	if cookies, ok := tryParseJSONObject(raw); ok {
		return cookies, nil
	}
	if cookies, ok := tryParseNetscape(raw); ok {
		return cookies, nil
	}
	return parseCookieHeader(raw), nil
}

// tryBase64Decode decodes raw as standard or URL-safe base64 if it looks
// like printable cookie/JSON text once decoded; otherwise it returns the
// input unchanged.
func tryBase64Decode(raw string) (string, bool) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding} {
		decoded, err := enc.DecodeString(raw)
		if err != nil {
			continue
		}
		text := string(decoded)
		if looksLikeCookieText(text) {
			return text, true
		}
	}
	return raw, false
}

func looksLikeCookieText(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return strings.Contains(s, "=") || strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{")
}

type jsonCookieEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func tryParseJSONArray(raw string) (Cookies, bool) {
	if !strings.HasPrefix(strings.TrimSpace(raw), "[") {
		return nil, false
	}
	var entries []jsonCookieEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, false
	}
	cookies := Cookies{}
	for _, e := range entries {
		if e.Name != "" {
			cookies[e.Name] = e.Value
		}
	}
	return cookies, true
}

func tryParseJSONObject(raw string) (Cookies, bool) {
	if !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return nil, false
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, false
	}
	return Cookies(m), true
}

// tryParseNetscape recognizes the Netscape cookie file format: lines of
// tab-separated fields, domain/flag/path/secure/expiry/name/value, with
// the name in field 6 (index 5) and value in field 7 (index 6).
func tryParseNetscape(raw string) (Cookies, bool) {
	lines := strings.Split(raw, "\n")
	matched := false
	cookies := Cookies{}
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return nil, false
		}
		cookies[fields[5]] = fields[6]
		matched = true
	}
	return cookies, matched
}

// parseCookieHeader parses "k=v; k=v" cookie-header syntax. This is the
// fallback format and always succeeds (an unparsable string yields an
// empty map rather than an error, matching the forgiving spirit of the
// other format detectors).
func parseCookieHeader(raw string) Cookies {
	cookies := Cookies{}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		cookies[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return cookies
}
