package logging

import "strings"

const maskedValue = "***"

// sensitiveQueryParams are query parameters whose values never appear in
// logs. The OAuth callback alone carries an authorization code and a CSRF
// state token.
var sensitiveQueryParams = map[string]bool{
	"code":          true,
	"state":         true,
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
}

// MaskSensitiveQuery replaces the values of sensitive query parameters while
// keeping the overall shape of the query string readable. Malformed pairs are
// passed through unchanged.
func MaskSensitiveQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	pairs := strings.Split(rawQuery, "&")
	for i, pair := range pairs {
		key, _, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		if sensitiveQueryParams[strings.ToLower(key)] {
			pairs[i] = key + "=" + maskedValue
		}
	}
	return strings.Join(pairs, "&")
}
