package cache

import (
	"sort"
	"strings"
)

// Well-known keys and tags.
const (
	KeyNews      = "data:news"
	KeyNotices   = "data:notices"
	KeyOfficers  = "data:officers"
	KeyElections = "data:elections"
	KeyStats     = "api:admin:stats"

	// DataPrefix is contained in every data key.
	DataPrefix = "data:"
)

// APIKey builds "api:<endpoint>[:k1=v1&k2=v2...]" with params sorted by
// name, so equal parameter sets give equal keys.
func APIKey(endpoint string, params map[string]string) string {
	return build("api:"+endpoint, params)
}

// DataKey builds "data:<dataType>[:k1=v1&...]" like APIKey.
func DataKey(dataType string, filters map[string]string) string {
	return build(DataPrefix+dataType, filters)
}

func build(prefix string, params map[string]string) string {
	if len(params) == 0 {
		return prefix
	}
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte(':')
	for i, k := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}
