package cost

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// CacheKey derives a stable identity for a query and its cost-relevant
// variables without parsing the query. Formatting differences, comments, and
// variables other than the pagination counts do not change the key, so
// lookalike requests share one cache entry. The result is a fixed-length
// hex digest safe for use as a map key, metric label, or Kafka message key.
func CacheKey(queryText string, vars map[string]interface{}) string {
	digest := xxhash.New()
	_, _ = digest.WriteString(minifyQuery(queryText))
	_, _ = digest.Write([]byte{0})
	_, _ = digest.Write(canonicalVariables(vars))
	return fmt.Sprintf("%016x", digest.Sum64())
}

// canonicalVariables reduces vars to the pagination names and encodes them
// deterministically. json.Marshal sorts map keys, so iteration order cannot
// leak into the digest.
func canonicalVariables(vars map[string]interface{}) []byte {
	relevant := make(map[string]interface{}, 2)
	for _, name := range []string{argFirst, argLast} {
		if v, ok := vars[name]; ok {
			relevant[name] = v
		}
	}
	if len(relevant) == 0 {
		return nil
	}
	encoded, err := json.Marshal(relevant)
	if err != nil {
		// Pagination counts are plain scalars in practice, but an
		// unencodable value still needs a deterministic key.
		return fmt.Appendf(nil, "%v|%v", relevant[argFirst], relevant[argLast])
	}
	return encoded
}

// minifyQuery strips comments and insignificant whitespace so formatting
// variants of one query hash identically. A single space survives only where
// removing it would merge two adjacent names or numbers; string and block
// string literals are preserved byte for byte.
func minifyQuery(query string) string {
	var out strings.Builder
	out.Grow(len(query))
	var last byte
	pending := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '#':
			for i+1 < len(query) && query[i+1] != '\n' {
				i++
			}
			pending = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ',':
			pending = true
		case c == '"':
			end := scanStringLiteral(query, i)
			out.WriteString(query[i:end])
			i = end - 1
			last = '"'
			pending = false
		default:
			if pending && isWordByte(last) && isWordByte(c) {
				out.WriteByte(' ')
			}
			out.WriteByte(c)
			last = c
			pending = false
		}
	}
	return out.String()
}

// scanStringLiteral returns the index just past the string or block string
// starting at query[start], or len(query) if it never terminates.
func scanStringLiteral(query string, start int) int {
	if strings.HasPrefix(query[start:], `"""`) {
		for i := start + 3; i < len(query); i++ {
			if strings.HasPrefix(query[i:], `\"""`) {
				i += 3
				continue
			}
			if strings.HasPrefix(query[i:], `"""`) {
				return i + 3
			}
		}
		return len(query)
	}
	for i := start + 1; i < len(query); i++ {
		switch query[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(query)
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
