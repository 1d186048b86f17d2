package sqladapter

import (
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var (
	// stringLiteralRegex matches single-quoted strings, including escaped
	// quotes: 'it\'s', 'foo''bar'.
	stringLiteralRegex = regexp.MustCompile(`'(?:[^'\\]|\\.)*'`)

	numericLiteralRegex = regexp.MustCompile(`\b\d+\.?\d*\b`)

	hexLiteralRegex = regexp.MustCompile(`0[xX][0-9a-fA-F]+`)
)

// DefaultQuerySanitizer replaces string, numeric and hex literals with
// placeholders so values never reach a span:
//
//	DefaultQuerySanitizer("SELECT * FROM users WHERE id = 123 AND name = 'john'")
//	// "SELECT * FROM users WHERE id = ? AND name = '?'"
//
// Positional parameters such as $1 keep their number.
func DefaultQuerySanitizer(query string) string {
	query = stringLiteralRegex.ReplaceAllString(query, "'?'")
	query = hexLiteralRegex.ReplaceAllString(query, "?")
	query = replaceNumbers(query)
	return query
}

// replaceNumbers replaces numeric literals that are not part of a $n
// placeholder.
func replaceNumbers(query string) string {
	locs := numericLiteralRegex.FindAllStringIndex(query, -1)
	if len(locs) == 0 {
		return query
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		if loc[0] > 0 && query[loc[0]-1] == '$' {
			continue
		}
		b.WriteString(query[last:loc[0]])
		b.WriteByte('?')
		last = loc[1]
	}
	b.WriteString(query[last:])
	return b.String()
}

// extractOperation returns the upper-cased first word of query.
func extractOperation(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}

	if i := strings.IndexAny(query, " \t\n\r"); i != -1 {
		query = query[:i]
	}
	return strings.ToUpper(query)
}

// baseAttributes are shared by every span and metric of one adapter.
func (cfg *config) baseAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if cfg.DBSystem != "" {
		attrs = append(attrs, attribute.String("db.system", cfg.DBSystem))
	}
	if cfg.DBName != "" {
		attrs = append(attrs, attribute.String("db.namespace", cfg.DBName))
	}
	if cfg.InstanceName != "" {
		attrs = append(attrs, attribute.String("db.instance", cfg.InstanceName))
	}
	return attrs
}

func (cfg *config) queryAttributes(query string) []attribute.KeyValue {
	attrs := cfg.baseAttributes()

	if !cfg.DisableQuery && query != "" {
		text := query
		if cfg.QuerySanitizer != nil {
			text = cfg.QuerySanitizer(query)
		}
		attrs = append(attrs, attribute.String("db.query.text", text))
	}

	if op := extractOperation(query); op != "" {
		attrs = append(attrs, attribute.String("db.operation.name", op))
	}
	return attrs
}
