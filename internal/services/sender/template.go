package sender

import (
	"regexp"
)

var placeholderPattern = regexp.MustCompile(`\{([^}]+)\}`)

// ExpandTemplate substitutes every {ColumnName} placeholder with that
// row's column value. A placeholder whose column is absent from the row
// is left verbatim rather than raising an error.
func ExpandTemplate(template string, row map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]
		if value, ok := row[key]; ok {
			return value
		}
		return match
	})
}
