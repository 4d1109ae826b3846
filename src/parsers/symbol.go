package parsers

import (
	"regexp"
	"strings"
)

// A futures contract code: root, month letter, one or two year digits (MESZ4, 6EH25).
var contractCodeRegex = regexp.MustCompile(`^([A-Z0-9]+?)[FGHJKMNQUVXZ]\d{1,2}$`)

// DeriveRootSymbol strips the expiry from a raw contract name.
// "MESZ4" -> "MES", "ES 03-25" -> "ES", "/NQH5" -> "NQ". Names without an expiry are returned uppercased.
func DeriveRootSymbol(rawInstrument string) string {
	s := strings.ToUpper(strings.TrimSpace(rawInstrument))
	s = strings.TrimPrefix(s, "/")
	if i := strings.IndexAny(s, " \t"); i > 0 {
		return s[:i]
	}
	if m := contractCodeRegex.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}
