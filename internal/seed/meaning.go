package seed

import (
	"strings"
	"unicode"
)

var abbreviations = map[string]string{
	// Nouns
	"nm": "name", "dt": "date", "no": "number", "num": "number", "cd": "code",
	"desc": "description", "amt": "amount", "cnt": "count", "qty": "quantity",
	"addr": "address", "tel": "phone", "ph": "phone", "mobile": "phone",
	"img": "image", "pic": "image", "photo": "image",
	"msg": "message", "txt": "text", "note": "comment", "notes": "comment",
	"lat": "latitude", "lng": "longitude", "lon": "longitude", "alt": "altitude",
	"acc": "accuracy", "ts": "timestamp", "uuid": "id", "uid": "id",
	"loc": "location", "geo": "location", "yr": "year",

	// Status
	"yn": "yesno", "is": "yesno", "has": "yesno", "flg": "flag",
	"stat": "status", "sts": "status", "typ": "type",
}

// Meaning decodes a column name into lower-case words. Underscores and
// camelCase boundaries split words; known abbreviations are expanded, so
// "photo_uriFragment" reads "image uri fragment".
func Meaning(column string) string {
	var words []string
	for _, w := range splitName(column) {
		if full, ok := abbreviations[w]; ok {
			w = full
		}
		words = append(words, w)
	}
	return strings.Join(words, " ")
}

func splitName(name string) []string {
	var (
		words []string
		cur   []rune
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
			continue
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

// hasWord reports whether meaning contains any of the words.
func hasWord(meaning string, words ...string) bool {
	fields := strings.Fields(meaning)
	for _, w := range words {
		for _, f := range fields {
			if f == w {
				return true
			}
		}
	}
	return false
}
