package seed

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"db-migrate/internal/pseudotype"
	"db-migrate/internal/schema"
)

// Timestamp layout used by the application for _savepoint_timestamp and
// similar columns.
const timestampLayout = "2006-01-02T15:04:05.000000000"

var (
	dateFrom = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	dateTo   = time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)
)

// Generator produces plausible column values. The same seed gives the same
// sequence of values.
type Generator struct {
	faker *gofakeit.Faker
}

func NewGenerator(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Value generates a value for a live column. Composite columns receive a
// JSON encoded array or object.
func (g *Generator) Value(col *schema.Column, kind pseudotype.Kind) any {
	switch kind {
	case pseudotype.Array:
		return g.encode(g.array())
	case pseudotype.Object:
		return g.encode(map[string]any{"value": g.faker.Word(), "count": g.faker.Number(0, 9)})
	}

	meaning := Meaning(col.Name)
	switch col.Affinity {
	case "integer":
		return g.integer(meaning)
	case "real":
		return g.real(meaning)
	case "blob":
		return []byte(g.faker.Word())
	case "numeric":
		if hasWord(meaning, "yesno", "flag", "boolean") {
			return int64(g.faker.Number(0, 1))
		}
		return int64(g.faker.Number(1, 1000))
	}
	return g.text(meaning)
}

func (g *Generator) integer(meaning string) any {
	switch {
	case hasWord(meaning, "yesno", "flag", "active", "enabled"):
		return int64(g.faker.Number(0, 1))
	case hasWord(meaning, "year"):
		return int64(2000 + g.faker.Number(0, 25))
	case hasWord(meaning, "count", "quantity"):
		return int64(g.faker.Number(0, 20))
	case hasWord(meaning, "timestamp"):
		return g.faker.DateRange(dateFrom, dateTo).UnixMilli()
	}
	return int64(g.faker.Number(1, 50000))
}

func (g *Generator) real(meaning string) any {
	switch {
	case hasWord(meaning, "latitude"):
		return g.faker.Latitude()
	case hasWord(meaning, "longitude"):
		return g.faker.Longitude()
	case hasWord(meaning, "altitude"):
		return g.faker.Float64Range(0, 3000)
	case hasWord(meaning, "accuracy"):
		return g.faker.Float64Range(1, 50)
	case hasWord(meaning, "price", "amount", "cost"):
		return g.faker.Price(0.99, 99.99)
	}
	return g.faker.Float64Range(0, 1000)
}

func (g *Generator) text(meaning string) any {
	switch {
	case hasWord(meaning, "uri") && hasWord(meaning, "fragment"):
		return fmt.Sprintf("%d.jpg", g.faker.Number(1000000000, 1999999999))
	case hasWord(meaning, "content") && hasWord(meaning, "type"):
		return "image/jpeg"
	case hasWord(meaning, "sync") && hasWord(meaning, "state"):
		return "new_row"
	case hasWord(meaning, "savepoint") && hasWord(meaning, "type"):
		return g.faker.RandomString([]string{"COMPLETE", "INCOMPLETE"})
	case hasWord(meaning, "id") && !hasWord(meaning, "form", "table"):
		return "uuid:" + g.faker.UUID()
	case hasWord(meaning, "timestamp"):
		return g.faker.DateRange(dateFrom, dateTo).Format(timestampLayout)
	case hasWord(meaning, "date"):
		return g.faker.DateRange(dateFrom, dateTo).Format("2006-01-02")
	case hasWord(meaning, "year"):
		return fmt.Sprintf("%d", 2000+g.faker.Number(0, 25))
	case hasWord(meaning, "email", "mail"):
		return g.faker.Email()
	case hasWord(meaning, "phone"):
		return g.faker.Phone()
	case hasWord(meaning, "name", "creator", "owner"):
		return g.faker.Name()
	case hasWord(meaning, "address", "street"):
		return g.faker.Street()
	case hasWord(meaning, "city"):
		return g.faker.City()
	case hasWord(meaning, "country"):
		return g.faker.Country()
	case hasWord(meaning, "yesno", "flag"):
		return g.faker.RandomString([]string{"yes", "no"})
	case hasWord(meaning, "description", "comment", "message", "text"):
		return g.faker.Sentence(8)
	}
	return g.faker.Word()
}

func (g *Generator) array() []any {
	n := g.faker.Number(0, 4)
	out := make([]any, n)
	for i := range out {
		out[i] = g.faker.Word()
	}
	return out
}

func (g *Generator) encode(v any) any {
	enc, err := pseudotype.Encode(v)
	if err != nil {
		return nil
	}
	return enc
}
