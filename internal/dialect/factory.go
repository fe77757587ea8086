package dialect

// GetDialect maps a database.driver value to its dialect. Unknown names fall
// back to the pure-Go driver.
func GetDialect(driver string) Dialect {
	switch driver {
	case "sqlite3", "mattn":
		return &CgoDialect{}
	default:
		return &ModerncDialect{}
	}
}

var (
	_ Dialect = (*ModerncDialect)(nil)
	_ Dialect = (*CgoDialect)(nil)
)
