package store

// Config holds configuration for the Store.
type Config struct {
	// TableName is the single table holding favorites and markers.
	// Default: "favorites"
	TableName string

	// IndexName is the global secondary index on GSI1PK/GSI1SK.
	// Default: "GSI1"
	IndexName string
}

// DefaultConfig returns the default table layout.
func DefaultConfig() Config {
	return Config{
		TableName: "favorites",
		IndexName: "GSI1",
	}
}

// validate fills in defaults for empty values.
func (c *Config) validate() {
	if c.TableName == "" {
		c.TableName = "favorites"
	}
	if c.IndexName == "" {
		c.IndexName = "GSI1"
	}
}
