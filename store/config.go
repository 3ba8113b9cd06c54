package store

import (
	"log/slog"

	"github.com/google/uuid"
)

// Config holds configuration for the Store.
type Config struct {
	// Table is the DynamoDB table holding every document.
	// Default: "pathstore_documents"
	Table string

	// CollectionAttr is the partition key attribute; it stores the collection path.
	// Default: "_collection"
	CollectionAttr string

	// IDAttr is the sort key attribute; it stores the document id.
	// Default: "_id"
	IDAttr string

	// IDField is the field name injected into records returned by reads.
	// Default: "id"
	IDField string

	// IDGenerator produces ids for Create calls that do not supply one.
	// Default: uuid.NewString
	IDGenerator func() string

	// ConsistentReads requests strongly consistent reads for Get, Exists and List.
	ConsistentReads bool

	// Logger receives operation logs. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns the default table layout.
func DefaultConfig() Config {
	return Config{
		Table:          "pathstore_documents",
		CollectionAttr: "_collection",
		IDAttr:         "_id",
		IDField:        "id",
		IDGenerator:    uuid.NewString,
		Logger:         slog.Default(),
	}
}

// validate fills unset fields with defaults.
func (c *Config) validate() {
	d := DefaultConfig()
	if c.Table == "" {
		c.Table = d.Table
	}
	if c.CollectionAttr == "" {
		c.CollectionAttr = d.CollectionAttr
	}
	if c.IDAttr == "" {
		c.IDAttr = d.IDAttr
	}
	if c.IDField == "" {
		c.IDField = d.IDField
	}
	if c.IDGenerator == nil {
		c.IDGenerator = d.IDGenerator
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
}

// isKeyAttr reports whether name is one of the table key attributes.
func (c *Config) isKeyAttr(name string) bool {
	return name == c.CollectionAttr || name == c.IDAttr
}
