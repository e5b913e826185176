// Package schema holds the relational schema of the article store and runs
// its migrations.
package schema

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	entschema "entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Article table and column names.
const (
	ArticlesTable = "articles"

	FieldID          = "id"
	FieldTitle       = "title"
	FieldBody        = "body"
	FieldAuthor      = "author"
	FieldURL         = "url"
	FieldPublishedAt = "published_at"
	FieldSummary     = "summary"
	FieldTags        = "tags"
	FieldSaved       = "saved"
	FieldClaps       = "claps"
	FieldResponses   = "responses"
	FieldCreatedAt   = "created_at"
)

// Columns lists every article column in table order.
var Columns = []string{
	FieldID,
	FieldTitle,
	FieldBody,
	FieldAuthor,
	FieldURL,
	FieldPublishedAt,
	FieldSummary,
	FieldTags,
	FieldSaved,
	FieldClaps,
	FieldResponses,
	FieldCreatedAt,
}

var (
	// ArticlesColumns holds the columns for the "articles" table.
	ArticlesColumns = []*entschema.Column{
		{Name: FieldID, Type: field.TypeString},
		{Name: FieldTitle, Type: field.TypeString},
		{Name: FieldBody, Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: FieldAuthor, Type: field.TypeString, Default: ""},
		{Name: FieldURL, Type: field.TypeString},
		{Name: FieldPublishedAt, Type: field.TypeTime},
		{Name: FieldSummary, Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: FieldTags, Type: field.TypeString, Nullable: true},
		{Name: FieldSaved, Type: field.TypeBool, Default: false},
		{Name: FieldClaps, Type: field.TypeInt, Default: 0},
		{Name: FieldResponses, Type: field.TypeInt, Default: 0},
		{Name: FieldCreatedAt, Type: field.TypeTime},
	}

	// Articles is the "articles" table.
	Articles = &entschema.Table{
		Name:       ArticlesTable,
		Columns:    ArticlesColumns,
		PrimaryKey: []*entschema.Column{ArticlesColumns[0]},
		Indexes: []*entschema.Index{
			{
				Name:    "article_published_at",
				Unique:  false,
				Columns: []*entschema.Column{ArticlesColumns[5]},
			},
			{
				Name:    "article_saved",
				Unique:  false,
				Columns: []*entschema.Column{ArticlesColumns[8]},
			},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*entschema.Table{
		Articles,
	}
)

// Create runs the auto-migration for all tables. Migrations are append only:
// new tables, columns and indexes are added, nothing is dropped.
func Create(ctx context.Context, drv dialect.Driver) error {
	migrate, err := entschema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("ent/migrate: %w", err)
	}
	return migrate.Create(ctx, Tables...)
}
