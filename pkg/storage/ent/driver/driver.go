// Package entdriver implements storage.Driver on ent's SQL dialect layer.
// It is database-agnostic and is embedded by the sqlite and postgres drivers.
package entdriver

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/quill/pkg/article"
	"github.com/papercomputeco/quill/pkg/storage"
	"github.com/papercomputeco/quill/pkg/storage/ent/schema"
)

// EntDriver provides storage operations over an ent SQL driver.
type EntDriver struct {
	Driver *entsql.Driver
}

// New wraps drv and runs the schema migration.
func New(ctx context.Context, drv *entsql.Driver) (*EntDriver, error) {
	if err := schema.Create(ctx, drv); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &EntDriver{Driver: drv}, nil
}

func (ed *EntDriver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(ed.Driver.Dialect())
}

func (ed *EntDriver) selectArticles() *entsql.Selector {
	b := ed.builder()
	return b.Select(schema.Columns...).From(b.Table(schema.ArticlesTable))
}

// Put inserts or replaces an article. The original creation time of an
// existing row is kept.
func (ed *EntDriver) Put(ctx context.Context, a *article.Article) error {
	if err := a.Validate(); err != nil {
		return err
	}

	tags, err := article.EncodeTags(a.Tags)
	if err != nil {
		return err
	}
	var tagsCol any
	if tags != "" {
		tagsCol = tags
	}

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query, args := ed.builder().
		Insert(schema.ArticlesTable).
		Columns(schema.Columns...).
		Values(
			a.ID,
			a.Title,
			a.Body,
			a.Author,
			a.URL,
			a.PublishedAt.UTC(),
			a.Summary,
			tagsCol,
			a.Saved,
			a.Claps,
			a.Responses,
			createdAt.UTC(),
		).
		OnConflict(
			entsql.ConflictColumns(schema.FieldID),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				for _, col := range schema.Columns {
					if col == schema.FieldID || col == schema.FieldCreatedAt {
						continue
					}
					u.SetExcluded(col)
				}
			}),
		).
		Query()

	if err := ed.Driver.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("failed to put article %s: %w", a.ID, err)
	}
	return nil
}

// Get retrieves an article by id.
func (ed *EntDriver) Get(ctx context.Context, id string) (*article.Article, error) {
	query, args := ed.selectArticles().
		Where(entsql.EQ(schema.FieldID, id)).
		Query()

	articles, err := ed.queryArticles(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to get article %s: %w", id, err)
	}
	if len(articles) == 0 {
		return nil, storage.NotFoundError{ID: id}
	}
	return articles[0], nil
}

// Existing reports which of ids are stored.
func (ed *EntDriver) Existing(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	b := ed.builder()
	query, qargs := b.Select(schema.FieldID).
		From(b.Table(schema.ArticlesTable)).
		Where(entsql.In(schema.FieldID, args...)).
		Query()

	var rows entsql.Rows
	if err := ed.Driver.Query(ctx, query, qargs, &rows); err != nil {
		return nil, fmt.Errorf("failed to query existing articles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan article id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// Recent returns up to limit articles, newest first.
func (ed *EntDriver) Recent(ctx context.Context, limit int) ([]*article.Article, error) {
	sel := ed.selectArticles().
		OrderBy(entsql.Desc(schema.FieldPublishedAt), entsql.Asc(schema.FieldID))
	if limit >= 0 {
		sel = sel.Limit(limit)
	}

	query, args := sel.Query()
	articles, err := ed.queryArticles(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent articles: %w", err)
	}
	return articles, nil
}

// List returns every article, newest first.
func (ed *EntDriver) List(ctx context.Context) ([]*article.Article, error) {
	return ed.Recent(ctx, -1)
}

// MarkSaved sets the saved flag.
func (ed *EntDriver) MarkSaved(ctx context.Context, id string) error {
	return ed.setSaved(ctx, id, true)
}

// UnmarkSaved clears the saved flag.
func (ed *EntDriver) UnmarkSaved(ctx context.Context, id string) error {
	return ed.setSaved(ctx, id, false)
}

func (ed *EntDriver) setSaved(ctx context.Context, id string, saved bool) error {
	query, args := ed.builder().
		Update(schema.ArticlesTable).
		Set(schema.FieldSaved, saved).
		Where(entsql.EQ(schema.FieldID, id)).
		Query()

	var res stdsql.Result
	if err := ed.Driver.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("failed to update saved flag for %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return storage.NotFoundError{ID: id}
	}
	return nil
}

// Delete removes an article.
func (ed *EntDriver) Delete(ctx context.Context, id string) error {
	query, args := ed.builder().
		Delete(schema.ArticlesTable).
		Where(entsql.EQ(schema.FieldID, id)).
		Query()

	if err := ed.Driver.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("failed to delete article %s: %w", id, err)
	}
	return nil
}

// Count returns the number of stored articles.
func (ed *EntDriver) Count(ctx context.Context) (int, error) {
	b := ed.builder()
	query, args := b.Select(entsql.Count("*")).
		From(b.Table(schema.ArticlesTable)).
		Query()

	var rows entsql.Rows
	if err := ed.Driver.Query(ctx, query, args, &rows); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, errors.New("count returned no rows")
	}

	var n int
	if err := rows.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to scan count: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (ed *EntDriver) Close() error {
	return ed.Driver.Close()
}

// queryArticles runs query and scans every row into an article. Rows are
// closed before returning so single-connection pools can issue the next
// statement.
func (ed *EntDriver) queryArticles(ctx context.Context, query string, args []any) ([]*article.Article, error) {
	var rows entsql.Rows
	if err := ed.Driver.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*article.Article
	for rows.Next() {
		a, err := scanArticle(&rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanArticle(rows *entsql.Rows) (*article.Article, error) {
	var (
		a    article.Article
		tags stdsql.NullString
	)
	err := rows.Scan(
		&a.ID,
		&a.Title,
		&a.Body,
		&a.Author,
		&a.URL,
		&a.PublishedAt,
		&a.Summary,
		&tags,
		&a.Saved,
		&a.Claps,
		&a.Responses,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan article: %w", err)
	}

	a.Tags, err = article.DecodeTags(tags.String)
	if err != nil {
		return nil, fmt.Errorf("article %s: %w", a.ID, err)
	}
	a.PublishedAt = a.PublishedAt.UTC()
	a.CreatedAt = a.CreatedAt.UTC()

	return &a, nil
}

var _ storage.Driver = (*EntDriver)(nil)
