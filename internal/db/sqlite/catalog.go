package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lukaszraczylo/coursebot/pkg/models"
)

// CatalogStore provides course catalog operations. Keys are store-assigned
// UUID strings; callers treat them as opaque.
type CatalogStore struct {
	store *Store
}

// NewCatalogStore creates a new catalog store.
func NewCatalogStore(store *Store) *CatalogStore {
	return &CatalogStore{store: store}
}

// courseColumns maps the editable field names accepted by UpdateField to
// their columns. A closed map keeps field names out of the SQL text.
var courseColumns = map[string]string{
	"name":     "name",
	"category": "category",
	"link":     "link",
}

// List returns every course in insertion order. Resolution callers re-fetch
// on every call; nothing here is cached.
func (c *CatalogStore) List(ctx context.Context) ([]models.Course, error) {
	const query = `
		SELECT key, name, category, link
		FROM courses
		ORDER BY created_at_epoch ASC, key ASC
	`

	rows, err := c.store.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []models.Course
	for rows.Next() {
		var course models.Course
		if err := rows.Scan(&course.Key, &course.Name, &course.Category, &course.Link); err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	return courses, rows.Err()
}

// Get returns a course by key, or (nil, nil) when the key is unknown.
func (c *CatalogStore) Get(ctx context.Context, key string) (*models.Course, error) {
	const query = `
		SELECT key, name, category, link
		FROM courses
		WHERE key = ?
		LIMIT 1
	`

	var course models.Course
	err := c.store.QueryRowContext(ctx, query, key).Scan(
		&course.Key, &course.Name, &course.Category, &course.Link,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// Append inserts a complete course record in one statement and returns the
// assigned key. Partial drafts never reach this call.
func (c *CatalogStore) Append(ctx context.Context, name, category, link string) (string, error) {
	const query = `
		INSERT INTO courses (key, name, category, link, created_at, created_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	key := uuid.NewString()
	now := time.Now()
	_, err := c.store.ExecContext(ctx, query,
		key, name, category, link,
		now.Format(time.RFC3339), now.UnixMilli(),
	)
	if err != nil {
		return "", err
	}
	return key, nil
}

// UpdateField replaces a single field of the course at key. Returns
// ErrNotFound when the key no longer exists.
func (c *CatalogStore) UpdateField(ctx context.Context, key, field, value string) error {
	column, ok := courseColumns[field]
	if !ok {
		return fmt.Errorf("unknown course field %q", field)
	}

	// column comes from the closed courseColumns map, never from input
	query := `UPDATE courses SET ` + column + ` = ? WHERE key = ?`
	result, err := c.store.ExecContext(ctx, query, value, key)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Remove deletes the course at key. Returns ErrNotFound when the key no
// longer exists.
func (c *CatalogStore) Remove(ctx context.Context, key string) error {
	const query = `DELETE FROM courses WHERE key = ?`

	result, err := c.store.ExecContext(ctx, query, key)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
