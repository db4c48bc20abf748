package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"livefeed/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// Authors maintains the per-user set of authored post references and the
// user projection handed over by the auth subsystem.
type Authors struct {
	db *sql.DB
}

func NewAuthors(db *sql.DB) *Authors {
	return &Authors{db: db}
}

// GetSummary returns the creator summary for the given author.
func (authors *Authors) GetSummary(authorID string) (models.Creator, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id", "name").From("users")
	sb.Where(sb.Equal("id", authorID))

	query, args := sb.BuildWithFlavor(sqlbuilder.Flavor(sqlbuilder.SQLite))

	var creator models.Creator
	err := authors.db.QueryRow(query, args...).Scan(&creator.ID, &creator.Name)
	if err == sql.ErrNoRows {
		return models.Creator{}, ErrNotFound
	}
	if err != nil {
		return models.Creator{}, fmt.Errorf("query error: %w", err)
	}
	return creator, nil
}

// AddAuthoredPost records the post in the author's set. Adding an already
// present reference is a no-op, membership stays exactly-once.
func (authors *Authors) AddAuthoredPost(ctx context.Context, authorID, postID string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := authors.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO author_posts (author_id, post_id) VALUES (?, ?)",
		authorID, postID,
	)
	if err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

// RemoveAuthoredPost removes the post from the author's set, no-op if absent.
func (authors *Authors) RemoveAuthoredPost(ctx context.Context, authorID, postID string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := authors.db.ExecContext(ctx,
		"DELETE FROM author_posts WHERE author_id = ? AND post_id = ?",
		authorID, postID,
	)
	if err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	return nil
}

// AuthoredPostIDs returns the ids of all posts authored by the given user.
func (authors *Authors) AuthoredPostIDs(authorID string) ([]string, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("post_id").From("author_posts")
	sb.Where(sb.Equal("author_id", authorID))

	query, args := sb.BuildWithFlavor(sqlbuilder.Flavor(sqlbuilder.SQLite))

	rows, err := authors.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertUser stores or refreshes the user projection received from the auth
// subsystem.
func (authors *Authors) UpsertUser(ctx context.Context, id, name string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	log.WithFields(log.Fields{"id": id, "name": name}).Info("Upserting user")
	_, err := authors.db.ExecContext(ctx,
		"INSERT INTO users (id, name) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET name = excluded.name",
		id, name,
	)
	if err != nil {
		return fmt.Errorf("upsert error: %w", err)
	}
	return nil
}
