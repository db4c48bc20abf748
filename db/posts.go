package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"livefeed/models"

	"github.com/google/uuid"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// Posts handles all post storage operations on a shared connection pool
type Posts struct {
	db *sql.DB
}

func NewPosts(db *sql.DB) *Posts {
	return &Posts{db: db}
}

const postColumns = "posts.id, posts.title, posts.content, posts.image_ref, posts.creator_id, posts.created_at, posts.updated_at"

func scanPost(row interface{ Scan(...any) error }, withName bool) (models.Post, error) {
	var post models.Post
	var createdAt, updatedAt int64
	var name sql.NullString

	dest := []any{&post.ID, &post.Title, &post.Content, &post.ImageRef, &post.Creator.ID, &createdAt, &updatedAt}
	if withName {
		dest = append(dest, &name)
	}

	if err := row.Scan(dest...); err != nil {
		return models.Post{}, err
	}

	post.CreatedAt = time.Unix(0, createdAt).UTC()
	post.UpdatedAt = time.Unix(0, updatedAt).UTC()
	post.Creator.Name = name.String
	return post, nil
}

// ListPage returns one page of posts ordered by creation time descending,
// joined with the creator name, plus the total post count. Page numbers
// below 1 are coerced to the first page.
func (posts *Posts) ListPage(page, size int) ([]models.Post, int64, error) {
	if page < 1 {
		page = 1
	}

	count := sqlbuilder.NewSelectBuilder()
	count.Select("count(*)").From("posts")
	countSQL, countArgs := count.BuildWithFlavor(sqlbuilder.Flavor(sqlbuilder.SQLite))

	var total int64
	if err := posts.db.QueryRow(countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count error: %w", err)
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(postColumns, "users.name")
	sb.From("posts")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "users", "users.id = posts.creator_id")
	sb.OrderBy("posts.created_at DESC", "posts.rowid DESC")
	sb.Limit(size)
	sb.Offset((page - 1) * size)

	query, args := sb.BuildWithFlavor(sqlbuilder.Flavor(sqlbuilder.SQLite))

	rows, err := posts.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	pagePosts := []models.Post{}
	for rows.Next() {
		post, err := scanPost(rows, true)
		if err != nil {
			return nil, 0, fmt.Errorf("scan error: %w", err)
		}
		pagePosts = append(pagePosts, post)
	}

	return pagePosts, total, rows.Err()
}

func (posts *Posts) GetByID(id string) (models.Post, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(postColumns).From("posts")
	sb.Where(sb.Equal("posts.id", id))

	query, args := sb.BuildWithFlavor(sqlbuilder.Flavor(sqlbuilder.SQLite))

	post, err := scanPost(posts.db.QueryRow(query, args...), false)
	if err == sql.ErrNoRows {
		return models.Post{}, ErrNotFound
	}
	if err != nil {
		return models.Post{}, fmt.Errorf("query error: %w", err)
	}
	return post, nil
}

// GetByIDWithCreator loads a post joined with its creator summary, used to
// authorize mutations against the current creator identity.
func (posts *Posts) GetByIDWithCreator(id string) (models.Post, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(postColumns, "users.name")
	sb.From("posts")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "users", "users.id = posts.creator_id")
	sb.Where(sb.Equal("posts.id", id))

	query, args := sb.BuildWithFlavor(sqlbuilder.Flavor(sqlbuilder.SQLite))

	post, err := scanPost(posts.db.QueryRow(query, args...), true)
	if err == sql.ErrNoRows {
		return models.Post{}, ErrNotFound
	}
	if err != nil {
		return models.Post{}, fmt.Errorf("query error: %w", err)
	}
	return post, nil
}

// Create assigns the id and timestamps, persists the post and returns the
// stored record.
func (posts *Posts) Create(ctx context.Context, title, content, imageRef, creatorID string) (models.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	post := models.Post{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		ImageRef:  imageRef,
		Creator:   models.Creator{ID: creatorID},
		CreatedAt: now,
		UpdatedAt: now,
	}

	log.WithFields(log.Fields{
		"id":      post.ID,
		"creator": creatorID,
	}).Info("Creating post")

	insertPost := sqlbuilder.NewInsertBuilder()
	insertPost.InsertInto("posts").
		Cols("id", "title", "content", "image_ref", "creator_id", "created_at", "updated_at").
		Values(post.ID, post.Title, post.Content, post.ImageRef, creatorID, now.UnixNano(), now.UnixNano())
	query, args := insertPost.Build()

	if _, err := posts.db.ExecContext(ctx, query, args...); err != nil {
		return models.Post{}, fmt.Errorf("insert error: %w", err)
	}

	return post, nil
}

// Update replaces title, content and image_ref and bumps updated_at, then
// returns the stored record joined with its creator.
func (posts *Posts) Update(ctx context.Context, id, title, content, imageRef string) (models.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	ub := sqlbuilder.NewUpdateBuilder()
	ub.Update("posts").Set(
		ub.Assign("title", title),
		ub.Assign("content", content),
		ub.Assign("image_ref", imageRef),
		ub.Assign("updated_at", time.Now().UTC().UnixNano()),
	).Where(ub.Equal("id", id))
	query, args := ub.Build()

	res, err := posts.db.ExecContext(ctx, query, args...)
	if err != nil {
		return models.Post{}, fmt.Errorf("update error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return models.Post{}, err
	}
	if affected == 0 {
		return models.Post{}, ErrNotFound
	}

	return posts.GetByIDWithCreator(id)
}

func (posts *Posts) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	log.WithFields(log.Fields{"id": id}).Info("Deleting post")
	res, err := posts.db.ExecContext(ctx, "DELETE FROM posts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
