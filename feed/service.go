package feed

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"unicode/utf8"

	"livefeed/assets"
	"livefeed/db"
	"livefeed/models"
	"livefeed/realtime"

	log "github.com/sirupsen/logrus"
)

const minFieldLength = 5

// PostInput carries the client-supplied fields of a create or update
// request. Image holds a freshly uploaded file, ImageRef an already stored
// reference supplied instead of a new upload.
type PostInput struct {
	Title    string
	Content  string
	Image    *multipart.FileHeader
	ImageRef string
}

// Service orchestrates the post lifecycle: it validates input, enforces
// ownership, sequences repository and asset store calls and broadcasts a
// change event once a mutation is durably committed.
type Service struct {
	posts    *db.Posts
	authors  *db.Authors
	store    *assets.Store
	pageSize int
}

func NewService(posts *db.Posts, authors *db.Authors, store *assets.Store, pageSize int) *Service {
	return &Service{
		posts:    posts,
		authors:  authors,
		store:    store,
		pageSize: pageSize,
	}
}

// validate checks the trimmed title and content against the minimum length
// and reports every failing field.
func validate(title, content string) *StatusError {
	var fields []FieldError
	if utf8.RuneCountInString(strings.TrimSpace(title)) < minFieldLength {
		fields = append(fields, FieldError{Field: "title", Message: "must be at least 5 characters long"})
	}
	if utf8.RuneCountInString(strings.TrimSpace(content)) < minFieldLength {
		fields = append(fields, FieldError{Field: "content", Message: "must be at least 5 characters long"})
	}
	if fields != nil {
		return errValidation("Validation Failed, Entered data is incorrect !", fields...)
	}
	return nil
}

// Create validates the input, stores the uploaded image, persists the post,
// registers it with its author and broadcasts the create event.
func (s *Service) Create(ctx context.Context, userID string, in PostInput) (models.Post, models.Creator, error) {
	if err := validate(in.Title, in.Content); err != nil {
		return models.Post{}, models.Creator{}, err
	}
	if in.Image == nil {
		return models.Post{}, models.Creator{}, errValidation("File not provided !")
	}

	imageRef, err := s.store.Save(in.Image)
	if err != nil {
		return models.Post{}, models.Creator{}, err
	}

	post, err := s.posts.Create(ctx, in.Title, in.Content, imageRef, userID)
	if err != nil {
		return models.Post{}, models.Creator{}, err
	}

	if err := s.authors.AddAuthoredPost(ctx, userID, post.ID); err != nil {
		// The post is already durable at this point; surface the failure
		// instead of rolling back.
		return models.Post{}, models.Creator{}, err
	}

	creator, err := s.authors.GetSummary(userID)
	if err != nil {
		return models.Post{}, models.Creator{}, err
	}
	post.Creator = creator

	realtime.Get().Broadcast(models.CreateEvent(post))

	return post, creator, nil
}

// Update validates the input, resolves the effective image reference,
// authorizes the requester against the post's creator, swaps the asset if
// it changed and broadcasts the update event.
func (s *Service) Update(ctx context.Context, userID, postID string, in PostInput) (models.Post, error) {
	if err := validate(in.Title, in.Content); err != nil {
		return models.Post{}, err
	}

	imageRef := in.ImageRef
	if in.Image != nil {
		ref, err := s.store.Save(in.Image)
		if err != nil {
			return models.Post{}, err
		}
		imageRef = ref
	}
	if imageRef == "" {
		return models.Post{}, errValidation("No File Picked!!")
	}

	post, err := s.posts.GetByIDWithCreator(postID)
	if errors.Is(err, db.ErrNotFound) {
		return models.Post{}, errPostNotFound()
	}
	if err != nil {
		return models.Post{}, err
	}

	if post.Creator.ID != userID {
		return models.Post{}, errForbidden()
	}

	if imageRef != post.ImageRef {
		s.store.Remove(post.ImageRef)
	}

	updated, err := s.posts.Update(ctx, postID, in.Title, in.Content, imageRef)
	if errors.Is(err, db.ErrNotFound) {
		return models.Post{}, errPostNotFound()
	}
	if err != nil {
		return models.Post{}, err
	}

	realtime.Get().Broadcast(models.UpdateEvent(updated))

	return updated, nil
}

// Delete authorizes the requester, removes the asset and the post record,
// unregisters the post from its author and broadcasts the delete event.
func (s *Service) Delete(ctx context.Context, userID, postID string) error {
	post, err := s.posts.GetByID(postID)
	if errors.Is(err, db.ErrNotFound) {
		return errPostNotFound()
	}
	if err != nil {
		return err
	}

	if post.Creator.ID != userID {
		return errForbidden()
	}

	s.store.Remove(post.ImageRef)

	if err := s.posts.Delete(ctx, postID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// Vanished between load and delete
			return errPostNotFound()
		}
		return err
	}

	if err := s.authors.RemoveAuthoredPost(ctx, userID, postID); err != nil {
		return err
	}

	realtime.Get().Broadcast(models.DeleteEvent(postID))

	return nil
}

// Get loads a single post by id.
func (s *Service) Get(postID string) (models.Post, error) {
	post, err := s.posts.GetByID(postID)
	if errors.Is(err, db.ErrNotFound) {
		return models.Post{}, errPostNotFound()
	}
	if err != nil {
		return models.Post{}, err
	}
	return post, nil
}

// List returns the requested feed page ordered by recency together with the
// total post count.
func (s *Service) List(page int) ([]models.Post, int64, error) {
	posts, total, err := s.posts.ListPage(page, s.pageSize)
	if err != nil {
		return nil, 0, err
	}

	log.WithFields(log.Fields{
		"page":  page,
		"count": len(posts),
		"total": total,
	}).Info("Fetched posts page")

	return posts, total, nil
}
