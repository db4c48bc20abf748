package models

import "time"

// Creator is the denormalized author summary attached to posts.
type Creator struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

// Post model with key fields from the post
type Post struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImageRef  string    `json:"imageUrl"`
	Creator   Creator   `json:"creator"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PostEvent is the ephemeral change notification broadcast to subscribers
// after a mutation commits. Create and update carry the full post under
// "actions", delete carries the post id under "action". The asymmetric
// field names match the wire contract existing subscribers depend on.
type PostEvent struct {
	Actions string `json:"actions,omitempty"`
	Action  string `json:"action,omitempty"`
	Post    any    `json:"post"`
}

// CreateEvent fired when a new post is created
func CreateEvent(post Post) PostEvent {
	return PostEvent{Actions: "create", Post: post}
}

// UpdateEvent fired when a post is updated
func UpdateEvent(post Post) PostEvent {
	return PostEvent{Actions: "update", Post: post}
}

// DeleteEvent fired when a post is deleted, carries only the post id
func DeleteEvent(postID string) PostEvent {
	return PostEvent{Action: "delete", Post: postID}
}

type PostsPage struct {
	Message    string `json:"message"`
	Posts      []Post `json:"posts"`
	TotalItems int64  `json:"totalItems"`
}

type PostResponse struct {
	Message string `json:"message"`
	Post    Post   `json:"post"`
}

type CreatedResponse struct {
	Message string  `json:"message"`
	Post    Post    `json:"post"`
	Creator Creator `json:"creator"`
}

type MessageResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}
