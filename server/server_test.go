package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"livefeed/assets"
	"livefeed/config"
	"livefeed/db"
	"livefeed/feed"
	"livefeed/models"
	"livefeed/realtime"
	"livefeed/server"

	"github.com/gofiber/fiber/v2"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestMain(m *testing.M) {
	realtime.Init(realtime.NewHub())
	os.Exit(m.Run())
}

func testApp(t *testing.T) *fiber.App {
	t.Helper()

	path := filepath.Join(t.TempDir(), "feed.db")
	require.NoError(t, db.Migrate(path))

	sqldb, err := db.Connect(path)
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })

	images := t.TempDir()
	store, err := assets.NewStore(images)
	require.NoError(t, err)

	authors := db.NewAuthors(sqldb)
	require.NoError(t, authors.UpsertUser(context.Background(), "user-1", "Maximilian"))
	require.NoError(t, authors.UpsertUser(context.Background(), "user-2", "Berta"))

	site := config.DefaultConfig()
	service := feed.NewService(db.NewPosts(sqldb), authors, store, site.PageSize)

	return server.Server(&server.ServerConfig{
		Hostname:  "localhost",
		Service:   service,
		ImagesDir: images,
		JWTSecret: testSecret,
		Site:      site,
	})
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()

	token, err := jwt.NewBuilder().
		Subject(userID).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, testSecret))
	require.NoError(t, err)

	return "Bearer " + string(signed)
}

func postForm(t *testing.T, title, content string, withImage bool) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("title", title))
	require.NoError(t, writer.WriteField("content", content))

	if withImage {
		header := make(map[string][]string)
		header["Content-Disposition"] = []string{`form-data; name="image"; filename="cat.png"`}
		header["Content-Type"] = []string{"image/png"}
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte("png bytes"))
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var body T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return body
}

func createPost(t *testing.T, app *fiber.App, userID, title, content string) models.Post {
	t.Helper()

	body, contentType := postForm(t, title, content, true)
	req := httptest.NewRequest(http.MethodPost, "/feed/post", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearerToken(t, userID))

	res, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, res.StatusCode)

	return decode[models.CreatedResponse](t, res).Post
}

func TestRequiresAuthentication(t *testing.T) {
	app := testApp(t)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing token", header: ""},
		{name: "malformed header", header: "user-1"},
		{name: "garbage token", header: "Bearer not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/feed/posts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			res, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)
		})
	}
}

func TestCreatePost(t *testing.T) {
	app := testApp(t)

	body, contentType := postForm(t, "Hello World", "This is a test post", true)
	req := httptest.NewRequest(http.MethodPost, "/feed/post", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearerToken(t, "user-1"))

	res, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, res.StatusCode)

	created := decode[models.CreatedResponse](t, res)
	assert.Equal(t, "Post created successfully !", created.Message)
	assert.NotEmpty(t, created.Post.ID)
	assert.Equal(t, "Hello World", created.Post.Title)
	assert.Equal(t, "This is a test post", created.Post.Content)
	assert.Equal(t, "user-1", created.Creator.ID)
	assert.Equal(t, "Maximilian", created.Creator.Name)
}

func TestCreatePostValidation(t *testing.T) {
	app := testApp(t)

	body, contentType := postForm(t, "Hi", "This is a test post", true)
	req := httptest.NewRequest(http.MethodPost, "/feed/post", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearerToken(t, "user-1"))

	res, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, res.StatusCode)

	failure := decode[models.MessageResponse](t, res)
	assert.Equal(t, "Validation Failed, Entered data is incorrect !", failure.Message)
	assert.NotNil(t, failure.Data)
}

func TestCreatePostWithoutImage(t *testing.T) {
	app := testApp(t)

	body, contentType := postForm(t, "Hello World", "This is a test post", false)
	req := httptest.NewRequest(http.MethodPost, "/feed/post", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearerToken(t, "user-1"))

	res, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, res.StatusCode)
}

func TestListPosts(t *testing.T) {
	app := testApp(t)

	for i := 0; i < 3; i++ {
		createPost(t, app, "user-1", fmt.Sprintf("Post number %d", i), "This is a test post")
	}

	req := httptest.NewRequest(http.MethodGet, "/feed/posts?page=2", nil)
	req.Header.Set("Authorization", bearerToken(t, "user-2"))

	res, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	page := decode[models.PostsPage](t, res)
	assert.Equal(t, int64(3), page.TotalItems)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, "Post number 0", page.Posts[0].Title)
	assert.Equal(t, "Maximilian", page.Posts[0].Creator.Name)
}

func TestListPostsDefaultsPage(t *testing.T) {
	app := testApp(t)

	createPost(t, app, "user-1", "Hello World", "This is a test post")

	req := httptest.NewRequest(http.MethodGet, "/feed/posts?page=garbage", nil)
	req.Header.Set("Authorization", bearerToken(t, "user-1"))

	res, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	page := decode[models.PostsPage](t, res)
	assert.Equal(t, int64(1), page.TotalItems)
	assert.Len(t, page.Posts, 1)
}

func TestGetPost(t *testing.T) {
	app := testApp(t)

	post := createPost(t, app, "user-1", "Hello World", "This is a test post")

	req := httptest.NewRequest(http.MethodGet, "/feed/post/"+post.ID, nil)
	req.Header.Set("Authorization", bearerToken(t, "user-1"))

	res, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	fetched := decode[models.PostResponse](t, res)
	assert.Equal(t, "Post Fetched", fetched.Message)
	assert.Equal(t, post.ID, fetched.Post.ID)
}

func TestGetPostNotFound(t *testing.T) {
	app := testApp(t)

	req := httptest.NewRequest(http.MethodGet, "/feed/post/missing", nil)
	req.Header.Set("Authorization", bearerToken(t, "user-1"))

	res, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, res.StatusCode)

	failure := decode[models.MessageResponse](t, res)
	assert.Equal(t, "No post with the id was found", failure.Message)
}

func TestUpdatePostWithJSONBody(t *testing.T) {
	app := testApp(t)

	post := createPost(t, app, "user-1", "Hello World", "This is a test post")

	payload, err := json.Marshal(map[string]string{
		"title":   "Hello again",
		"content": "Updated content here",
		"image":   post.ImageRef,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/feed/post/"+post.ID, bytes.NewReader(payload))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	req.Header.Set("Authorization", bearerToken(t, "user-1"))

	res, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	updated := decode[models.PostResponse](t, res)
	assert.Equal(t, "Post updated Successfully", updated.Message)
	assert.Equal(t, "Hello again", updated.Post.Title)
	assert.Equal(t, post.ImageRef, updated.Post.ImageRef)
}

func TestUpdatePostByNonOwner(t *testing.T) {
	app := testApp(t)

	post := createPost(t, app, "user-1", "Hello World", "This is a test post")

	payload, err := json.Marshal(map[string]string{
		"title":   "Stolen title",
		"content": "Should not happen",
		"image":   post.ImageRef,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/feed/post/"+post.ID, bytes.NewReader(payload))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	req.Header.Set("Authorization", bearerToken(t, "user-2"))

	res, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, res.StatusCode)

	failure := decode[models.MessageResponse](t, res)
	assert.Equal(t, "Not authorized !", failure.Message)
}

func TestDeletePost(t *testing.T) {
	app := testApp(t)

	post := createPost(t, app, "user-1", "Hello World", "This is a test post")

	req := httptest.NewRequest(http.MethodDelete, "/feed/post/"+post.ID, nil)
	req.Header.Set("Authorization", bearerToken(t, "user-1"))

	res, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	deleted := decode[models.MessageResponse](t, res)
	assert.Equal(t, "Post Deletion Successful", deleted.Message)

	// A second delete reports not found
	req = httptest.NewRequest(http.MethodDelete, "/feed/post/"+post.ID, nil)
	req.Header.Set("Authorization", bearerToken(t, "user-1"))

	res, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, res.StatusCode)
}

func TestDeletePostByNonOwner(t *testing.T) {
	app := testApp(t)

	post := createPost(t, app, "user-1", "Hello World", "This is a test post")

	req := httptest.NewRequest(http.MethodDelete, "/feed/post/"+post.ID, nil)
	req.Header.Set("Authorization", bearerToken(t, "user-2"))

	res, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, res.StatusCode)
}

func TestUnsupportedMediaTypeIsFiltered(t *testing.T) {
	app := testApp(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("title", "Hello World"))
	require.NoError(t, writer.WriteField("content", "This is a test post"))
	header := map[string][]string{
		"Content-Disposition": {`form-data; name="image"; filename="evil.html"`},
		"Content-Type":        {"text/html"},
	}
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("<html></html>"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/feed/post", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", bearerToken(t, "user-1"))

	// The upload filter drops the file, so the create fails like a
	// missing-image request
	res, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, res.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	app := testApp(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	res, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, res.StatusCode)

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "livefeed_realtime_connected_clients")
}
