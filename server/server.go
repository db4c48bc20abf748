package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"livefeed/config"
	"livefeed/feed"
	"livefeed/models"
	"livefeed/realtime"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

type ServerConfig struct {

	// The hostname to use for the server
	Hostname string

	// The lifecycle manager handling all post operations
	Service *feed.Service

	// Directory holding the uploaded images, served under /images
	ImagesDir string

	// Secret used to verify tokens issued by the auth subsystem
	JWTSecret []byte

	// Site configuration: page size, accepted MIME types, CORS origin
	Site *config.TomlConfig
}

// Returns a fiber.App instance to be used as the HTTP server for the feed
func Server(config *ServerConfig) *fiber.App {

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		// start timer
		start := time.Now()

		// next routes
		err := c.Next()

		// stop timer
		stop := time.Now()

		// Diff
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": stop.Sub(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins:     config.Site.AllowOrigin,
		AllowHeaders:     "Origin, Content-Type, Authorization, Cache-Control",
		AllowMethods:     "GET, POST, PUT, DELETE",
		AllowCredentials: true,
	}))

	// Serve the uploaded images at their stable path prefix
	app.Static("/images", config.ImagesDir)

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	app.Delete("/events", func(c *fiber.Ctx) error {
		key := c.Query("key", "")
		realtime.Get().RemoveClient(key)
		return c.Status(fiber.StatusOK).SendString("OK")
	})

	app.Get("/events", sseHandler)

	posts := app.Group("/feed", RequireAuth(config.JWTSecret))

	posts.Get("/posts", func(c *fiber.Ctx) error {
		page, err := strconv.Atoi(c.Query("page", "1"))
		if err != nil || page < 1 {
			page = 1
		}

		pagePosts, total, err := config.Service.List(page)
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusOK).JSON(models.PostsPage{
			Message:    "Posts Fetched Succcessfully",
			Posts:      pagePosts,
			TotalItems: total,
		})
	})

	posts.Get("/post/:postId", func(c *fiber.Ctx) error {
		post, err := config.Service.Get(c.Params("postId"))
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusOK).JSON(models.PostResponse{
			Message: "Post Fetched",
			Post:    post,
		})
	})

	posts.Post("/post", func(c *fiber.Ctx) error {
		in := feed.PostInput{
			Title:   c.FormValue("title"),
			Content: c.FormValue("content"),
		}
		in.Image = acceptedImage(c, config.Site.AcceptedImageTypes)

		post, creator, err := config.Service.Create(c.UserContext(), requestUserID(c), in)
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(models.CreatedResponse{
			Message: "Post created successfully !",
			Post:    post,
			Creator: creator,
		})
	})

	posts.Put("/post/:postId", func(c *fiber.Ctx) error {
		in, err := updateInput(c, config.Site.AcceptedImageTypes)
		if err != nil {
			return err
		}

		post, err := config.Service.Update(c.UserContext(), requestUserID(c), c.Params("postId"), in)
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusOK).JSON(models.PostResponse{
			Message: "Post updated Successfully",
			Post:    post,
		})
	})

	posts.Delete("/post/:postId", func(c *fiber.Ctx) error {
		if err := config.Service.Delete(c.UserContext(), requestUserID(c), c.Params("postId")); err != nil {
			return err
		}

		return c.Status(fiber.StatusOK).JSON(models.MessageResponse{
			Message: "Post Deletion Successful",
		})
	})

	return app
}

func requestUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals(localUserID).(string)
	return userID
}

// acceptedImage returns the uploaded image file, or nil when no file was
// attached or its MIME type is not accepted. Filtered uploads are dropped
// before they reach the lifecycle manager, mirroring the upload filter the
// clients already rely on.
func acceptedImage(c *fiber.Ctx, acceptedTypes []string) *multipart.FileHeader {
	file, err := c.FormFile("image")
	if err != nil {
		return nil
	}

	contentType := file.Header.Get(fiber.HeaderContentType)
	if !lo.Contains(acceptedTypes, contentType) {
		log.WithFields(log.Fields{
			"filename":    file.Filename,
			"contentType": contentType,
		}).Warn("Dropping upload with unsupported media type")
		return nil
	}

	return file
}

// updateInput reads the update payload from either a multipart form or a
// JSON body. The image field may be a fresh upload or a reference to an
// already stored asset.
func updateInput(c *fiber.Ctx, acceptedTypes []string) (feed.PostInput, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		var body struct {
			Title   string `json:"title"`
			Content string `json:"content"`
			Image   string `json:"image"`
		}
		if err := c.BodyParser(&body); err != nil {
			return feed.PostInput{}, fiber.NewError(fiber.StatusUnprocessableEntity, "Validation Failed, Entered data is incorrect !")
		}
		return feed.PostInput{Title: body.Title, Content: body.Content, ImageRef: body.Image}, nil
	}

	in := feed.PostInput{
		Title:    c.FormValue("title"),
		Content:  c.FormValue("content"),
		ImageRef: c.FormValue("image"),
	}
	in.Image = acceptedImage(c, acceptedTypes)
	return in, nil
}

func sseHandler(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	// Unique client key
	key := uuid.New().String()
	events := make(chan models.PostEvent, 10) // Buffered channel
	aliveChan := time.NewTicker(5 * time.Second)

	defer aliveChan.Stop()

	// Register the client
	hub := realtime.Get()
	hub.AddClient(key, events)

	// Cleanup function
	cleanup := func() {
		log.Infof("Cleaning up SSE stream for client: %s", key)
		hub.RemoveClient(key)
	}

	// Use StreamWriter to manage SSE streaming
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cleanup()

		// Send initial event with client key
		fmt.Fprintf(w, "event: init\ndata: %s\n\n", key)
		if err := w.Flush(); err != nil {
			log.Errorf("Failed to send init event: %v", err)
			return
		}

		// Start streaming loop
		for {
			select {
			case <-aliveChan.C:
				// Send keep-alive pings
				if _, err := fmt.Fprintf(w, "event: ping\ndata: \n\n"); err != nil {
					log.Warnf("Failed to send ping to client %s: %v", key, err)
					return
				}
				if err := w.Flush(); err != nil {
					log.Warnf("Failed to flush ping for client %s: %v", key, err)
					return
				}

			case event, ok := <-events:
				if !ok {
					log.Warnf("Event channel closed for client %s", key)
					return
				}
				jsonEvent, err := json.Marshal(event)
				if err != nil {
					log.Errorf("Error marshalling event for client %s: %v", key, err)
					continue
				}
				if _, err := fmt.Fprintf(w, "event: posts\ndata: %s\n\n", jsonEvent); err != nil {
					log.Warnf("Failed to send posts event to client %s: %v", key, err)
					return
				}
				if err := w.Flush(); err != nil {
					log.Warnf("Failed to flush posts event for client %s: %v", key, err)
					return
				}
			}
		}
	}))

	return nil
}

// errorHandler maps typed status errors to their HTTP response and treats
// everything else as an internal error.
func errorHandler(c *fiber.Ctx, err error) error {
	var statusErr *feed.StatusError
	if errors.As(err, &statusErr) {
		resp := models.MessageResponse{Message: statusErr.Message}
		if statusErr.Data != nil {
			resp.Data = statusErr.Data
		}
		return c.Status(statusErr.Code).JSON(resp)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(models.MessageResponse{Message: fiberErr.Message})
	}

	log.WithFields(log.Fields{
		"method": c.Method(),
		"path":   c.Path(),
		"error":  err,
	}).Error("Unhandled error")

	return c.Status(fiber.StatusInternalServerError).JSON(models.MessageResponse{Message: "Internal server error"})
}
