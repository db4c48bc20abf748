package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"livefeed/assets"
	"livefeed/config"
	"livefeed/db"
	"livefeed/feed"
	"livefeed/realtime"
	"livefeed/server"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the livefeed API",
		Description: `Starts the livefeed HTTP API and the realtime listeners.

Launches the HTTP server on the specified or default port together with a
websocket listener for realtime subscribers. Post mutations are persisted to
the SQLite database and broadcast to all connected clients.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.StringFlag{
				Name:    "hostname",
				Aliases: []string{"n"},
				Usage:   "The hostname where the server is running",
				EnvVars: []string{"LIVEFEED_HOSTNAME"},
				Value:   "localhost",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "HTTP API port",
				EnvVars: []string{"LIVEFEED_PORT"},
				Value:   8080,
			},
			&cli.IntFlag{
				Name:    "ws-port",
				Usage:   "Websocket listener port",
				EnvVars: []string{"LIVEFEED_WS_PORT"},
				Value:   8081,
			},
			&cli.StringFlag{
				Name:    "images",
				Usage:   "Directory for uploaded images",
				EnvVars: []string{"LIVEFEED_IMAGES"},
				Value:   "images",
			},
			&cli.StringFlag{
				Name:     "jwt-secret",
				Usage:    "Secret shared with the auth service for token verification",
				EnvVars:  []string{"LIVEFEED_JWT_SECRET"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to site configuration file",
				EnvVars: []string{"LIVEFEED_CONFIG"},
			},
		},
		Action: func(ctx *cli.Context) error {
			fmt.Println("Starting livefeed...")

			site := config.DefaultConfig()
			if path := ctx.String("config"); path != "" {
				loaded, err := config.LoadConfig(path)
				if err != nil {
					return err
				}
				site = loaded
			}

			sqldb, err := db.Connect(ctx.String("database"))
			if err != nil {
				return err
			}
			defer sqldb.Close()

			store, err := assets.NewStore(ctx.String("images"))
			if err != nil {
				return err
			}

			// The realtime hub is process-wide and must exist before the
			// first request is served.
			realtime.Init(realtime.NewHub())

			service := feed.NewService(db.NewPosts(sqldb), db.NewAuthors(sqldb), store, site.PageSize)

			app := server.Server(&server.ServerConfig{
				Hostname:  ctx.String("hostname"),
				Service:   service,
				ImagesDir: ctx.String("images"),
				JWTSecret: []byte(ctx.String("jwt-secret")),
				Site:      site,
			})

			ws := realtime.NewWSServer(fmt.Sprintf(":%d", ctx.Int("ws-port")), site.AllowOrigin)

			// Graceful shutdown
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)
			var wg sync.WaitGroup

			go func() {
				<-c
				fmt.Println("Gracefully shutting down...")
				app.ShutdownWithTimeout(60 * time.Second)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := ws.Shutdown(shutdownCtx); err != nil {
					log.Error("Error shutting down websocket listener: ", err)
				}

				realtime.Get().Shutdown()
				defer wg.Add(-2) // Decrement the waitgroup counter by 2 after shutdown of both listeners
			}()

			go func() {
				fmt.Println("Starting websocket listener...")
				if err := ws.ListenAndServe(); err != nil {
					log.Panic(err)
				}
			}()

			go func() {
				fmt.Println("Starting server...")
				if err := app.Listen(fmt.Sprintf(":%d", ctx.Int("port"))); err != nil {
					log.Panic(err)
				}
			}()

			// Wait for both listeners to shutdown
			wg.Add(2)
			wg.Wait()

			fmt.Println("Done!")

			return nil
		},
	}
}
