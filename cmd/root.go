package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "livefeed",
		Usage: "A blog feed backend with real-time updates",
		Description: `A content-management backend for user-authored posts.

		Registered users create, read, update and delete posts consisting of
		a title, text content and one image. Every committed change is pushed
		to all connected viewers over SSE and websocket channels.

		Flags can generally be set via environment variables, e.g.:

		--database => LIVEFEED_DATABASE=feed.db
		--port => LIVEFEED_PORT=8080
		`,
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			adduserCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
