package cmd

import (
	"fmt"

	"livefeed/db"

	"github.com/cqroot/prompt"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

// adduserCmd registers a user projection locally. User accounts normally
// arrive from the auth subsystem; this is for development and operations.
func adduserCmd() *cli.Command {
	return &cli.Command{
		Name:  "adduser",
		Usage: "Register a user in the local database",
		Description: `Registers a user projection in the local database.

Prompts for the display name and prints the generated user id. Tokens for
the user still have to be issued by the auth service.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.StringFlag{
				Name:  "id",
				Usage: "User id to register, generated when omitted",
			},
		},
		Action: func(ctx *cli.Context) error {
			name, err := prompt.New().Ask("Display name:").Input("Maximilian")
			if err != nil {
				return err
			}

			id := ctx.String("id")
			if id == "" {
				id = uuid.NewString()
			}

			sqldb, err := db.Connect(ctx.String("database"))
			if err != nil {
				return err
			}
			defer sqldb.Close()

			if err := db.NewAuthors(sqldb).UpsertUser(ctx.Context, id, name); err != nil {
				return err
			}

			fmt.Println("Registered user: ", id)
			return nil
		},
	}
}
