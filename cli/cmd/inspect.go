package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/loom/correlate"
	"github.com/justapithecus/loom/store/sqlite"
	"github.com/justapithecus/loom/types"
)

// InspectCommand returns the inspect command: dump a stored session's
// artifacts and groups as JSON. Read-only.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Dump a stored session's artifacts and groups",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db",
				Usage:    "SQLite database path",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "chat-id",
				Usage:    "Session to inspect",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "category",
				Usage: "Only show artifacts of one category",
			},
		},
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	store, err := sqlite.Open(c.String("db"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("store: %v", err), exitStoreFailure)
	}

	correlator := correlate.NewCorrelator(correlate.Config{Store: store})
	chatID := c.String("chat-id")
	view, err := correlator.SwitchSession(c.Context, chatID)
	if err != nil {
		return cli.Exit(fmt.Sprintf("load session: %v", err), exitStoreFailure)
	}

	if category := c.String("category"); category != "" {
		printJSON(c.App.Writer, correlator.ArtifactsByCategory(types.Category(category), chatID))
		return nil
	}

	printJSON(c.App.Writer, view)
	return nil
}
