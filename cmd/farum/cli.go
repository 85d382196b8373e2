package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	mcpadapter "github.com/PabloGalante/farum-companion/internal/adapters/mcp"
	"github.com/PabloGalante/farum-companion/internal/app/conversation"
	"github.com/PabloGalante/farum-companion/internal/bootstrap"
	"github.com/PabloGalante/farum-companion/internal/config"
	"github.com/PabloGalante/farum-companion/internal/domain"
	"github.com/PabloGalante/farum-companion/internal/observability"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(cfg *config.Config, in io.Reader, out io.Writer) *cli.App {
	app := &cli.App{
		Name:    "farum",
		Usage:   "Emotional-support companion on the command line",
		Version: Version,
		Reader:  in,
		Writer:  out,
		Commands: []*cli.Command{
			chatCmd(cfg),
			respondCmd(cfg),
			protocolsCmd(cfg),
			journalCmd(cfg),
			mcpCmd(cfg),
		},
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func userFlag() cli.Flag {
	return &cli.StringFlag{Name: "user", Aliases: []string{"u"}, Value: "local", Usage: "User id"}
}

// withApp builds the pipeline for one command and tears it down afterwards.
func withApp(c *cli.Context, cfg *config.Config, fn func(*bootstrap.App) error) error {
	app, err := bootstrap.New(c.Context, cfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Context), 10*time.Second)
		defer cancel()
		if err := app.Close(ctx); err != nil {
			observability.Logger().Warn("close app", "error", err)
		}
	}()
	return fn(app)
}

// chatCmd runs an interactive session: one line in, one reply out.
func chatCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Start an interactive conversation (one message per line, /stats for usage, /exit to leave)",
		Flags: []cli.Flag{
			userFlag(),
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: string(domain.ModeCheckIn), Usage: "check_in|deep_dive|action_plan"},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, cfg, func(app *bootstrap.App) error {
				userID := domain.UserID(c.String("user"))
				started, err := app.Conversation.StartSession(c.Context, conversation.StartSessionInput{
					UserID:        userID,
					PreferredMode: domain.InteractionMode(c.String("mode")),
				})
				if err != nil {
					return err
				}
				out := c.App.Writer
				fmt.Fprintf(out, "farum> %s\n", started.Welcome.Text)

				scanner := bufio.NewScanner(c.App.Reader)
				for {
					fmt.Fprint(out, "you> ")
					if !scanner.Scan() {
						fmt.Fprintln(out)
						return scanner.Err()
					}
					line := strings.TrimSpace(scanner.Text())
					switch line {
					case "":
						continue
					case "/exit", "/quit":
						return nil
					case "/stats":
						if err := outputJSON(out, app.Orchestrator.Stats()); err != nil {
							return err
						}
						continue
					}

					sent, err := app.Conversation.SendMessage(c.Context, conversation.SendMessageInput{
						SessionID: started.Session.ID,
						UserID:    userID,
						Text:      line,
					})
					if err != nil {
						if domain.IsKind(err, domain.KindValidation) {
							fmt.Fprintf(out, "farum> %s\n", err)
							continue
						}
						return err
					}
					fmt.Fprintf(out, "farum> %s\n", sent.AgentMessage.Text)
				}
			})
		},
	}
}

// respondCmd runs a single message through the pipeline and prints the
// full response as JSON.
func respondCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "respond",
		Usage:     "Answer one message and print the response with its context",
		ArgsUsage: "<message>",
		Flags:     []cli.Flag{userFlag()},
		Action: func(c *cli.Context) error {
			text := strings.Join(c.Args().Slice(), " ")
			if text == "" {
				data, err := io.ReadAll(c.App.Reader)
				if err != nil {
					return err
				}
				text = string(data)
			}
			return withApp(c, cfg, func(app *bootstrap.App) error {
				resp := app.Orchestrator.Respond(c.Context, domain.IncomingMessage{
					Content: text,
					UserID:  domain.UserID(c.String("user")),
				}, nil)
				return outputJSON(c.App.Writer, resp)
			})
		},
	}
}

func protocolsCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "protocols",
		Usage:     "List the guided protocols, or show one",
		ArgsUsage: "[name]",
		Action: func(c *cli.Context) error {
			return withApp(c, cfg, func(app *bootstrap.App) error {
				registry := app.Orchestrator.Protocols()
				if name := c.Args().First(); name != "" {
					p, ok := registry.Get(name)
					if !ok {
						return fmt.Errorf("unknown protocol %q", name)
					}
					return outputJSON(c.App.Writer, p)
				}
				return outputJSON(c.App.Writer, registry.All())
			})
		},
	}
}

func journalCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "journal",
		Usage: "Print a user's journal entries",
		Flags: []cli.Flag{
			userFlag(),
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum entries"},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, cfg, func(app *bootstrap.App) error {
				entries, err := app.Journal.GetUserJournal(c.Context, domain.UserID(c.String("user")), c.Int("limit"))
				if err != nil {
					return err
				}
				return outputJSON(c.App.Writer, entries)
			})
		},
	}
}

// mcpCmd serves the pipeline as MCP tools over stdio.
func mcpCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the companion as an MCP server over stdio",
		Action: func(c *cli.Context) error {
			return withApp(c, cfg, func(app *bootstrap.App) error {
				app.Start(c.Context)
				return mcpadapter.New(app.Orchestrator, observability.Logger(), Version).ServeStdio()
			})
		},
	}
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
