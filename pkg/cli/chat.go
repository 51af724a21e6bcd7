package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/adapter"
	"github.com/stride-health/stride/pkg/capability"
	"github.com/stride-health/stride/pkg/capability/goals"
	"github.com/stride-health/stride/pkg/capability/healthstore"
	"github.com/stride-health/stride/pkg/capability/insights"
	"github.com/stride-health/stride/pkg/capability/nutrition"
	"github.com/stride-health/stride/pkg/interfaces"
	"github.com/stride-health/stride/pkg/model"
	"github.com/stride-health/stride/pkg/repository"
	"github.com/stride-health/stride/pkg/service/analytics"
	"github.com/stride-health/stride/pkg/usecase/agent"
	"github.com/stride-health/stride/pkg/usecase/ingest"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg    config
		userID string
		local  bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID to chat as",
			Sources:     cli.EnvVars("STRIDE_USER"),
			Destination: &userID,
			Required:    true,
		},
		&cli.BoolFlag{
			Name:        "local",
			Usage:       "Use an in-memory store instead of Firestore (scratch sessions)",
			Destination: &local,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive coaching session from the terminal",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			var repo interfaces.Repository
			if local {
				repo = repository.NewMemory()
			} else {
				r, err := cfg.newRepository(ctx)
				if err != nil {
					return err
				}
				repo = r
			}

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			coach, err := newLocalCoach(gemini, repo)
			if err != nil {
				return err
			}

			rl, err := readline.New("stride> ")
			if err != nil {
				return goerr.Wrap(err, "failed to open terminal")
			}
			defer rl.Close()

			fmt.Fprintf(c.Root().Writer, "Coaching session for %s. Type 'exit' to quit.\n", userID)

			var conversationID model.ConversationID
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				message := strings.TrimSpace(line)
				if message == "exit" {
					break
				}
				if message == "" {
					continue
				}

				sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				sp.Suffix = " thinking..."
				sp.Start()

				resp, err := coach.HandleTurn(ctx, &agent.Request{
					ConversationID: conversationID,
					UserID:         model.UserID(userID),
					Message:        message,
				})
				sp.Stop()

				if err != nil {
					fmt.Fprintf(c.Root().Writer, "error: %v\n", err)
					continue
				}

				conversationID = resp.ConversationID
				fmt.Fprintf(c.Root().Writer, "%s\n", resp.Message)
				if resp.ClientAction != nil {
					fmt.Fprintf(c.Root().Writer, "[action] %s -> %s\n",
						resp.ClientAction.Kind, resp.ClientAction.Target)
				}
			}

			fmt.Fprintf(c.Root().Writer, "\nSession ended\n")
			return nil
		},
	}
}

// newLocalCoach wires an agent over the built-in providers, without the
// server's guard, cache or rate limiting
func newLocalCoach(gemini adapter.Gemini, repo interfaces.Repository) (*agent.Agent, error) {
	ingestor := ingest.New(repo)
	analyticsSvc := analytics.NewService(repo)

	registry, err := capability.New(
		healthstore.New(repo),
		nutrition.New(repo, ingestor),
		goals.New(repo),
		insights.New(analyticsSvc),
	)
	if err != nil {
		return nil, err
	}

	router := capability.NewRouter(registry)
	return agent.New(gemini, registry, router, repo), nil
}
