package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spool-learn/interview/pkg/adapter"
	"github.com/spool-learn/interview/pkg/model"
	"github.com/spool-learn/interview/pkg/repository"
	"github.com/spool-learn/interview/pkg/usecase/interview"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg    config
		userID string
		mode   string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user-id",
			Aliases:     []string{"u"},
			Usage:       "User ID for the interview session",
			Value:       "dev-user",
			Sources:     cli.EnvVars("INTERVIEW_USER_ID"),
			Destination: &userID,
		},
		&cli.StringFlag{
			Name:        "mode",
			Usage:       "Interview mode (set to 'thread' to exercise the hand-off path)",
			Sources:     cli.EnvVars("INTERVIEW_MODE"),
			Destination: &mode,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, engineFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive text-mode interview for development",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogger()

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			matcher, err := cfg.newTaxonomy()
			if err != nil {
				return err
			}

			// The relay is irrelevant for text mode; the engine still wants
			// an issuer, so a throwaway secret is fine here.
			issuer, err := (&config{turnSecret: "chat-local", relayHost: "localhost"}).newRelayIssuer()
			if err != nil {
				return err
			}

			registry := repository.New()
			defer registry.Close()

			engine, err := interview.New(interview.Config{
				Registry:     registry,
				Gemini:       gemini,
				SpeechToText: noSpeech{},
				TextToSpeech: noSpeech{},
				RelayIssuer:  issuer,
				Taxonomy:     matcher,
				TurnTimeout:  cfg.turnTimeout,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to create interview engine")
			}

			id, err := engine.StartSession(ctx, interview.StartInput{
				UserID: userID,
				Mode:   mode,
			})
			if err != nil {
				return err
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "%s\n", interview.Greeting)
			fmt.Fprintf(w, "(type 'exit' to finish the interview)\n\n")

			rl, err := readline.New("> ")
			if err != nil {
				return goerr.Wrap(err, "failed to open terminal")
			}
			defer rl.Close()

			for {
				line, err := rl.Readline()
				if err != nil {
					if err == readline.ErrInterrupt || err == io.EOF {
						break
					}
					return goerr.Wrap(err, "failed to read input")
				}
				if line == "exit" {
					break
				}
				if line == "" {
					continue
				}

				sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
					spinner.WithWriter(c.Root().ErrWriter))
				sp.Start()
				result, err := engine.SubmitTextTurn(ctx, id, line)
				sp.Stop()
				if err != nil {
					return goerr.Wrap(err, "turn failed")
				}

				for _, rec := range result.NewInterests {
					fmt.Fprintf(w, "  [interest detected: %s]\n", rec.Name)
				}
				if result.Degraded {
					fmt.Fprintf(w, "(no response, try again)\n")
					continue
				}
				if !result.Silent {
					fmt.Fprintf(w, "%s\n", result.AssistantText)
				}
			}

			results, err := engine.EndSession(ctx, id)
			if err != nil {
				return err
			}

			fmt.Fprintf(w, "\nInterview finished after %s.\n", results.Duration.Round(time.Second))
			if len(results.Interests) == 0 {
				fmt.Fprintf(w, "No interests detected.\n")
				return nil
			}
			fmt.Fprintf(w, "Detected interests:\n")
			for _, rec := range results.Interests {
				fmt.Fprintf(w, "  - %s\n", rec.Name)
			}
			return nil
		},
	}
}

// noSpeech satisfies the speech capabilities for text-only sessions. Audio
// turns are never submitted in chat mode.
type noSpeech struct{}

func (noSpeech) Transcribe(ctx context.Context, segment model.AudioSegment) (string, error) {
	return "", goerr.New("speech is not available in chat mode")
}

func (noSpeech) Synthesize(ctx context.Context, text string) (adapter.AudioStream, error) {
	return nil, goerr.New("speech is not available in chat mode")
}
