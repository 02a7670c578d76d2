package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spool-learn/interview/pkg/controller"
	"github.com/spool-learn/interview/pkg/repository"
	"github.com/spool-learn/interview/pkg/usecase/interview"
	"github.com/spool-learn/interview/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg  config
		addr string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("INTERVIEW_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, relayFlags(&cfg)...)
	flags = append(flags, collaboratorFlags(&cfg)...)
	flags = append(flags, engineFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the interview HTTP/WebSocket service",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogger()

			engine, registry, err := buildEngine(ctx, &cfg)
			if err != nil {
				return err
			}
			defer registry.Close()

			srv := &http.Server{
				Addr:              addr,
				Handler:           controller.New(engine),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("interview service listening", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return goerr.Wrap(err, "server failed")
				}
			case <-ctx.Done():
				logging.Default().Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "shutdown failed")
				}
			}

			return nil
		},
	}
}

// buildEngine assembles the engine and its collaborators from configuration.
// Required capabilities fail construction; optional collaborators are only
// built when their configuration is present.
func buildEngine(ctx context.Context, cfg *config) (*interview.Engine, *repository.Registry, error) {
	issuer, err := cfg.newRelayIssuer()
	if err != nil {
		return nil, nil, err
	}

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, nil, err
	}

	speech, err := cfg.newSpeech(ctx)
	if err != nil {
		return nil, nil, err
	}

	matcher, err := cfg.newTaxonomy()
	if err != nil {
		return nil, nil, err
	}

	transcripts, err := cfg.newTranscriptSink(ctx)
	if err != nil {
		return nil, nil, err
	}

	analytics, err := cfg.newAnalytics(ctx)
	if err != nil {
		return nil, nil, err
	}

	archive, err := cfg.newArchive(ctx)
	if err != nil {
		return nil, nil, err
	}

	threads, err := cfg.newThreadCreator(ctx)
	if err != nil {
		return nil, nil, err
	}

	registry := repository.New()
	engine, err := interview.New(interview.Config{
		Registry:     registry,
		Gemini:       gemini,
		SpeechToText: speech,
		TextToSpeech: speech,
		RelayIssuer:  issuer,
		Taxonomy:     matcher,
		Transcripts:  transcripts,
		Analytics:    analytics,
		Archive:      archive,
		Threads:      threads,
		TurnTimeout:  cfg.turnTimeout,
	})
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to create interview engine")
	}

	return engine, registry, nil
}
