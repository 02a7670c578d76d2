package cli

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spool-learn/interview/pkg/adapter"
	"github.com/spool-learn/interview/pkg/relay"
	"github.com/spool-learn/interview/pkg/taxonomy"
	"github.com/spool-learn/interview/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Gemini
	geminiProject  string
	geminiLocation string
	geminiModel    string

	// Relay
	turnSecret        string
	relayHost         string
	devInsecureSecret bool

	// Optional collaborators
	project           string
	firestoreDatabase string
	bigqueryDataset   string
	bigqueryTable     string
	archiveBucket     string
	threadRegion      string
	threadFunction    string

	// Engine
	turnTimeout  time.Duration
	taxonomyPath string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("INTERVIEW_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("INTERVIEW_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model for interview responses",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
	}
}

// relayFlags returns flags for TURN relay credential issuance
func relayFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "turn-secret",
			Usage:       "Static auth secret shared with the TURN relay",
			Sources:     cli.EnvVars("TURN_STATIC_AUTH_SECRET"),
			Destination: &cfg.turnSecret,
		},
		&cli.StringFlag{
			Name:        "relay-host",
			Usage:       "Hostname of the TURN relay",
			Value:       "localhost",
			Sources:     cli.EnvVars("TURN_RELAY_HOST"),
			Destination: &cfg.relayHost,
		},
		&cli.BoolFlag{
			Name:        "dev-insecure-secret",
			Usage:       "Use a fixed development secret when turn-secret is unset (never in production)",
			Sources:     cli.EnvVars("INTERVIEW_DEV_INSECURE_SECRET"),
			Destination: &cfg.devInsecureSecret,
		},
	}
}

// collaboratorFlags returns flags for the optional downstream collaborators
func collaboratorFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID for Firestore and BigQuery",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID for the transcript mirror",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.firestoreDatabase,
		},
		&cli.StringFlag{
			Name:        "bigquery-dataset",
			Usage:       "BigQuery dataset for interview summaries",
			Sources:     cli.EnvVars("INTERVIEW_BQ_DATASET"),
			Destination: &cfg.bigqueryDataset,
		},
		&cli.StringFlag{
			Name:        "bigquery-table",
			Usage:       "BigQuery table for interview summaries",
			Value:       "interview_summaries",
			Sources:     cli.EnvVars("INTERVIEW_BQ_TABLE"),
			Destination: &cfg.bigqueryTable,
		},
		&cli.StringFlag{
			Name:        "archive-bucket",
			Usage:       "Cloud Storage bucket for transcript archives",
			Sources:     cli.EnvVars("INTERVIEW_ARCHIVE_BUCKET"),
			Destination: &cfg.archiveBucket,
		},
		&cli.StringFlag{
			Name:        "thread-region",
			Usage:       "AWS region of the thread creation function",
			Sources:     cli.EnvVars("THREAD_FUNCTION_REGION"),
			Destination: &cfg.threadRegion,
		},
		&cli.StringFlag{
			Name:        "thread-function",
			Usage:       "Lambda function name for learning thread creation",
			Sources:     cli.EnvVars("THREAD_FUNCTION_NAME"),
			Destination: &cfg.threadFunction,
		},
	}
}

// engineFlags returns flags tuning the interview engine
func engineFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "turn-timeout",
			Usage:       "Upper bound for one conversation turn",
			Value:       30 * time.Second,
			Sources:     cli.EnvVars("INTERVIEW_TURN_TIMEOUT"),
			Destination: &cfg.turnTimeout,
		},
		&cli.StringFlag{
			Name:        "taxonomy-file",
			Usage:       "YAML file overriding the built-in taxonomy tables",
			Sources:     cli.EnvVars("INTERVIEW_TAXONOMY_FILE"),
			Destination: &cfg.taxonomyPath,
		},
	}
}

// setupLogger configures the process logger from the logging flags.
func (cfg *config) setupLogger() {
	logging.SetDefault(logging.New(cfg.logLevel, cfg.logFormat, os.Stderr))
}

// newRelayIssuer creates the credential issuer. A missing secret is fatal
// unless the dev fallback was explicitly requested.
func (cfg *config) newRelayIssuer() (*relay.Issuer, error) {
	secret := cfg.turnSecret
	if secret == "" {
		if !cfg.devInsecureSecret {
			return nil, goerr.New("turn-secret is required (set TURN_STATIC_AUTH_SECRET, or pass --dev-insecure-secret for local development)")
		}
		secret = "insecure-dev-secret"
		logging.Default().Warn("using the fixed development relay secret, credentials are forgeable")
	}

	return relay.New(secret, relay.WithHost(cfg.relayHost))
}

// newGemini creates the text generation adapter.
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}
	return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
		adapter.WithGenerativeModel(cfg.geminiModel))
}

// newSpeech creates the speech capabilities.
func (cfg *config) newSpeech(ctx context.Context) (*adapter.GeminiSpeech, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	return adapter.NewGeminiSpeech(ctx, cfg.geminiProject, cfg.geminiLocation)
}

// newTaxonomy loads the taxonomy matcher, built-in or from a file.
func (cfg *config) newTaxonomy() (*taxonomy.Matcher, error) {
	if cfg.taxonomyPath == "" {
		return taxonomy.New(), nil
	}
	return taxonomy.NewFromFile(cfg.taxonomyPath)
}

// newTranscriptSink creates the Firestore transcript mirror when configured.
func (cfg *config) newTranscriptSink(ctx context.Context) (adapter.TranscriptSink, error) {
	if cfg.project == "" {
		return nil, nil
	}
	return adapter.NewFirestoreTranscriptSink(ctx, cfg.project, cfg.firestoreDatabase)
}

// newAnalytics creates the BigQuery summary sink when configured.
func (cfg *config) newAnalytics(ctx context.Context) (adapter.Analytics, error) {
	if cfg.project == "" || cfg.bigqueryDataset == "" {
		return nil, nil
	}
	return adapter.NewAnalytics(ctx, cfg.project, cfg.bigqueryDataset, cfg.bigqueryTable)
}

// newArchive creates the transcript archive when configured.
func (cfg *config) newArchive(ctx context.Context) (adapter.Archive, error) {
	if cfg.archiveBucket == "" {
		return nil, nil
	}
	return adapter.NewArchive(ctx, cfg.archiveBucket)
}

// newThreadCreator creates the Lambda thread collaborator when configured.
func (cfg *config) newThreadCreator(ctx context.Context) (adapter.ThreadCreator, error) {
	if cfg.threadFunction == "" {
		return nil, nil
	}
	return adapter.NewLambdaThreadCreator(ctx, cfg.threadRegion, cfg.threadFunction)
}
