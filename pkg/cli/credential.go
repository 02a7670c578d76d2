package cli

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func credentialCommand() *cli.Command {
	var (
		cfg      config
		identity string
		ttl      time.Duration
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "identity",
			Aliases:     []string{"i"},
			Usage:       "Identity to embed in the credential username",
			Required:    true,
			Destination: &identity,
		},
		&cli.DurationFlag{
			Name:        "ttl",
			Usage:       "Credential lifetime (0 selects the 24h default)",
			Destination: &ttl,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, relayFlags(&cfg)...)

	return &cli.Command{
		Name:  "credential",
		Usage: "Issue a TURN relay credential",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogger()

			issuer, err := cfg.newRelayIssuer()
			if err != nil {
				return err
			}

			cred := issuer.Issue(identity, ttl)

			enc := json.NewEncoder(c.Root().Writer)
			enc.SetIndent("", "  ")
			if err := enc.Encode(cred); err != nil {
				return goerr.Wrap(err, "failed to encode credential")
			}
			return nil
		},
	}
}
