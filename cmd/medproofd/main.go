// main.go - medproofd: study commitment and disclosure proof daemon and tools.
//
// Usage:
//   medproofd serve --config configs/medproof.yaml
//   medproofd keygen --dir keys
//   medproofd commit protocol.json
//   medproofd prove stats.json > proof.json
//   medproofd verify proof.json

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"medproof/internal/config"
	"medproof/internal/disclosure"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "medproofd: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	defaults := disclosure.DefaultThresholds()
	backendFlags := []cli.Flag{
		&cli.StringFlag{Name: "backend", Aliases: []string{"b"}, Value: config.BackendPlaceholder, Usage: "proving backend: placeholder or groth16"},
		&cli.StringFlag{Name: "key-dir", Value: "keys", Usage: "directory holding the Groth16 keys"},
	}

	return &cli.App{
		Name:    "medproofd",
		Usage:   "commit study protocols and prove medical statistics thresholds without revealing the data",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration",
				EnvVars: []string{config.EnvConfigPath},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and, if enabled, the peer node",
				Action: cmdServe,
			},
			{
				Name:  "keygen",
				Usage: "compile the disclosure circuit and generate Groth16 keys",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Usage: "output directory (default: proof.key_dir from the config)"},
					&cli.BoolFlag{Name: "force", Usage: "overwrite existing keys"},
				},
				Action: cmdKeygen,
			},
			{
				Name:      "commit",
				Usage:     "print the commitment of a study protocol",
				ArgsUsage: "<protocol.json>",
				Action:    cmdCommit,
			},
			{
				Name:      "prove",
				Usage:     "generate a disclosure proof with a fresh salt",
				ArgsUsage: "<stats.json>",
				Flags: append([]cli.Flag{
					&cli.Int64Flag{Name: "min-patients", Value: defaults.MinPatients},
					&cli.Int64Flag{Name: "min-efficacy", Value: defaults.MinEfficacyRatePercent, Usage: "minimum efficacy rate in percent"},
					&cli.Int64Flag{Name: "max-pvalue-scaled", Value: defaults.MaxPValueScaled, Usage: "maximum p-value times 10000"},
					&cli.BoolFlag{Name: "strict-arms", Usage: "require treatment successes to fit in the treatment arm"},
					&cli.StringFlag{Name: "study-type", Value: disclosure.DefaultStudyType},
				}, backendFlags...),
				Action: cmdProve,
			},
			{
				Name:      "verify",
				Usage:     "verify a disclosure proof; exits non-zero when invalid",
				ArgsUsage: "<proof.json>",
				Flags:     backendFlags,
				Action:    cmdVerify,
			},
		},
	}
}
