// commands.go - One-shot CLI commands.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"medproof/internal/commitment"
	"medproof/internal/config"
	"medproof/internal/disclosure"
	"medproof/internal/logging"
)

func readArg(c *cli.Context) ([]byte, error) {
	if c.NArg() != 1 {
		return nil, cli.Exit(fmt.Sprintf("usage: %s %s %s", c.App.Name, c.Command.Name, c.Command.ArgsUsage), 2)
	}
	return os.ReadFile(c.Args().First())
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdCommit(c *cli.Context) error {
	data, err := readArg(c)
	if err != nil {
		return err
	}
	cm, err := commitment.CommitJSON(data)
	if err != nil {
		return err
	}
	return printJSON(c, map[string]string{"commitment": cm.String()})
}

// engineFromFlags builds the engine selected by --backend. Proving needs the full key set;
// verifying only needs the verifying key.
func engineFromFlags(c *cli.Context, prove bool, opts ...disclosure.Option) (*disclosure.Engine, error) {
	switch c.String("backend") {
	case config.BackendPlaceholder:
		return disclosure.NewPlaceholder(opts...), nil
	case config.BackendGroth16:
		restore := logging.SilenceGnark()
		defer restore()
		var (
			keys *disclosure.Keys
			err  error
		)
		if prove {
			keys, err = disclosure.SetupOrLoadKeys(c.String("key-dir"))
		} else {
			keys, err = disclosure.LoadVerifierKeys(c.String("key-dir"))
		}
		if err != nil {
			return nil, err
		}
		return disclosure.NewGroth16(keys, opts...)
	default:
		return nil, cli.Exit("unknown backend "+c.String("backend"), 2)
	}
}

func cmdProve(c *cli.Context) error {
	data, err := readArg(c)
	if err != nil {
		return err
	}
	var stats disclosure.MedicalStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return fmt.Errorf("parse stats: %w", err)
	}
	thresholds := disclosure.Thresholds{
		MinPatients:            c.Int64("min-patients"),
		MinEfficacyRatePercent: c.Int64("min-efficacy"),
		MaxPValueScaled:        c.Int64("max-pvalue-scaled"),
	}
	engine, err := engineFromFlags(c, true,
		disclosure.WithStudyType(c.String("study-type")),
		disclosure.WithStrictArms(c.Bool("strict-arms")),
	)
	if err != nil {
		return err
	}
	salt, err := disclosure.NewSalt()
	if err != nil {
		return err
	}
	proof, err := engine.GenerateProof(stats, salt, thresholds)
	if err != nil {
		return err
	}
	return printJSON(c, proof)
}

func cmdVerify(c *cli.Context) error {
	data, err := readArg(c)
	if err != nil {
		return err
	}
	var proof disclosure.Proof
	if err := json.Unmarshal(data, &proof); err != nil {
		return fmt.Errorf("parse proof: %w", err)
	}
	engine, err := engineFromFlags(c, false)
	if err != nil {
		return err
	}
	res := engine.Verify(&proof)
	if err := printJSON(c, res); err != nil {
		return err
	}
	if !res.Valid {
		return cli.Exit("proof is not valid", 1)
	}
	return nil
}

func cmdKeygen(c *cli.Context) error {
	dir := c.String("dir")
	if dir == "" {
		cfg, err := config.Load(config.ResolvePath(c.String("config")))
		if err != nil {
			return err
		}
		dir = cfg.Proof.KeyDir
	}
	pkPath := filepath.Join(dir, disclosure.ProvingKeyFile)
	vkPath := filepath.Join(dir, disclosure.VerifyingKeyFile)
	if !c.Bool("force") {
		for _, p := range []string{pkPath, vkPath} {
			if _, err := os.Stat(p); err == nil {
				return cli.Exit(p+" already exists; use --force to overwrite", 1)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
	}

	restore := logging.SilenceGnark()
	defer restore()
	start := time.Now()
	keys, err := disclosure.SetupKeys()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	if err := disclosure.SaveProvingKey(pkPath, keys.ProvingKey); err != nil {
		return fmt.Errorf("save proving key: %w", err)
	}
	if err := disclosure.SaveVerifyingKey(vkPath, keys.VerifyingKey); err != nil {
		return fmt.Errorf("save verifying key: %w", err)
	}
	return printJSON(c, map[string]any{
		"provingKey":   pkPath,
		"verifyingKey": vkPath,
		"constraints":  keys.CCS.GetNbConstraints(),
		"seconds":      time.Since(start).Seconds(),
	})
}
