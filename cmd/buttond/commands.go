package main

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/buttond/internal/button"
	"github.com/sweeney/buttond/internal/config"
	"github.com/sweeney/buttond/internal/gpio"
)

func newPrintStateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "print-state",
		Short: "Print the current level of every button and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			specs, err := cfg.ButtonSpecs()
			if err != nil {
				return err
			}
			levels, err := gpio.ReadLevels(cfg.Chip, specs)
			if err != nil {
				return fmt.Errorf("read gpio: %w", err)
			}
			printState(cmd.OutOrStdout(), specs, levels)
			return nil
		},
	}
}

func printState(w io.Writer, specs []button.ButtonSpec, levels []button.Level) {
	for i, s := range specs {
		state := "idle"
		if levels[i] == s.ActiveLevel {
			state = "ACTIVE"
		}
		fmt.Fprintf(w, "%s (pin %d): %s %s\n", s.Name, s.Pin, levels[i], state)
	}
}

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the button layout without touching hardware",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			n, err := validateLayout(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d buttons, %d combos on %s\n", len(cfg.Buttons), n, cfg.Chip)
			return nil
		},
	}
}

// validateLayout registers cfg against a throwaway engine so that combo
// masks are checked exactly as they would be at startup.
func validateLayout(cfg *config.Config) (int, error) {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	engine := button.New(button.Options{QueueSize: cfg.QueueSize, Logger: logrus.NewEntry(quiet)})
	noop := func(config.Combo, button.Kind) button.Callback {
		return func(time.Duration, button.Kind) {}
	}
	if err := cfg.Register(engine, noop); err != nil {
		return 0, err
	}
	return len(cfg.Combos), nil
}
