// Package initcmder provides the init command for initializing a local
// .recall directory in the current working directory.
package initcmder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/paperquant/recall/pkg/config"
)

const (
	dirName = ".recall"
)

const initLongDesc string = `Initialize a new .recall/ directory in the current working directory.

Creates a local .recall/ directory that takes precedence over the default
~/.recall/ directory for memory storage and configuration, and writes a
starter config.toml with all defaults.

This is useful for maintaining separate agent memory per project or directory.

Examples:
  recall init`

const initShortDesc string = "Initialize a local .recall/ directory"

func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInit()
		},
	}

	return cmd
}

func runInit() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		fmt.Printf("Already initialized: %s\n", dir)
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .recall directory: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if err := cfger.SaveConfig(config.NewDefaultConfig()); err != nil {
		return fmt.Errorf("writing starter config: %w", err)
	}

	fmt.Printf("Initialized .recall directory: %s\n", dir)
	return nil
}
