package main

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultEnvFile = ".env"

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "livecheck",
		Short: "Live face verification server",
		Long: `livecheck verifies that the person in front of a camera matches an
uploaded reference photo and is physically present.

Configuration comes from LIVECHECK_* environment variables, optionally
loaded from a dotenv file. Variables already set in the environment win.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(envFile, cmd.Flags().Changed("env-file"))
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", defaultEnvFile, "dotenv file to load before reading configuration")

	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCmd())
	return root
}

// loadEnvFile loads path into the process environment. A missing default
// file is fine; a missing file named explicitly is an error.
func loadEnvFile(path string, explicit bool) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
