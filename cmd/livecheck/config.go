package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"livecheck/cmd/internal/app"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration (secrets masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg.Redacted())
		},
	}
}

func printConfig(w io.Writer, cfg app.Config) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	rows := [][2]string{
		{"http.addr", cfg.HTTPAddr},
		{"log.level", cfg.LogLevel},
		{"log.format", cfg.LogFormat},
		{"http.read_timeout", cfg.ReadTimeout.String()},
		{"http.write_timeout", cfg.WriteTimeout.String()},
		{"http.shutdown_timeout", cfg.ShutdownTimeout.String()},
		{"upload.max_bytes", fmt.Sprint(cfg.MaxUploadBytes)},
		{"cors.allowed_origins", strings.Join(cfg.CORSAllowedOrigins, ",")},
		{"db.url", orNone(cfg.DatabaseURL)},
		{"db.schema", cfg.DBSchema},
		{"inference.url", cfg.InferenceURL},
		{"inference.timeout", cfg.InferenceTimeout.String()},
		{"storage.backend", cfg.Storage.Backend},
		{"storage.dir", cfg.Storage.Dir},
		{"storage.redis.addr", cfg.Storage.Redis.Addr},
		{"verify.window", cfg.Verify.VerifyWindow.String()},
		{"verify.artifact_ttl", cfg.Verify.ArtifactTTL.String()},
		{"verify.sweep_interval", cfg.Verify.SweepInterval.String()},
		{"verify.match_threshold", fmt.Sprint(cfg.Verify.MatchThreshold)},
		{"verify.crop_padding", fmt.Sprint(cfg.Verify.CropPadding)},
		{"verify.display_name", cfg.Verify.DisplayName},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
