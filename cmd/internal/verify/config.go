package verify

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultDisplayName is the label reported on a successful match.
const DefaultDisplayName = "Target Person"

// Config holds the lifecycle constants. All of them are deployment-tunable.
type Config struct {
	// VerifyWindow is how long a run may stay Verifying before the next frame fails it.
	VerifyWindow time.Duration

	// ArtifactTTL is the maximum residency of an uploaded artifact.
	ArtifactTTL time.Duration

	// SweepInterval is the reclamation period. Must be shorter than ArtifactTTL.
	SweepInterval time.Duration

	// MatchThreshold is handed to Matcher.Compare (distance tolerance; lower is stricter).
	MatchThreshold float64

	// CropPadding is the pixel margin added around a matched face before liveness.
	CropPadding int

	// DisplayName labels the reference person in success results.
	DisplayName string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		VerifyWindow:   10 * time.Second,
		ArtifactTTL:    2 * time.Minute,
		SweepInterval:  30 * time.Second,
		MatchThreshold: 0.5,
		CropPadding:    20,
		DisplayName:    DefaultDisplayName,
	}
}

// Validate enforces the invariants between fields.
func (c Config) Validate() error {
	if c.VerifyWindow <= 0 || c.ArtifactTTL <= 0 || c.SweepInterval <= 0 {
		return ErrConfig
	}
	if c.ArtifactTTL <= c.SweepInterval {
		return ErrConfig
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return ErrConfig
	}
	if c.CropPadding < 0 {
		return ErrConfig
	}
	if strings.TrimSpace(c.DisplayName) == "" {
		return ErrConfig
	}
	return nil
}

// LoadConfigFromEnv loads lifecycle configuration from environment variables.
//
// Optional (durations are Go duration strings):
//   - LIVECHECK_VERIFY_WINDOW
//   - LIVECHECK_ARTIFACT_TTL
//   - LIVECHECK_SWEEP_INTERVAL
//   - LIVECHECK_MATCH_THRESHOLD
//   - LIVECHECK_CROP_PADDING
//   - LIVECHECK_DISPLAY_NAME
//
// Returns ErrConfig if a value does not parse or the result fails Validate.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("LIVECHECK_VERIFY_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.VerifyWindow = d
	}

	if v := os.Getenv("LIVECHECK_ARTIFACT_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.ArtifactTTL = d
	}

	if v := os.Getenv("LIVECHECK_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.SweepInterval = d
	}

	if v := os.Getenv("LIVECHECK_MATCH_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.MatchThreshold = f
	}

	if v := os.Getenv("LIVECHECK_CROP_PADDING"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.CropPadding = n
	}

	if v := strings.TrimSpace(os.Getenv("LIVECHECK_DISPLAY_NAME")); v != "" {
		cfg.DisplayName = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
