package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "HANDOUT_"

// knownEnvVars lists recognized HANDOUT_* variables, used to flag typos.
var knownEnvVars = map[string]bool{
	"HANDOUT_CONFIG":           true,
	"HANDOUT_ADDR":             true,
	"HANDOUT_UPLOAD_DIR":       true,
	"HANDOUT_OUTPUT_DIR":       true,
	"HANDOUT_MAX_UPLOAD_BYTES": true,
	"HANDOUT_SOFFICE":          true,
	"HANDOUT_CONVERT_TIMEOUT":  true,
	"HANDOUT_CONVERT_WORKERS":  true,
	"HANDOUT_COMPRESS_ENGINE":  true,
	"HANDOUT_GS":               true,
	"HANDOUT_GS_PRESET":        true,
	"HANDOUT_COMPRESS_TIMEOUT": true,
}

// ApplyEnv overrides cfg with non-empty HANDOUT_* variables looked up via getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		dst.Duration = d
		return nil
	}

	str("HANDOUT_ADDR", &c.Server.Addr)
	str("HANDOUT_UPLOAD_DIR", &c.Storage.UploadDir)
	str("HANDOUT_OUTPUT_DIR", &c.Storage.OutputDir)
	str("HANDOUT_SOFFICE", &c.Convert.Binary)
	str("HANDOUT_COMPRESS_ENGINE", &c.Compress.Engine)
	str("HANDOUT_GS", &c.Compress.Binary)
	str("HANDOUT_GS_PRESET", &c.Compress.Preset)

	if err := dur("HANDOUT_CONVERT_TIMEOUT", &c.Convert.Timeout); err != nil {
		return err
	}
	if err := dur("HANDOUT_COMPRESS_TIMEOUT", &c.Compress.Timeout); err != nil {
		return err
	}

	if v := strings.TrimSpace(getenv("HANDOUT_MAX_UPLOAD_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("HANDOUT_MAX_UPLOAD_BYTES: %w", err)
		}
		c.Server.MaxUploadBytes = n
	}
	if v := strings.TrimSpace(getenv("HANDOUT_CONVERT_WORKERS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HANDOUT_CONVERT_WORKERS: %w", err)
		}
		c.Convert.MaxConcurrent = n
	}
	return nil
}

// WarnUnknownEnv prints a warning for each HANDOUT_* variable in environ that is not recognized.
func WarnUnknownEnv(w io.Writer, environ []string) {
	for _, kv := range environ {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, envPrefix) && !knownEnvVars[key] {
			fmt.Fprintf(w, "warning: unknown environment variable %s\n", key)
		}
	}
}

// EnvConfigPath returns HANDOUT_CONFIG.
func EnvConfigPath() string {
	return os.Getenv("HANDOUT_CONFIG")
}
