package run

import (
	"fmt"

	"github.com/spf13/viper"
)

// Environment variables that describe the current run.
const (
	EnvRunID    = "RUN_ID"
	EnvRunDir   = "RUN_DIR"
	EnvCmdDir   = "CMD_DIR"
	EnvModelDir = "MODEL_DIR"
)

// Config carries the run context explicitly instead of reading process-wide
// environment variables at the point of use.
type Config struct {
	RunID    string
	RunDir   string
	CmdDir   string
	ModelDir string
}

// LoadConfig reads the run configuration from the environment.
func LoadConfig() (Config, error) {
	v := viper.New()
	return ConfigFrom(v)
}

// ConfigFrom reads the run configuration from v after binding the run
// environment variables. Values already set on v (for example bound command
// line flags) take precedence over the environment.
func ConfigFrom(v *viper.Viper) (Config, error) {
	bindings := map[string]string{
		"run_id":    EnvRunID,
		"run_dir":   EnvRunDir,
		"cmd_dir":   EnvCmdDir,
		"model_dir": EnvModelDir,
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return Config{
		RunID:    v.GetString("run_id"),
		RunDir:   v.GetString("run_dir"),
		CmdDir:   v.GetString("cmd_dir"),
		ModelDir: v.GetString("model_dir"),
	}, nil
}
