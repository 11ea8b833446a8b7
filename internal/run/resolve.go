package run

import (
	"os"
	"path/filepath"
)

// ResolveFile finds filename by trying, in order, the absolute path as given,
// the command directory, the model directory and finally the current working
// directory. The last candidate is returned even if it does not exist.
func ResolveFile(cfg Config, filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	for _, dir := range []string{cfg.CmdDir, cfg.ModelDir} {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return filename
	}
	return filepath.Join(cwd, filename)
}
