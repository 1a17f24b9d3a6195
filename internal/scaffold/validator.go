package scaffold

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/terrain/internal/config"
)

// CheckExisting returns an error naming any scaffold file already present in dir
func CheckExisting(dir string) error {
	var existingFiles []string

	for _, name := range []string{config.DefaultConfigFile, EnvExampleFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			existingFiles = append(existingFiles, name)
		}
	}

	if len(existingFiles) > 0 {
		errMsg := "project already initialized\n\nFound existing"
		if len(existingFiles) == 1 {
			errMsg += fmt.Sprintf(": %s\n", existingFiles[0])
		} else {
			errMsg += " files:\n"
			for _, file := range existingFiles {
				errMsg += fmt.Sprintf("  - %s\n", file)
			}
		}
		errMsg += "\nUse 'terrain init --force' to overwrite them"

		return fmt.Errorf("%s", errMsg)
	}

	return nil
}
