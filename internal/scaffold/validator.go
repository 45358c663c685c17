package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dyluth/vista/internal/config"
)

// CheckExisting returns an error naming the files Initialize would
// overwrite, or nil if there are none.
func CheckExisting(dir string) error {
	var existing []string
	for _, p := range []string{config.FileName, ExamplePlugin} {
		if _, err := os.Stat(filepath.Join(dir, p)); err == nil {
			existing = append(existing, p)
		}
	}

	if len(existing) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("workspace already initialized\n\nFound existing")
	if len(existing) == 1 {
		fmt.Fprintf(&b, ": %s\n", existing[0])
	} else {
		b.WriteString(" files:\n")
		for _, f := range existing {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
	}
	b.WriteString("\nUse 'vista init --force' to overwrite them")
	return fmt.Errorf("%s", b.String())
}
