package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nugget/imapnotify/examples"
)

// runInit writes the example config.yaml into dir. An existing config
// is never overwritten.
func runInit(w io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	written, err := writeIfMissing(configPath, examples.ConfigYAML, 0o600)
	if err != nil {
		return err
	}

	if written {
		fmt.Fprintf(w, "  ✓ %s\n", configPath)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Edit config.yaml, then export IMAPNOTIFY_MAIL_PASSWORD and IMAPNOTIFY_BOT_TOKEN.")
	} else {
		fmt.Fprintf(w, "  - %s already exists, left unchanged\n", configPath)
	}
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist, and reports whether it wrote.
func writeIfMissing(path string, content []byte, perm os.FileMode) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if os.IsExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", path, err)
	}
	return true, nil
}
