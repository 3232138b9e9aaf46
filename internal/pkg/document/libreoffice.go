package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// convertWithLibreOffice runs a headless LibreOffice to export a document as HTML.
//
// Every conversion runs with its own user profile, so that concurrent conversions
// do not compete for the profile lock.
func (r *Renderer) convertWithLibreOffice(ctx context.Context, doc Document, dir string) (string, error) {
	executable, err := r.lookupLibreOffice()
	if err != nil {
		return "", fmt.Errorf("%w: LibreOffice not available: %w", ErrConversionFailed, err)
	}

	profileDir := filepath.Join(os.TempDir(), "docsnap_profile_"+uuid.NewString())
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		return "", fmt.Errorf("%w: creating LibreOffice profile: %w", ErrConversionFailed, err)
	}
	defer func() {
		_ = os.RemoveAll(profileDir)
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, executable,
		"-env:UserInstallation=file://"+filepath.ToSlash(profileDir),
		"--headless",
		"--nologo",
		"--nolockcheck",
		"--convert-to", "html",
		"--outdir", dir,
		doc.Path,
	)
	r.L.Debug("LibreOffice command", slog.String("cmd", strings.Join(cmd.Args, " ")))

	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: LibreOffice timed out after %v", ErrConversionFailed, r.timeout)
		}

		return "", fmt.Errorf("%w: LibreOffice: %w: %s", ErrConversionFailed, err, strings.TrimSpace(string(output)))
	}

	expected := filepath.Join(dir, htmlName(doc.Path))
	if _, err := os.Stat(expected); err != nil {
		return "", fmt.Errorf("%w: LibreOffice did not produce %q: %s", ErrConversionFailed, expected, strings.TrimSpace(string(output)))
	}

	return expected, nil
}
