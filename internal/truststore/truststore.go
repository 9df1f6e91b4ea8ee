// Package truststore manages the per-profile NSS certificate database. The
// database directory and the imported CA certificate are created together
// and removed together; there is no update path. Importing goes through
// certutil so the resulting cert9.db is exactly what Firefox expects.
package truststore

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/afero"
)

const certutilCommand = "certutil"

// ErrCertutilNotFound is returned when certutil is not on PATH.
var ErrCertutilNotFound = errors.New("certutil not found (install nss-tools)")

// ErrTrustStoreExists is returned by Create when the directory already exists.
var ErrTrustStoreExists = errors.New("trust store already exists")

// Runner executes an external command and returns its combined output and
// exit code.
type Runner func(ctx context.Context, name string, args ...string) (string, int, error)

// LookPath resolves a binary on PATH. Matches exec.LookPath.
type LookPath func(name string) (string, error)

// Options configures a Store
type Options struct {
	// Dir is the profile directory holding the NSS database.
	Dir string
	// Nickname the certificate is filed under, e.g. "IPA CA".
	Nickname string
	// TrustFlags is the certutil trust string, e.g. "CT,,".
	TrustFlags string
	Fs         afero.Fs
	Runner     Runner
	LookPath   LookPath
}

// Store manages one NSS certificate database directory
type Store struct {
	fs         afero.Fs
	dir        string
	nickname   string
	trustFlags string
	runner     Runner
	lookPath   LookPath
}

// New creates a trust store handle
func New(opts Options) *Store {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	runner := opts.Runner
	if runner == nil {
		runner = execCommand
	}
	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	return &Store{
		fs:         fs,
		dir:        opts.Dir,
		nickname:   opts.Nickname,
		trustFlags: opts.TrustFlags,
		runner:     runner,
		lookPath:   lookPath,
	}
}

// Dir returns the trust store directory
func (s *Store) Dir() string {
	return s.dir
}

// Exists reports whether the trust store directory is present
func (s *Store) Exists() (bool, error) {
	exists, err := afero.DirExists(s.fs, s.dir)
	if err != nil {
		return false, fmt.Errorf("failed to stat trust store %s: %w", s.dir, err)
	}
	return exists, nil
}

// Create makes the trust store directory and imports the CA certificate at
// certPath into it. The two happen together: when the import fails, the
// fresh directory is removed again so a rerun retries the pair.
func (s *Store) Create(ctx context.Context, certPath string) error {
	exists, err := s.Exists()
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s: %w", s.dir, ErrTrustStoreExists)
	}

	// Resolve certutil before touching the filesystem.
	if _, err := s.lookPath(certutilCommand); err != nil {
		return ErrCertutilNotFound
	}

	if err := s.fs.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create trust store %s: %w", s.dir, err)
	}

	if err := s.importCert(ctx, certPath); err != nil {
		if rmErr := s.fs.RemoveAll(s.dir); rmErr != nil {
			return fmt.Errorf("%w (removing fresh trust store also failed: %v)", err, rmErr)
		}
		return err
	}
	return nil
}

// Remove deletes the trust store directory and everything in it. Removing a
// missing store is a no-op.
func (s *Store) Remove() error {
	if err := s.fs.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove trust store %s: %w", s.dir, err)
	}
	return nil
}

// importCert runs certutil -A against the store's database
func (s *Store) importCert(ctx context.Context, certPath string) error {
	args := []string{
		"-A",
		"-d", "sql:" + s.dir,
		"-n", s.nickname,
		"-t", s.trustFlags,
		"-a",
		"-i", certPath,
	}

	output, exitCode, err := s.runner(ctx, certutilCommand, args...)
	if err != nil || exitCode != 0 {
		return formatCommandError(certutilCommand, args, output, err, exitCode)
	}
	return nil
}

// execCommand is the default Runner backed by os/exec
func execCommand(ctx context.Context, name string, args ...string) (string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	return string(output), exitCode, err
}

// formatCommandError folds the tool's output into a readable error
func formatCommandError(name string, args []string, output string, err error, exitCode int) error {
	if output != "" {
		return fmt.Errorf("%s %s failed (exit=%d): %s", name, strings.Join(args, " "), exitCode, strings.TrimSpace(output))
	}
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", name, strings.Join(args, " "), err)
	}
	return fmt.Errorf("%s %s failed", name, strings.Join(args, " "))
}
