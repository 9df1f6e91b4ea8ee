// Package registry reads and edits the Firefox profile registry
// (profiles.ini). The file is owned by Firefox: queries go through an INI
// parser, but edits splice raw lines so that everything outside the managed
// [Profile<N>] block survives byte for byte.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/ini.v1"

	"github.com/freeipa-workshop/ipafox/pkg/types"
)

// Ensure File implements Store
var _ Store = (*File)(nil)

// ErrProfileNotFound is returned by Lookup when no entry carries the name.
var ErrProfileNotFound = errors.New("profile not found in registry")

// ErrDuplicateProfile is returned by Append when the name is already registered.
var ErrDuplicateProfile = errors.New("profile already registered")

// profileSectionPattern matches the numbered profile sections Firefox writes.
var profileSectionPattern = regexp.MustCompile(`^Profile(\d+)$`)

// File manages one profiles.ini registry file
type File struct {
	fs   afero.Fs
	path string
}

// New creates a registry store over the given filesystem and path. A missing
// file reads as an empty registry.
func New(fs afero.Fs, path string) *File {
	return &File{fs: fs, path: path}
}

// Path returns the registry file location
func (f *File) Path() string {
	return f.path
}

// Entries returns all [Profile<N>] entries in file order
func (f *File) Entries() ([]types.Profile, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, err
	}

	var entries []types.Profile
	for _, section := range cfg.Sections() {
		suffix, ok := sectionSuffix(section.Name())
		if !ok {
			continue
		}
		entries = append(entries, types.Profile{
			Suffix:     suffix,
			Name:       section.Key("Name").String(),
			IsRelative: section.Key("IsRelative").String() == "1",
			Path:       section.Key("Path").String(),
		})
	}
	return entries, nil
}

// Lookup finds the entry whose Name key matches name
func (f *File) Lookup(name string) (*types.Profile, error) {
	entries, err := f.Entries()
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if entries[i].Name == name {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("profile %q: %w", name, ErrProfileNotFound)
}

// Exists reports whether an entry named name is registered
func (f *File) Exists(name string) (bool, error) {
	_, err := f.Lookup(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrProfileNotFound) {
		return false, nil
	}
	return false, err
}

// NextSuffix returns the suffix a new entry would receive: one past the
// highest existing Profile<N> suffix, or 1 for an empty registry. Gaps are
// never reused.
func (f *File) NextSuffix() (int, error) {
	entries, err := f.Entries()
	if err != nil {
		return 0, err
	}

	max := 0
	for _, entry := range entries {
		if entry.Suffix > max {
			max = entry.Suffix
		}
	}
	return max + 1, nil
}

// Append adds a new [Profile<N>] block for the profile and returns the
// assigned suffix. Existing content is preserved untouched; the block is
// appended after one blank separator line.
func (f *File) Append(profile types.Profile) (int, error) {
	if exists, err := f.Exists(profile.Name); err != nil {
		return 0, err
	} else if exists {
		return 0, fmt.Errorf("profile %q: %w", profile.Name, ErrDuplicateProfile)
	}

	suffix, err := f.NextSuffix()
	if err != nil {
		return 0, err
	}

	data, err := f.read()
	if err != nil {
		return 0, err
	}

	isRelative := "0"
	if profile.IsRelative {
		isRelative = "1"
	}
	block := fmt.Sprintf("[Profile%d]\nName=%s\nIsRelative=%s\nPath=%s\n",
		suffix, profile.Name, isRelative, profile.Path)

	existing := string(data)
	var out strings.Builder
	out.WriteString(existing)
	if existing != "" {
		if !strings.HasSuffix(existing, "\n") {
			out.WriteString("\n")
		}
		if !strings.HasSuffix(existing, "\n\n") {
			out.WriteString("\n")
		}
	}
	out.WriteString(block)

	if err := f.write([]byte(out.String())); err != nil {
		return 0, err
	}
	return suffix, nil
}

// Remove deletes the [Profile<N>] block whose Name key matches name, along
// with the single blank line separating it from the preceding content. It
// reports whether anything was removed; a missing entry is not an error.
func (f *File) Remove(name string) (bool, error) {
	entry, err := f.Lookup(name)
	if errors.Is(err, ErrProfileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	data, err := f.read()
	if err != nil {
		return false, err
	}

	lines := strings.SplitAfter(string(data), "\n")
	header := fmt.Sprintf("[Profile%d]", entry.Suffix)

	start := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == header {
			start = i
			break
		}
	}
	if start == -1 {
		return false, fmt.Errorf("registry %s: section %s vanished during removal", f.path, header)
	}

	// End of the block: the last non-blank line before the next section
	// header (or EOF). Blank lines after the keys separate the following
	// section and stay.
	end := start + 1
	for end < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[end]), "[") {
		end++
	}
	for end > start+1 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}

	// Take the one blank separator line added when the block was appended.
	if start > 0 && strings.TrimSpace(lines[start-1]) == "" {
		start--
	}

	remaining := append([]string{}, lines[:start]...)
	remaining = append(remaining, lines[end:]...)

	if err := f.write([]byte(strings.Join(remaining, ""))); err != nil {
		return false, err
	}
	return true, nil
}

// load parses the registry, treating a missing file as empty
func (f *File) load() (*ini.File, error) {
	data, err := f.read()
	if err != nil {
		return nil, err
	}

	// Firefox values run to end of line; never split on ; or #.
	cfg, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", f.path, err)
	}
	return cfg, nil
}

// read returns the raw registry bytes, nil when the file does not exist
func (f *File) read() ([]byte, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read registry %s: %w", f.path, err)
	}
	return data, nil
}

// write replaces the registry contents with an atomic temp-file rename
func (f *File) write(data []byte) error {
	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	tempPath := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write registry to temp file: %w", err)
	}

	if err := f.fs.Rename(tempPath, f.path); err != nil {
		_ = f.fs.Remove(tempPath) // Clean up temp file, ignore error
		return fmt.Errorf("failed to atomically update registry: %w", err)
	}

	return nil
}

// sectionSuffix extracts N from a Profile<N> section name
func sectionSuffix(section string) (int, bool) {
	m := profileSectionPattern.FindStringSubmatch(section)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
