package registry

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/freeipa-workshop/ipafox/pkg/types"
)

const registryPath = "/home/user/.mozilla/firefox/profiles.ini"

// seededRegistry mirrors what Firefox writes for two of its own profiles.
const seededRegistry = `[Install4F96D1932A9F858E]
Default=x1y2z3w4.default-release
Locked=1

[Profile1]
Name=default
IsRelative=1
Path=x1y2z3w4.default
Default=1

[Profile0]
Name=default-release
IsRelative=1
Path=x1y2z3w4.default-release

[General]
StartWithLastProfile=1
Version=2
`

func newTestRegistry(t *testing.T, content string) *File {
	t.Helper()

	fs := afero.NewMemMapFs()
	if content != "" {
		if err := afero.WriteFile(fs, registryPath, []byte(content), 0600); err != nil {
			t.Fatalf("Failed to seed registry: %v", err)
		}
	}
	return New(fs, registryPath)
}

func readRegistry(t *testing.T, f *File) string {
	t.Helper()

	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		t.Fatalf("Failed to read registry back: %v", err)
	}
	return string(data)
}

func workshopProfile() types.Profile {
	return types.Profile{
		Name:       "ipa-workshop",
		IsRelative: true,
		Path:       "ipa-workshop",
	}
}

func TestEntries(t *testing.T) {
	f := newTestRegistry(t, seededRegistry)

	entries, err := f.Entries()
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}

	// File order, not suffix order
	if entries[0].Suffix != 1 || entries[0].Name != "default" {
		t.Errorf("First entry = %+v, want Profile1/default", entries[0])
	}
	if entries[1].Suffix != 0 || entries[1].Name != "default-release" {
		t.Errorf("Second entry = %+v, want Profile0/default-release", entries[1])
	}
	if !entries[0].IsRelative {
		t.Error("IsRelative=1 parsed as false")
	}
	if entries[1].Path != "x1y2z3w4.default-release" {
		t.Errorf("Path = %q, want x1y2z3w4.default-release", entries[1].Path)
	}
}

func TestEntries_MissingFile(t *testing.T) {
	f := newTestRegistry(t, "")

	entries, err := f.Entries()
	if err != nil {
		t.Fatalf("Entries() on missing file error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty registry, got %d entries", len(entries))
	}
}

func TestEntries_Malformed(t *testing.T) {
	f := newTestRegistry(t, "[Profile0\nName=broken\n")

	if _, err := f.Entries(); err == nil {
		t.Error("Expected parse error for unclosed section header")
	}
}

func TestLookup(t *testing.T) {
	f := newTestRegistry(t, seededRegistry)

	entry, err := f.Lookup("default-release")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if entry.Suffix != 0 {
		t.Errorf("Suffix = %d, want 0", entry.Suffix)
	}

	_, err = f.Lookup("ipa-workshop")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Lookup() error = %v, want ErrProfileNotFound", err)
	}
}

func TestExists(t *testing.T) {
	f := newTestRegistry(t, seededRegistry)

	exists, err := f.Exists("default")
	if err != nil || !exists {
		t.Errorf("Exists(default) = %v, %v; want true, nil", exists, err)
	}

	exists, err = f.Exists("ipa-workshop")
	if err != nil || exists {
		t.Errorf("Exists(ipa-workshop) = %v, %v; want false, nil", exists, err)
	}
}

func TestNextSuffix(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"missing file", "", 1},
		{"no profile sections", "[General]\nStartWithLastProfile=1\n", 1},
		{"single zero", "[Profile0]\nName=a\nIsRelative=1\nPath=a\n", 1},
		{"seeded", seededRegistry, 2},
		{
			// Gap: 1 was removed, next must be max+1, not first free
			"suffix gap",
			"[Profile0]\nName=a\nIsRelative=1\nPath=a\n\n[Profile2]\nName=b\nIsRelative=1\nPath=b\n",
			3,
		},
		{"high water mark", "[Profile7]\nName=a\nIsRelative=1\nPath=a\n", 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestRegistry(t, tt.content)
			got, err := f.NextSuffix()
			if err != nil {
				t.Fatalf("NextSuffix() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("NextSuffix() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppend(t *testing.T) {
	f := newTestRegistry(t, seededRegistry)

	suffix, err := f.Append(workshopProfile())
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if suffix != 2 {
		t.Errorf("Append() suffix = %d, want 2", suffix)
	}

	want := seededRegistry + "\n[Profile2]\nName=ipa-workshop\nIsRelative=1\nPath=ipa-workshop\n"
	if got := readRegistry(t, f); got != want {
		t.Errorf("Registry after Append:\n%q\nwant:\n%q", got, want)
	}

	entry, err := f.Lookup("ipa-workshop")
	if err != nil {
		t.Fatalf("Lookup() after Append error = %v", err)
	}
	if entry.Suffix != 2 || !entry.IsRelative || entry.Path != "ipa-workshop" {
		t.Errorf("Appended entry = %+v", entry)
	}
}

func TestAppend_EmptyRegistry(t *testing.T) {
	f := newTestRegistry(t, "")

	suffix, err := f.Append(workshopProfile())
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if suffix != 1 {
		t.Errorf("Append() suffix = %d, want 1", suffix)
	}

	want := "[Profile1]\nName=ipa-workshop\nIsRelative=1\nPath=ipa-workshop\n"
	if got := readRegistry(t, f); got != want {
		t.Errorf("Registry after Append:\n%q\nwant:\n%q", got, want)
	}
}

func TestAppend_Duplicate(t *testing.T) {
	f := newTestRegistry(t, seededRegistry)

	if _, err := f.Append(workshopProfile()); err != nil {
		t.Fatalf("First Append() error = %v", err)
	}

	_, err := f.Append(workshopProfile())
	if !errors.Is(err, ErrDuplicateProfile) {
		t.Errorf("Second Append() error = %v, want ErrDuplicateProfile", err)
	}
}

func TestAppend_AbsolutePathEntry(t *testing.T) {
	f := newTestRegistry(t, "")

	_, err := f.Append(types.Profile{
		Name:       "shared",
		IsRelative: false,
		Path:       "/srv/firefox/shared",
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if !strings.Contains(readRegistry(t, f), "IsRelative=0\nPath=/srv/firefox/shared\n") {
		t.Error("Absolute entry not rendered with IsRelative=0")
	}
}

func TestRemove_RoundTrip(t *testing.T) {
	f := newTestRegistry(t, seededRegistry)

	if _, err := f.Append(workshopProfile()); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	removed, err := f.Remove("ipa-workshop")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !removed {
		t.Error("Remove() = false, want true")
	}

	// Everything outside the managed block survives byte for byte.
	if got := readRegistry(t, f); got != seededRegistry {
		t.Errorf("Registry after round trip:\n%q\nwant:\n%q", got, seededRegistry)
	}
}

func TestRemove_BlockInMiddle(t *testing.T) {
	// Firefox appended its own section after ours.
	content := seededRegistry +
		"\n[Profile2]\nName=ipa-workshop\nIsRelative=1\nPath=ipa-workshop\n" +
		"\n[Profile3]\nName=later\nIsRelative=1\nPath=later.profile\n"
	f := newTestRegistry(t, content)

	removed, err := f.Remove("ipa-workshop")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !removed {
		t.Error("Remove() = false, want true")
	}

	want := seededRegistry + "\n[Profile3]\nName=later\nIsRelative=1\nPath=later.profile\n"
	if got := readRegistry(t, f); got != want {
		t.Errorf("Registry after Remove:\n%q\nwant:\n%q", got, want)
	}

	if _, err := f.Lookup("later"); err != nil {
		t.Errorf("Sibling profile lost: %v", err)
	}
}

func TestRemove_Absent(t *testing.T) {
	f := newTestRegistry(t, seededRegistry)

	removed, err := f.Remove("ipa-workshop")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if removed {
		t.Error("Remove() of absent profile = true, want false")
	}

	if got := readRegistry(t, f); got != seededRegistry {
		t.Error("Remove() of absent profile modified the registry")
	}
}

func TestRemove_ForeignKeysInsideManagedBlock(t *testing.T) {
	// Firefox may have marked our profile as the default; the whole section
	// still goes.
	content := "[Profile0]\nName=ipa-workshop\nIsRelative=1\nPath=ipa-workshop\nDefault=1\n"
	f := newTestRegistry(t, content)

	removed, err := f.Remove("ipa-workshop")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !removed {
		t.Error("Remove() = false, want true")
	}

	if got := readRegistry(t, f); got != "" {
		t.Errorf("Registry after Remove = %q, want empty", got)
	}
}

func TestAppendRemove_SetupTeardownCycle(t *testing.T) {
	f := newTestRegistry(t, seededRegistry)

	for i := 0; i < 3; i++ {
		if _, err := f.Append(workshopProfile()); err != nil {
			t.Fatalf("Cycle %d Append() error = %v", i, err)
		}
		if _, err := f.Remove("ipa-workshop"); err != nil {
			t.Fatalf("Cycle %d Remove() error = %v", i, err)
		}
	}

	if got := readRegistry(t, f); got != seededRegistry {
		t.Errorf("Registry drifted over cycles:\n%q", got)
	}
}
