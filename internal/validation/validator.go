package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// Validator provides input validation and sanitization
type Validator struct {
	// Patterns for validation
	profileNamePattern   *regexp.Regexp
	containerNamePattern *regexp.Regexp
	trustFlagsPattern    *regexp.Regexp
	flatpakAppPattern    *regexp.Regexp

	// Security patterns to detect injection attempts
	commandInjectionPatterns []*regexp.Regexp
	pathTraversalPatterns    []*regexp.Regexp
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		// Profile name: alphanumeric with underscores, hyphens, dots (1-64 chars)
		profileNamePattern: regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`),

		// Container name: podman/docker naming rule
		containerNamePattern: regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`),

		// certutil trust string: three comma-separated fields over the
		// trust-attribute alphabet, e.g. "CT,," or "CT,C,C"
		trustFlagsPattern: regexp.MustCompile(`^[pPcCTu]*,[pPcCTu]*,[pPcCTu]*$`),

		// Flatpak application ID: reverse-DNS with at least three elements
		flatpakAppPattern: regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*(\.[A-Za-z0-9_-]+){2,}$`),

		// Command injection patterns
		commandInjectionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`[;&|]`),     // Command separators
			regexp.MustCompile("`"),         // Backticks
			regexp.MustCompile(`\$\(`),      // Command substitution
			regexp.MustCompile(`\$\{`),      // Variable expansion
			regexp.MustCompile(`<<|>>`),     // Redirections
			regexp.MustCompile(`\|\||\&\&`), // Logical operators
			regexp.MustCompile(`\n|\r`),     // Newlines
			regexp.MustCompile(`[<>]`),      // IO redirection
			regexp.MustCompile(`\x00`),      // Null bytes
		},

		// Path traversal patterns
		pathTraversalPatterns: []*regexp.Regexp{
			regexp.MustCompile(`\.\.[\\/]`),         // ../ or ..\
			regexp.MustCompile(`%2e%2e|%252e%252e`), // URL encoded traversal
			regexp.MustCompile(`\x00`),              // Null bytes
		},
	}
}

// ValidateProfileName validates a Firefox profile name
func (v *Validator) ValidateProfileName(name string) error {
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	if len(name) > 64 {
		return fmt.Errorf("profile name too long: maximum 64 characters")
	}

	if !v.profileNamePattern.MatchString(name) {
		return fmt.Errorf("invalid profile name: must contain only alphanumeric characters, dots, underscores, and hyphens")
	}

	return nil
}

// ValidateProfilePath validates the relative directory name written to a
// registry entry. It must be a single path element under the registry
// directory.
func (v *Validator) ValidateProfilePath(path string) error {
	if path == "" {
		return fmt.Errorf("profile path cannot be empty")
	}

	if !v.profileNamePattern.MatchString(path) {
		return fmt.Errorf("invalid profile path: must be a single directory name without separators")
	}

	if path == "." || path == ".." || strings.Trim(path, ".") == "" {
		return fmt.Errorf("invalid profile path: %q", path)
	}

	return nil
}

// ValidateContainerName validates a podman/docker container name
func (v *Validator) ValidateContainerName(name string) error {
	if name == "" {
		return fmt.Errorf("container name cannot be empty")
	}

	if len(name) > 255 {
		return fmt.Errorf("container name too long: maximum 255 characters")
	}

	if !v.containerNamePattern.MatchString(name) {
		return fmt.Errorf("invalid container name: must start with an alphanumeric character followed by alphanumerics, underscores, dots, or hyphens")
	}

	return nil
}

// ValidateRuntime validates the configured container runtime
func (v *Validator) ValidateRuntime(runtime string) error {
	switch runtime {
	case "podman", "docker", "auto":
		return nil
	}
	return fmt.Errorf("invalid container runtime %q: must be podman, docker, or auto", runtime)
}

// ValidateNickname validates an NSS certificate nickname
func (v *Validator) ValidateNickname(nickname string) error {
	if nickname == "" {
		return fmt.Errorf("certificate nickname cannot be empty")
	}

	if len(nickname) > 64 {
		return fmt.Errorf("certificate nickname too long: maximum 64 characters")
	}

	for _, r := range nickname {
		if unicode.IsControl(r) {
			return fmt.Errorf("certificate nickname contains control characters")
		}
	}

	if strings.ContainsAny(nickname, `"'`) {
		return fmt.Errorf("certificate nickname cannot contain quotes")
	}

	if v.containsCommandInjection(nickname) {
		return fmt.Errorf("certificate nickname contains invalid characters")
	}

	return nil
}

// ValidateTrustFlags validates a certutil trust-attribute string
func (v *Validator) ValidateTrustFlags(flags string) error {
	if flags == "" {
		return fmt.Errorf("trust flags cannot be empty")
	}

	if !v.trustFlagsPattern.MatchString(flags) {
		return fmt.Errorf("invalid trust flags %q: expected three comma-separated fields such as \"CT,,\"", flags)
	}

	return nil
}

// ValidateFlatpakApp validates a flatpak application ID
func (v *Validator) ValidateFlatpakApp(appID string) error {
	if appID == "" {
		return fmt.Errorf("flatpak application ID cannot be empty")
	}

	if len(appID) > 255 {
		return fmt.Errorf("flatpak application ID too long: maximum 255 characters")
	}

	if !v.flatpakAppPattern.MatchString(appID) {
		return fmt.Errorf("invalid flatpak application ID %q: expected reverse-DNS form such as org.mozilla.firefox", appID)
	}

	return nil
}

// ValidateFilePath validates and sanitizes a file path
func (v *Validator) ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}

	// Check for path traversal attempts
	if v.containsPathTraversal(path) {
		return fmt.Errorf("file path contains invalid characters or patterns")
	}

	// Check for command injection attempts in file paths
	// But allow forward slashes which are valid in paths
	if v.containsFilePathCommandInjection(path) {
		return fmt.Errorf("file path contains invalid characters")
	}

	// Ensure it's not trying to access parent directories
	cleaned := filepath.Clean(path)
	if strings.HasPrefix(cleaned, "..") {
		return fmt.Errorf("file path cannot traverse to parent directories")
	}

	// Check for null bytes
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("file path contains null bytes")
	}

	return nil
}

// SanitizeString removes potentially dangerous characters from a string
func (v *Validator) SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters except tab, newline, carriage return
	var sanitized strings.Builder
	for _, r := range input {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// containsCommandInjection checks if input contains command injection patterns
func (v *Validator) containsCommandInjection(input string) bool {
	for _, pattern := range v.commandInjectionPatterns {
		if pattern.MatchString(input) {
			return true
		}
	}
	return false
}

// containsFilePathCommandInjection checks for command injection in file paths
// This is more permissive than general command injection as paths need slashes
func (v *Validator) containsFilePathCommandInjection(path string) bool {
	// Check for dangerous patterns but allow forward/back slashes
	dangerousPatterns := []string{
		";", "|", "&", "$", "`", "(", ")", "<", ">", "\n", "\r",
		"${", "$(", "\x00", "%00", "&&", "||", ">>", "<<", "|&",
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(path, pattern) {
			return true
		}
	}

	return false
}

// containsPathTraversal checks if input contains path traversal patterns
func (v *Validator) containsPathTraversal(input string) bool {
	for _, pattern := range v.pathTraversalPatterns {
		if pattern.MatchString(input) {
			return true
		}
	}
	return false
}

// TruncateString safely truncates a string to a maximum length
func (v *Validator) TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	// Truncate at rune boundary to avoid breaking multi-byte characters
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}

	return string(runes[:maxLen-3]) + "..."
}
