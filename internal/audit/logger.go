package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EventType represents the type of audit event
type EventType string

const (
	// Provisioning events
	EventProvision        EventType = "PROFILE_PROVISION"
	EventClean            EventType = "PROFILE_CLEAN"
	EventTrustStoreCreate EventType = "TRUST_STORE_CREATE"
	EventTrustStoreRemove EventType = "TRUST_STORE_REMOVE"
	EventCertImport       EventType = "CERT_IMPORT"
	EventRegistryAppend   EventType = "REGISTRY_APPEND"
	EventRegistryRemove   EventType = "REGISTRY_REMOVE"

	// Launch events
	EventBrowserLaunch EventType = "BROWSER_LAUNCH"

	// System events
	EventStartup  EventType = "STARTUP"
	EventShutdown EventType = "SHUTDOWN"
	EventError    EventType = "ERROR"
)

// Severity represents the severity level of an audit event
type Severity string

const (
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      EventType              `json:"type"`
	Severity  Severity               `json:"severity"`
	Source    string                 `json:"source"`
	Profile   string                 `json:"profile,omitempty"`
	Resource  string                 `json:"resource,omitempty"`
	Action    string                 `json:"action"`
	Result    string                 `json:"result"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Logger provides audit logging functionality
type Logger struct {
	mu        sync.Mutex
	file      *os.File
	filepath  string
	maxSize   int64
	maxAge    time.Duration
	encoder   *json.Encoder
	eventChan chan *AuditEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// Config represents logger configuration
type Config struct {
	FilePath string
	MaxSize  int64         // Maximum file size in bytes
	MaxAge   time.Duration // Maximum age of rotated log files
}

// NewLogger creates a new audit logger
func NewLogger(config Config) (*Logger, error) {
	// Ensure directory exists
	dir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	// Open log file
	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	logger := &Logger{
		file:      file,
		filepath:  config.FilePath,
		maxSize:   config.MaxSize,
		maxAge:    config.MaxAge,
		encoder:   json.NewEncoder(file),
		eventChan: make(chan *AuditEvent, 100),
		stopChan:  make(chan struct{}),
	}

	// Start background worker
	logger.wg.Add(1)
	go logger.worker()

	// Mark the start of this run
	logger.LogSystem(EventStartup, "Audit logger started", nil)

	return logger, nil
}

// Log writes an audit event
func (l *Logger) Log(event *AuditEvent) {
	if event.ID == "" {
		event.ID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case l.eventChan <- event:
	case <-time.After(time.Second):
		// Timeout to prevent blocking
		fmt.Fprintf(os.Stderr, "Failed to log audit event: timeout\n")
	}
}

// LogOperation logs one provisioning or teardown step
func (l *Logger) LogOperation(operation EventType, profile, resource string, success bool, details map[string]interface{}) {
	result := "SUCCESS"
	severity := SeverityInfo

	if !success {
		result = "FAILED"
		severity = SeverityError
	}

	l.Log(&AuditEvent{
		Type:     operation,
		Severity: severity,
		Source:   "provision",
		Profile:  profile,
		Resource: resource,
		Action:   string(operation),
		Result:   result,
		Details:  details,
	})
}

// LogLaunch logs a detached browser spawn
func (l *Logger) LogLaunch(profile string, pid int, argv []string) {
	l.Log(&AuditEvent{
		Type:     EventBrowserLaunch,
		Severity: SeverityInfo,
		Source:   "browser",
		Profile:  profile,
		Action:   "launch",
		Result:   "SUCCESS",
		Details: map[string]interface{}{
			"pid":  pid,
			"argv": argv,
		},
	})
}

// LogError logs an error event
func (l *Logger) LogError(source string, err error, details map[string]interface{}) {
	l.Log(&AuditEvent{
		Type:     EventError,
		Severity: SeverityError,
		Source:   source,
		Action:   "error",
		Result:   "ERROR",
		Error:    err.Error(),
		Details:  details,
	})
}

// LogSystem logs a system event
func (l *Logger) LogSystem(eventType EventType, message string, details map[string]interface{}) {
	l.Log(&AuditEvent{
		Type:     eventType,
		Severity: SeverityInfo,
		Source:   "system",
		Action:   string(eventType),
		Result:   message,
		Details:  details,
	})
}

// worker processes audit events in the background
func (l *Logger) worker() {
	defer l.wg.Done()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case event := <-l.eventChan:
			l.writeEvent(event)

		case <-ticker.C:
			l.performMaintenance()

		case <-l.stopChan:
			// Drain remaining events
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		}
	}
}

// writeEvent writes an event to the log file
func (l *Logger) writeEvent(event *AuditEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.encoder.Encode(event); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit event: %v\n", err)
	}

	// Check if rotation is needed
	if l.maxSize > 0 {
		if info, err := l.file.Stat(); err == nil && info.Size() > l.maxSize {
			l.rotate()
		}
	}
}

// rotate performs log rotation
func (l *Logger) rotate() {
	// Close current file
	_ = l.file.Close()

	// Rename current file with timestamp
	timestamp := time.Now().Format("20060102-150405")
	rotatedPath := fmt.Sprintf("%s.%s", l.filepath, timestamp)
	_ = os.Rename(l.filepath, rotatedPath)

	// Open new file
	file, err := os.OpenFile(l.filepath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open new audit log file: %v\n", err)
		return
	}

	l.file = file
	l.encoder = json.NewEncoder(file)
}

// performMaintenance removes old rotated log files
func (l *Logger) performMaintenance() {
	if l.maxAge <= 0 {
		return
	}

	dir := filepath.Dir(l.filepath)
	base := filepath.Base(l.filepath)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-l.maxAge)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		// Only rotated files carry a suffix after the base name.
		if name == base || !strings.HasPrefix(name, base) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
}

// Close closes the audit logger
func (l *Logger) Close() error {
	// Mark the end of this run
	l.LogSystem(EventShutdown, "Audit logger shutting down", nil)

	// Stop worker
	close(l.stopChan)
	l.wg.Wait()

	// Close file
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// generateEventID generates a unique event ID
func generateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}
