package types

import "time"

// Profile represents one [Profile<N>] entry in the Firefox profile registry
type Profile struct {
	Suffix     int    `json:"suffix"`
	Name       string `json:"name"`
	IsRelative bool   `json:"is_relative"`
	Path       string `json:"path"`
}

// CertInfo represents the CA certificate imported into the trust store
type CertInfo struct {
	Subject     string    `json:"subject"`
	Issuer      string    `json:"issuer"`
	Fingerprint string    `json:"fingerprint"` // SHA-256, colon-separated hex
	NotBefore   time.Time `json:"not_before"`
	NotAfter    time.Time `json:"not_after"`
	IsCA        bool      `json:"is_ca"`
}

// ProvisionResult reports what a setup run changed
type ProvisionResult struct {
	TrustStorePath    string    `json:"trust_store_path"`
	TrustStoreCreated bool      `json:"trust_store_created"`
	Cert              *CertInfo `json:"cert,omitempty"` // Set when a certificate was imported
	RegistryPath      string    `json:"registry_path"`
	RegistryAppended  bool      `json:"registry_appended"`
	Suffix            int       `json:"suffix,omitempty"` // Assigned on append, existing otherwise
	Warnings          []string  `json:"warnings,omitempty"`
}

// CleanResult reports what a teardown run removed
type CleanResult struct {
	RegistryRemoved   bool `json:"registry_removed"`
	TrustStoreRemoved bool `json:"trust_store_removed"`
}

// Check represents a single doctor check result
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok" or "failed"
	Error  string `json:"error,omitempty"`
}
