// Package certs normalizes the CA certificate fetched from the workshop
// container before it is imported into a profile trust store. Input may be
// PEM or DER; output is always a single PEM-encoded CA certificate.
package certs

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/freeipa-workshop/ipafox/pkg/types"
)

const pemCertificateType = "CERTIFICATE"

// Certificate wraps one parsed CA certificate
type Certificate struct {
	cert *x509.Certificate
}

// Load reads and parses a certificate file
func Load(fs afero.Fs, path string) (*Certificate, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate %s: %w", path, err)
	}

	cert, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid certificate %s: %w", path, err)
	}
	return cert, nil
}

// Parse decodes a certificate from PEM or, failing that, raw DER. Exactly one
// certificate must be present.
func Parse(data []byte) (*Certificate, error) {
	block, rest := pem.Decode(data)
	if block == nil {
		// Not PEM, try raw DER.
		cert, err := x509.ParseCertificate(data)
		if err != nil {
			return nil, fmt.Errorf("data is neither PEM nor DER encoded: %w", err)
		}
		return &Certificate{cert: cert}, nil
	}

	if block.Type != pemCertificateType {
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}

	for {
		var next *pem.Block
		next, rest = pem.Decode(rest)
		if next == nil {
			break
		}
		if next.Type == pemCertificateType {
			return nil, fmt.Errorf("expected exactly one certificate, found more")
		}
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return &Certificate{cert: cert}, nil
}

// VerifyCA rejects certificates that cannot act as a certificate authority
func (c *Certificate) VerifyCA() error {
	if !c.cert.BasicConstraintsValid || !c.cert.IsCA {
		return fmt.Errorf("certificate %q is not a CA certificate", c.Subject())
	}
	return nil
}

// Expired reports whether the certificate is outside its validity window
func (c *Certificate) Expired(now time.Time) bool {
	return now.Before(c.cert.NotBefore) || now.After(c.cert.NotAfter)
}

// EncodePEM renders the certificate as a single PEM block
func (c *Certificate) EncodePEM() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  pemCertificateType,
		Bytes: c.cert.Raw,
	})
}

// Subject returns the certificate subject in RFC 2253 form
func (c *Certificate) Subject() string {
	return c.cert.Subject.String()
}

// Fingerprint returns the SHA-256 digest of the DER encoding as
// colon-separated uppercase hex
func (c *Certificate) Fingerprint() string {
	sum := sha256.Sum256(c.cert.Raw)

	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

// Info summarizes the certificate for results and audit events
func (c *Certificate) Info() types.CertInfo {
	return types.CertInfo{
		Subject:     c.Subject(),
		Issuer:      c.cert.Issuer.String(),
		Fingerprint: c.Fingerprint(),
		NotBefore:   c.cert.NotBefore,
		NotAfter:    c.cert.NotAfter,
		IsCA:        c.cert.IsCA,
	}
}
