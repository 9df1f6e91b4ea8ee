// Package provision orchestrates workshop profile setup and teardown: the
// registry entry and the CA trust store, each step independently idempotent
// so a rerun completes whatever is missing.
package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/freeipa-workshop/ipafox/internal/audit"
	"github.com/freeipa-workshop/ipafox/internal/certs"
	"github.com/freeipa-workshop/ipafox/internal/registry"
	"github.com/freeipa-workshop/ipafox/internal/truststore"
	"github.com/freeipa-workshop/ipafox/pkg/types"
)

// CertSource fetches a file out of the workshop container
type CertSource interface {
	CopyFile(ctx context.Context, containerPath, localPath string) error
}

// Options configures a Provisioner
type Options struct {
	Registry registry.Store
	Trust    *truststore.Store
	Source   CertSource
	Fs       afero.Fs
	// Audit may be nil; steps are then not audited.
	Audit *audit.Logger
	// Profile is the managed registry entry to create and remove.
	Profile types.Profile
	// ContainerCertPath is the CA certificate location inside the container.
	ContainerCertPath string
}

// Provisioner performs setup and teardown of the workshop profile
type Provisioner struct {
	registry          registry.Store
	trust             *truststore.Store
	source            CertSource
	fs                afero.Fs
	audit             *audit.Logger
	profile           types.Profile
	containerCertPath string
}

// New creates a Provisioner
func New(opts Options) *Provisioner {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Provisioner{
		registry:          opts.Registry,
		trust:             opts.Trust,
		source:            opts.Source,
		fs:                fs,
		audit:             opts.Audit,
		profile:           opts.Profile,
		containerCertPath: opts.ContainerCertPath,
	}
}

// Setup provisions the trust store and the registry entry. Both steps are
// skipped when already present; rerunning never duplicates anything.
func (p *Provisioner) Setup(ctx context.Context) (*types.ProvisionResult, error) {
	result := &types.ProvisionResult{
		TrustStorePath: p.trust.Dir(),
		RegistryPath:   p.registry.Path(),
	}

	trustExists, err := p.trust.Exists()
	if err != nil {
		return nil, err
	}

	if !trustExists {
		cert, err := p.provisionTrustStore(ctx, result)
		if err != nil {
			p.logError(err)
			return nil, err
		}
		info := cert.Info()
		result.Cert = &info
		result.TrustStoreCreated = true
	}

	exists, err := p.registry.Exists(p.profile.Name)
	if err != nil {
		return nil, err
	}

	if exists {
		entry, err := p.registry.Lookup(p.profile.Name)
		if err != nil {
			return nil, err
		}
		result.Suffix = entry.Suffix
	} else {
		suffix, err := p.registry.Append(p.profile)
		if err != nil {
			p.logOperation(audit.EventRegistryAppend, p.registry.Path(), false, nil)
			p.logError(err)
			return nil, fmt.Errorf("failed to register profile %q: %w", p.profile.Name, err)
		}
		p.logOperation(audit.EventRegistryAppend, p.registry.Path(), true, map[string]interface{}{
			"suffix": suffix,
		})
		result.Suffix = suffix
		result.RegistryAppended = true
	}

	p.logOperation(audit.EventProvision, p.registry.Path(), true, map[string]interface{}{
		"trust_store_created": result.TrustStoreCreated,
		"registry_appended":   result.RegistryAppended,
	})
	return result, nil
}

// Clean removes the registry entry and the trust store. Missing pieces are
// no-ops; the registry outside the managed block is left byte for byte.
func (p *Provisioner) Clean(ctx context.Context) (*types.CleanResult, error) {
	result := &types.CleanResult{}

	removed, err := p.registry.Remove(p.profile.Name)
	if err != nil {
		p.logError(err)
		return nil, fmt.Errorf("failed to deregister profile %q: %w", p.profile.Name, err)
	}
	if removed {
		p.logOperation(audit.EventRegistryRemove, p.registry.Path(), true, nil)
	}
	result.RegistryRemoved = removed

	trustExisted, err := p.trust.Exists()
	if err != nil {
		return nil, err
	}
	if err := p.trust.Remove(); err != nil {
		p.logError(err)
		return nil, err
	}
	if trustExisted {
		p.logOperation(audit.EventTrustStoreRemove, p.trust.Dir(), true, nil)
	}
	result.TrustStoreRemoved = trustExisted

	p.logOperation(audit.EventClean, p.registry.Path(), true, map[string]interface{}{
		"registry_removed":    result.RegistryRemoved,
		"trust_store_removed": result.TrustStoreRemoved,
	})
	return result, nil
}

// provisionTrustStore fetches the CA certificate from the container,
// normalizes it, and creates the NSS database around it
func (p *Provisioner) provisionTrustStore(ctx context.Context, result *types.ProvisionResult) (*certs.Certificate, error) {
	tempFile, err := afero.TempFile(p.fs, "", "ipafox-ca-*.crt")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for CA certificate: %w", err)
	}
	tempPath := tempFile.Name()
	_ = tempFile.Close()
	defer func() { _ = p.fs.Remove(tempPath) }()

	if err := p.source.CopyFile(ctx, p.containerCertPath, tempPath); err != nil {
		return nil, fmt.Errorf("failed to fetch CA certificate from container: %w", err)
	}

	cert, err := certs.Load(p.fs, tempPath)
	if err != nil {
		return nil, err
	}
	if err := cert.VerifyCA(); err != nil {
		return nil, err
	}
	if cert.Expired(time.Now()) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("CA certificate is outside its validity window (notBefore=%s notAfter=%s)",
				cert.Info().NotBefore.Format(time.RFC3339), cert.Info().NotAfter.Format(time.RFC3339)))
	}

	// Re-encode so certutil always sees a single clean PEM block.
	if err := afero.WriteFile(p.fs, tempPath, cert.EncodePEM(), 0600); err != nil {
		return nil, fmt.Errorf("failed to write normalized CA certificate: %w", err)
	}

	if err := p.trust.Create(ctx, tempPath); err != nil {
		p.logOperation(audit.EventTrustStoreCreate, p.trust.Dir(), false, nil)
		return nil, err
	}

	p.logOperation(audit.EventTrustStoreCreate, p.trust.Dir(), true, nil)
	p.logOperation(audit.EventCertImport, p.trust.Dir(), true, map[string]interface{}{
		"subject":     cert.Subject(),
		"fingerprint": cert.Fingerprint(),
	})
	return cert, nil
}

func (p *Provisioner) logOperation(operation audit.EventType, resource string, success bool, details map[string]interface{}) {
	if p.audit == nil {
		return
	}
	p.audit.LogOperation(operation, p.profile.Name, resource, success, details)
}

func (p *Provisioner) logError(err error) {
	if p.audit == nil {
		return
	}
	p.audit.LogError("provision", err, nil)
}
