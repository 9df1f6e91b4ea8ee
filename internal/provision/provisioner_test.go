package provision

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os/exec"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeipa-workshop/ipafox/internal/registry"
	"github.com/freeipa-workshop/ipafox/internal/truststore"
	"github.com/freeipa-workshop/ipafox/pkg/types"
)

const (
	testRegistryPath = "/home/user/.mozilla/firefox/profiles.ini"
	testTrustDir     = "/home/user/.mozilla/firefox/ipa-workshop"
	testCertPath     = "/etc/ipa/ca.crt"
)

const seededRegistry = `[Profile0]
Name=default
IsRelative=1
Path=x1y2z3w4.default

[General]
StartWithLastProfile=1
Version=2
`

// fakeSource stands in for the container runtime: CopyFile drops the canned
// certificate bytes at the requested local path.
type fakeSource struct {
	fs    afero.Fs
	data  []byte
	err   error
	calls int
	paths []string
}

func (s *fakeSource) CopyFile(_ context.Context, containerPath, localPath string) error {
	s.calls++
	s.paths = append(s.paths, containerPath)
	if s.err != nil {
		return s.err
	}
	return afero.WriteFile(s.fs, localPath, s.data, 0600)
}

type recordedCall struct {
	name string
	args []string
}

func fakeRunner(calls *[]recordedCall, output string, exitCode int, err error) truststore.Runner {
	return func(_ context.Context, name string, args ...string) (string, int, error) {
		*calls = append(*calls, recordedCall{name: name, args: args})
		return output, exitCode, err
	}
}

func makeCertPEM(t *testing.T, isCA bool, notBefore, notAfter time.Time) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "Certificate Authority",
			Organization: []string{"IPA.DEMO"},
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		BasicConstraintsValid: true,
		IsCA:                  isCA,
		KeyUsage:              x509.KeyUsageCertSign,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func caPEM(t *testing.T) []byte {
	now := time.Now()
	return makeCertPEM(t, true, now.Add(-time.Hour), now.Add(24*time.Hour))
}

type harness struct {
	fs     afero.Fs
	reg    *registry.File
	source *fakeSource
	calls  *[]recordedCall
	prov   *Provisioner
}

func newHarness(t *testing.T, registryContent string, certData []byte, importExit int, importErr error) *harness {
	t.Helper()

	fs := afero.NewMemMapFs()
	if registryContent != "" {
		require.NoError(t, afero.WriteFile(fs, testRegistryPath, []byte(registryContent), 0600))
	}

	calls := &[]recordedCall{}
	output := ""
	if importExit != 0 {
		output = "certutil: could not obtain certificate\n"
	}

	reg := registry.New(fs, testRegistryPath)
	trust := truststore.New(truststore.Options{
		Dir:        testTrustDir,
		Nickname:   "IPA CA",
		TrustFlags: "CT,,",
		Fs:         fs,
		Runner:     fakeRunner(calls, output, importExit, importErr),
		LookPath: func(name string) (string, error) {
			return "/usr/bin/" + name, nil
		},
	})
	source := &fakeSource{fs: fs, data: certData}

	prov := New(Options{
		Registry: reg,
		Trust:    trust,
		Source:   source,
		Fs:       fs,
		Profile: types.Profile{
			Name:       "ipa-workshop",
			IsRelative: true,
			Path:       "ipa-workshop",
		},
		ContainerCertPath: testCertPath,
	})

	return &harness{fs: fs, reg: reg, source: source, calls: calls, prov: prov}
}

func (h *harness) registryContent(t *testing.T) string {
	t.Helper()
	data, err := afero.ReadFile(h.fs, testRegistryPath)
	require.NoError(t, err)
	return string(data)
}

func TestSetup(t *testing.T) {
	h := newHarness(t, seededRegistry, caPEM(t), 0, nil)

	result, err := h.prov.Setup(context.Background())
	require.NoError(t, err)

	assert.True(t, result.TrustStoreCreated)
	assert.True(t, result.RegistryAppended)
	assert.Equal(t, 1, result.Suffix)
	assert.Equal(t, testTrustDir, result.TrustStorePath)
	require.NotNil(t, result.Cert)
	assert.Equal(t, "CN=Certificate Authority,O=IPA.DEMO", result.Cert.Subject)
	assert.Empty(t, result.Warnings)

	// Cert was pulled from the canonical container path.
	assert.Equal(t, []string{testCertPath}, h.source.paths)

	// certutil imported into the new database.
	require.Len(t, *h.calls, 1)
	assert.Equal(t, "certutil", (*h.calls)[0].name)
	assert.Contains(t, (*h.calls)[0].args, "sql:"+testTrustDir)

	// Registry gained exactly the managed block.
	entry, err := h.reg.Lookup("ipa-workshop")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Suffix)
	assert.True(t, entry.IsRelative)
}

func TestSetup_EmptyRegistryAssignsSuffixOne(t *testing.T) {
	h := newHarness(t, "", caPEM(t), 0, nil)

	result, err := h.prov.Setup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Suffix)

	want := "[Profile1]\nName=ipa-workshop\nIsRelative=1\nPath=ipa-workshop\n"
	assert.Equal(t, want, h.registryContent(t))
}

func TestSetup_SuffixGapTakesMaxPlusOne(t *testing.T) {
	content := "[Profile0]\nName=a\nIsRelative=1\nPath=a\n\n[Profile2]\nName=b\nIsRelative=1\nPath=b\n"
	h := newHarness(t, content, caPEM(t), 0, nil)

	result, err := h.prov.Setup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Suffix)
}

func TestSetup_Idempotent(t *testing.T) {
	h := newHarness(t, seededRegistry, caPEM(t), 0, nil)

	first, err := h.prov.Setup(context.Background())
	require.NoError(t, err)
	afterFirst := h.registryContent(t)

	second, err := h.prov.Setup(context.Background())
	require.NoError(t, err)

	assert.False(t, second.TrustStoreCreated)
	assert.False(t, second.RegistryAppended)
	assert.Equal(t, first.Suffix, second.Suffix)
	assert.Nil(t, second.Cert)

	// No duplicate entry, no second import, registry bytes unchanged.
	assert.Equal(t, afterFirst, h.registryContent(t))
	assert.Len(t, *h.calls, 1)
	assert.Equal(t, 1, h.source.calls)

	entries, err := h.reg.Entries()
	require.NoError(t, err)
	count := 0
	for _, e := range entries {
		if e.Name == "ipa-workshop" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSetup_RecreatesRemovedTrustStore(t *testing.T) {
	h := newHarness(t, seededRegistry, caPEM(t), 0, nil)

	_, err := h.prov.Setup(context.Background())
	require.NoError(t, err)

	// Someone wiped the profile directory; the registry entry stays.
	require.NoError(t, h.fs.RemoveAll(testTrustDir))

	result, err := h.prov.Setup(context.Background())
	require.NoError(t, err)

	assert.True(t, result.TrustStoreCreated)
	assert.False(t, result.RegistryAppended, "registry entry must not be duplicated")
	assert.Len(t, *h.calls, 2, "certutil runs once per trust store creation")
}

func TestSetup_CopyFailure(t *testing.T) {
	h := newHarness(t, seededRegistry, caPEM(t), 0, nil)
	h.source.err = errors.New("podman cp server:/etc/ipa/ca.crt failed (exit=125): no such container")

	_, err := h.prov.Setup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch CA certificate")

	exists, statErr := afero.DirExists(h.fs, testTrustDir)
	require.NoError(t, statErr)
	assert.False(t, exists, "trust store must not exist after a failed fetch")
}

func TestSetup_NonCACertRejected(t *testing.T) {
	now := time.Now()
	leaf := makeCertPEM(t, false, now.Add(-time.Hour), now.Add(time.Hour))
	h := newHarness(t, seededRegistry, leaf, 0, nil)

	_, err := h.prov.Setup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a CA certificate")

	assert.Empty(t, *h.calls, "certutil must not run for a rejected certificate")
	exists, statErr := afero.DirExists(h.fs, testTrustDir)
	require.NoError(t, statErr)
	assert.False(t, exists)
}

func TestSetup_ExpiredCertWarns(t *testing.T) {
	now := time.Now()
	stale := makeCertPEM(t, true, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	h := newHarness(t, seededRegistry, stale, 0, nil)

	result, err := h.prov.Setup(context.Background())
	require.NoError(t, err, "an expired CA still provisions")
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "validity window")
}

func TestSetup_ImportFailureLeavesNoTrustStore(t *testing.T) {
	h := newHarness(t, seededRegistry, caPEM(t), 255, errors.New("exit status 255"))

	_, err := h.prov.Setup(context.Background())
	require.Error(t, err)

	exists, statErr := afero.DirExists(h.fs, testTrustDir)
	require.NoError(t, statErr)
	assert.False(t, exists, "fresh trust store must be rolled back")

	// The registry step never ran; a rerun starts from scratch.
	found, lookErr := h.reg.Exists("ipa-workshop")
	require.NoError(t, lookErr)
	assert.False(t, found)
}

func TestClean_RestoresRegistryByteForByte(t *testing.T) {
	h := newHarness(t, seededRegistry, caPEM(t), 0, nil)

	_, err := h.prov.Setup(context.Background())
	require.NoError(t, err)

	result, err := h.prov.Clean(context.Background())
	require.NoError(t, err)

	assert.True(t, result.RegistryRemoved)
	assert.True(t, result.TrustStoreRemoved)
	assert.Equal(t, seededRegistry, h.registryContent(t))

	exists, statErr := afero.DirExists(h.fs, testTrustDir)
	require.NoError(t, statErr)
	assert.False(t, exists)
}

func TestClean_NothingProvisioned(t *testing.T) {
	h := newHarness(t, seededRegistry, caPEM(t), 0, nil)

	result, err := h.prov.Clean(context.Background())
	require.NoError(t, err)

	assert.False(t, result.RegistryRemoved)
	assert.False(t, result.TrustStoreRemoved)
	assert.Equal(t, seededRegistry, h.registryContent(t))
}

func TestSetupCleanCycle_NoDrift(t *testing.T) {
	h := newHarness(t, seededRegistry, caPEM(t), 0, nil)

	for i := 0; i < 3; i++ {
		_, err := h.prov.Setup(context.Background())
		require.NoError(t, err)
		_, err = h.prov.Clean(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, seededRegistry, h.registryContent(t))
}

func TestSetup_CertutilMissing(t *testing.T) {
	h := newHarness(t, seededRegistry, caPEM(t), 0, nil)

	// Rebuild with a lookPath that cannot find certutil.
	trust := truststore.New(truststore.Options{
		Dir:        testTrustDir,
		Nickname:   "IPA CA",
		TrustFlags: "CT,,",
		Fs:         h.fs,
		Runner:     fakeRunner(h.calls, "", 0, nil),
		LookPath:   func(string) (string, error) { return "", exec.ErrNotFound },
	})
	prov := New(Options{
		Registry:          h.reg,
		Trust:             trust,
		Source:            h.source,
		Fs:                h.fs,
		Profile:           types.Profile{Name: "ipa-workshop", IsRelative: true, Path: "ipa-workshop"},
		ContainerCertPath: testCertPath,
	})

	_, err := prov.Setup(context.Background())
	assert.ErrorIs(t, err, truststore.ErrCertutilNotFound)
}
