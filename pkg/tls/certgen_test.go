package tls

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSelfSignedCert(t *testing.T) {
	t.Parallel()

	gen, err := GenerateSelfSignedCert(&CertificateConfig{
		Organization: "Test Org",
		CommonName:   "test.local",
		Hosts:        []string{"test.local", "10.0.0.1"},
		ValidFor:     time.Hour,
	})
	require.NoError(t, err)

	cert := gen.Certificate
	assert.Equal(t, "test.local", cert.Subject.CommonName)
	assert.Equal(t, []string{"Test Org"}, cert.Subject.Organization)
	assert.Equal(t, []string{"test.local"}, cert.DNSNames)
	require.Len(t, cert.IPAddresses, 1)
	assert.True(t, cert.IPAddresses[0].Equal(net.ParseIP("10.0.0.1")))
	assert.Contains(t, cert.ExtKeyUsage, x509.ExtKeyUsageServerAuth)
	assert.WithinDuration(t, time.Now().Add(time.Hour), cert.NotAfter, 2*time.Minute)

	_, err = tls.X509KeyPair(gen.CertPEM, gen.KeyPEM)
	require.NoError(t, err)
}

func TestGenerateSelfSignedCert_Default(t *testing.T) {
	t.Parallel()

	gen, err := GenerateSelfSignedCert(nil)
	require.NoError(t, err)
	assert.NoError(t, gen.Certificate.VerifyHostname("localhost"))
	assert.NoError(t, gen.Certificate.VerifyHostname("127.0.0.1"))
}

func TestServerConfig_SelfSigned(t *testing.T) {
	t.Parallel()

	cfg, err := ServerConfig("", "", "mock.test", "0.0.0.0")
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)

	leaf, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	require.NoError(t, err)
	assert.NoError(t, leaf.VerifyHostname("mock.test"))
	assert.NotContains(t, leaf.DNSNames, "0.0.0.0")
}

func TestServerConfig_Files(t *testing.T) {
	t.Parallel()

	gen, err := GenerateSelfSignedCert(nil)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, gen.CertPEM, 0o644))
	require.NoError(t, os.WriteFile(keyFile, gen.KeyPEM, 0o600))

	cfg, err := ServerConfig(certFile, keyFile)
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)

	_, err = ServerConfig(certFile, filepath.Join(dir, "missing.pem"))
	assert.ErrorContains(t, err, "failed to load certificate")
}
