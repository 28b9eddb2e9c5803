package connector

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSigned(t *testing.T, pub crypto.PublicKey, priv crypto.Signer) []byte {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(0x1234),
		Subject:      pkix.Name{CommonName: "knurl.test", Organization: []string{"Knurl"}},
		NotBefore:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2034, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, priv)
	require.NoError(t, err)
	return der
}

func TestInspectCertificate_RSA(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	c := InspectCertificate(0, srv.Certificate().Raw)

	assert.Len(t, c.FingerprintSHA256, 32*3-1)
	assert.True(t, strings.HasPrefix(c.PEM, "-----BEGIN CERTIFICATE-----"))
	assert.Equal(t, 3, c.Version)
	assert.Contains(t, c.Subject, "O=Acme Co")
	require.NotNil(t, c.PublicKeyAlgorithm)
	assert.Equal(t, "rsaEncryption", c.PublicKeyAlgorithm.Name)
	assert.Equal(t, oidRSA, c.PublicKeyAlgorithm.OID)
	require.NotNil(t, c.SignatureAlgorithm)
	assert.Equal(t, "sha256WithRSAEncryption", c.SignatureAlgorithm.Name)

	require.NotNil(t, c.PublicKey)
	assert.Equal(t, KeyRSA, c.PublicKey.Kind)
	assert.Equal(t, 2048, c.PublicKey.Bits)
	assert.Len(t, c.PublicKey.Modulus, 16)
	assert.Equal(t, "65537", c.PublicKey.ExponentDecimal)
	assert.Equal(t, "0x10001", c.PublicKey.ExponentHex)
	assert.Len(t, c.Signature, 16)

	text := c.Text()
	assert.Contains(t, text, "Certificate #0:")
	assert.Contains(t, text, "Public-Key: (2048 bit)")
	assert.Contains(t, text, "Exponent: 65537 (0x10001)")
}

func TestInspectCertificate_EC(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	c := InspectCertificate(1, selfSigned(t, &key.PublicKey, key))

	assert.Equal(t, 1, c.Index)
	assert.Equal(t, "12:34", c.Serial)
	assert.Equal(t, "2024-01-01T00:00:00Z", c.NotBefore)
	assert.Equal(t, "2034-01-01T00:00:00Z", c.NotAfter)
	assert.Equal(t, c.Subject, c.Issuer)
	assert.Equal(t, "ecdsa-with-SHA256", c.SignatureAlgorithm.Name)

	require.NotNil(t, c.PublicKey)
	assert.Equal(t, KeyEC, c.PublicKey.Kind)
	require.NotNil(t, c.PublicKey.Curve)
	assert.Equal(t, "prime256v1", c.PublicKey.Curve.Name)
	assert.Equal(t, 256, c.PublicKey.Bits)
	// uncompressed point: 65 bytes
	assert.Len(t, c.PublicKey.Point, 5)
	assert.Contains(t, c.Text(), "ASN1 OID: prime256v1")
}

func TestInspectCertificate_Ed25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	c := InspectCertificate(0, selfSigned(t, pub, priv))

	require.NotNil(t, c.PublicKey)
	assert.Equal(t, KeyEd25519, c.PublicKey.Kind)
	assert.Len(t, c.PublicKey.Raw, 2)
	assert.Equal(t, "Ed25519", c.PublicKeyAlgorithm.Name)
}

func TestInspectCertificate_Unparseable(t *testing.T) {
	der := []byte{0x30, 0x03, 0x02, 0x01, 0x01}
	c := InspectCertificate(2, der)

	assert.NotEmpty(t, c.FingerprintSHA256)
	assert.NotEmpty(t, c.PEM)
	assert.Empty(t, c.Subject)
	assert.Nil(t, c.PublicKey)
	assert.Contains(t, c.Text(), "SHA-256 Fingerprint:")
}

func TestDescribeOID_Unknown(t *testing.T) {
	a := describeOID("1.2.3.4")
	assert.Equal(t, "1.2.3.4", a.Name)
	assert.Equal(t, "Unknown algorithm", a.Description)
}

func TestHexLines(t *testing.T) {
	b := make([]byte, 20)
	lines := hexLines(b)
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Repeat("00:", 15)+"00", lines[0])
	assert.Equal(t, "00:00:00:00", lines[1])
	assert.Nil(t, hexLines(nil))
}
