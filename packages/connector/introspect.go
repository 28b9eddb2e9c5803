package connector

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/knurl/packages/telemetry"
)

// hexLineBytes is the number of bytes rendered per hex line.
const hexLineBytes = 16

// KeyKind classifies a certificate public key.
type KeyKind string

const (
	KeyRSA     KeyKind = "RSA"
	KeyEC      KeyKind = "EC"
	KeyEd25519 KeyKind = "Ed25519"
	KeyDSA     KeyKind = "DSA"
	KeyGOST    KeyKind = "GOST"
	KeyUnknown KeyKind = "Unknown"
)

// Algorithm is an object identifier with a readable name.
type Algorithm struct {
	Name        string `json:"name"`
	OID         string `json:"oid"`
	Description string `json:"description"`
}

// PublicKey holds the decoded key material of a certificate.
type PublicKey struct {
	Kind            KeyKind    `json:"kind"`
	Bits            int        `json:"bits,omitempty"`
	Modulus         []string   `json:"modulus,omitempty"`
	ExponentDecimal string     `json:"exponentDecimal,omitempty"`
	ExponentHex     string     `json:"exponentHex,omitempty"`
	Curve           *Algorithm `json:"curve,omitempty"`
	Point           []string   `json:"point,omitempty"`
	Raw             []string   `json:"raw,omitempty"`
}

// Certificate describes one peer certificate. Fields that could not be
// decoded are left empty.
type Certificate struct {
	Index              int        `json:"index"`
	FingerprintSHA256  string     `json:"fingerprintSha256"`
	PEM                string     `json:"pem"`
	Subject            string     `json:"subject,omitempty"`
	Issuer             string     `json:"issuer,omitempty"`
	Version            int        `json:"version,omitempty"`
	Serial             string     `json:"serial,omitempty"`
	NotBefore          string     `json:"notBefore,omitempty"`
	NotAfter           string     `json:"notAfter,omitempty"`
	SignatureAlgorithm *Algorithm `json:"signatureAlgorithm,omitempty"`
	PublicKeyAlgorithm *Algorithm `json:"publicKeyAlgorithm,omitempty"`
	Signature          []string   `json:"signature,omitempty"`
	PublicKey          *PublicKey `json:"publicKey,omitempty"`
}

// Session is the negotiated TLS state of a connection.
type Session struct {
	Version      string        `json:"version"`
	CipherSuite  string        `json:"cipherSuite"`
	ALPN         string        `json:"alpn,omitempty"`
	Certificates []Certificate `json:"certificates"`
}

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type subjectPublicKeyInfo struct {
	Algorithm algorithmIdentifier
	PublicKey asn1.BitString
}

type validity struct {
	NotBefore, NotAfter time.Time
}

type tbsCertificate struct {
	Raw                asn1.RawContent
	Version            int `asn1:"optional,explicit,default:0,tag:0"`
	SerialNumber       *big.Int
	SignatureAlgorithm algorithmIdentifier
	Issuer             asn1.RawValue
	Validity           validity
	Subject            asn1.RawValue
	PublicKey          subjectPublicKeyInfo
}

type certificateDER struct {
	TBSCertificate     tbsCertificate
	SignatureAlgorithm algorithmIdentifier
	SignatureValue     asn1.BitString
}

type rsaPublicKey struct {
	N *big.Int
	E *big.Int
}

// InspectState describes a completed handshake.
func InspectState(state tls.ConnectionState) Session {
	s := Session{
		Version:     tls.VersionName(state.Version),
		CipherSuite: tls.CipherSuiteName(state.CipherSuite),
		ALPN:        state.NegotiatedProtocol,
	}
	for i, cert := range state.PeerCertificates {
		s.Certificates = append(s.Certificates, InspectCertificate(i, cert.Raw))
	}
	return s
}

// InspectCertificate decodes a DER certificate without relying on
// crypto/x509, so certificates Go refuses to parse still yield their
// fingerprint, PEM and identifiers.
func InspectCertificate(index int, der []byte) Certificate {
	sum := sha256.Sum256(der)
	c := Certificate{
		Index:             index,
		FingerprintSHA256: colonHex(sum[:]),
		PEM:               string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
	}

	var cert certificateDER
	if _, err := asn1.Unmarshal(der, &cert); err != nil {
		return c
	}
	tbs := cert.TBSCertificate

	c.Version = tbs.Version + 1
	if tbs.SerialNumber != nil {
		c.Serial = colonHex(tbs.SerialNumber.Bytes())
	}
	c.Subject = distinguishedName(tbs.Subject.FullBytes)
	c.Issuer = distinguishedName(tbs.Issuer.FullBytes)
	if !tbs.Validity.NotBefore.IsZero() {
		c.NotBefore = tbs.Validity.NotBefore.UTC().Format(time.RFC3339)
		c.NotAfter = tbs.Validity.NotAfter.UTC().Format(time.RFC3339)
	}

	sig := describeOID(cert.SignatureAlgorithm.Algorithm.String())
	c.SignatureAlgorithm = &sig
	c.Signature = hexLines(cert.SignatureValue.Bytes)

	pk := describeOID(tbs.PublicKey.Algorithm.Algorithm.String())
	c.PublicKeyAlgorithm = &pk
	key := decodePublicKey(tbs.PublicKey)
	c.PublicKey = &key
	return c
}

func decodePublicKey(spki subjectPublicKeyInfo) PublicKey {
	raw := spki.PublicKey.RightAlign()
	switch spki.Algorithm.Algorithm.String() {
	case oidRSA:
		var k rsaPublicKey
		if _, err := asn1.Unmarshal(raw, &k); err != nil || k.N == nil || k.E == nil {
			return PublicKey{Kind: KeyRSA, Raw: hexLines(raw)}
		}
		return PublicKey{
			Kind:            KeyRSA,
			Bits:            k.N.BitLen(),
			Modulus:         hexLines(k.N.Bytes()),
			ExponentDecimal: k.E.String(),
			ExponentHex:     "0x" + k.E.Text(16),
		}
	case oidEC:
		key := PublicKey{Kind: KeyEC, Point: hexLines(raw)}
		var curve asn1.ObjectIdentifier
		if _, err := asn1.Unmarshal(spki.Algorithm.Parameters.FullBytes, &curve); err == nil {
			a := describeOID(curve.String())
			key.Curve = &a
			key.Bits = curveBits[curve.String()]
		}
		return key
	case oidEd25519:
		return PublicKey{Kind: KeyEd25519, Bits: 256, Raw: hexLines(raw)}
	case oidDSA:
		return PublicKey{Kind: KeyDSA, Raw: hexLines(raw)}
	case oidGOST2001, oidGOST256, oidGOST512:
		return PublicKey{Kind: KeyGOST, Raw: hexLines(raw)}
	}
	return PublicKey{Kind: KeyUnknown, Raw: hexLines(raw)}
}

func distinguishedName(der []byte) string {
	var rdn pkix.RDNSequence
	if rest, err := asn1.Unmarshal(der, &rdn); err != nil || len(rest) > 0 {
		return ""
	}
	return rdn.String()
}

func colonHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = hex.EncodeToString([]byte{v})
	}
	return strings.Join(parts, ":")
}

func hexLines(b []byte) []string {
	var lines []string
	for len(b) > 0 {
		n := min(hexLineBytes, len(b))
		lines = append(lines, colonHex(b[:n]))
		b = b[n:]
	}
	return lines
}

func decodePEM(data []byte) []*pem.Block {
	var blocks []*pem.Block
	for {
		block, rest := pem.Decode(data)
		if block == nil {
			return blocks
		}
		blocks = append(blocks, block)
		data = rest
	}
}

// Text renders the certificate as an indented block.
func (c Certificate) Text() string {
	var b strings.Builder
	line := func(indent int, format string, args ...any) {
		b.WriteString(strings.Repeat("    ", indent))
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	lines := func(indent int, values []string) {
		for _, v := range values {
			line(indent, "%s", v)
		}
	}

	line(0, "Certificate #%d:", c.Index)
	if c.Version > 0 {
		line(1, "Version: %d", c.Version)
	}
	if c.Serial != "" {
		line(1, "Serial Number: %s", c.Serial)
	}
	if c.SignatureAlgorithm != nil {
		line(1, "Signature Algorithm: %s (%s)", c.SignatureAlgorithm.Name, c.SignatureAlgorithm.OID)
	}
	if c.Issuer != "" {
		line(1, "Issuer: %s", c.Issuer)
	}
	if c.NotBefore != "" {
		line(1, "Validity")
		line(2, "Not Before: %s", c.NotBefore)
		line(2, "Not After : %s", c.NotAfter)
	}
	if c.Subject != "" {
		line(1, "Subject: %s", c.Subject)
	}
	if c.PublicKeyAlgorithm != nil {
		line(1, "Subject Public Key Info:")
		line(2, "Public Key Algorithm: %s (%s)", c.PublicKeyAlgorithm.Name, c.PublicKeyAlgorithm.OID)
	}
	if k := c.PublicKey; k != nil {
		switch k.Kind {
		case KeyRSA:
			if k.Bits > 0 {
				line(3, "Public-Key: (%d bit)", k.Bits)
				line(3, "Modulus:")
				lines(4, k.Modulus)
				line(3, "Exponent: %s (%s)", k.ExponentDecimal, k.ExponentHex)
			} else {
				lines(3, k.Raw)
			}
		case KeyEC:
			if k.Bits > 0 {
				line(3, "Public-Key: (%d bit)", k.Bits)
			}
			line(3, "pub:")
			lines(4, k.Point)
			if k.Curve != nil {
				line(3, "ASN1 OID: %s", k.Curve.Name)
				line(3, "NIST CURVE: %s", k.Curve.Description)
			}
		default:
			line(3, "%s Public-Key:", k.Kind)
			lines(4, k.Raw)
		}
	}
	if len(c.Signature) > 0 {
		line(1, "Signature Value:")
		lines(2, c.Signature)
	}
	line(1, "SHA-256 Fingerprint: %s", c.FingerprintSHA256)
	return strings.TrimRight(b.String(), "\n")
}

// Report emits the session summary and one event per certificate.
func Report(log *telemetry.Logger, s Session) {
	log.Info("tls", "handshake", fmt.Sprintf("SSL connection using %s / %s", s.Version, s.CipherSuite), telemetry.Details{
		"version":     s.Version,
		"cipherSuite": s.CipherSuite,
		"alpn":        s.ALPN,
		"peerCerts":   len(s.Certificates),
	})
	if s.ALPN != "" {
		log.Info("tls", "alpn", "ALPN: server accepted "+s.ALPN, telemetry.Details{"protocol": s.ALPN})
	} else {
		log.Debug("tls", "alpn", "ALPN: server did not agree on a protocol", nil)
	}
	for _, c := range s.Certificates {
		details := telemetry.Details{
			"index":       c.Index,
			"fingerprint": c.FingerprintSHA256,
			"pem":         c.PEM,
			"subject":     c.Subject,
			"issuer":      c.Issuer,
			"serial":      c.Serial,
			"notBefore":   c.NotBefore,
			"notAfter":    c.NotAfter,
		}
		if c.SignatureAlgorithm != nil {
			details["signatureAlgorithm"] = *c.SignatureAlgorithm
		}
		if c.PublicKeyAlgorithm != nil {
			details["publicKeyAlgorithm"] = *c.PublicKeyAlgorithm
		}
		if c.PublicKey != nil {
			details["publicKey"] = *c.PublicKey
		}
		log.Debug("tls", "certificate", c.Text(), details)
	}
}
