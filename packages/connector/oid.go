package connector

// oidEntry names an object identifier found in certificates.
type oidEntry struct {
	Name        string
	Description string
}

var oidNames = map[string]oidEntry{
	// signature algorithms
	"1.2.840.113549.1.1.2":   {"md2WithRSAEncryption", "MD2 with RSA"},
	"1.2.840.113549.1.1.4":   {"md5WithRSAEncryption", "MD5 with RSA"},
	"1.2.840.113549.1.1.5":   {"sha1WithRSAEncryption", "SHA-1 with RSA"},
	"1.2.840.113549.1.1.10":  {"rsassaPss", "RSASSA-PSS"},
	"1.2.840.113549.1.1.11":  {"sha256WithRSAEncryption", "SHA-256 with RSA"},
	"1.2.840.113549.1.1.12":  {"sha384WithRSAEncryption", "SHA-384 with RSA"},
	"1.2.840.113549.1.1.13":  {"sha512WithRSAEncryption", "SHA-512 with RSA"},
	"1.2.840.113549.1.1.14":  {"sha224WithRSAEncryption", "SHA-224 with RSA"},
	"1.2.840.10045.4.1":      {"ecdsa-with-SHA1", "ECDSA with SHA-1"},
	"1.2.840.10045.4.3.1":    {"ecdsa-with-SHA224", "ECDSA with SHA-224"},
	"1.2.840.10045.4.3.2":    {"ecdsa-with-SHA256", "ECDSA with SHA-256"},
	"1.2.840.10045.4.3.3":    {"ecdsa-with-SHA384", "ECDSA with SHA-384"},
	"1.2.840.10045.4.3.4":    {"ecdsa-with-SHA512", "ECDSA with SHA-512"},
	"1.2.840.10040.4.3":      {"dsa-with-sha1", "DSA with SHA-1"},
	"2.16.840.1.101.3.4.3.2": {"dsa-with-sha256", "DSA with SHA-256"},
	"1.2.643.2.2.3":          {"gostR3411-94-with-gostR3410-2001", "GOST R 34.11-94 with GOST R 34.10-2001"},
	"1.2.643.7.1.1.3.2":      {"gostR3411-2012-256-with-gostR3410-2012-256", "GOST R 34.11-2012 (256) with GOST R 34.10-2012 (256)"},
	"1.2.643.7.1.1.3.3":      {"gostR3411-2012-512-with-gostR3410-2012-512", "GOST R 34.11-2012 (512) with GOST R 34.10-2012 (512)"},

	// public key algorithms
	"1.2.840.113549.1.1.1": {"rsaEncryption", "RSA"},
	"1.2.840.10045.2.1":    {"id-ecPublicKey", "Elliptic curve public key"},
	"1.3.101.112":          {"Ed25519", "Edwards-curve Ed25519"},
	"1.3.101.113":          {"Ed448", "Edwards-curve Ed448"},
	"1.3.101.110":          {"X25519", "Curve25519 key agreement"},
	"1.2.840.10040.4.1":    {"dsa", "DSA"},
	"1.2.643.2.2.19":       {"gostR3410-2001", "GOST R 34.10-2001"},
	"1.2.643.7.1.1.1.1":    {"gostR3410-2012-256", "GOST R 34.10-2012 (256 bit)"},
	"1.2.643.7.1.1.1.2":    {"gostR3410-2012-512", "GOST R 34.10-2012 (512 bit)"},

	// named curves
	"1.2.840.10045.3.1.7":   {"prime256v1", "NIST P-256"},
	"1.3.132.0.34":          {"secp384r1", "NIST P-384"},
	"1.3.132.0.35":          {"secp521r1", "NIST P-521"},
	"1.3.132.0.33":          {"secp224r1", "NIST P-224"},
	"1.3.132.0.10":          {"secp256k1", "SECG secp256k1"},
	"1.2.840.10045.3.1.1":   {"prime192v1", "NIST P-192"},
	"1.3.36.3.3.2.8.1.1.7":  {"brainpoolP256r1", "Brainpool P-256 r1"},
	"1.3.36.3.3.2.8.1.1.11": {"brainpoolP384r1", "Brainpool P-384 r1"},
	"1.3.36.3.3.2.8.1.1.13": {"brainpoolP512r1", "Brainpool P-512 r1"},
}

var curveBits = map[string]int{
	"1.2.840.10045.3.1.7":   256,
	"1.3.132.0.34":          384,
	"1.3.132.0.35":          521,
	"1.3.132.0.33":          224,
	"1.3.132.0.10":          256,
	"1.2.840.10045.3.1.1":   192,
	"1.3.36.3.3.2.8.1.1.7":  256,
	"1.3.36.3.3.2.8.1.1.11": 384,
	"1.3.36.3.3.2.8.1.1.13": 512,
}

const (
	oidRSA      = "1.2.840.113549.1.1.1"
	oidEC       = "1.2.840.10045.2.1"
	oidEd25519  = "1.3.101.112"
	oidDSA      = "1.2.840.10040.4.1"
	oidGOST2001 = "1.2.643.2.2.19"
	oidGOST256  = "1.2.643.7.1.1.1.1"
	oidGOST512  = "1.2.643.7.1.1.1.2"
)

func describeOID(oid string) Algorithm {
	if e, ok := oidNames[oid]; ok {
		return Algorithm{Name: e.Name, OID: oid, Description: e.Description}
	}
	return Algorithm{Name: oid, OID: oid, Description: "Unknown algorithm"}
}
