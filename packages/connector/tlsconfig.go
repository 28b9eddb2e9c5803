package connector

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/telemetry"
)

// BuildTLSConfig returns the client TLS configuration: the OS trust store
// plus an optional CA bundle, and the ALPN offer for protocol.
func BuildTLSConfig(protocol Protocol, insecure bool, caPath string, log *telemetry.Logger) (*tls.Config, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		log.Warn("tls", "roots", "System trust store unavailable, starting from an empty pool", nil)
		pool = x509.NewCertPool()
	}

	if caPath = strings.TrimSpace(caPath); caPath != "" {
		data, err := os.ReadFile(caPath)
		if err != nil {
			return nil, apperror.Wrap(apperror.IoError, err, fmt.Sprintf("Failed to read CA bundle %s", caPath))
		}
		added := countPEMCertificates(data)
		if added == 0 || !pool.AppendCertsFromPEM(data) {
			return nil, apperror.Newf(apperror.BadRequest, "No certificates found in CA bundle %s", caPath)
		}
		log.Info("tls", "ca_bundle", fmt.Sprintf("Loaded %d certificate(s) from %s", added, caPath), telemetry.Details{
			"path":  caPath,
			"count": added,
		})
	}

	cfg := &tls.Config{
		RootCAs:    pool,
		NextProtos: protocol.ALPN(),
		MinVersion: tls.VersionTLS12,
	}
	if insecure {
		cfg.InsecureSkipVerify = true
		log.Warn("tls", "config", "TLS certificate verification disabled", telemetry.Details{"insecure": true})
	} else {
		log.Debug("tls", "config", "TLS certificate verification enabled", telemetry.Details{"insecure": false})
	}
	log.Debug("tls", "alpn_offer", "ALPN offer: "+strings.Join(cfg.NextProtos, ", "), telemetry.Details{
		"protocols": cfg.NextProtos,
	})
	return cfg, nil
}

func countPEMCertificates(data []byte) int {
	n := 0
	for _, block := range decodePEM(data) {
		if block.Type == "CERTIFICATE" {
			if _, err := x509.ParseCertificate(block.Bytes); err == nil {
				n++
			}
		}
	}
	return n
}
