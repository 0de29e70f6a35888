// Package remote lets one kickguard instance drive another over QUIC. The
// server exposes the guard's MCP tools (scan, verified list); the client
// calls them and decodes the answers into guard response types.
//
// A session is one bidirectional stream opened by the client. The stream
// starts with Preamble and then carries newline-delimited JSON-RPC.
package remote

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/quic-go/quic-go"
)

const (
	// ALPN is negotiated during the TLS handshake; a peer without it fails
	// the handshake.
	ALPN = "kickguard-mcp/1"
	// Preamble opens every session stream.
	Preamble = "KGM1"
)

// Close codes sent to the peer.
const (
	codeOK          quic.ApplicationErrorCode = 0x0
	codeBadPreamble quic.ApplicationErrorCode = 0x1
	codeBusy        quic.ApplicationErrorCode = 0x2
	codeShutdown    quic.ApplicationErrorCode = 0x3
)

// ErrBadPreamble is returned when a stream does not start with Preamble.
var ErrBadPreamble = errors.New("remote: bad session preamble")

func writePreamble(w io.Writer) error {
	if _, err := io.WriteString(w, Preamble); err != nil {
		return fmt.Errorf("remote: write preamble: %w", err)
	}
	return nil
}

func readPreamble(r io.Reader) error {
	buf := make([]byte, len(Preamble))
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("remote: read preamble: %w", err)
	}
	if string(buf) != Preamble {
		return fmt.Errorf("%w: %q", ErrBadPreamble, buf)
	}
	return nil
}

// quicConfig is shared by both ends. 0-RTT stays off: a replayed
// save_verified is not harmless to the audit trail of verify events.
func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  5 * time.Minute,
		KeepAlivePeriod: 30 * time.Second,
		Allow0RTT:       false,
	}
}

// LoadServerTLS reads a certificate pair for the server.
func LoadServerTLS(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("remote: load key pair: %w", err)
	}
	return serverTLS(cert), nil
}

// SelfSignedTLS makes a throwaway ECDSA certificate for localhost.
// Clients must dial it with ClientTLS(true).
func SelfSignedTLS() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("remote: generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, fmt.Errorf("remote: serial: %w", err)
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "kickguard"},
		DNSNames:     []string{"localhost"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.AddDate(1, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("remote: create certificate: %w", err)
	}
	return serverTLS(tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}), nil
}

func serverTLS(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}
}

// ClientTLS negotiates ALPN. insecure skips certificate verification, for
// self-signed servers only.
func ClientTLS(insecure bool) *tls.Config {
	return &tls.Config{
		NextProtos:         []string{ALPN},
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: insecure,
	}
}
