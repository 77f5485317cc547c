package transport

import (
	"encoding/pem"
	"net/http/httptest"
	"testing"
)

// certPEM returns the PEM encoding of a TLS test server's certificate.
func certPEM(t *testing.T, srv *httptest.Server) []byte {
	t.Helper()
	cert := srv.Certificate()
	if cert == nil {
		t.Fatal("test server has no certificate")
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}
