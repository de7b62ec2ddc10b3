package security

import (
    "crypto/rand"
    "crypto/rsa"
    "crypto/x509"
    "crypto/x509/pkix"
    "encoding/pem"
    "math/big"
    "os"
    "testing"
    "time"
)

func generateSelfSignedCert(t *testing.T, commonName string) (certFile, keyFile string) {
    // Generate private key
    privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
    if err != nil {
        t.Fatalf("Failed to generate private key: %v", err)
    }

    // Create certificate template
    template := x509.Certificate{
        SerialNumber: big.NewInt(1),
        Subject: pkix.Name{
            CommonName: commonName,
        },
        NotBefore: time.Now(),
        NotAfter:  time.Now().Add(time.Hour),
        KeyUsage:  x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
    }

    // Create self-signed certificate
    certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
    if err != nil {
        t.Fatalf("Failed to create certificate: %v", err)
    }

    // Write certificate to file
    tmpDir := t.TempDir()
    certFile = tmpDir + "/test.crt"
    keyFile = tmpDir + "/test.key"

    // Write certificate as PEM
    certPEM := pem.EncodeToMemory(&pem.Block{
        Type:  "CERTIFICATE",
        Bytes: certDER,
    })
    if err := os.WriteFile(certFile, certPEM, 0600); err != nil {
        t.Fatalf("Failed to write certificate: %v", err)
    }

    // Write private key as PEM
    keyDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
    if err != nil {
        t.Fatalf("Failed to marshal private key: %v", err)
    }
    keyPEM := pem.EncodeToMemory(&pem.Block{
        Type:  "PRIVATE KEY",
        Bytes: keyDER,
    })
    if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
        t.Fatalf("Failed to write key: %v", err)
    }

    return certFile, keyFile
}

func TestLoadServerTLSConfig(t *testing.T) {
    certFile, keyFile := generateSelfSignedCert(t, "pnl-api")

    cfg, err := LoadServerTLSConfig(TLSConfig{CertFile: certFile, KeyFile: keyFile})
    if err != nil {
        t.Fatalf("LoadServerTLSConfig failed: %v", err)
    }

    if cfg.MinVersion != 0x0304 { // TLS 1.3
        t.Errorf("Expected TLS 1.3 minimum, got %x", cfg.MinVersion)
    }
    if len(cfg.Certificates) != 1 {
        t.Errorf("Expected 1 certificate, got %d", len(cfg.Certificates))
    }
}

func TestLoadServerTLSConfigWithClientCA(t *testing.T) {
    certFile, keyFile := generateSelfSignedCert(t, "pnl-api")
    caFile, _ := generateSelfSignedCert(t, "pnl-ca")

    cfg, err := LoadServerTLSConfig(TLSConfig{
        CertFile:          certFile,
        KeyFile:           keyFile,
        CAFile:            caFile,
        RequireClientAuth: true,
    })
    if err != nil {
        t.Fatalf("LoadServerTLSConfig failed: %v", err)
    }

    if cfg.ClientCAs == nil {
        t.Error("Expected client CA pool to be set")
    }
}

func TestLoadServerTLSConfigMissingFiles(t *testing.T) {
    _, err := LoadServerTLSConfig(TLSConfig{
        CertFile: "/nonexistent/server.crt",
        KeyFile:  "/nonexistent/server.key",
    })
    if err == nil {
        t.Error("LoadServerTLSConfig should fail with missing files")
    }
}

func TestVerifyTLSFilesExists(t *testing.T) {
    certFile, keyFile := generateSelfSignedCert(t, "pnl-api")
    tmpDir := t.TempDir()
    caFile := tmpDir + "/ca.crt"

    // Create empty CA file
    if err := os.WriteFile(caFile, []byte("test"), 0600); err != nil {
        t.Fatalf("Failed to create CA file: %v", err)
    }

    err := VerifyTLSFiles(certFile, keyFile, caFile)
    if err != nil {
        t.Errorf("VerifyTLSFiles should not fail with existing files: %v", err)
    }
}

func TestVerifyTLSFilesMissing(t *testing.T) {
    err := VerifyTLSFiles("/nonexistent/cert.crt", "/nonexistent/key.key", "/nonexistent/ca.crt")
    if err == nil {
        t.Error("VerifyTLSFiles should fail with missing files")
    }
}

func TestVerifyTLSFilesEmpty(t *testing.T) {
    err := VerifyTLSFiles("", "", "")
    if err == nil {
        t.Error("VerifyTLSFiles should fail with empty paths")
    }
}
