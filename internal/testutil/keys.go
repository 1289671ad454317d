package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"testing"
)

// ServiceAccountKey returns a service-account key file that parses like
// a real one. The private key is freshly generated and never valid
// against Google.
func ServiceAccountKey(t *testing.T, project, email string) string {
	t.Helper()

	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(pk)
	if err != nil {
		t.Fatalf("Failed to encode key: %v", err)
	}
	data, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     project,
		"private_key_id": "0123456789abcdef",
		"private_key":    string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		"client_email":   email,
		"client_id":      "100000000000000000001",
		"auth_uri":       "https://accounts.google.com/o/oauth2/auth",
		"token_uri":      "https://oauth2.googleapis.com/token",
	})
	if err != nil {
		t.Fatalf("Failed to marshal key: %v", err)
	}
	return string(data)
}

// WriteServiceAccountKey writes ServiceAccountKey to path with 0600.
func WriteServiceAccountKey(t *testing.T, path, project, email string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(ServiceAccountKey(t, project, email)), 0o600); err != nil {
		t.Fatalf("Failed to write key %s: %v", path, err)
	}
}

// AuthorizedUserKey is a gcloud user credential file without a project.
const AuthorizedUserKey = `{
  "type": "authorized_user",
  "client_id": "client.apps.googleusercontent.com",
  "client_secret": "not-a-secret",
  "refresh_token": "refresh"
}`
