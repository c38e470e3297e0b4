package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Signer signs V4 URL payloads for a service account.
type Signer interface {
	Email() string
	SignBytes(ctx context.Context, payload []byte) ([]byte, error)
}

// ServiceAccountSigner signs with a service account's private key.
type ServiceAccountSigner struct {
	email string
	key   *rsa.PrivateKey
}

// NewServiceAccountSigner builds a signer from an email and an RSA key.
func NewServiceAccountSigner(email string, key *rsa.PrivateKey) (*ServiceAccountSigner, error) {
	email = strings.TrimSpace(email)
	if email == "" || key == nil {
		return nil, errors.New("storage: signer needs an email and a private key")
	}
	return &ServiceAccountSigner{email: email, key: key}, nil
}

// NewServiceAccountSignerFromFile reads a service account JSON key file.
func NewServiceAccountSignerFromFile(path string) (*ServiceAccountSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read service account file: %w", err)
	}
	var file struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("storage: decode service account json: %w", err)
	}
	key, err := parseRSAPrivateKey(file.PrivateKey)
	if err != nil {
		return nil, err
	}
	return NewServiceAccountSigner(file.ClientEmail, key)
}

// Email implements Signer.
func (s *ServiceAccountSigner) Email() string { return s.email }

// SignBytes implements Signer with RSASSA-PKCS1-v1_5 over SHA-256.
func (s *ServiceAccountSigner) SignBytes(ctx context.Context, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("storage: sign payload: %w", err)
	}
	return sig, nil
}

func parseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(pemData)))
	if block == nil {
		return nil, errors.New("storage: private key is not PEM encoded")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("storage: private key is not RSA")
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("storage: parse private key: %w", err)
	}
	return key, nil
}
