package keyring

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// NewRawRSAKeyringFromPEM builds a raw RSA keyring from PEM-encoded key
// material. Either PEM string may be empty to build an encrypt-only or
// decrypt-only keyring.
func NewRawRSAKeyringFromPEM(providerID, keyName, publicKeyPEM, privateKeyPEM string, padding RSAPaddingMode) (*RawRSAKeyring, error) {
	var (
		publicKey  *rsa.PublicKey
		privateKey *rsa.PrivateKey
		err        error
	)

	if publicKeyPEM != "" {
		publicKey, err = parseRSAPublicKeyFromPEM(publicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
	}
	if privateKeyPEM != "" {
		privateKey, err = parseRSAPrivateKeyFromPEM(privateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		if publicKey == nil {
			publicKey = &privateKey.PublicKey
		}
	}

	return NewRawRSAKeyring(providerID, keyName, publicKey, privateKey, padding)
}

// parseRSAPublicKeyFromPEM parses an RSA public key in PKIX or PKCS#1 format.
func parseRSAPublicKeyFromPEM(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	switch block.Type {
	case "PUBLIC KEY":
		pubKeyInterface, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKIX public key: %w", err)
		}
		publicKey, ok := pubKeyInterface.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA public key")
		}
		return publicKey, nil
	case "RSA PUBLIC KEY":
		publicKey, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS1 public key: %w", err)
		}
		return publicKey, nil
	default:
		return nil, fmt.Errorf("invalid PEM block type: %s", block.Type)
	}
}

// parseRSAPrivateKeyFromPEM parses an RSA private key in PKCS#1 or PKCS#8
// format.
func parseRSAPrivateKeyFromPEM(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS1 private key: %w", err)
		}
		return privateKey, nil
	case "PRIVATE KEY":
		privKeyInterface, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS8 private key: %w", err)
		}
		privateKey, ok := privKeyInterface.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA private key")
		}
		return privateKey, nil
	default:
		return nil, fmt.Errorf("invalid PEM block type: %s", block.Type)
	}
}
