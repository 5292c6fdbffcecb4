// Package keys supplies the storefront key pair and the API key shared with
// the Consent Broker from configuration.
package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wso2/bookstore-consent-api/internal/config"
	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
)

// PEM block types used for the storefront key pair
const (
	PublicKeyBlockType  = "PUBLIC KEY"
	PrivateKeyBlockType = "PRIVATE KEY"
)

// KeyPair is the storefront signing key pair
type KeyPair struct {
	PublicKey    *rsa.PublicKey
	PrivateKey   *rsa.PrivateKey
	PublicKeyPEM string
}

// Provider reads key material on every call; it holds no state beyond config
type Provider struct {
	cfg config.KeyMaterialConfig
}

// NewProvider creates a key material provider
func NewProvider(cfg config.KeyMaterialConfig) *Provider {
	return &Provider{cfg: cfg}
}

// StorefrontKeyPair returns the storefront RSA key pair.
// Fails with ErrConfigurationMissing when either half is absent.
func (p *Provider) StorefrontKeyPair() (*KeyPair, error) {
	publicValue, err := resolve(p.cfg.PublicKey, p.cfg.PublicKeyFile, "public key")
	if err != nil {
		return nil, err
	}
	privateValue, err := resolve(p.cfg.PrivateKey, p.cfg.PrivateKeyFile, "private key")
	if err != nil {
		return nil, err
	}

	publicPEM := EnsurePEMArmor(publicValue, PublicKeyBlockType)
	privatePEM := EnsurePEMArmor(privateValue, PrivateKeyBlockType)

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicPEM))
	if err != nil {
		return nil, fmt.Errorf("%w: storefront public key is not a valid RSA key: %v", serviceerror.ErrConfigurationMissing, err)
	}
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privatePEM))
	if err != nil {
		return nil, fmt.Errorf("%w: storefront private key is not a valid RSA key: %v", serviceerror.ErrConfigurationMissing, err)
	}
	if !privateKey.PublicKey.Equal(publicKey) {
		return nil, fmt.Errorf("%w: storefront public and private keys do not match", serviceerror.ErrConfigurationMissing)
	}

	return &KeyPair{
		PublicKey:    publicKey,
		PrivateKey:   privateKey,
		PublicKeyPEM: publicPEM,
	}, nil
}

// SharedAPIKey returns the secret shared with the Consent Broker
func (p *Provider) SharedAPIKey() ([]byte, error) {
	key := strings.TrimSpace(p.cfg.SharedAPIKey)
	if key == "" {
		return nil, fmt.Errorf("%w: shared API key is not configured", serviceerror.ErrConfigurationMissing)
	}
	return []byte(key), nil
}

func resolve(inline, file, name string) (string, error) {
	if strings.TrimSpace(inline) != "" {
		return inline, nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("%w: storefront %s file unreadable: %v", serviceerror.ErrConfigurationMissing, name, err)
		}
		if strings.TrimSpace(string(data)) != "" {
			return string(data), nil
		}
	}
	return "", fmt.Errorf("%w: storefront %s is not configured", serviceerror.ErrConfigurationMissing, name)
}

// EnsurePEMArmor returns value as a PEM block of blockType. Values stored as
// bare base64, with literal "\n" escapes, or already armored are all accepted.
func EnsurePEMArmor(value, blockType string) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, `\n`, "\n"))
	if strings.HasPrefix(value, "-----BEGIN ") {
		return value + "\n"
	}

	body := strings.Join(strings.Fields(value), "")
	var b strings.Builder
	b.WriteString("-----BEGIN " + blockType + "-----\n")
	for len(body) > 64 {
		b.WriteString(body[:64] + "\n")
		body = body[64:]
	}
	if body != "" {
		b.WriteString(body + "\n")
	}
	b.WriteString("-----END " + blockType + "-----\n")
	return b.String()
}

// EncodePublicKeyPEM encodes an RSA public key as a PKIX PEM block
func EncodePublicKeyPEM(key *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: PublicKeyBlockType, Bytes: der})), nil
}

// EncodePrivateKeyPEM encodes an RSA private key as a PKCS#8 PEM block
func EncodePrivateKeyPEM(key *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: PrivateKeyBlockType, Bytes: der})), nil
}
