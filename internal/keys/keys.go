package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// KeySize is the fixed host key size. Changing it invalidates every public
// key already distributed to site operators, so it is not configurable.
const KeySize = 2048

const (
	privateKeyFile = "private.pem"
	publicKeyFile  = "public.pem"
)

// Generate creates a new host RSA key pair.
func Generate() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeySize)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key pair: %w", err)
	}
	return key, nil
}

// Save writes the key pair as PEM files under dir. The public key is the
// half distributed out-of-band to site operators.
func Save(dir string, key *rsa.PrivateKey) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(filepath.Join(dir, privateKeyFile), privPEM, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	})
	if err := os.WriteFile(filepath.Join(dir, publicKeyFile), pubPEM, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}

// Load reads a previously saved key pair from dir.
func Load(dir string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(filepath.Join(dir, privateKeyFile))
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return nil, fmt.Errorf("no RSA private key PEM block in %s", privateKeyFile)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if key.Size()*8 != KeySize {
		return nil, fmt.Errorf("host key is %d bits, want %d", key.Size()*8, KeySize)
	}
	return key, nil
}

// LoadOrCreate loads the host key pair from dir, generating and persisting
// a fresh one on first run. The second return reports whether a new pair
// was generated.
func LoadOrCreate(dir string) (*rsa.PrivateKey, bool, error) {
	if _, err := os.Stat(filepath.Join(dir, privateKeyFile)); err == nil {
		key, err := Load(dir)
		return key, false, err
	} else if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("stat key directory: %w", err)
	}

	key, err := Generate()
	if err != nil {
		return nil, false, err
	}
	if err := Save(dir, key); err != nil {
		return nil, false, err
	}
	return key, true, nil
}

// TokenStore maps site identifiers to their shared-secret tokens. It is
// populated once at startup and read-only afterwards, so lookups need no
// locking. Tokens are secret: the store never exposes them except through
// Token, and nothing here may log them.
type TokenStore struct {
	tokens map[string]string
}

// NewTokenStore builds a store from the configured site map.
func NewTokenStore(tokens map[string]string) (*TokenStore, error) {
	m := make(map[string]string, len(tokens))
	for site, token := range tokens {
		if site == "" {
			return nil, fmt.Errorf("site identifier must not be empty")
		}
		if token == "" {
			return nil, fmt.Errorf("site %q has an empty token", site)
		}
		m[site] = token
	}
	return &TokenStore{tokens: m}, nil
}

// Token returns the secret for a site identifier.
func (s *TokenStore) Token(site string) (string, bool) {
	token, ok := s.tokens[site]
	return token, ok
}

// Sites returns the registered site identifiers, sorted, for status output.
func (s *TokenStore) Sites() []string {
	sites := make([]string, 0, len(s.tokens))
	for site := range s.tokens {
		sites = append(sites, site)
	}
	sort.Strings(sites)
	return sites
}

// Len reports how many sites are registered.
func (s *TokenStore) Len() int {
	return len(s.tokens)
}
