package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// SourceConfig describes where key material comes from.
//
// Source "filesystem" reads {kid}.pem (public) for every verification kid
// and {activeKid}.key (private, PKCS#1 or PKCS#8) from Dir. Source "inline"
// takes PEM strings directly from configuration, which covers deployments
// that inject keys through their config/secret mechanism.
type SourceConfig struct {
	Source           string            `yaml:"source"` // "filesystem" or "inline"
	Dir              string            `yaml:"dir"`
	ActiveKid        string            `yaml:"activeKid"`
	VerificationKids []string          `yaml:"verificationKids"`
	InlinePublic     map[string]string `yaml:"inlinePublic"`  // kid -> public key PEM
	InlinePrivate    string            `yaml:"inlinePrivate"` // active kid's private key PEM
}

// Load reads and validates key material from the configured source.
func Load(cfg SourceConfig) (*Material, error) {
	var (
		m   *Material
		err error
	)
	switch cfg.Source {
	case "filesystem":
		m, err = loadFilesystem(cfg)
	case "inline":
		m, err = loadInline(cfg)
	default:
		return nil, fmt.Errorf("unsupported key source %q (want filesystem or inline)", cfg.Source)
	}
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid key material: %w", err)
	}
	return m, nil
}

func loadFilesystem(cfg SourceConfig) (*Material, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("key directory is required for filesystem source")
	}

	pairs := make(map[string]KeyPair, len(cfg.VerificationKids))
	for _, kid := range cfg.VerificationKids {
		pubPath := filepath.Join(cfg.Dir, kid+".pem")
		pemBytes, err := os.ReadFile(pubPath)
		if err != nil {
			return nil, fmt.Errorf("read public key for kid %q: %w", kid, err)
		}
		pub, err := parsePublicPEM(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key for kid %q: %w", kid, err)
		}
		pairs[kid] = KeyPair{Kid: kid, PublicKey: pub}
	}

	keyPath := filepath.Join(cfg.Dir, cfg.ActiveKid+".key")
	if err := checkPrivateKeyMode(keyPath); err != nil {
		return nil, err
	}
	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key for active kid %q: %w", cfg.ActiveKid, err)
	}
	priv, err := parsePrivatePEM(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key for active kid %q: %w", cfg.ActiveKid, err)
	}

	active := pairs[cfg.ActiveKid]
	active.PrivateKey = priv
	if active.PublicKey == nil {
		active.PublicKey = &priv.PublicKey
		active.Kid = cfg.ActiveKid
	}
	pairs[cfg.ActiveKid] = active

	return &Material{
		ActiveKid:        cfg.ActiveKid,
		VerificationKids: append([]string(nil), cfg.VerificationKids...),
		Pairs:            pairs,
	}, nil
}

func loadInline(cfg SourceConfig) (*Material, error) {
	pairs := make(map[string]KeyPair, len(cfg.VerificationKids))
	for _, kid := range cfg.VerificationKids {
		pemStr, ok := cfg.InlinePublic[kid]
		if !ok {
			return nil, fmt.Errorf("no inline public key for kid %q", kid)
		}
		pub, err := parsePublicPEM([]byte(pemStr))
		if err != nil {
			return nil, fmt.Errorf("parse inline public key for kid %q: %w", kid, err)
		}
		pairs[kid] = KeyPair{Kid: kid, PublicKey: pub}
	}

	if cfg.InlinePrivate == "" {
		return nil, fmt.Errorf("inline private key for active kid %q is required", cfg.ActiveKid)
	}
	priv, err := parsePrivatePEM([]byte(cfg.InlinePrivate))
	if err != nil {
		return nil, fmt.Errorf("parse inline private key: %w", err)
	}

	active := pairs[cfg.ActiveKid]
	active.PrivateKey = priv
	pairs[cfg.ActiveKid] = active

	return &Material{
		ActiveKid:        cfg.ActiveKid,
		VerificationKids: append([]string(nil), cfg.VerificationKids...),
		Pairs:            pairs,
	}, nil
}

// checkPrivateKeyMode rejects world- or group-readable private key files on
// POSIX systems.
func checkPrivateKeyMode(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat private key: %w", err)
	}
	if info.Mode().Perm()&0o044 != 0 {
		return fmt.Errorf("private key %s is readable by group or others (mode %04o)", path, info.Mode().Perm())
	}
	return nil
}

func parsePublicPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA public key")
		}
		return pub, nil
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("certificate does not carry an RSA key")
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}
}

func parsePrivatePEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		priv, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA private key")
		}
		return priv, nil
	default:
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}
}
