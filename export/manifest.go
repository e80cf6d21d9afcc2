package export

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest is the signed metadata written into every key export archive.
type Manifest struct {
	ID               string    `yaml:"id"`
	Version          string    `yaml:"version"`
	CreatedAt        time.Time `yaml:"created_at"`
	Account          string    `yaml:"account,omitempty"`
	KeyCount         int       `yaml:"key_count"`
	PayloadSHA256    string    `yaml:"payload_sha256"`
	SigningPublicKey string    `yaml:"signing_public_key,omitempty"`
	Signature        string    `yaml:"signature,omitempty"`
}

// SigningBytes marshals the manifest without its signature for
// signing/verification.
func (m Manifest) SigningBytes() ([]byte, error) {
	clone := m
	clone.Signature = ""
	return yaml.Marshal(clone)
}
