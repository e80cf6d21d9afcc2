package export

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"keydesk/client"
)

const (
	manifestVersion  = "1"
	manifestFileName = "manifest.yaml"
	payloadFileName  = "keys.json"

	// maxPayloadBytes caps how much of an archive entry is read on import.
	maxPayloadBytes = 32 << 20
)

// BuildConfig describes one export archive build.
type BuildConfig struct {
	Account string
	Keys    []client.Key
	Output  string
	Signer  *Signer
	Now     func() time.Time
}

// Summary is the result of verifying an export archive.
type Summary struct {
	Manifest Manifest
	Keys     []client.Key
}

// Build writes a tar.zst archive containing the key list as JSON plus a
// signed manifest describing it. The manifest records the payload sha256 so
// tampering is detectable even before the signature check.
func Build(cfg BuildConfig) (*Manifest, error) {
	if cfg.Output == "" {
		return nil, errors.New("output path required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("signer required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	payload, err := json.MarshalIndent(cfg.Keys, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal keys: %w", err)
	}
	digest := sha256.Sum256(payload)

	manifest := Manifest{
		ID:               uuid.NewString(),
		Version:          manifestVersion,
		CreatedAt:        now().UTC(),
		Account:          cfg.Account,
		KeyCount:         len(cfg.Keys),
		PayloadSHA256:    hex.EncodeToString(digest[:]),
		SigningPublicKey: cfg.Signer.PublicKeyBase64(),
	}

	signingBytes, err := manifest.SigningBytes()
	if err != nil {
		return nil, fmt.Errorf("marshal manifest for signing: %w", err)
	}
	manifest.Signature, err = cfg.Signer.Sign(signingBytes)
	if err != nil {
		return nil, fmt.Errorf("sign manifest: %w", err)
	}

	manifestBytes, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	if dir := filepath.Dir(cfg.Output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	out, err := os.Create(cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return nil, fmt.Errorf("init zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	mtime := manifest.CreatedAt
	if err := writeEntry(tw, manifestFileName, manifestBytes, mtime); err != nil {
		return nil, err
	}
	if err := writeEntry(tw, payloadFileName, payload, mtime); err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("finalize tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize zstd: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return &manifest, nil
}

// Verify opens an export archive, checks the payload digest and the manifest
// signature, and returns the decoded contents.
func Verify(path string, signer *Signer) (*Summary, error) {
	if signer == nil {
		return nil, errors.New("signer required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("init zstd reader: %w", err)
	}
	defer zr.Close()

	var manifestBytes, payload []byte
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}
		switch filepath.Clean(hdr.Name) {
		case manifestFileName:
			manifestBytes, err = readEntry(tr)
		case payloadFileName:
			payload, err = readEntry(tr)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", hdr.Name, err)
		}
	}
	if manifestBytes == nil {
		return nil, fmt.Errorf("archive missing %s", manifestFileName)
	}
	if payload == nil {
		return nil, fmt.Errorf("archive missing %s", payloadFileName)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	digest := sha256.Sum256(payload)
	if got := hex.EncodeToString(digest[:]); got != manifest.PayloadSHA256 {
		return nil, fmt.Errorf("payload digest mismatch: manifest %s, archive %s", manifest.PayloadSHA256, got)
	}

	signingBytes, err := manifest.SigningBytes()
	if err != nil {
		return nil, fmt.Errorf("marshal manifest for verification: %w", err)
	}
	if err := signer.Verify(signingBytes, manifest.Signature, manifest.SigningPublicKey); err != nil {
		return nil, fmt.Errorf("verify manifest: %w", err)
	}

	var keys []client.Key
	if err := json.Unmarshal(payload, &keys); err != nil {
		return nil, fmt.Errorf("parse keys: %w", err)
	}
	if len(keys) != manifest.KeyCount {
		return nil, fmt.Errorf("manifest key_count %d, archive has %d", manifest.KeyCount, len(keys))
	}

	return &Summary{Manifest: manifest, Keys: keys}, nil
}

func writeEntry(tw *tar.Writer, name string, data []byte, mtime time.Time) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: mtime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func readEntry(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, maxPayloadBytes+1))
	if err != nil {
		return nil, err
	}
	if n > maxPayloadBytes {
		return nil, fmt.Errorf("entry exceeds %d bytes", maxPayloadBytes)
	}
	return buf.Bytes(), nil
}
