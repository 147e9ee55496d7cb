// Package vault encrypts sensitive device descriptors at rest. The key is
// process-wide and read-only after first acquisition: environment variable
// first, then the local key file, otherwise a newly generated key persisted
// with an exclusive create so concurrent processes never clobber each other.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/agentsea/taskara/internal/config"
)

const keySize = 32

var (
	keyOnce sync.Once
	key     []byte
	keyErr  error
)

func keyFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".agentsea", "keys", "taskara_encryption_key"), nil
}

func loadKey() ([]byte, error) {
	if raw := os.Getenv(config.EnvEncryptionKey); raw != "" {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil || len(decoded) != keySize {
			return nil, fmt.Errorf("%s must be a base64 encoded %d byte key", config.EnvEncryptionKey, keySize)
		}
		return decoded, nil
	}

	path, err := keyFilePath()
	if err != nil {
		return nil, err
	}
	if data, err := os.ReadFile(path); err == nil {
		decoded, err := base64.StdEncoding.DecodeString(string(data))
		if err != nil || len(decoded) != keySize {
			return nil, fmt.Errorf("key file %s is corrupt", path)
		}
		return decoded, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	fresh := make([]byte, keySize)
	if _, err := rand.Read(fresh); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			// Another process won the race; read its key.
			data, rerr := os.ReadFile(path)
			if rerr != nil {
				return nil, rerr
			}
			decoded, derr := base64.StdEncoding.DecodeString(string(data))
			if derr != nil || len(decoded) != keySize {
				return nil, fmt.Errorf("key file %s is corrupt", path)
			}
			return decoded, nil
		}
		return nil, err
	}
	defer f.Close()
	if _, err := f.WriteString(base64.StdEncoding.EncodeToString(fresh)); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Key returns the process-wide encryption key, acquiring it on first use.
func Key() ([]byte, error) {
	keyOnce.Do(func() {
		key, keyErr = loadKey()
	})
	return key, keyErr
}

func gcm() (cipher.AEAD, error) {
	k, err := Key()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptJSON serialises value to canonical JSON and returns a base64
// wrapper of the ciphertext. A nil value yields the empty string.
func EncryptJSON(value any) (string, error) {
	if value == nil {
		return "", nil
	}
	plain, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	aead, err := gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptJSON reverses EncryptJSON into out. An empty ciphertext is a no-op
// and leaves out untouched.
func DecryptJSON(encoded string, out any) error {
	if encoded == "" {
		return nil
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return err
	}
	aead, err := gcm()
	if err != nil {
		return err
	}
	if len(sealed) < aead.NonceSize() {
		return fmt.Errorf("ciphertext too short")
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(plain, out)
}
