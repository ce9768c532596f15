// Package securestore keeps the auth tokens in an encrypted file, separate
// from the general key-value store. The file is sealed with AES-GCM under a
// key derived from a device passphrase via argon2id.
package securestore

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/bsvalues/terrafield/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
)

// Tokens is the credential pair persisted between sessions.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// envelope is the on-disk layout of the sealed token file.
type envelope struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// FileStore seals Tokens into a single file with 0600 permissions.
type FileStore struct {
	path       string
	passphrase []byte
}

// NewFileStore returns a store writing to path. The passphrase is retained
// for key derivation; callers should wipe their own copy.
func NewFileStore(path string, passphrase []byte) *FileStore {
	p := make([]byte, len(passphrase))
	copy(p, passphrase)
	return &FileStore{path: path, passphrase: p}
}

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

// Save seals the tokens and writes them to disk, replacing any previous
// content. A fresh salt and nonce are generated on every write.
func (s *FileStore) Save(tokens Tokens) error {
	plaintext, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}

	salt := common.RandBytes(saltSize)
	nonce := common.RandBytes(nonceSize)

	key := deriveKey(s.passphrase, salt)
	defer common.WipeBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("init gcm: %w", err)
	}

	env := envelope{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aesgcm.Seal(nil, nonce, plaintext, nil),
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", common.ErrPersistence)
	}
	return nil
}

// Load reads and unseals the tokens. Returns common.ErrNotFound when no
// token file exists yet.
func (s *FileStore) Load() (Tokens, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Tokens{}, fmt.Errorf("token file: %w", common.ErrNotFound)
	}
	if err != nil {
		return Tokens{}, fmt.Errorf("read token file: %w", common.ErrPersistence)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Tokens{}, fmt.Errorf("parse token file: %w", common.ErrPersistence)
	}

	key := deriveKey(s.passphrase, env.Salt)
	defer common.WipeBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return Tokens{}, fmt.Errorf("init cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return Tokens{}, fmt.Errorf("init gcm: %w", err)
	}

	plaintext, err := aesgcm.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return Tokens{}, fmt.Errorf("unseal token file: %w", common.ErrPersistence)
	}

	var tokens Tokens
	if err := json.Unmarshal(plaintext, &tokens); err != nil {
		return Tokens{}, fmt.Errorf("parse tokens: %w", common.ErrPersistence)
	}
	return tokens, nil
}

// Clear removes the token file. Clearing an absent file is not an error.
func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", common.ErrPersistence)
	}
	return nil
}
