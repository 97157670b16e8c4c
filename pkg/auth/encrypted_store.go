package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize    = 32
	iterations = 100000
)

// tokenFile is the on-disk layout: a salt and an AES-GCM sealed JSON object
// mapping names to tokens
type tokenFile struct {
	Salt      string `json:"salt"`
	Encrypted string `json:"encrypted"`
	Version   int    `json:"version"`
}

// TokenFile is a decrypted, read-only view of an encrypted token file
type TokenFile struct {
	path   string
	tokens map[string]string
}

// OpenTokenFile decrypts the file at path with passphrase
func OpenTokenFile(path, passphrase string) (*TokenFile, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("token file %s: passphrase is empty", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var file tokenFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(file.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("decode token data: %w", err)
	}

	plain, err := decrypt(sealed, deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("decrypt token file: %w", err)
	}

	tokens := make(map[string]string)
	if err := json.Unmarshal(plain, &tokens); err != nil {
		return nil, fmt.Errorf("parse tokens: %w", err)
	}
	return &TokenFile{path: path, tokens: tokens}, nil
}

// Lookup returns the token stored under name
func (f *TokenFile) Lookup(name string) (string, error) {
	tok, ok := f.tokens[name]
	if !ok || tok == "" {
		return "", fmt.Errorf("%s#%s: %w", f.path, name, ErrCredentialNotFound)
	}
	return tok, nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New)
}

// decrypt opens nonce||ciphertext sealed with AES-GCM
func decrypt(sealed, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
