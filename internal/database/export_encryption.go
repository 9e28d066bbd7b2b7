package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters, fixed at the recommended interactive settings and
// recorded in the envelope so old exports stay readable if they change.
const (
	kdfName    = "argon2id"
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
	kdfKeyLen  = 32
	kdfSaltLen = 16
)

type encryptedExport struct {
	Encrypted bool   `json:"encrypted"`
	KDF       string `json:"kdf"`
	Salt      string `json:"salt"`
	Time      uint32 `json:"time"`
	Memory    uint32 `json:"memory"`
	Threads   uint8  `json:"threads"`
	Nonce     string `json:"nonce"`
	Data      string `json:"data"`
}

func deriveKey(passphrase string, salt []byte, time, memory uint32, threads uint8) []byte {
	return argon2.IDKey([]byte(passphrase), salt, time, memory, threads, kdfKeyLen)
}

func encryptData(payload []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, kdfSaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	key := deriveKey(passphrase, salt, kdfTime, kdfMemory, kdfThreads)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, payload, nil)
	wrapped := encryptedExport{
		Encrypted: true,
		KDF:       kdfName,
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Time:      kdfTime,
		Memory:    kdfMemory,
		Threads:   kdfThreads,
		Nonce:     base64.StdEncoding.EncodeToString(nonce),
		Data:      base64.StdEncoding.EncodeToString(ciphertext),
	}
	return json.Marshal(wrapped)
}

func decryptData(payload []byte, passphrase string) ([]byte, error) {
	var wrapped encryptedExport
	if err := json.Unmarshal(payload, &wrapped); err != nil {
		return nil, err
	}
	if !wrapped.Encrypted {
		return payload, nil
	}
	if wrapped.KDF != kdfName {
		return nil, invalidf("unknown key derivation %q", wrapped.KDF)
	}
	salt, err := base64.StdEncoding.DecodeString(wrapped.Salt)
	if err != nil {
		return nil, err
	}
	nonce, err := base64.StdEncoding.DecodeString(wrapped.Nonce)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(wrapped.Data)
	if err != nil {
		return nil, err
	}

	key := deriveKey(passphrase, salt, wrapped.Time, wrapped.Memory, wrapped.Threads)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, ErrWrongPassphrase
	}
	plain, err := gcm.Open(nil, nonce, data, nil)
	if err != nil {
		// GCM cannot tell a bad key from corrupt data; treat both as a
		// passphrase failure.
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}

// IsEncrypted reports whether an export payload carries the encryption
// envelope.
func IsEncrypted(payload []byte) bool {
	var probe struct {
		Encrypted bool `json:"encrypted"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	return probe.Encrypted
}

// DecryptVault unseals an encrypted export. Plain payloads pass through.
func DecryptVault(payload []byte, passphrase string) ([]byte, error) {
	return decryptData(payload, passphrase)
}
