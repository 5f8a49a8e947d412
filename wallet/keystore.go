// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"
)

// Scrypt parameters for the seal key derivation. Sealing happens once per
// custodial wallet, opening once per signing session, so the cost leans
// toward the expensive side.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1

	sealVersion byte = 1
	saltLen          = 16
)

// Keystore seals custodial secret seeds for storage at rest. Each Seal
// derives a one-off AES-256-GCM key from the master key and a random salt,
// so two seals of the same seed never produce the same ciphertext.
type Keystore struct {
	master []byte
}

// NewKeystore creates a keystore around the shared master key.
func NewKeystore(masterKey string) (*Keystore, error) {
	if len(masterKey) < 16 {
		return nil, errors.New("keystore master key must be at least 16 bytes")
	}
	return &Keystore{master: []byte(masterKey)}, nil
}

// Seal encrypts the keypair's seed. The output is a self-describing base64
// blob: version || salt || nonce || ciphertext.
func (ks *Keystore) Seal(kp *Keypair) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(err, "generate salt")
	}

	gcm, err := ks.cipherFor(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "generate nonce")
	}

	blob := make([]byte, 0, 1+saltLen+len(nonce)+len(kp.seed)+gcm.Overhead())
	blob = append(blob, sealVersion)
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = gcm.Seal(blob, nonce, kp.seed[:], nil)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Open decrypts a sealed seed back into a keypair.
func (ks *Keystore) Open(sealed string) (*Keypair, error) {
	blob, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, errors.Wrap(err, "decode sealed seed")
	}
	if len(blob) < 1+saltLen {
		return nil, errors.New("sealed seed too short")
	}
	if blob[0] != sealVersion {
		return nil, errors.Errorf("unsupported seal version %d", blob[0])
	}

	salt, rest := blob[1:1+saltLen], blob[1+saltLen:]
	gcm, err := ks.cipherFor(salt)
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize() {
		return nil, errors.New("sealed seed too short")
	}

	nonce, ct := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	seed, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, errors.New("sealed seed corrupt or wrong master key")
	}
	if len(seed) != 32 {
		return nil, errors.New("sealed seed has unexpected length")
	}

	var raw [32]byte
	copy(raw[:], seed)
	return FromRawSeed(raw), nil
}

func (ks *Keystore) cipherFor(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(ks.master, salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, errors.Wrap(err, "derive seal key")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "init cipher")
	}
	return cipher.NewGCM(block)
}
