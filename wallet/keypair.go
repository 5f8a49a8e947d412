// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package wallet

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/pkg/errors"

	"github.com/kalepool/kalepool/kale"
)

// Keypair holds a custodial account's ed25519 keys.
type Keypair struct {
	seed [32]byte
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// Generate creates a keypair from a fresh random seed.
func Generate() (*Keypair, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, errors.Wrap(err, "generate seed")
	}
	return FromRawSeed(seed), nil
}

// FromSeed rebuilds a keypair from its "S..." seed string.
func FromSeed(s string) (*Keypair, error) {
	raw, err := kale.DecodeSeed(s)
	if err != nil {
		return nil, err
	}
	return FromRawSeed(raw), nil
}

// FromRawSeed builds a keypair from a raw 32-byte ed25519 seed.
func FromRawSeed(seed [32]byte) *Keypair {
	priv := ed25519.NewKeyFromSeed(seed[:])
	return &Keypair{
		seed: seed,
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
	}
}

// Address returns the account address derived from the public key.
func (kp *Keypair) Address() kale.Address {
	var a kale.Address
	copy(a[:], kp.pub)
	return a
}

// Seed returns the strkey-encoded secret seed.
func (kp *Keypair) Seed() string {
	return kale.EncodeSeed(kp.seed)
}

// Sign signs msg with the account's private key.
func (kp *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(kp.priv, msg)
}

// Verify reports whether sig is a valid signature of msg by this account.
func (kp *Keypair) Verify(msg, sig []byte) bool {
	return ed25519.Verify(kp.pub, msg, sig)
}
