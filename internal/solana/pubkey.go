package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program and account addresses.
const (
	TokenProgramID        = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID    = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	MetaplexProgramID     = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"
	PumpFunProgramID      = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	RaydiumAMMV4ProgramID = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	WrappedSOLMint        = "So11111111111111111111111111111111111111112"
	IncineratorAddress    = "1nc1nerator11111111111111111111111111111111"
	SystemProgramID       = "11111111111111111111111111111111"
	AssociatedTokenID     = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	pdaMarker             = "ProgramDerivedAddress"
	maxSeedLength         = 32
)

// PublicKey is a 32-byte ed25519 public key or program address.
type PublicKey [32]byte

var (
	// ErrInvalidPublicKey is returned for strings that are not 32-byte base58 keys.
	ErrInvalidPublicKey = errors.New("invalid public key")
	// ErrNoViableBump is returned when no bump seed yields an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable program address bump seed")
)

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w: %q: %v", ErrInvalidPublicKey, s, err)
	}
	if len(raw) != len(pk) {
		return pk, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidPublicKey, s, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustPublicKey is ParsePublicKey for compile-time constants.
func MustPublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// IsValidAddress reports whether s is a base58 32-byte address.
func IsValidAddress(s string) bool {
	_, err := ParsePublicKey(s)
	return err == nil
}

// String returns the base58 form.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// IsZero reports whether all bytes are zero.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// IsOnCurve reports whether the bytes decode to a valid ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// CreateProgramAddress hashes seeds with the program id and rejects results
// that fall on the curve.
func CreateProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, error) {
	h := sha256.New()
	for _, s := range seeds {
		if len(s) > maxSeedLength {
			return PublicKey{}, fmt.Errorf("seed length %d exceeds %d", len(s), maxSeedLength)
		}
		h.Write(s)
	}
	h.Write(program[:])
	h.Write([]byte(pdaMarker))

	var pk PublicKey
	copy(pk[:], h.Sum(nil))
	if IsOnCurve(pk[:]) {
		return PublicKey{}, errors.New("derived address is on the curve")
	}
	return pk, nil
}

// FindProgramAddress searches bump seeds from 255 down and returns the first
// off-curve address.
func FindProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump > 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		pk, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return pk, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, ErrNoViableBump
}

// FindMetadataAddress derives the Metaplex metadata account of mint.
func FindMetadataAddress(mint PublicKey) (PublicKey, error) {
	program := MustPublicKey(MetaplexProgramID)
	pk, _, err := FindProgramAddress([][]byte{[]byte("metadata"), program[:], mint[:]}, program)
	return pk, err
}

// FindBondingCurveAddress derives the pump.fun bonding curve account of mint.
func FindBondingCurveAddress(mint PublicKey) (PublicKey, error) {
	pk, _, err := FindProgramAddress([][]byte{[]byte("bonding-curve"), mint[:]}, MustPublicKey(PumpFunProgramID))
	return pk, err
}

// FindAssociatedTokenAddress derives the associated token account of owner
// for mint under the classic token program.
func FindAssociatedTokenAddress(owner, mint PublicKey) (PublicKey, error) {
	token := MustPublicKey(TokenProgramID)
	pk, _, err := FindProgramAddress([][]byte{owner[:], token[:], mint[:]}, MustPublicKey(AssociatedTokenID))
	return pk, err
}
