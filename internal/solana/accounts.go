package solana

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// Account layout sizes.
const (
	MintAccountSize         = 82
	TokenAccountSize        = 165
	metadataKeyV1           = 4
	bondingCurveMinSize     = 8 + 5*8 + 1
	maxMetadataNameLength   = 100
	maxMetadataSymbolLength = 20
)

// ErrShortAccountData is returned when account data is smaller than its layout.
var ErrShortAccountData = errors.New("account data too short")

// DecodeAccountData decodes the base64 payload of AccountInfo.Data.
func DecodeAccountData(data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return raw, nil
}

// Mint is a decoded SPL token mint.
type Mint struct {
	MintAuthority   string // "" when renounced
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority string // "" when renounced
}

// ParseMint decodes SPL Token mint data. Token-2022 mints share the same
// 82-byte prefix; trailing extension data is ignored.
//
// Layout: mintAuthority COption<Pubkey> (4+32) | supply u64 | decimals u8 |
// isInitialized bool | freezeAuthority COption<Pubkey> (4+32).
func ParseMint(data []byte) (Mint, error) {
	if len(data) < MintAccountSize {
		return Mint{}, fmt.Errorf("mint: %w: %d bytes", ErrShortAccountData, len(data))
	}
	return Mint{
		MintAuthority:   readCOptionKey(data[0:36]),
		Supply:          binary.LittleEndian.Uint64(data[36:44]),
		Decimals:        data[44],
		IsInitialized:   data[45] != 0,
		FreezeAuthority: readCOptionKey(data[46:82]),
	}, nil
}

func readCOptionKey(b []byte) string {
	if binary.LittleEndian.Uint32(b[0:4]) == 0 {
		return ""
	}
	return base58.Encode(b[4:36])
}

// TokenAccount is a decoded SPL token account.
type TokenAccount struct {
	Mint   string
	Owner  string
	Amount uint64
}

// ParseTokenAccount decodes mint(32) | owner(32) | amount(8) | ...
func ParseTokenAccount(data []byte) (TokenAccount, error) {
	if len(data) < 72 {
		return TokenAccount{}, fmt.Errorf("token account: %w: %d bytes", ErrShortAccountData, len(data))
	}
	return TokenAccount{
		Mint:   base58.Encode(data[0:32]),
		Owner:  base58.Encode(data[32:64]),
		Amount: binary.LittleEndian.Uint64(data[64:72]),
	}, nil
}

// Metadata holds the display fields of a Metaplex metadata account.
type Metadata struct {
	UpdateAuthority string
	Mint            string
	Name            string
	Symbol          string
	URI             string
}

// ParseMetadata decodes key u8 | updateAuthority | mint | name | symbol | uri,
// with borsh strings (u32 length + bytes) padded by NULs.
func ParseMetadata(data []byte) (Metadata, error) {
	if len(data) < 65 {
		return Metadata{}, fmt.Errorf("metadata: %w: %d bytes", ErrShortAccountData, len(data))
	}
	if data[0] != metadataKeyV1 {
		return Metadata{}, fmt.Errorf("metadata: unexpected key %d", data[0])
	}
	md := Metadata{
		UpdateAuthority: base58.Encode(data[1:33]),
		Mint:            base58.Encode(data[33:65]),
	}

	off := 65
	var err error
	if md.Name, off, err = readBorshString(data, off, maxMetadataNameLength); err != nil {
		return md, fmt.Errorf("metadata name: %w", err)
	}
	if md.Symbol, off, err = readBorshString(data, off, maxMetadataSymbolLength); err != nil {
		return md, fmt.Errorf("metadata symbol: %w", err)
	}
	// uri is optional for display purposes
	md.URI, _, _ = readBorshString(data, off, 256)
	return md, nil
}

func readBorshString(data []byte, off, limit int) (string, int, error) {
	if off+4 > len(data) {
		return "", off, ErrShortAccountData
	}
	n := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if n > limit || off+n > len(data) {
		return "", off, fmt.Errorf("string length %d out of range", n)
	}
	return strings.TrimRight(string(data[off:off+n]), "\x00"), off + n, nil
}

// BondingCurve is the pump.fun bonding curve account state.
type BondingCurve struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64 // lamports
	TokenTotalSupply     uint64
	Complete             bool
}

// ParseBondingCurve decodes an 8-byte discriminator followed by five u64
// reserves and the completion flag.
func ParseBondingCurve(data []byte) (BondingCurve, error) {
	if len(data) < bondingCurveMinSize {
		return BondingCurve{}, fmt.Errorf("bonding curve: %w: %d bytes", ErrShortAccountData, len(data))
	}
	u := func(i int) uint64 { return binary.LittleEndian.Uint64(data[8+8*i:]) }
	return BondingCurve{
		VirtualTokenReserves: u(0),
		VirtualSolReserves:   u(1),
		RealTokenReserves:    u(2),
		RealSolReserves:      u(3),
		TokenTotalSupply:     u(4),
		Complete:             data[48] != 0,
	}, nil
}
