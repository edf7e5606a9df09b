package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// ResolutionMessage is the text an oracle signs to resolve a market.
func ResolutionMessage(marketID string, result domain.Side) string {
	return fmt.Sprintf("marketledger:resolve:%s:%s", marketID, result)
}

// OracleSigner signs resolution messages with a secp256k1 key using the
// EIP-191 personal_sign scheme.
type OracleSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewOracleSigner parses a hex private key, with or without 0x.
func NewOracleSigner(privateKeyHex string) (*OracleSigner, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid oracle key: %w", err)
	}
	return &OracleSigner{key: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}, nil
}

// Address returns the signer's address.
func (s *OracleSigner) Address() common.Address {
	return s.address
}

// SignResolution returns a 0x-prefixed 65-byte signature with v in {27,28}.
func (s *OracleSigner) SignResolution(marketID string, result domain.Side) (string, error) {
	digest := accounts.TextHash([]byte(ResolutionMessage(marketID, result)))
	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("crypto: sign resolution: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// Verifier accepts resolution signatures from a fixed set of oracles.
type Verifier struct {
	oracles map[common.Address]struct{}
}

// NewVerifier builds a Verifier from hex addresses.
func NewVerifier(addresses []string) (*Verifier, error) {
	v := &Verifier{oracles: make(map[common.Address]struct{}, len(addresses))}
	for _, a := range addresses {
		a = strings.TrimSpace(a)
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("crypto: invalid oracle address %q", a)
		}
		v.oracles[common.HexToAddress(a)] = struct{}{}
	}
	return v, nil
}

// Empty reports whether no oracle is configured.
func (v *Verifier) Empty() bool {
	return len(v.oracles) == 0
}

// Verify recovers the signer of a resolution and checks it is a known
// oracle. Failures wrap domain.ErrUnauthorized.
func (v *Verifier) Verify(marketID string, result domain.Side, signature string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(sig) != 65 {
		return common.Address{}, fmt.Errorf("%w: malformed oracle signature", domain.ErrUnauthorized)
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest := accounts.TextHash([]byte(ResolutionMessage(marketID, result)))
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: recover oracle signature: %v", domain.ErrUnauthorized, err)
	}
	addr := ethcrypto.PubkeyToAddress(*pub)
	if _, ok := v.oracles[addr]; !ok {
		return common.Address{}, fmt.Errorf("%w: %s is not an oracle", domain.ErrUnauthorized, addr.Hex())
	}
	return addr, nil
}
