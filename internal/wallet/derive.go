package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/sha3"
)

// ErrInvalidMnemonic is returned for seed phrases that fail the BIP39 checksum.
var ErrInvalidMnemonic = errors.New("invalid wallet mnemonic")

// Deriver turns a BIP39 seed into Ethereum addresses along m/44'/60'/0'/0/i.
type Deriver struct {
	account *hdkeychain.ExtendedKey
}

// NewDeriver builds a deriver from mnemonic.
func NewDeriver(mnemonic string) (*Deriver, error) {
	seed, err := bip39.NewSeedWithErrorChecking(strings.TrimSpace(mnemonic), "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	rootKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	account, err := derivePath(rootKey, []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 60,
		hdkeychain.HardenedKeyStart + 0,
		0,
	})
	if err != nil {
		return nil, err
	}
	return &Deriver{account: account}, nil
}

// NewRandomMnemonic returns a fresh 24-word phrase for development setups.
func NewRandomMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// Address returns the EIP-55 checksummed address at index.
func (d *Deriver) Address(index uint32) (string, error) {
	child, err := d.account.Derive(index)
	if err != nil {
		return "", fmt.Errorf("derive index %d: %w", index, err)
	}
	pub, err := child.ECPubKey()
	if err != nil {
		return "", fmt.Errorf("public key for index %d: %w", index, err)
	}
	uncompressed := pub.SerializeUncompressed()
	digest := keccak256(uncompressed[1:])
	return checksumAddress(digest[12:]), nil
}

func derivePath(key *hdkeychain.ExtendedKey, path []uint32) (*hdkeychain.ExtendedKey, error) {
	var err error
	for _, index := range path {
		key, err = key.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("failed to derive key: %w", err)
		}
	}
	return key, nil
}

func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	return h.Sum(nil)
}

func checksumAddress(addr []byte) string {
	lower := hex.EncodeToString(addr)
	hash := hex.EncodeToString(keccak256([]byte(lower)))
	out := make([]byte, len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' && hash[i] >= '8' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return "0x" + string(out)
}

// IsAddress reports whether s looks like a 20-byte hex address.
func IsAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}
