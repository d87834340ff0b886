package wallet

import "time"

// Wallet is a user's derived on-chain account. The derivation index doubles as
// the signer handle passed to the signing service.
type Wallet struct {
	ID              string
	UserID          string
	Address         string
	DerivationIndex uint32
	// Provisioned is set once the chain backend has prepared the wallet.
	Provisioned bool
	CreatedAt   time.Time
}

// TransferResult is what the chain reports for a settled transfer.
type TransferResult struct {
	TxHash      string
	BlockNumber int64
	GasUsed     int64
}
