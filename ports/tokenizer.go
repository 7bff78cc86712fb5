package ports

// Tokenizer mints and parses access tokens bound to a wallet
type Tokenizer interface {
	Mint(walletAddress string) (string, error)
	// WalletAddress fails when the token is malformed or not signed with the current key
	WalletAddress(token string) (string, error)
}
