package core

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/iExecBlockchainComputing/iexec-result-proxy/internal/eth"
)

// Challenge represents an outstanding login challenge
type Challenge struct {
	Value    string    // Random URL-safe value embedded in the typed data
	Hash     string    // EIP-712 hash of the typed data, used as the store key
	IssuedAt time.Time // When the challenge was created
}

// SignedChallenge is the caller supplied proof of a challenge
type SignedChallenge struct {
	ChallengeHash string
	Signature     string
	WalletAddress string
}

// Jwt is the persisted access token of a wallet. There is at most one per wallet.
type Jwt struct {
	WalletAddress string
	Token         string
	Version       int64
}

// Signature is an hex encoded r||s||v signature.
// It is exchanged as {"value": "0x..."} and also accepted as a bare string.
type Signature struct {
	Value string `json:"value"`
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		s.Value = raw
		return nil
	}
	type plain Signature
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Signature(p)
	return nil
}

// WorkerpoolAuthorization is issued by a workerpool to allow one of its workers
// to contribute to a task.
type WorkerpoolAuthorization struct {
	ChainTaskID      string    `json:"chainTaskId"`
	WorkerWallet     string    `json:"workerWallet"`
	EnclaveChallenge string    `json:"enclaveChallenge"`
	Signature        Signature `json:"signature"`
}

// Hash is the message signed by the workerpool owner.
func (a WorkerpoolAuthorization) Hash() string {
	return eth.ConcatenateAndHash(a.WorkerWallet, a.ChainTaskID, a.EnclaveChallenge)
}

// IsTee reports whether the authorization carries an enclave challenge.
func (a WorkerpoolAuthorization) IsTee() bool {
	return !eth.IsZeroHex(a.EnclaveChallenge)
}

// AuthorizationKey identifies a pending authorization of a worker on a task.
func AuthorizationKey(chainTaskID, workerWallet string) string {
	return strings.ToLower(chainTaskID) + "-" + strings.ToLower(workerWallet)
}

// BearerToken strips an optional "Bearer " scheme from an Authorization header value
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
