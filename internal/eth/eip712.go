package eth

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	ChallengeDomainName    = "iExec Result Repository"
	ChallengeDomainVersion = "1"
	challengePrimaryType   = "Challenge"
)

// EIP712Domain is the signing domain of typed data
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract *common.Address
}

// ChallengeDomain returns the domain used by login challenges on chainID.
func ChallengeDomain(chainID int64) EIP712Domain {
	return EIP712Domain{
		Name:    ChallengeDomainName,
		Version: ChallengeDomainVersion,
		ChainID: big.NewInt(chainID),
	}
}

// ChallengeTypedData wraps a challenge value into an EIP-712 document.
func ChallengeTypedData(domain EIP712Domain, value string) apitypes.TypedData {
	domainTypes := []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	}
	typedDomain := apitypes.TypedDataDomain{
		Name:    domain.Name,
		Version: domain.Version,
		ChainId: (*math.HexOrDecimal256)(domain.ChainID),
	}
	if domain.VerifyingContract != nil {
		domainTypes = append(domainTypes, apitypes.Type{Name: "verifyingContract", Type: "address"})
		typedDomain.VerifyingContract = domain.VerifyingContract.Hex()
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":       domainTypes,
			challengePrimaryType: {{Name: "challenge", Type: "string"}},
		},
		PrimaryType: challengePrimaryType,
		Domain:      typedDomain,
		Message:     apitypes.TypedDataMessage{"challenge": value},
	}
}

// TypedDataHash returns the EIP-712 digest of typed data.
func TypedDataHash(td apitypes.TypedData) (common.Hash, error) {
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hashing typed data: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// VerifySignatureAgainstAddress checks that sig over the EIP-712 digest was produced by expected.
func VerifySignatureAgainstAddress(hash common.Hash, sig []byte, expected common.Address) (bool, error) {
	signer, err := RecoverAddress(hash.Bytes(), sig)
	if err != nil {
		return false, err
	}
	return signer == expected, nil
}
