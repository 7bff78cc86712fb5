package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// EmptyWeb3Signature is the enclave signature sent by workers of standard tasks.
var EmptyWeb3Signature = "0x" + strings.Repeat("0", 130)

// ResultModel is the payload pushed by a worker.
type ResultModel struct {
	ChainTaskID      string `json:"chainTaskId"`
	DealID           string `json:"dealId,omitempty"`
	TaskIndex        int    `json:"taskIndex,omitempty"`
	Image            string `json:"image,omitempty"`
	Cmd              string `json:"cmd,omitempty"`
	Zip              []byte `json:"zip"`
	DeterministHash  string `json:"deterministHash,omitempty"`
	EnclaveSignature string `json:"enclaveSignature,omitempty"`
}

// HasEnclaveSignature reports whether the result carries a non sentinel enclave signature.
func (m ResultModel) HasEnclaveSignature() bool {
	sig := strings.ToLower(m.EnclaveSignature)
	return sig != "" && sig != EmptyWeb3Signature
}

// ComputedFile is the manifest produced by a task next to its outputs.
type ComputedFile struct {
	TaskID                  string `json:"task-id,omitempty"`
	DeterministicOutputPath string `json:"deterministic-output-path"`
	CallbackData            string `json:"callback-data,omitempty"`
	ResultDigest            string `json:"result-digest,omitempty"`
	EnclaveSignature        string `json:"enclave-signature,omitempty"`
	ErrorMessage            string `json:"error-message,omitempty"`
}

// ResultName maps a task to its content-addressed location.
type ResultName struct {
	ChainTaskID string
	Handle      string
}

// UploadedResult describes a result accepted by the proxy
type UploadedResult struct {
	ChainTaskID string
	Uploader    string
	Link        string
	// WorkerpoolPrice is the RLC price of the deal, zero when the deal could not be read
	WorkerpoolPrice decimal.Decimal
}
