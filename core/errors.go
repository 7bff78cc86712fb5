package core

import "errors"

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidChallenge = errors.New("invalid challenge")

	ErrTokenNotFound   = errors.New("token not found")
	ErrTokenExists     = errors.New("token already exists for wallet")
	ErrVersionConflict = errors.New("token record was modified concurrently")

	ErrChainTaskNotFound         = errors.New("chain task not found")
	ErrChainDealNotFound         = errors.New("chain deal not found")
	ErrChainContributionNotFound = errors.New("chain contribution not found")

	ErrResultNotFound      = errors.New("result not found")
	ErrResultAlreadyStored = errors.New("result already stored for task")
	ErrAuthorizationAbsent = errors.New("workerpool authorization not found")
)

// AuthorizationError is the reason an execution was refused on-chain.
type AuthorizationError int

const (
	EmptyParamsUnauthorized AuthorizationError = iota + 1
	GetChainTaskFailed
	TaskNotActive
	TaskFinalDeadlineReached
	GetChainDealFailed
	NoMatchOnchainType
	InvalidSignature
)

var authorizationErrorNames = map[AuthorizationError]string{
	EmptyParamsUnauthorized:  "EMPTY_PARAMS_UNAUTHORIZED",
	GetChainTaskFailed:       "GET_CHAIN_TASK_FAILED",
	TaskNotActive:            "TASK_NOT_ACTIVE",
	TaskFinalDeadlineReached: "TASK_FINAL_DEADLINE_REACHED",
	GetChainDealFailed:       "GET_CHAIN_DEAL_FAILED",
	NoMatchOnchainType:       "NO_MATCH_ONCHAIN_TYPE",
	InvalidSignature:         "INVALID_SIGNATURE",
}

func (e AuthorizationError) String() string {
	if name, ok := authorizationErrorNames[e]; ok {
		return name
	}
	return "UNKNOWN"
}

func (e AuthorizationError) Error() string {
	return "execution not authorized: " + e.String()
}
