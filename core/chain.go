package core

import (
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ChainTaskStatus int

const (
	TaskUnset ChainTaskStatus = iota
	TaskActive
	TaskRevealing
	TaskCompleted
	TaskFailed
)

func (s ChainTaskStatus) String() string {
	switch s {
	case TaskActive:
		return "ACTIVE"
	case TaskRevealing:
		return "REVEALING"
	case TaskCompleted:
		return "COMPLETED"
	case TaskFailed:
		return "FAILED"
	default:
		return "UNSET"
	}
}

type ChainContributionStatus int

const (
	ContributionUnset ChainContributionStatus = iota
	ContributionContributed
	ContributionRevealed
	ContributionRejected
)

func (s ChainContributionStatus) String() string {
	switch s {
	case ContributionContributed:
		return "CONTRIBUTED"
	case ContributionRevealed:
		return "REVEALED"
	case ContributionRejected:
		return "REJECTED"
	default:
		return "UNSET"
	}
}

// ChainTask is the on-chain state of a task
type ChainTask struct {
	ChainTaskID   string
	DealID        string
	Status        ChainTaskStatus
	FinalDeadline time.Time
}

// IsFinalDeadlineReached reports whether the task final deadline is set and passed.
func (t ChainTask) IsFinalDeadlineReached(now time.Time) bool {
	return !t.FinalDeadline.IsZero() && !now.Before(t.FinalDeadline)
}

// ChainDeal is the on-chain state of a deal
type ChainDeal struct {
	ChainDealID     string
	Tag             string
	Requester       string
	PoolOwner       string
	WorkerpoolPrice decimal.Decimal // in RLC
}

// IsTee reports whether the deal tag requires a trusted execution environment.
func (d ChainDeal) IsTee() bool {
	return IsTeeTag(d.Tag)
}

// ChainContribution is the on-chain commitment of a worker on a task
type ChainContribution struct {
	Status     ChainContributionStatus
	ResultHash string
}

const (
	teeBit        = 0x1
	teeFrameworks = 0x2 | 0x4 | 0x8 // scone, gramine, tdx
)

// IsTeeTag reports whether a bytes32 deal tag has the TEE bit and a TEE framework bit set.
func IsTeeTag(tag string) bool {
	tag = strings.TrimPrefix(strings.TrimPrefix(tag, "0x"), "0X")
	if tag == "" {
		return false
	}
	v, ok := new(big.Int).SetString(tag, 16)
	if !ok {
		return false
	}
	var low uint
	for i := 0; i < 4; i++ {
		low |= v.Bit(i) << i
	}
	return low&teeBit != 0 && low&teeFrameworks != 0
}
