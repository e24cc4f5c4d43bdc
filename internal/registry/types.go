package registry

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Agent is a preset AI agent persona listed in the registry.
type Agent struct {
	ID            uint64   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	PricePerMonth *big.Int `json:"price_per_month"`
	Integrations  []string `json:"integrations"`
	Features      []string `json:"features"`
	IsActive      bool     `json:"is_active"`
}

// SubscriptionDetails is the subscription window of one account for one agent.
type SubscriptionDetails struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Active bool      `json:"active"`
}

// FeatureRequestStatus is the on-chain lifecycle of a feature request.
type FeatureRequestStatus uint8

const (
	FeatureRequestOpen FeatureRequestStatus = iota
	FeatureRequestAccepted
	FeatureRequestCompleted
	FeatureRequestRejected
)

func (s FeatureRequestStatus) String() string {
	switch s {
	case FeatureRequestOpen:
		return "open"
	case FeatureRequestAccepted:
		return "accepted"
	case FeatureRequestCompleted:
		return "completed"
	case FeatureRequestRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// FeatureRequest is a user request for a new agent.
type FeatureRequest struct {
	Index        uint64               `json:"index"`
	Title        string               `json:"title"`
	Description  string               `json:"description"`
	PriceOffered *big.Int             `json:"price_offered"`
	Requester    common.Address       `json:"requester"`
	Upvotes      uint64               `json:"upvotes"`
	Status       FeatureRequestStatus `json:"status"`
}
