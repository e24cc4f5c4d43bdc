package registry

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// GetAgent reads one agent listing.
func (c *Contract) GetAgent(ctx context.Context, id uint64) (Agent, error) {
	out, err := c.Call(ctx, "getAgent", new(big.Int).SetUint64(id))
	if err != nil {
		return Agent{}, err
	}
	if len(out) != 6 {
		return Agent{}, fmt.Errorf("getAgent: unexpected %d outputs", len(out))
	}
	agent := Agent{ID: id}
	var ok bool
	if agent.Name, ok = out[0].(string); !ok {
		return Agent{}, outputError("getAgent", 0, out[0])
	}
	if agent.Description, ok = out[1].(string); !ok {
		return Agent{}, outputError("getAgent", 1, out[1])
	}
	if agent.PricePerMonth, ok = out[2].(*big.Int); !ok {
		return Agent{}, outputError("getAgent", 2, out[2])
	}
	if agent.Integrations, ok = out[3].([]string); !ok {
		return Agent{}, outputError("getAgent", 3, out[3])
	}
	if agent.Features, ok = out[4].([]string); !ok {
		return Agent{}, outputError("getAgent", 4, out[4])
	}
	if agent.IsActive, ok = out[5].(bool); !ok {
		return Agent{}, outputError("getAgent", 5, out[5])
	}
	return agent, nil
}

// HasActiveSubscription reports whether account holds a live subscription.
func (c *Contract) HasActiveSubscription(ctx context.Context, account common.Address, id uint64) (bool, error) {
	return c.callBool(ctx, "hasActiveSubscription", account, new(big.Int).SetUint64(id))
}

// GetSubscriptionDetails reads the subscription window of account for id.
func (c *Contract) GetSubscriptionDetails(ctx context.Context, account common.Address, id uint64) (SubscriptionDetails, error) {
	out, err := c.Call(ctx, "getSubscriptionDetails", account, new(big.Int).SetUint64(id))
	if err != nil {
		return SubscriptionDetails{}, err
	}
	if len(out) != 3 {
		return SubscriptionDetails{}, fmt.Errorf("getSubscriptionDetails: unexpected %d outputs", len(out))
	}
	start, ok := out[0].(*big.Int)
	if !ok {
		return SubscriptionDetails{}, outputError("getSubscriptionDetails", 0, out[0])
	}
	end, ok := out[1].(*big.Int)
	if !ok {
		return SubscriptionDetails{}, outputError("getSubscriptionDetails", 1, out[1])
	}
	active, ok := out[2].(bool)
	if !ok {
		return SubscriptionDetails{}, outputError("getSubscriptionDetails", 2, out[2])
	}
	return SubscriptionDetails{
		Start:  time.Unix(start.Int64(), 0).UTC(),
		End:    time.Unix(end.Int64(), 0).UTC(),
		Active: active,
	}, nil
}

// GetFeatureRequest reads the feature request at index.
func (c *Contract) GetFeatureRequest(ctx context.Context, index uint64) (FeatureRequest, error) {
	out, err := c.Call(ctx, "getFeatureRequest", new(big.Int).SetUint64(index))
	if err != nil {
		return FeatureRequest{}, err
	}
	if len(out) != 6 {
		return FeatureRequest{}, fmt.Errorf("getFeatureRequest: unexpected %d outputs", len(out))
	}
	req := FeatureRequest{Index: index}
	var ok bool
	if req.Title, ok = out[0].(string); !ok {
		return FeatureRequest{}, outputError("getFeatureRequest", 0, out[0])
	}
	if req.Description, ok = out[1].(string); !ok {
		return FeatureRequest{}, outputError("getFeatureRequest", 1, out[1])
	}
	if req.PriceOffered, ok = out[2].(*big.Int); !ok {
		return FeatureRequest{}, outputError("getFeatureRequest", 2, out[2])
	}
	if req.Requester, ok = out[3].(common.Address); !ok {
		return FeatureRequest{}, outputError("getFeatureRequest", 3, out[3])
	}
	upvotes, ok := out[4].(*big.Int)
	if !ok {
		return FeatureRequest{}, outputError("getFeatureRequest", 4, out[4])
	}
	req.Upvotes = upvotes.Uint64()
	status, ok := out[5].(uint8)
	if !ok {
		return FeatureRequest{}, outputError("getFeatureRequest", 5, out[5])
	}
	req.Status = FeatureRequestStatus(status)
	return req, nil
}

// UserUpvotes reports whether account already upvoted the request at index.
func (c *Contract) UserUpvotes(ctx context.Context, account common.Address, index uint64) (bool, error) {
	return c.callBool(ctx, "userUpvotes", account, new(big.Int).SetUint64(index))
}

// PurchaseSubscription pays value for a subscription to agent id.
func (c *Contract) PurchaseSubscription(ctx context.Context, id uint64, value *big.Int) (*PendingTx, error) {
	return c.Transact(ctx, "purchaseSubscription", value, new(big.Int).SetUint64(id))
}

// SubmitFeatureRequest files a request. priceOffered is an argument in wei,
// the call itself carries no value.
func (c *Contract) SubmitFeatureRequest(ctx context.Context, title, description string, priceOffered *big.Int) (*PendingTx, error) {
	if priceOffered == nil {
		priceOffered = new(big.Int)
	}
	return c.Transact(ctx, "submitFeatureRequest", nil, title, description, priceOffered)
}

// UpvoteFeatureRequest upvotes the request at index.
func (c *Contract) UpvoteFeatureRequest(ctx context.Context, index uint64) (*PendingTx, error) {
	return c.Transact(ctx, "upvoteFeatureRequest", nil, new(big.Int).SetUint64(index))
}

func (c *Contract) callBool(ctx context.Context, method string, args ...any) (bool, error) {
	out, err := c.Call(ctx, method, args...)
	if err != nil {
		return false, err
	}
	if len(out) != 1 {
		return false, fmt.Errorf("%s: unexpected %d outputs", method, len(out))
	}
	v, ok := out[0].(bool)
	if !ok {
		return false, outputError(method, 0, out[0])
	}
	return v, nil
}

func outputError(method string, idx int, v any) error {
	return fmt.Errorf("%s: output %d has unexpected type %T", method, idx, v)
}

var _ Reader = (*Contract)(nil)
