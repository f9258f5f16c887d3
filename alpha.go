package account

import (
	"context"

	"github.com/goliatone/go-repository-bun"
)

// AlphaGate answers whether an account may enter the gated alpha. Access
// is granted two ways: a prior invite redemption for the alpha purpose,
// or holding the qualifying asset in a linked wallet.
type AlphaGate struct {
	users   Users
	invites InviteCodes
	oracle  OwnershipOracle
	config  Config
	logger  Logger
}

type AlphaGateOption func(*AlphaGate)

func WithAlphaGateLogger(logger Logger) AlphaGateOption {
	return func(g *AlphaGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithOwnershipOracle enables the wallet-holdings path. Without it the
// gate only honors invite redemptions.
func WithOwnershipOracle(oracle OwnershipOracle) AlphaGateOption {
	return func(g *AlphaGate) {
		g.oracle = oracle
	}
}

func NewAlphaGate(users Users, invites InviteCodes, config Config, opts ...AlphaGateOption) *AlphaGate {
	g := &AlphaGate{
		users:   users,
		invites: invites,
		config:  config.withDefaults(),
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// HasAccess reports whether the account identified by email may enter.
func (g *AlphaGate) HasAccess(ctx context.Context, email string) (bool, error) {
	user, err := g.users.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return false, ErrAccountNotFound
		}
		return false, err
	}

	redeemed, err := g.invites.HasRedeemedPurpose(ctx, user.ID, g.config.AlphaPurpose)
	if err != nil {
		return false, err
	}
	if redeemed {
		return true, nil
	}

	if g.oracle == nil || user.WalletAddress == "" {
		return false, nil
	}

	holds, err := g.oracle.HasAsset(ctx, user.WalletAddress)
	if err != nil {
		// The oracle is an external collaborator; an outage must not read
		// as a denial backed by real data.
		g.logger.Warn("ownership oracle lookup failed for %s: %v", user.WalletAddress, err)
		return false, err
	}

	return holds, nil
}
