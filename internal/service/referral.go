package service

import (
	"context"
	"errors"

	"commissionledger/internal/model"
	"commissionledger/internal/repository"

	"gorm.io/gorm"
)

const (
	SkipSelfReferral     = "self_referral"
	SkipReferralCycle    = "referral_cycle"
	SkipDanglingReferrer = "dangling_referrer"
	SkipWalletMissing    = "wallet_missing"
	SkipZeroAmount       = "zero_amount"
)

// SkippedTier records a tier that earned nothing and why.
type SkippedTier struct {
	Tier        int    `json:"tier"`
	AffiliateID int64  `json:"affiliate_id"`
	Reason      string `json:"reason"`
}

// Chain is the resolved upline of an order: at most two users, plus the tiers that
// could not be resolved.
type Chain struct {
	Tier1   *model.User
	Tier2   *model.User
	Skipped []SkippedTier
}

// ReferralLookup walks the referrer forest exactly two hops.
type ReferralLookup struct {
	userRepo *repository.UserRepository
}

func NewReferralLookup(db *gorm.DB) *ReferralLookup {
	return &ReferralLookup{userRepo: repository.NewUserRepository(db)}
}

// ResolveChain resolves tier 1 from referrerID and tier 2 from tier 1's own referrer.
// Unknown users and references that loop back into the chain leave the tier empty
// and are listed in Skipped.
func (r *ReferralLookup) ResolveChain(ctx context.Context, tx *gorm.DB, sourceUserID, referrerID int64) (Chain, error) {
	var chain Chain

	if referrerID == sourceUserID {
		chain.skip(model.Tier1, referrerID, SkipSelfReferral)
		return chain, nil
	}
	tier1, err := r.lookup(ctx, tx, referrerID)
	if err != nil {
		return Chain{}, err
	}
	if tier1 == nil {
		chain.skip(model.Tier1, referrerID, SkipDanglingReferrer)
		return chain, nil
	}
	chain.Tier1 = tier1

	if tier1.ReferrerID == nil {
		return chain, nil
	}
	upline := *tier1.ReferrerID
	if upline == sourceUserID || upline == tier1.ID {
		chain.skip(model.Tier2, upline, SkipReferralCycle)
		return chain, nil
	}
	tier2, err := r.lookup(ctx, tx, upline)
	if err != nil {
		return Chain{}, err
	}
	if tier2 == nil {
		chain.skip(model.Tier2, upline, SkipDanglingReferrer)
		return chain, nil
	}
	chain.Tier2 = tier2
	return chain, nil
}

func (c *Chain) skip(tier int, userID int64, reason string) {
	c.Skipped = append(c.Skipped, SkippedTier{Tier: tier, AffiliateID: userID, Reason: reason})
}

// lookup returns nil, nil for an unknown user.
func (r *ReferralLookup) lookup(ctx context.Context, tx *gorm.DB, userID int64) (*model.User, error) {
	user, err := r.userRepo.GetByID(ctx, tx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, nil
	}
	return user, err
}
