package policyfile

import (
	"errors"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"

	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/errs"
)

type fraudSection struct {
	HoldSuspects *bool `toml:"hold_suspects"`
}

type amountsSection struct {
	ManualReleaseAbove string `toml:"manual_release_above"`
}

type settlementProfile struct {
	Version int            `toml:"version"`
	Fraud   fraudSection   `toml:"fraud"`
	Amounts amountsSection `toml:"amounts"`
}

// LoadSettlementPolicy reads a settlement policy file. An empty path or a missing file
// yields the default policy, which holds fraud suspects for manual release.
func LoadSettlementPolicy(path string) (domainclaim.SettlementPolicy, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return domainclaim.DefaultSettlementPolicy(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domainclaim.DefaultSettlementPolicy(), nil
		}
		return domainclaim.SettlementPolicy{}, errs.Wrapf(err, "read settlement policy %s", path)
	}
	return ParseSettlementPolicy(raw)
}

func ParseSettlementPolicy(raw []byte) (domainclaim.SettlementPolicy, error) {
	var profile settlementProfile
	if err := toml.Unmarshal(raw, &profile); err != nil {
		return domainclaim.SettlementPolicy{}, errs.Wrap(err, "decode settlement policy")
	}
	if profile.Version != 0 && profile.Version != 1 {
		return domainclaim.SettlementPolicy{}, errors.New("unsupported settlement policy version: expected version = 1")
	}

	policy := domainclaim.DefaultSettlementPolicy()
	if profile.Fraud.HoldSuspects != nil {
		policy.HoldFraudSuspects = *profile.Fraud.HoldSuspects
	}

	if threshold := strings.TrimSpace(profile.Amounts.ManualReleaseAbove); threshold != "" {
		value, err := decimal.NewFromString(threshold)
		if err != nil {
			return domainclaim.SettlementPolicy{}, errs.Wrap(err, "amounts.manual_release_above")
		}
		if value.IsNegative() {
			return domainclaim.SettlementPolicy{}, errors.New("amounts.manual_release_above must not be negative")
		}
		policy.ManualReleaseAbove = decimal.NewNullDecimal(value)
	}
	return policy, nil
}
