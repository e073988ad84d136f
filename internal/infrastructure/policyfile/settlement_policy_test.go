package policyfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoadSettlementPolicyMissingFileUsesDefaults(t *testing.T) {
	policy, err := LoadSettlementPolicy(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadSettlementPolicy() error = %v", err)
	}
	if !policy.HoldFraudSuspects {
		t.Fatalf("HoldFraudSuspects = false, want default true")
	}
	if policy.ManualReleaseAbove.Valid {
		t.Fatalf("ManualReleaseAbove set, want unset")
	}
}

func TestLoadSettlementPolicyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settlement.toml")
	content := `
version = 1

[fraud]
hold_suspects = false

[amounts]
manual_release_above = "250000.00"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	policy, err := LoadSettlementPolicy(path)
	if err != nil {
		t.Fatalf("LoadSettlementPolicy() error = %v", err)
	}
	if policy.HoldFraudSuspects {
		t.Fatalf("HoldFraudSuspects = true, want false")
	}
	if !policy.ManualReleaseAbove.Valid || !policy.ManualReleaseAbove.Decimal.Equal(decimal.NewFromInt(250000)) {
		t.Fatalf("ManualReleaseAbove = %+v", policy.ManualReleaseAbove)
	}
}

func TestParseSettlementPolicyRejectsBadInput(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "version", content: "version = 3", wantErr: "unsupported settlement policy version"},
		{name: "amount", content: "[amounts]\nmanual_release_above = \"lots\"", wantErr: "manual_release_above"},
		{name: "negative", content: "[amounts]\nmanual_release_above = \"-1\"", wantErr: "must not be negative"},
		{name: "syntax", content: "[fraud\nhold_suspects = true", wantErr: "decode settlement policy"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSettlementPolicy([]byte(tc.content))
			if err == nil {
				t.Fatalf("ParseSettlementPolicy() expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("ParseSettlementPolicy() error = %v, want contains %q", err, tc.wantErr)
			}
		})
	}
}
