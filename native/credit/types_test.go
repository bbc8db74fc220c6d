package credit

import (
	"math/big"
	"testing"
)

func TestLoanStatusTerminal(t *testing.T) {
	cases := []struct {
		status   LoanStatus
		terminal bool
	}{
		{LoanRequested, false},
		{LoanActive, false},
		{LoanRepaid, true},
		{LoanDefaulted, true},
		{LoanLiquidated, true},
	}
	for _, tc := range cases {
		if got := tc.status.Terminal(); got != tc.terminal {
			t.Fatalf("%v: expected terminal=%v, got %v", tc.status, tc.terminal, got)
		}
	}
}

func TestParseCollateralType(t *testing.T) {
	cases := []struct {
		input   string
		want    CollateralType
		wantErr bool
	}{
		{"sol", TypeSol, false},
		{"SOL", TypeSol, false},
		{"usdc", TypeUsdc, false},
		{"aksh", TypeAksh, false},
		{"", TypeUnset, false},
		{"unset", TypeUnset, false},
		{"doge", TypeUnset, true},
	}
	for _, tc := range cases {
		got, err := ParseCollateralType(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("%q: expected %v, got %v", tc.input, tc.want, got)
		}
	}
}

func TestValidDuration(t *testing.T) {
	for _, ok := range []uint32{60, 300, 1200, 3600, 7200} {
		if !ValidDuration(ok) {
			t.Fatalf("expected %d to be accepted", ok)
		}
	}
	for _, bad := range []uint32{0, 1, 59, 61, 600, 86400} {
		if ValidDuration(bad) {
			t.Fatalf("expected %d to be rejected", bad)
		}
	}
}

func TestLoanDeposited(t *testing.T) {
	loan := &Loan{
		CollateralAmount: big.NewInt(2_000_000_000),
		CollateralTarget: big.NewInt(1_000_000_000),
	}
	if got := loan.Deposited(); got.Cmp(big.NewInt(1_000_000_000)) != 0 {
		t.Fatalf("expected deposited 1e9, got %s", got)
	}

	fresh := &Loan{
		CollateralAmount: big.NewInt(500),
		CollateralTarget: big.NewInt(500),
	}
	if got := fresh.Deposited(); got.Sign() != 0 {
		t.Fatalf("expected zero deposited on a fresh loan, got %s", got)
	}
}

func TestLoanCloneIsDeep(t *testing.T) {
	loan := &Loan{
		Principal:        big.NewInt(100),
		CollateralAmount: big.NewInt(50),
		CollateralTarget: big.NewInt(50),
		CollateralMint:   "WSOL",
		Status:           LoanRequested,
	}
	clone := loan.Clone()
	clone.Principal.SetInt64(999)
	clone.Status = LoanActive
	if loan.Principal.Int64() != 100 {
		t.Fatalf("clone must not share the principal pointer")
	}
	if loan.Status != LoanRequested {
		t.Fatalf("clone must not share status")
	}
}

func TestProfileTiers(t *testing.T) {
	cases := []struct {
		score uint64
		tier  UserTier
	}{
		{0, Tier0},
		{200, Tier0},
		{201, Tier1},
		{500, Tier1},
		{501, Tier2},
		{800, Tier2},
		{801, Tier3},
		{10_000, Tier3},
	}
	for _, tc := range cases {
		profile := &UserProfile{ReputationScore: tc.score}
		if got := profile.Tier(); got != tc.tier {
			t.Fatalf("score %d: expected %v, got %v", tc.score, tc.tier, got)
		}
	}
}
