package core

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"microlend/native/credit"
	"microlend/storage"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node := NewNode(db)
	node.SetNowFunc(func() int64 { return 1_700_000_000 })
	if err := node.RegisterToken("WSOL", "Wrapped SOL", 9); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if err := node.RegisterToken("USDC", "USD Coin", 6); err != nil {
		t.Fatalf("register token: %v", err)
	}
	return node
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func TestNodeTokenBootstrapIdempotent(t *testing.T) {
	node := newTestNode(t)
	// Re-registering on restart must be a no-op, not an error.
	if err := node.RegisterToken("WSOL", "Wrapped SOL", 9); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	list, err := node.TokenList()
	if err != nil {
		t.Fatalf("token list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 tokens, got %v", list)
	}
}

func TestNodeMintAuthority(t *testing.T) {
	node := newTestNode(t)
	operator := testAddr(0x01)
	stranger := testAddr(0x02)
	holder := testAddr(0x03)

	// No authority bound yet: anyone may mint.
	if err := node.MintToken(stranger, "WSOL", holder, big.NewInt(100)); err != nil {
		t.Fatalf("unbound mint: %v", err)
	}

	if err := node.SetTokenMintAuthority("WSOL", operator); err != nil {
		t.Fatalf("set authority: %v", err)
	}
	if err := node.MintToken(stranger, "WSOL", holder, big.NewInt(100)); !errors.Is(err, ErrMintUnauthorized) {
		t.Fatalf("expected unauthorized mint, got %v", err)
	}
	if err := node.MintToken(operator, "WSOL", holder, big.NewInt(400)); err != nil {
		t.Fatalf("authorized mint: %v", err)
	}

	bal, err := node.TokenBalance(holder, "WSOL")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected balance 500, got %s", bal)
	}

	if err := node.MintToken(operator, "WSOL", holder, big.NewInt(0)); !errors.Is(err, credit.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestNodeLoanLifecycle(t *testing.T) {
	node := newTestNode(t)
	operator := testAddr(0x01)
	borrower := testAddr(0x0A)

	if err := node.MintToken(operator, "WSOL", borrower, big.NewInt(1_000_000_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	loan, err := node.LoanInitialize(borrower, big.NewInt(5_000_000_000), 500, "WSOL", big.NewInt(1_000_000_000), 3600, false)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if loan.Status != credit.LoanRequested {
		t.Fatalf("expected requested loan, got %v", loan.Status)
	}

	if err := node.LoanDeposit(borrower, loan.ID, "WSOL", big.NewInt(1_000_000_000), credit.TypeSol); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	stored, err := node.LoanGet(loan.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != credit.LoanActive {
		t.Fatalf("expected active loan, got %v", stored.Status)
	}

	vault, err := node.VaultBalance(loan.ID)
	if err != nil {
		t.Fatalf("vault balance: %v", err)
	}
	if vault.Cmp(big.NewInt(1_000_000_000)) != 0 {
		t.Fatalf("expected vault 1e9, got %s", vault)
	}

	open, err := node.LoanList(borrower)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 1 || open[0].ID != loan.ID {
		t.Fatalf("expected one open loan")
	}

	released, err := node.LoanWithdraw(borrower, loan.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if released.Cmp(big.NewInt(1_000_000_000)) != 0 {
		t.Fatalf("expected released 1e9, got %s", released)
	}

	profile, err := node.ProfileGet(borrower)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.TotalLoansRepaid != 1 {
		t.Fatalf("expected repaid count 1, got %d", profile.TotalLoansRepaid)
	}

	open, err = node.LoanList(borrower)
	if err != nil {
		t.Fatalf("list after withdraw: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected empty open-loan list")
	}
}

func TestNodeLoanGetMissing(t *testing.T) {
	node := newTestNode(t)
	var id [32]byte
	id[0] = 0xFF
	if _, err := node.LoanGet(id); !errors.Is(err, credit.ErrLoanNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := node.ProfileGet(testAddr(0x20)); !errors.Is(err, credit.ErrProfileNotFound) {
		t.Fatalf("expected profile not found, got %v", err)
	}
}

func TestNodeMarkDefaulted(t *testing.T) {
	node := newTestNode(t)
	borrower := testAddr(0x0B)

	loan, err := node.LoanInitialize(borrower, big.NewInt(1_000), 500, "USDC", big.NewInt(500), 60, false)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if err := node.LoanMarkDefaulted(loan.ID, loan.DueTs); !errors.Is(err, credit.ErrLoanNotDue) {
		t.Fatalf("expected not due, got %v", err)
	}
	if err := node.LoanMarkDefaulted(loan.ID, loan.DueTs+1); err != nil {
		t.Fatalf("mark defaulted: %v", err)
	}

	profile, err := node.ProfileGet(borrower)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.TotalDefaults != 1 {
		t.Fatalf("expected one default, got %d", profile.TotalDefaults)
	}
}
