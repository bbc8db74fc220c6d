package core

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"microlend/core/events"
	"microlend/core/state"
	"microlend/native/credit"
	"microlend/storage"
)

var (
	// ErrMintUnauthorized marks mint attempts by an address that is not the
	// token's mint authority.
	ErrMintUnauthorized = errors.New("node: caller is not the mint authority")
	// ErrMintPaused marks mint attempts while minting is halted.
	ErrMintPaused = errors.New("node: token minting is paused")
)

// Node is the single-process facade over the loan ledger. Every operation
// acquires the state mutex, builds a fresh state manager and engine, and runs
// to completion, matching the transactional model where conflicting operations
// on the same records are serialized.
type Node struct {
	stateMu sync.Mutex
	db      storage.Database
	emitter events.Emitter
	nowFn   func() int64
}

// NewNode creates a node operating on the provided database.
func NewNode(db storage.Database) *Node {
	return &Node{db: db, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter shared by all engine invocations.
func (n *Node) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		n.emitter = events.NoopEmitter{}
		return
	}
	n.emitter = emitter
}

// SetNowFunc overrides the engine time source. Primarily for tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.nowFn = now
}

func (n *Node) newCreditEngine(manager *state.Manager) *credit.Engine {
	engine := credit.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(credit.NewLedger(manager))
	engine.SetEmitter(n.emitter)
	if n.nowFn != nil {
		engine.SetNowFunc(n.nowFn)
	}
	return engine
}

// RegisterToken registers a collateral mint. Registering a symbol that already
// exists is a no-op so node bootstrap can be re-run safely.
func (n *Node) RegisterToken(symbol, name string, decimals uint8) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	if manager.TokenExists(symbol) {
		return nil
	}
	return manager.RegisterToken(symbol, name, decimals)
}

// SetTokenMintAuthority assigns the mint authority for a registered token.
func (n *Node) SetTokenMintAuthority(symbol string, authority [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	return manager.SetTokenMintAuthority(symbol, authority[:])
}

// MintToken credits new supply of a registered token to a holding account.
// When the token carries a mint authority the caller must match it.
func (n *Node) MintToken(caller [20]byte, symbol string, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return credit.ErrInvalidAmount
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	meta, err := manager.Token(symbol)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("node: token %s not registered", symbol)
	}
	if meta.MintPaused {
		return ErrMintPaused
	}
	if len(meta.MintAuthority) > 0 && !bytes.Equal(meta.MintAuthority, caller[:]) {
		return ErrMintUnauthorized
	}
	balance, err := manager.Balance(to[:], meta.Symbol)
	if err != nil {
		return err
	}
	return manager.SetBalance(to[:], meta.Symbol, new(big.Int).Add(balance, amount))
}

// TokenBalance reads the holding balance of an address for a token.
func (n *Node) TokenBalance(addr [20]byte, symbol string) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	return manager.Balance(addr[:], symbol)
}

// TokenList returns the registered token symbols.
func (n *Node) TokenList() ([]string, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	return manager.TokenList()
}

// LoanInitialize runs the initialize operation for the borrower and returns
// the freshly allocated loan record.
func (n *Node) LoanInitialize(borrower [20]byte, principal *big.Int, interestBps uint16, collateralMint string, collateralTarget *big.Int, dueSeconds uint32, existingUser bool) (*credit.Loan, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	engine := n.newCreditEngine(manager)
	return engine.InitializeLoan(borrower, principal, interestBps, collateralMint, collateralTarget, dueSeconds, existingUser)
}

// LoanDeposit runs the collateral deposit operation.
func (n *Node) LoanDeposit(caller [20]byte, id [32]byte, mint string, amount *big.Int, collateralType credit.CollateralType) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	engine := n.newCreditEngine(manager)
	return engine.DepositCollateral(caller, id, mint, amount, collateralType)
}

// LoanWithdraw runs the withdrawal operation and returns the released amount.
func (n *Node) LoanWithdraw(caller [20]byte, id [32]byte) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	engine := n.newCreditEngine(manager)
	return engine.WithdrawLoan(caller, id)
}

// LoanMarkDefaulted transitions an overdue loan to the defaulted state. A
// non-positive now falls back to the node clock.
func (n *Node) LoanMarkDefaulted(id [32]byte, now int64) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	if now <= 0 {
		if n.nowFn != nil {
			now = n.nowFn()
		} else {
			now = time.Now().Unix()
		}
	}
	manager := state.NewManager(n.db)
	engine := n.newCreditEngine(manager)
	return engine.MarkDefaulted(id, now)
}

// LoanGet retrieves a loan record by id.
func (n *Node) LoanGet(id [32]byte) (*credit.Loan, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	loan, ok := manager.LoanGet(id)
	if !ok {
		return nil, credit.ErrLoanNotFound
	}
	return loan, nil
}

// LoanList returns the borrower's open loan records in index order.
func (n *Node) LoanList(borrower [20]byte) ([]*credit.Loan, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	ledger := credit.NewLedger(manager)
	ids, err := ledger.IndexLoans(borrower)
	if err != nil {
		return nil, err
	}
	loans := make([]*credit.Loan, 0, len(ids))
	for _, id := range ids {
		loan, ok := manager.LoanGet(id)
		if !ok {
			return nil, credit.ErrLoanNotFound
		}
		loans = append(loans, loan)
	}
	return loans, nil
}

// ProfileGet retrieves the borrower's reputation profile.
func (n *Node) ProfileGet(borrower [20]byte) (*credit.UserProfile, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	ledger := credit.NewLedger(manager)
	profile, ok, err := ledger.ProfileGet(borrower)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, credit.ErrProfileNotFound
	}
	return profile, nil
}

// VaultBalance reports the collateral currently escrowed for the loan.
func (n *Node) VaultBalance(id [32]byte) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	engine := n.newCreditEngine(manager)
	return engine.VaultBalance(id)
}
