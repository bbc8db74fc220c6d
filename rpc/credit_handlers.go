package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"microlend/crypto"
	"microlend/native/credit"
	"microlend/observability"
)

type creditInitializeParams struct {
	Borrower         string `json:"borrower"`
	Principal        string `json:"principal"`
	InterestBps      uint16 `json:"interestBps"`
	CollateralMint   string `json:"collateralMint"`
	CollateralTarget string `json:"collateralTarget"`
	DueSeconds       uint32 `json:"dueSeconds"`
	ExistingUser     bool   `json:"existingUser"`
}

type creditDepositParams struct {
	Caller         string `json:"caller"`
	LoanID         string `json:"loanId"`
	CollateralMint string `json:"collateralMint"`
	Amount         string `json:"amount"`
	CollateralType string `json:"collateralType"`
}

type creditWithdrawParams struct {
	Caller string `json:"caller"`
	LoanID string `json:"loanId"`
}

type creditMarkDefaultedParams struct {
	LoanID string `json:"loanId"`
}

type creditLoanParams struct {
	LoanID string `json:"loanId"`
}

type creditBorrowerParams struct {
	Borrower string `json:"borrower"`
}

type loanResult struct {
	ID               string `json:"id"`
	Borrower         string `json:"borrower"`
	Principal        string `json:"principal"`
	InterestBps      uint16 `json:"interestBps"`
	CollateralMint   string `json:"collateralMint"`
	CollateralAmount string `json:"collateralAmount"`
	CollateralTarget string `json:"collateralTarget"`
	Deposited        string `json:"deposited"`
	StartTs          int64  `json:"startTs"`
	DueTs            int64  `json:"dueTs"`
	Status           string `json:"status"`
	CollateralType   string `json:"collateralType"`
	ExistingUser     bool   `json:"existingUser"`
}

type profileResult struct {
	User             string `json:"user"`
	TotalLoansTaken  uint64 `json:"totalLoansTaken"`
	TotalLoansRepaid uint64 `json:"totalLoansRepaid"`
	TotalDefaults    uint64 `json:"totalDefaults"`
	ReputationScore  uint64 `json:"reputationScore"`
	LastLoanTs       int64  `json:"lastLoanTs"`
	Tier             uint8  `json:"tier"`
}

type withdrawResult struct {
	LoanID   string `json:"loanId"`
	Released string `json:"released"`
}

type balanceResult struct {
	Balance string `json:"balance"`
}

type tokenMintParams struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type tokenBalanceParams struct {
	Address string `json:"address"`
	Token   string `json:"token"`
}

func decodeBech32(value string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func encodeBech32(addr [20]byte) string {
	return crypto.NewAddress(crypto.LendPrefix, append([]byte(nil), addr[:]...)).String()
}

func parseAmount(amount string) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

func decodeLoanID(value string) ([32]byte, error) {
	var out [32]byte
	cleaned := strings.TrimSpace(value)
	cleaned = strings.TrimPrefix(cleaned, "0x")
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return out, fmt.Errorf("invalid loan id: %w", err)
	}
	if len(decoded) != 32 {
		return out, fmt.Errorf("loan id must decode to 32 bytes, got %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

func bigString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func formatLoan(loan *credit.Loan) loanResult {
	return loanResult{
		ID:               "0x" + hex.EncodeToString(loan.ID[:]),
		Borrower:         encodeBech32(loan.Borrower),
		Principal:        bigString(loan.Principal),
		InterestBps:      loan.InterestBps,
		CollateralMint:   loan.CollateralMint,
		CollateralAmount: bigString(loan.CollateralAmount),
		CollateralTarget: bigString(loan.CollateralTarget),
		Deposited:        bigString(loan.Deposited()),
		StartTs:          loan.StartTs,
		DueTs:            loan.DueTs,
		Status:           loan.Status.String(),
		CollateralType:   loan.CollateralType.String(),
		ExistingUser:     loan.ExistingUser,
	}
}

// writeCreditError maps loan engine failures onto JSON-RPC error responses.
func writeCreditError(w http.ResponseWriter, id interface{}, err error) {
	status := http.StatusBadRequest
	code := codeServerError
	switch {
	case errors.Is(err, credit.ErrInvalidAmount),
		errors.Is(err, credit.ErrInvalidTimestamp),
		errors.Is(err, credit.ErrInvalidCollateralMint),
		errors.Is(err, credit.ErrInvalidCollateralType):
		code = codeInvalidParams
	case errors.Is(err, credit.ErrLoanNotFound),
		errors.Is(err, credit.ErrProfileNotFound):
		status = http.StatusNotFound
	case errors.Is(err, credit.ErrUnauthorized):
		status = http.StatusForbidden
		code = codeUnauthorized
	case errors.Is(err, credit.ErrUserHasDefaults),
		errors.Is(err, credit.ErrNoActiveLoans),
		errors.Is(err, credit.ErrLoanClosed),
		errors.Is(err, credit.ErrLoanNotDue),
		errors.Is(err, credit.ErrInsufficientBalance):
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}
	writeError(w, status, id, code, err.Error(), nil)
}

func (s *Server) handleCreditInitializeLoan(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var params creditInitializeParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	borrower, err := decodeBech32(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrower", err.Error())
		return
	}
	principal, err := parseAmount(params.Principal)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	target, err := parseAmount(params.CollateralTarget)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	started := time.Now()
	loan, engineErr := s.node.LoanInitialize(borrower, principal, params.InterestBps, params.CollateralMint, target, params.DueSeconds, params.ExistingUser)
	observability.Credit().Observe("initialize_loan", time.Since(started), engineErr)
	if engineErr != nil {
		writeCreditError(w, req.ID, engineErr)
		return
	}
	writeResult(w, req.ID, formatLoan(loan))
}

func (s *Server) handleCreditDepositCollateral(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var params creditDepositParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	id, err := decodeLoanID(params.LoanID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	collateralType, err := credit.ParseCollateralType(params.CollateralType)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid collateralType", err.Error())
		return
	}
	started := time.Now()
	engineErr := s.node.LoanDeposit(caller, id, params.CollateralMint, amount, collateralType)
	observability.Credit().Observe("deposit_collateral", time.Since(started), engineErr)
	if engineErr != nil {
		writeCreditError(w, req.ID, engineErr)
		return
	}
	loan, err := s.node.LoanGet(id)
	if err != nil {
		writeCreditError(w, req.ID, err)
		return
	}
	if vault, vaultErr := s.node.VaultBalance(id); vaultErr == nil {
		observability.Credit().RecordEscrowBalance(loan.CollateralMint, vault)
	}
	writeResult(w, req.ID, formatLoan(loan))
}

func (s *Server) handleCreditWithdrawLoan(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var params creditWithdrawParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	id, err := decodeLoanID(params.LoanID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	started := time.Now()
	released, engineErr := s.node.LoanWithdraw(caller, id)
	observability.Credit().Observe("withdraw_loan", time.Since(started), engineErr)
	if engineErr != nil {
		writeCreditError(w, req.ID, engineErr)
		return
	}
	if loan, loanErr := s.node.LoanGet(id); loanErr == nil {
		if vault, vaultErr := s.node.VaultBalance(id); vaultErr == nil {
			observability.Credit().RecordEscrowBalance(loan.CollateralMint, vault)
		}
	}
	writeResult(w, req.ID, withdrawResult{LoanID: strings.TrimSpace(params.LoanID), Released: bigString(released)})
}

func (s *Server) handleCreditMarkDefaulted(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var params creditMarkDefaultedParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	id, err := decodeLoanID(params.LoanID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	started := time.Now()
	engineErr := s.node.LoanMarkDefaulted(id, 0)
	observability.Credit().Observe("mark_defaulted", time.Since(started), engineErr)
	if engineErr != nil {
		writeCreditError(w, req.ID, engineErr)
		return
	}
	observability.Credit().RecordDefault()
	loan, err := s.node.LoanGet(id)
	if err != nil {
		writeCreditError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatLoan(loan))
}

func (s *Server) handleCreditGetLoan(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected loan id parameter", nil)
		return
	}
	var loanID string
	if err := json.Unmarshal(req.Params[0], &loanID); err != nil {
		var wrapped creditLoanParams
		if err := json.Unmarshal(req.Params[0], &wrapped); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid loan id parameter", err.Error())
			return
		}
		loanID = wrapped.LoanID
	}
	id, err := decodeLoanID(loanID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	loan, engineErr := s.node.LoanGet(id)
	if engineErr != nil {
		writeCreditError(w, req.ID, engineErr)
		return
	}
	writeResult(w, req.ID, formatLoan(loan))
}

func (s *Server) handleCreditListLoans(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	borrower, ok := s.parseBorrowerParam(w, req)
	if !ok {
		return
	}
	loans, engineErr := s.node.LoanList(borrower)
	if engineErr != nil {
		writeCreditError(w, req.ID, engineErr)
		return
	}
	results := make([]loanResult, 0, len(loans))
	for _, loan := range loans {
		results = append(results, formatLoan(loan))
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleCreditGetProfile(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	borrower, ok := s.parseBorrowerParam(w, req)
	if !ok {
		return
	}
	profile, engineErr := s.node.ProfileGet(borrower)
	if engineErr != nil {
		writeCreditError(w, req.ID, engineErr)
		return
	}
	writeResult(w, req.ID, profileResult{
		User:             encodeBech32(profile.User),
		TotalLoansTaken:  profile.TotalLoansTaken,
		TotalLoansRepaid: profile.TotalLoansRepaid,
		TotalDefaults:    profile.TotalDefaults,
		ReputationScore:  profile.ReputationScore,
		LastLoanTs:       profile.LastLoanTs,
		Tier:             uint8(profile.Tier()),
	})
}

func (s *Server) handleCreditVaultBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected loan id parameter", nil)
		return
	}
	var loanID string
	if err := json.Unmarshal(req.Params[0], &loanID); err != nil {
		var wrapped creditLoanParams
		if err := json.Unmarshal(req.Params[0], &wrapped); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid loan id parameter", err.Error())
			return
		}
		loanID = wrapped.LoanID
	}
	id, err := decodeLoanID(loanID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, engineErr := s.node.VaultBalance(id)
	if engineErr != nil {
		writeCreditError(w, req.ID, engineErr)
		return
	}
	writeResult(w, req.ID, balanceResult{Balance: bigString(balance)})
}

func (s *Server) handleTokenMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var params tokenMintParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	to, err := decodeBech32(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid to", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if mintErr := s.node.MintToken(caller, params.Token, to, amount); mintErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeServerError, mintErr.Error(), nil)
		return
	}
	balance, balErr := s.node.TokenBalance(to, params.Token)
	if balErr != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, balErr.Error(), nil)
		return
	}
	writeResult(w, req.ID, balanceResult{Balance: bigString(balance)})
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var params tokenBalanceParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	addr, err := decodeBech32(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	balance, balErr := s.node.TokenBalance(addr, params.Token)
	if balErr != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, balErr.Error(), nil)
		return
	}
	writeResult(w, req.ID, balanceResult{Balance: bigString(balance)})
}

func (s *Server) handleTokenList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	tokens, err := s.node.TokenList()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	if tokens == nil {
		tokens = []string{}
	}
	writeResult(w, req.ID, tokens)
}

func (s *Server) parseBorrowerParam(w http.ResponseWriter, req *RPCRequest) ([20]byte, bool) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected borrower parameter", nil)
		return [20]byte{}, false
	}
	var addressParam string
	if err := json.Unmarshal(req.Params[0], &addressParam); err != nil {
		var wrapped creditBorrowerParams
		if err := json.Unmarshal(req.Params[0], &wrapped); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrower parameter", err.Error())
			return [20]byte{}, false
		}
		addressParam = wrapped.Borrower
	}
	trimmed := strings.TrimSpace(addressParam)
	if trimmed == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "borrower required", nil)
		return [20]byte{}, false
	}
	addr, err := decodeBech32(trimmed)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrower", err.Error())
		return [20]byte{}, false
	}
	return addr, true
}
