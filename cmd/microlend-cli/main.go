package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"microlend/crypto"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("MICROLEND_RPC_TOKEN")

func main() {
	args := os.Args[1:]
	var err error
	rpcEndpoint = defaultRPCEndpoint()
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "generate-key":
		generateKey()
	case "loan-init":
		if len(args) < 6 {
			fmt.Println("Error: Please provide principal, interest bps, mint, collateral target, and duration.")
			printUsage()
			return
		}
		loanInit(args[1], args[2], args[3], args[4], args[5], keyFileArg(args, 6))
	case "loan-deposit":
		if len(args) < 5 {
			fmt.Println("Error: Please provide a loan id, mint, amount, and collateral type.")
			printUsage()
			return
		}
		loanDeposit(args[1], args[2], args[3], args[4], keyFileArg(args, 5))
	case "loan-withdraw":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a loan id.")
			printUsage()
			return
		}
		loanWithdraw(args[1], keyFileArg(args, 2))
	case "loan-default":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a loan id.")
			printUsage()
			return
		}
		loanDefault(args[1])
	case "loan-get":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a loan id.")
			printUsage()
			return
		}
		loanGet(args[1])
	case "loan-list":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a borrower address.")
			printUsage()
			return
		}
		loanList(args[1])
	case "profile":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a borrower address.")
			printUsage()
			return
		}
		profile(args[1])
	case "vault-balance":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a loan id.")
			printUsage()
			return
		}
		vaultBalance(args[1])
	case "mint":
		if len(args) < 4 {
			fmt.Println("Error: Please provide a token, recipient address, and amount.")
			printUsage()
			return
		}
		mint(args[1], args[2], args[3], keyFileArg(args, 4))
	case "balance":
		if len(args) < 3 {
			fmt.Println("Error: Please provide an address and a token.")
			printUsage()
			return
		}
		balance(args[1], args[2])
	case "tokens":
		tokens()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func keyFileArg(args []string, idx int) string {
	if len(args) > idx {
		return args[idx]
	}
	return "wallet.key"
}

func generateKey() {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		panic(err)
	}

	fileName := "wallet.key"
	if err := os.WriteFile(fileName, key.Bytes(), 0600); err != nil {
		panic(fmt.Sprintf("Failed to save key to %s: %v", fileName, err))
	}

	fmt.Printf("Generated new key and saved to %s\n", fileName)
	fmt.Printf("Your public address is: %s\n", key.PubKey().Address().String())
	fmt.Println("Store this file securely. Commands will refuse to run without a local key.")
}

func loanInit(principal, interest, mint, target, duration, keyFile string) {
	addr, err := localAddress(keyFile)
	if err != nil {
		fmt.Printf("Error loading private key: %v\n", err)
		return
	}
	interestBps, err := strconv.ParseUint(interest, 10, 16)
	if err != nil {
		fmt.Println("Error: Invalid interest bps.")
		return
	}
	dueSeconds, err := strconv.ParseUint(duration, 10, 32)
	if err != nil {
		fmt.Println("Error: Invalid duration.")
		return
	}
	result, err := callRPC("credit_initializeLoan", map[string]interface{}{
		"borrower":         addr,
		"principal":        principal,
		"interestBps":      uint16(interestBps),
		"collateralMint":   mint,
		"collateralTarget": target,
		"dueSeconds":       uint32(dueSeconds),
	}, true)
	if err != nil {
		fmt.Printf("Error initializing loan: %v\n", err)
		return
	}
	printJSON(result)
}

func loanDeposit(loanID, mint, amount, collateralType, keyFile string) {
	addr, err := localAddress(keyFile)
	if err != nil {
		fmt.Printf("Error loading private key: %v\n", err)
		return
	}
	result, err := callRPC("credit_depositCollateral", map[string]interface{}{
		"caller":         addr,
		"loanId":         loanID,
		"collateralMint": mint,
		"amount":         amount,
		"collateralType": collateralType,
	}, true)
	if err != nil {
		fmt.Printf("Error depositing collateral: %v\n", err)
		return
	}
	printJSON(result)
}

func loanWithdraw(loanID, keyFile string) {
	addr, err := localAddress(keyFile)
	if err != nil {
		fmt.Printf("Error loading private key: %v\n", err)
		return
	}
	result, err := callRPC("credit_withdrawLoan", map[string]interface{}{
		"caller": addr,
		"loanId": loanID,
	}, true)
	if err != nil {
		fmt.Printf("Error withdrawing loan: %v\n", err)
		return
	}
	printJSON(result)
}

func loanDefault(loanID string) {
	result, err := callRPC("credit_markDefaulted", map[string]interface{}{
		"loanId": loanID,
	}, true)
	if err != nil {
		fmt.Printf("Error marking loan defaulted: %v\n", err)
		return
	}
	printJSON(result)
}

func loanGet(loanID string) {
	result, err := callRPC("credit_getLoan", loanID, false)
	if err != nil {
		fmt.Printf("Error fetching loan: %v\n", err)
		return
	}
	printJSON(result)
}

func loanList(borrower string) {
	result, err := callRPC("credit_listLoans", borrower, false)
	if err != nil {
		fmt.Printf("Error listing loans: %v\n", err)
		return
	}
	printJSON(result)
}

func profile(borrower string) {
	result, err := callRPC("credit_getProfile", borrower, false)
	if err != nil {
		fmt.Printf("Error fetching profile: %v\n", err)
		return
	}
	printJSON(result)
}

func vaultBalance(loanID string) {
	result, err := callRPC("credit_vaultBalance", loanID, false)
	if err != nil {
		fmt.Printf("Error fetching vault balance: %v\n", err)
		return
	}
	printJSON(result)
}

func mint(token, to, amount, keyFile string) {
	addr, err := localAddress(keyFile)
	if err != nil {
		fmt.Printf("Error loading private key: %v\n", err)
		return
	}
	result, err := callRPC("token_mint", map[string]interface{}{
		"caller": addr,
		"token":  token,
		"to":     to,
		"amount": amount,
	}, true)
	if err != nil {
		fmt.Printf("Error minting: %v\n", err)
		return
	}
	printJSON(result)
}

func balance(addr, token string) {
	result, err := callRPC("token_balance", map[string]interface{}{
		"address": addr,
		"token":   token,
	}, false)
	if err != nil {
		fmt.Printf("Error fetching balance: %v\n", err)
		return
	}
	printJSON(result)
}

func tokens() {
	payload, _ := json.Marshal(map[string]interface{}{
		"id": 1, "method": "token_list", "params": []interface{}{},
	})
	result, err := doRPCCall(payload, false)
	if err != nil {
		fmt.Printf("Error listing tokens: %v\n", err)
		return
	}
	printJSON(result)
}

// --- RPC HELPER FUNCTIONS ---

func callRPC(method string, param interface{}, requireAuth bool) (json.RawMessage, error) {
	payload := map[string]interface{}{"id": 1, "method": method}
	if param != nil {
		payload["params"] = []interface{}{param}
	} else {
		payload["params"] = []interface{}{}
	}
	body, _ := json.Marshal(payload)
	return doRPCCall(body, requireAuth)
}

func doRPCCall(payload []byte, requireAuth bool) (json.RawMessage, error) {
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if requireAuth {
		if rpcAuthToken == "" {
			return nil, fmt.Errorf("privileged RPC call requires MICROLEND_RPC_TOKEN to be set")
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from node")
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("error from node: %s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func localAddress(keyFile string) (string, error) {
	privKey, err := loadPrivateKey(keyFile)
	if err != nil {
		return "", err
	}
	return privKey.PubKey().Address().String(), nil
}

func loadPrivateKey(path string) (*crypto.PrivateKey, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("private key file %s not found. run ./microlend-cli generate-key first", path)
		}
		return nil, fmt.Errorf("failed to read private key file %s: %w", path, err)
	}
	if len(keyBytes) == 0 {
		return nil, fmt.Errorf("private key file %s is empty. run ./microlend-cli generate-key first", path)
	}
	privKey, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key in %s: %w", path, err)
	}
	return privKey, nil
}

func printJSON(result json.RawMessage) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Println(string(result))
		return
	}
	fmt.Println(pretty.String())
}

func printUsage() {
	fmt.Println("Usage: microlend-cli [--rpc <url>] <command> [arguments]")
	fmt.Println()
	fmt.Println("Signing commands derive the caller address from a locally generated key.")
	fmt.Println("Run ./microlend-cli generate-key first; wallet.key is used unless a key file is given.")
	fmt.Println("Commands:")
	fmt.Println("  generate-key                                          - Generates a new key and saves to wallet.key")
	fmt.Println("  loan-init <principal> <bps> <mint> <target> <secs> [key] - Opens a loan request")
	fmt.Println("  loan-deposit <loan_id> <mint> <amount> <type> [key]   - Deposits collateral into a loan")
	fmt.Println("  loan-withdraw <loan_id> [key]                         - Repays and reclaims collateral")
	fmt.Println("  loan-default <loan_id>                                - Marks an overdue loan as defaulted")
	fmt.Println("  loan-get <loan_id>                                    - Fetches a loan record")
	fmt.Println("  loan-list <address>                                   - Lists a borrower's open loans")
	fmt.Println("  profile <address>                                     - Fetches a borrower profile")
	fmt.Println("  vault-balance <loan_id>                               - Shows escrowed collateral for a loan")
	fmt.Println("  mint <token> <address> <amount> [key]                 - Mints token supply (authority only)")
	fmt.Println("  balance <address> <token>                             - Checks a token balance")
	fmt.Println("  tokens                                                - Lists registered tokens")
}
