package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"microlend/config"
	"microlend/core"
	"microlend/crypto"
	"microlend/observability/logging"
	"microlend/rpc"
	"microlend/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const operatorPassEnv = "MICROLEND_OPERATOR_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("MICROLEND_ENV"))
	logger := logging.Setup("microlendd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	operatorKey, err := loadOperatorKey(cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to load operator key: %v", err))
	}
	operatorAddr := operatorKey.PubKey().Address()

	node := core.NewNode(db)
	if err := bootstrapTokens(node, cfg, operatorAddr); err != nil {
		panic(fmt.Sprintf("Failed to bootstrap tokens: %v", err))
	}

	logger.Info("microlend node initialised",
		slog.String("network", cfg.NetworkName),
		slog.String("operator", operatorAddr.String()),
		slog.String("rpc", cfg.RPCAddress))

	http.Handle("/metrics", promhttp.Handler())

	rpcServer := rpc.NewServer(node)
	if err := rpcServer.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server terminated", slog.Any("error", err))
		os.Exit(1)
	}
}

func loadOperatorKey(cfg *config.Config) (*crypto.PrivateKey, error) {
	if cfg.OperatorKeystorePath == "" {
		return nil, fmt.Errorf("operator keystore path not configured")
	}
	passphrase := os.Getenv(operatorPassEnv)
	key, err := crypto.LoadFromKeystore(cfg.OperatorKeystorePath, passphrase)
	if err != nil {
		return nil, fmt.Errorf("unable to decrypt keystore %s: %w", cfg.OperatorKeystorePath, err)
	}
	return key, nil
}

// bootstrapTokens registers every configured collateral mint and binds its
// mint authority. Tokens without an explicit authority default to the node
// operator.
func bootstrapTokens(node *core.Node, cfg *config.Config, operator crypto.Address) error {
	for _, token := range cfg.Tokens {
		symbol := strings.TrimSpace(token.Symbol)
		if symbol == "" {
			continue
		}
		if err := node.RegisterToken(symbol, token.Name, token.Decimals); err != nil {
			return fmt.Errorf("register token %s: %w", symbol, err)
		}
		authority := operator
		if trimmed := strings.TrimSpace(token.MintAuthority); trimmed != "" {
			decoded, err := crypto.DecodeAddress(trimmed)
			if err != nil {
				return fmt.Errorf("decode mint authority for %s: %w", symbol, err)
			}
			authority = decoded
		}
		var addr [20]byte
		copy(addr[:], authority.Bytes())
		if err := node.SetTokenMintAuthority(symbol, addr); err != nil {
			return fmt.Errorf("set mint authority for %s: %w", symbol, err)
		}
	}
	return nil
}
