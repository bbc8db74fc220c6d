package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"microlend/crypto"
)

func TestLoadCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8080" {
		t.Fatalf("unexpected rpc address %q", cfg.RPCAddress)
	}
	if cfg.NetworkName != "microlend-local" {
		t.Fatalf("unexpected network name %q", cfg.NetworkName)
	}
	if len(cfg.Tokens) != 3 {
		t.Fatalf("expected 3 default tokens, got %d", len(cfg.Tokens))
	}
	if cfg.Tokens[0].Symbol != "WSOL" || cfg.Tokens[0].Decimals != 9 {
		t.Fatalf("unexpected first token %+v", cfg.Tokens[0])
	}

	// The config file and operator keystore must exist on disk afterwards.
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if _, err := os.Stat(cfg.OperatorKeystorePath); err != nil {
		t.Fatalf("keystore not written: %v", err)
	}
	if _, err := crypto.LoadFromKeystore(cfg.OperatorKeystorePath, ""); err != nil {
		t.Fatalf("keystore unreadable: %v", err)
	}
}

func TestLoadReloadsExistingConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	first, err := Load(path)
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}
	second, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if second.OperatorKeystorePath != first.OperatorKeystorePath {
		t.Fatalf("keystore path changed across reloads: %q vs %q", second.OperatorKeystorePath, first.OperatorKeystorePath)
	}
	firstKey, err := crypto.LoadFromKeystore(first.OperatorKeystorePath, "")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	secondKey, err := crypto.LoadFromKeystore(second.OperatorKeystorePath, "")
	if err != nil {
		t.Fatalf("reload keystore: %v", err)
	}
	if firstKey.PubKey().Address().String() != secondKey.PubKey().Address().String() {
		t.Fatalf("operator key regenerated across reloads")
	}
}

func TestLoadParsesTokenOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	keystorePath := filepath.Join(dir, "operator.keystore")
	authority := crypto.NewAddress(crypto.LendPrefix, make([]byte, 20)).String()
	contents := fmt.Sprintf(`RPCAddress = ":9090"
DataDir = "./ledger"
NetworkName = "microlend-test"
OperatorKeystorePath = "%s"

[[Tokens]]
Symbol = "WSOL"
Name = "Wrapped SOL"
Decimals = 9
MintAuthority = "%s"
`, keystorePath, authority)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":9090" {
		t.Fatalf("unexpected rpc address %q", cfg.RPCAddress)
	}
	if cfg.DataDir != "./ledger" {
		t.Fatalf("unexpected data dir %q", cfg.DataDir)
	}
	if cfg.NetworkName != "microlend-test" {
		t.Fatalf("unexpected network name %q", cfg.NetworkName)
	}
	if len(cfg.Tokens) != 1 {
		t.Fatalf("expected single token override, got %d", len(cfg.Tokens))
	}
	if cfg.Tokens[0].MintAuthority != authority {
		t.Fatalf("unexpected mint authority %q", cfg.Tokens[0].MintAuthority)
	}
	if _, err := os.Stat(keystorePath); err != nil {
		t.Fatalf("keystore not created for existing config: %v", err)
	}
}
