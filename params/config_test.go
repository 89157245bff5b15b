package params

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperswap/pkg/util"
)

var envKeys = []string{
	"EXCHANGE_ADDRESS", "FEE_ACCOUNT", "FEE_PERCENT", "CHAIN_ID", "DATA_DIR",
	"API_ADDR", "LOG_FILE", "CORS_ORIGINS", "DEVNET_DEPLOYER", "DEVNET_ALLOC", "VERBOSE",
}

// clearEnv blanks every variable for the test and restores them after
func clearEnv(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromEnv(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, uint64(10), cfg.Exchange.FeePercent)
	assert.Equal(t, DefaultDeployer, cfg.Exchange.FeeAccount)
	assert.Equal(t, crypto.CreateAddress(DefaultDeployer, 1), cfg.Exchange.Address)
	assert.Equal(t, crypto.CreateAddress(DefaultDeployer, 0), cfg.Devnet.Token)
	assert.Equal(t, big.NewInt(1337), cfg.Devnet.ChainID)
	assert.Equal(t, util.Ether("100"), cfg.Devnet.Alloc[DefaultDeployer])
	assert.Equal(t, "data", cfg.Node.DataDir)
	assert.False(t, cfg.Node.Verbose)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	deployer := common.HexToAddress("0xFFcf8FDEE72ac11b5c542428B35EEF5769C409f0")
	fee := common.HexToAddress("0x22d491Bde2303f2f43325b2108D26f1eAbA1e32b")
	t.Setenv("DEVNET_DEPLOYER", deployer.Hex())
	t.Setenv("FEE_ACCOUNT", fee.Hex())
	t.Setenv("FEE_PERCENT", "3")
	t.Setenv("CHAIN_ID", "31337")
	t.Setenv("DATA_DIR", "")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000, https://example.org")
	t.Setenv("DEVNET_ALLOC", deployer.Hex()+"=5,"+fee.Hex()+"=0.5")
	t.Setenv("VERBOSE", "true")

	cfg, err := LoadFromEnv(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, crypto.CreateAddress(deployer, 1), cfg.Exchange.Address)
	assert.Equal(t, fee, cfg.Exchange.FeeAccount)
	assert.Equal(t, uint64(3), cfg.Exchange.FeePercent)
	assert.Equal(t, big.NewInt(31337), cfg.Devnet.ChainID)
	assert.Empty(t, cfg.Node.DataDir)
	assert.Equal(t, []string{"http://localhost:3000", "https://example.org"}, cfg.Node.CORSOrigins)
	assert.Equal(t, util.Ether("0.5"), cfg.Devnet.Alloc[fee])
	assert.True(t, cfg.Node.Verbose)
}

func TestDotEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FEE_PERCENT=7\nAPI_ADDR=:9090\n"), 0o600))

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), cfg.Exchange.FeePercent)
	assert.Equal(t, ":9090", cfg.Node.APIAddr)
}

func TestInvalidValues(t *testing.T) {
	cases := map[string]string{
		"FEE_PERCENT":      "ten",
		"CHAIN_ID":         "0x",
		"EXCHANGE_ADDRESS": "nope",
		"DEVNET_ALLOC":     "0x22d491Bde2303f2f43325b2108D26f1eAbA1e32b",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := LoadFromEnv(missingEnvFile(t))
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Exchange.FeeAccount = common.Address{}
	cfg.Devnet.ChainID = big.NewInt(0)
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fee account")
	assert.Contains(t, err.Error(), "chain id")
}

func TestParseAlloc(t *testing.T) {
	alloc, err := ParseAlloc("0x22d491Bde2303f2f43325b2108D26f1eAbA1e32b=1.5")
	require.NoError(t, err)
	assert.Equal(t, util.Ether("1.5"), alloc[common.HexToAddress("0x22d491Bde2303f2f43325b2108D26f1eAbA1e32b")])

	_, err = ParseAlloc("0x22d491Bde2303f2f43325b2108D26f1eAbA1e32b=-1")
	assert.Error(t, err)
}
