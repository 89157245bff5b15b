package params

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"

	"github.com/uhyunpark/hyperswap/pkg/util"
)

// DefaultDeployer is the first account of the standard development mnemonic
var DefaultDeployer = common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")

type Exchange struct {
	Address    common.Address // defaults to the deployer's second contract
	FeeAccount common.Address
	FeePercent uint64
}

type Devnet struct {
	ChainID  *big.Int
	Deployer common.Address
	// Token is the deployer's first contract, the exchange its second
	Token common.Address
	Alloc map[common.Address]*uint256.Int
}

type Node struct {
	DataDir     string // empty keeps state in memory
	APIAddr     string
	LogFile     string
	CORSOrigins []string
	Verbose     bool
}

type Config struct {
	Exchange Exchange
	Devnet   Devnet
	Node     Node
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			Address:    crypto.CreateAddress(DefaultDeployer, 1),
			FeeAccount: DefaultDeployer,
			FeePercent: 10,
		},
		Devnet: Devnet{
			ChainID:  big.NewInt(1337),
			Deployer: DefaultDeployer,
			Token:    crypto.CreateAddress(DefaultDeployer, 0),
			Alloc:    map[common.Address]*uint256.Int{DefaultDeployer: util.Ether("100")},
		},
		Node: Node{
			DataDir:     "data",
			APIAddr:     ":8080",
			CORSOrigins: []string{"*"},
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("DEVNET_DEPLOYER"); v != "" {
		addr, err := parseAddress("DEVNET_DEPLOYER", v)
		if err != nil {
			return cfg, err
		}
		cfg.Devnet.Deployer = addr
		cfg.Devnet.Token = crypto.CreateAddress(addr, 0)
		cfg.Exchange.Address = crypto.CreateAddress(addr, 1)
		cfg.Exchange.FeeAccount = addr
		cfg.Devnet.Alloc = map[common.Address]*uint256.Int{addr: util.Ether("100")}
	}
	if v := os.Getenv("EXCHANGE_ADDRESS"); v != "" {
		addr, err := parseAddress("EXCHANGE_ADDRESS", v)
		if err != nil {
			return cfg, err
		}
		cfg.Exchange.Address = addr
	}
	if v := os.Getenv("FEE_ACCOUNT"); v != "" {
		addr, err := parseAddress("FEE_ACCOUNT", v)
		if err != nil {
			return cfg, err
		}
		cfg.Exchange.FeeAccount = addr
	}
	if v := os.Getenv("FEE_PERCENT"); v != "" {
		pct, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("FEE_PERCENT: %w", err)
		}
		cfg.Exchange.FeePercent = pct
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return cfg, fmt.Errorf("CHAIN_ID: invalid integer %q", v)
		}
		cfg.Devnet.ChainID = id
	}
	if v := os.Getenv("DEVNET_ALLOC"); v != "" {
		alloc, err := ParseAlloc(v)
		if err != nil {
			return cfg, fmt.Errorf("DEVNET_ALLOC: %w", err)
		}
		cfg.Devnet.Alloc = alloc
	}

	if v, ok := os.LookupEnv("DATA_DIR"); ok {
		cfg.Node.DataDir = v
	}
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Node.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("VERBOSE"); v != "" {
		cfg.Node.Verbose = v == "true" || v == "1"
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Exchange.Address == (common.Address{}) {
		errs = append(errs, errors.New("exchange address is required"))
	}
	if c.Exchange.FeeAccount == (common.Address{}) {
		errs = append(errs, errors.New("fee account is required"))
	}
	if c.Devnet.ChainID == nil || c.Devnet.ChainID.Sign() <= 0 {
		errs = append(errs, errors.New("chain id must be positive"))
	}
	if c.Devnet.Token == c.Exchange.Address {
		errs = append(errs, errors.New("token and exchange addresses collide"))
	}
	if c.Node.APIAddr == "" {
		errs = append(errs, errors.New("api address is required"))
	}
	return errors.Join(errs...)
}

// ParseAlloc reads "0xabc...=100,0xdef...=2.5" (amounts in ether)
func ParseAlloc(s string) (map[common.Address]*uint256.Int, error) {
	alloc := make(map[common.Address]*uint256.Int)
	for _, entry := range splitList(s) {
		addrStr, amountStr, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("entry %q: want address=ether", entry)
		}
		addr, err := parseAddress("address", strings.TrimSpace(addrStr))
		if err != nil {
			return nil, err
		}
		amount, err := util.ParseUnits(strings.TrimSpace(amountStr), util.EtherDecimals)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", entry, err)
		}
		alloc[addr] = amount
	}
	return alloc, nil
}

func parseAddress(name, v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", name, v)
	}
	return common.HexToAddress(v), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
