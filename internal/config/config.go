package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Currency is an allow-listed margin token. MinEtherPrice is the minimum
// amount of the native gas token obtainable for 1e18 wei of the currency,
// used to price liquidation proceeds conservatively.
type Currency struct {
	Name          string
	MinEtherPrice *big.Int
}

// ArbTask configures one arbitrage pair: the internal pool against the
// external AMM pool for the same token, probed with a fixed notional.
type ArbTask struct {
	PoolID      common.Hash
	Token       common.Address
	Fee         *big.Int
	ProbeAmount *big.Int
}

// Network is the immutable per-chain configuration built once at startup
// and passed into each component; components never look configuration up
// ambiently.
type Network struct {
	ChainID               uint64
	RPCURL                string
	StartBlock            uint64
	MarginChecker         common.Address
	MarginHookManager     common.Address
	MarginPositionManager common.Address
	SwapHelper            common.Address
	ExternalQuoter        common.Address
	WrappedNative         common.Address
	Currencies            map[common.Address]Currency
	ArbTasks              []ArbTask
}

// AllowsCurrency reports whether a margin token passes the allow-list. An
// empty allow-list allows everything.
func (n Network) AllowsCurrency(token common.Address) bool {
	if len(n.Currencies) == 0 {
		return true
	}
	_, ok := n.Currencies[token]
	return ok
}

// MinEtherPrice returns the configured floor price for a currency.
func (n Network) MinEtherPrice(token common.Address) (*big.Int, bool) {
	c, ok := n.Currencies[token]
	if !ok || c.MinEtherPrice == nil {
		return nil, false
	}
	return c.MinEtherPrice, true
}

// Config holds the merged runtime configuration.
type Config struct {
	Network      Network
	PrivateKey   string
	PGDSN        string
	MetricsAddr  string
	LogLevel     string
	BatchSize    uint64
	SyncInterval time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Load merges config file, MARGINBOT_-prefixed environment variables, and
// flags. PRIVATE_KEY is read from the environment (.env honored) and never
// from the config file.
func Load(cfgFile string, chainID uint64, flags *pflag.FlagSet) (Config, error) {
	// best effort; secrets may come from the real environment instead
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("MARGINBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("batch-size", uint64(1000))
	v.SetDefault("sync-interval", 10*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("metrics-addr", ":9090")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	network, err := loadNetwork(v, chainID)
	if err != nil {
		return Config{}, err
	}
	if rpcOverride := v.GetString("rpc"); rpcOverride != "" {
		network.RPCURL = rpcOverride
	}
	if network.RPCURL == "" {
		return Config{}, fmt.Errorf("rpc url is required for chain %d", chainID)
	}

	privateKey := v.GetString("private-key")
	if privateKey == "" {
		privateKey = os.Getenv("PRIVATE_KEY")
	}

	cfg := Config{
		Network:      network,
		PrivateKey:   privateKey,
		PGDSN:        v.GetString("pg-dsn"),
		MetricsAddr:  v.GetString("metrics-addr"),
		LogLevel:     v.GetString("log-level"),
		BatchSize:    v.GetUint64("batch-size"),
		SyncInterval: v.GetDuration("sync-interval"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
	}
	return cfg, nil
}

type fileCurrency struct {
	Name          string `mapstructure:"name"`
	MinEtherPrice string `mapstructure:"min-ether-price"`
}

type fileArbTask struct {
	PoolID      string `mapstructure:"pool-id"`
	Token       string `mapstructure:"token"`
	Fee         uint64 `mapstructure:"fee"`
	ProbeAmount string `mapstructure:"probe-amount"`
}

type fileNetwork struct {
	RPCURL                string                  `mapstructure:"rpc"`
	StartBlock            uint64                  `mapstructure:"start-block"`
	MarginChecker         string                  `mapstructure:"margin-checker"`
	MarginHookManager     string                  `mapstructure:"margin-hook-manager"`
	MarginPositionManager string                  `mapstructure:"margin-position-manager"`
	SwapHelper            string                  `mapstructure:"swap-helper"`
	ExternalQuoter        string                  `mapstructure:"external-quoter"`
	WrappedNative         string                  `mapstructure:"wrapped-native"`
	Currencies            map[string]fileCurrency `mapstructure:"currencies"`
	ArbTasks              []fileArbTask           `mapstructure:"arb-tasks"`
}

func loadNetwork(v *viper.Viper, chainID uint64) (Network, error) {
	key := fmt.Sprintf("networks.%d", chainID)
	if !v.IsSet(key) {
		return Network{}, fmt.Errorf("no network configured for chain %d", chainID)
	}

	var raw fileNetwork
	if err := v.UnmarshalKey(key, &raw); err != nil {
		return Network{}, fmt.Errorf("parse network %d: %w", chainID, err)
	}

	network := Network{
		ChainID:    chainID,
		RPCURL:     raw.RPCURL,
		StartBlock: raw.StartBlock,
		Currencies: make(map[common.Address]Currency, len(raw.Currencies)),
	}

	var err error
	if network.MarginChecker, err = parseAddress("margin-checker", raw.MarginChecker); err != nil {
		return Network{}, err
	}
	if network.MarginHookManager, err = parseAddress("margin-hook-manager", raw.MarginHookManager); err != nil {
		return Network{}, err
	}
	if network.MarginPositionManager, err = parseAddress("margin-position-manager", raw.MarginPositionManager); err != nil {
		return Network{}, err
	}
	if raw.SwapHelper != "" {
		if network.SwapHelper, err = parseAddress("swap-helper", raw.SwapHelper); err != nil {
			return Network{}, err
		}
	}
	if raw.ExternalQuoter != "" {
		if network.ExternalQuoter, err = parseAddress("external-quoter", raw.ExternalQuoter); err != nil {
			return Network{}, err
		}
	}
	if raw.WrappedNative != "" {
		if network.WrappedNative, err = parseAddress("wrapped-native", raw.WrappedNative); err != nil {
			return Network{}, err
		}
	}

	for addr, c := range raw.Currencies {
		token, err := parseAddress("currency", addr)
		if err != nil {
			return Network{}, err
		}
		price, err := parseBig("min-ether-price", c.MinEtherPrice)
		if err != nil {
			return Network{}, err
		}
		network.Currencies[token] = Currency{Name: c.Name, MinEtherPrice: price}
	}

	for _, t := range raw.ArbTasks {
		token, err := parseAddress("arb task token", t.Token)
		if err != nil {
			return Network{}, err
		}
		probe, err := parseBig("probe-amount", t.ProbeAmount)
		if err != nil {
			return Network{}, err
		}
		poolID, err := parsePoolID(t.PoolID)
		if err != nil {
			return Network{}, err
		}
		network.ArbTasks = append(network.ArbTasks, ArbTask{
			PoolID:      poolID,
			Token:       token,
			Fee:         new(big.Int).SetUint64(t.Fee),
			ProbeAmount: probe,
		})
	}

	return network, nil
}

func parseAddress(field, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s address: %q", field, input)
	}
	return common.HexToAddress(input), nil
}

func parseBig(field, input string) (*big.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	value, ok := new(big.Int).SetString(input, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s: %q", field, input)
	}
	return value, nil
}

func parsePoolID(input string) (common.Hash, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "0x") || len(input) != 66 {
		return common.Hash{}, fmt.Errorf("invalid pool id: %q", input)
	}
	return common.HexToHash(input), nil
}
