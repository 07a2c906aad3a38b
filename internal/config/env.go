package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"
)

// Config contains all configuration parameters for the application.
// Note: Password is prompted at runtime and stored in memory - use GetWalletPasswordBytes()
type Config struct {
	Port           string `envconfig:"PORT" default:"8080"`
	WalletFilePath string `envconfig:"WALLET_FILE_PATH" required:"true"`

	// Chain holding the commitment contract (Sepolia by default)
	ChainRPCURL     string `envconfig:"CHAIN_RPC_URL" default:"https://ethereum-sepolia-rpc.publicnode.com"`
	ChainID         uint64 `envconfig:"CHAIN_ID" default:"11155111"`
	ContractAddress string `envconfig:"CONTRACT_ADDRESS" default:"0xe2dbd48f9fcfbf30bff433f5e30258ab7040e94b"`

	// FHEVM v0.9 network parameters.
	// RelayerURL must serve the /v1/keyurl, /v1/input-proof and /v1/user-decrypt API of
	// internal/client; left empty the encryption capability reports itself unavailable.
	RelayerURL                         string `envconfig:"RELAYER_URL"`
	GatewayChainID                     uint64 `envconfig:"GATEWAY_CHAIN_ID" default:"10901"`
	ACLContractAddress                 string `envconfig:"ACL_CONTRACT_ADDRESS" default:"0xf0Ffdc93b7E186bC2f8CB3dAA75D86d1930A433D"`
	KMSContractAddress                 string `envconfig:"KMS_CONTRACT_ADDRESS" default:"0xbE0E383937d564D7FF0BC3b46c51f0bF8d5C311A"`
	InputVerifierContractAddress       string `envconfig:"INPUT_VERIFIER_CONTRACT_ADDRESS" default:"0xBBC1fFCdc7C316aAAd72E807D9b0272BE8F84DA0"`
	DecryptionVerifyingContract        string `envconfig:"DECRYPTION_VERIFYING_CONTRACT" default:"0x5D8BD78e2ea6bbE41f26dFe9fdaEAa349e077478"`
	InputVerificationVerifyingContract string `envconfig:"INPUT_VERIFICATION_VERIFYING_CONTRACT" default:"0x483b9dE06E4E4C7D35CCf5837A1668487406D955"`

	// Workflow timing
	PropagationDelay    time.Duration `envconfig:"PROPAGATION_DELAY" default:"10s"`
	AuthorizationDays   uint64        `envconfig:"AUTHORIZATION_DAYS" default:"10"`
	InitTimeout         time.Duration `envconfig:"INIT_TIMEOUT" default:"30s"`
	SubmitTimeout       time.Duration `envconfig:"SUBMIT_TIMEOUT" default:"3m"`
	DecryptTimeout      time.Duration `envconfig:"DECRYPT_TIMEOUT" default:"2m"`
	ReceiptPollInterval time.Duration `envconfig:"RECEIPT_POLL_INTERVAL" default:"2s"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"LOG_DEVELOPMENT" default:"false"`
}

// Validate checks values envconfig cannot express
func (c *Config) Validate() error {
	if c.WalletFilePath == "" {
		return errors.New("WALLET_FILE_PATH not set")
	}
	if c.PropagationDelay < 0 {
		return errors.New("PROPAGATION_DELAY must not be negative")
	}
	if c.AuthorizationDays == 0 {
		return errors.New("AUTHORIZATION_DAYS must be at least 1")
	}
	if c.ChainID == 0 || c.GatewayChainID == 0 {
		return errors.New("CHAIN_ID and GATEWAY_CHAIN_ID must be set")
	}
	if c.SubmitTimeout <= 0 || c.DecryptTimeout <= 0 || c.InitTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	return nil
}

// cfg is the global configuration instance
var cfg *Config

// Init loads configuration from environment variables.
func Init() error {
	c := &Config{}
	if err := envconfig.Process("", c); err != nil {
		return fmt.Errorf("failed to process config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg = c
	return nil
}

// Get returns the global configuration instance.
// Panics if Init() was not called.
func Get() *Config {
	if cfg == nil {
		panic("config not initialized, call Init() first")
	}
	return cfg
}

// GetPort returns port from configuration
func GetPort() string {
	return Get().Port
}

// GetWalletFilePath returns path to .cwt file from configuration
func GetWalletFilePath() string {
	return Get().WalletFilePath
}

var passwordBytes []byte

// PromptForPassword prompts the user for the wallet password in the terminal.
// The password is read without echoing (hidden input) and stored in memory.
// Call this at startup before the server begins handling requests.
func PromptForPassword() error {
	raw, err := ReadPassword("Enter wallet password: ")
	if err != nil {
		return err
	}
	SetWalletPassword(raw)
	clear(raw)
	return nil
}

// ReadPassword reads one hidden line from the terminal
func ReadPassword(prompt string) ([]byte, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("stdin is not a terminal: run the app interactively to enter password")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("password cannot be empty")
	}
	return raw, nil
}

// SetWalletPassword stores a copy of the password in memory
func SetWalletPassword(raw []byte) {
	clear(passwordBytes)
	passwordBytes = make([]byte, len(raw))
	copy(passwordBytes, raw)
}

// GetWalletPasswordBytes returns the password stored in memory (from PromptForPassword).
// Returns an error if the password was not set.
// Caller must zero the returned slice after use for security.
func GetWalletPasswordBytes() ([]byte, error) {
	if len(passwordBytes) == 0 {
		return nil, errors.New("password not set: call PromptForPassword at startup")
	}
	out := make([]byte, len(passwordBytes))
	copy(out, passwordBytes)
	return out, nil
}
