// @title        Secret Commit API
// @version      1.0
// @description  Local wallet service that commits an encrypted amount on-chain and decrypts it for its owner.
// @host         localhost:8080
// @BasePath     /
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/AlexZinkM/secret-commit/docs"
	"github.com/AlexZinkM/secret-commit/ethwallet"
	"github.com/AlexZinkM/secret-commit/internal/api"
	"github.com/AlexZinkM/secret-commit/internal/client"
	"github.com/AlexZinkM/secret-commit/internal/config"
	"github.com/AlexZinkM/secret-commit/internal/fhevm"
	"github.com/AlexZinkM/secret-commit/internal/handler"
	"github.com/AlexZinkM/secret-commit/internal/logger"
	"github.com/AlexZinkM/secret-commit/internal/workflow"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

func main() {
	if err := config.Init(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := config.Get()

	log, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("exit", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(cfg *config.Config, log *zap.Logger) error {
	if err := config.PromptForPassword(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fhevmCfg, err := networkConfig(cfg)
	if err != nil {
		return err
	}
	contract, err := parseAddress("CONTRACT_ADDRESS", cfg.ContractAddress)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.InitTimeout)
	chain, err := client.DialChain(dialCtx, cfg.ChainRPCURL, contract,
		client.WithPollInterval(cfg.ReceiptPollInterval),
		client.WithLogger(log))
	cancel()
	if err != nil {
		return fmt.Errorf("failed to dial chain: %w", err)
	}

	relayer := relayerFor(cfg.RelayerURL, cfg.DecryptTimeout, log)
	if relayer == nil {
		log.Warn("RELAYER_URL not set, connect will report encryption unavailable")
	}
	load := func(ctx context.Context) (workflow.Capability, error) {
		return fhevm.New(ctx, fhevmCfg, relayer, fhevm.WithLogger(log))
	}

	machine, err := workflow.NewMachine(workflow.Config{
		Contract:          contract,
		PropagationDelay:  cfg.PropagationDelay,
		AuthorizationDays: cfg.AuthorizationDays,
		InitTimeout:       cfg.InitTimeout,
		SubmitTimeout:     cfg.SubmitTimeout,
		DecryptTimeout:    cfg.DecryptTimeout,
	}, load, chain, workflow.WithLogger(log))
	if err != nil {
		return err
	}

	// The session wallet only signs for the commitment contract and the decryption domain
	allowed := ethwallet.WithAllowedContracts(contract, fhevmCfg.VerifyingContractAddressDecryption)
	open := func() (handler.SessionWallet, error) {
		password, err := config.GetWalletPasswordBytes()
		if err != nil {
			return nil, err
		}
		defer clear(password)
		wallet, err := ethwallet.Open(cfg.WalletFilePath, password, allowed)
		if err != nil {
			return nil, err
		}
		return wallet, nil
	}

	walletHandler, err := handler.NewWalletHandler(cfg.WalletFilePath, cfg.ChainID, log)
	if err != nil {
		return err
	}
	commitmentHandler := handler.NewCommitmentHandler(machine, chain, open, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.SetupRouter(walletHandler, commitmentHandler, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("contract", contract.Hex()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	machine.Disconnect()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// relayerFor returns nil when no relayer is configured
func relayerFor(url string, timeout time.Duration, log *zap.Logger) fhevm.Relayer {
	if url == "" {
		return nil
	}
	return client.NewRelayerClient(url, timeout, log)
}

func networkConfig(cfg *config.Config) (fhevm.Config, error) {
	out := fhevm.Config{
		ChainID:        cfg.ChainID,
		GatewayChainID: cfg.GatewayChainID,
	}
	fields := []struct {
		env   string
		value string
		dst   *common.Address
	}{
		{"ACL_CONTRACT_ADDRESS", cfg.ACLContractAddress, &out.ACLContractAddress},
		{"KMS_CONTRACT_ADDRESS", cfg.KMSContractAddress, &out.KMSContractAddress},
		{"INPUT_VERIFIER_CONTRACT_ADDRESS", cfg.InputVerifierContractAddress, &out.InputVerifierContractAddress},
		{"DECRYPTION_VERIFYING_CONTRACT", cfg.DecryptionVerifyingContract, &out.VerifyingContractAddressDecryption},
		{"INPUT_VERIFICATION_VERIFYING_CONTRACT", cfg.InputVerificationVerifyingContract, &out.VerifyingContractAddressInputVerification},
	}
	for _, f := range fields {
		addr, err := parseAddress(f.env, f.value)
		if err != nil {
			return fhevm.Config{}, err
		}
		*f.dst = addr
	}
	if err := out.Validate(); err != nil {
		return fhevm.Config{}, err
	}
	return out, nil
}

func parseAddress(env, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s is not a hex address: %q", env, value)
	}
	return common.HexToAddress(value), nil
}
