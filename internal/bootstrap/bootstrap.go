// Package bootstrap assembles the conversation stack from configuration. The API
// server, the worker and the CLI all build their collaborators here.
package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/chatpay/chatpay/internal/audit"
	"github.com/chatpay/chatpay/internal/config"
	"github.com/chatpay/chatpay/internal/conversation"
	"github.com/chatpay/chatpay/internal/coupons"
	"github.com/chatpay/chatpay/internal/executor"
	"github.com/chatpay/chatpay/internal/identity"
	"github.com/chatpay/chatpay/internal/intent"
	"github.com/chatpay/chatpay/internal/ledger"
	"github.com/chatpay/chatpay/internal/llm"
	"github.com/chatpay/chatpay/internal/messaging"
	"github.com/chatpay/chatpay/internal/metrics"
	"github.com/chatpay/chatpay/internal/onboarding"
	"github.com/chatpay/chatpay/internal/pending"
	"github.com/chatpay/chatpay/internal/pin"
	"github.com/chatpay/chatpay/internal/price"
	"github.com/chatpay/chatpay/internal/scheduled"
	"github.com/chatpay/chatpay/internal/transactions"
	"github.com/chatpay/chatpay/internal/wallet"
)

// Stack holds every long-lived collaborator. DB and Cache are nil when the
// matching URL is not configured, in which case memory backends are used.
type Stack struct {
	Cfg    config.Config
	Logger *slog.Logger
	DB     *pgxpool.Pool
	Cache  *redis.Client

	Ledger ledger.Ledger
	// Simulated is set only in simulated wallet mode.
	Simulated *wallet.SimulatedChain

	UserRepo     identity.Repository
	Users        *identity.Service
	Wallets      *wallet.Service
	Transactions transactions.Repository
	AuditRepo    audit.Repository
	Audit        *audit.Recorder
	Coupons      *coupons.Service
	Scheduled    scheduled.Repository
	Pending      pending.Store
	// MemoryPending is set when Pending is the in-process store and needs sweeping.
	MemoryPending *pending.MemoryStore
	Sender        messaging.Sender
	Executor      *executor.Executor
	Router        *conversation.Router
	Sweeper       *scheduled.Sweeper
}

// Build wires the stack. db and cache may be nil.
func Build(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Stack, error) {
	s := &Stack{Cfg: cfg, Logger: logger, DB: db, Cache: cache}

	dailyLimit, err := decimal.NewFromString(cfg.DailyLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid DAILY_LIMIT: %w", err)
	}

	if db != nil {
		s.Ledger = ledger.NewPostgresLedger(db)
		s.UserRepo = identity.NewPostgresRepository(db)
		s.Transactions = transactions.NewPostgresRepository(db)
		s.AuditRepo = audit.NewPostgresRepository(db)
		s.Scheduled = scheduled.NewPostgresRepository(db)
	} else {
		s.Ledger = ledger.NewInMemory()
		s.UserRepo = identity.NewMemoryRepository()
		s.Transactions = transactions.NewMemoryRepository()
		s.AuditRepo = audit.NewMemoryRepository()
		s.Scheduled = scheduled.NewMemoryRepository()
	}

	s.Users = identity.NewService(s.UserRepo, pin.Default, identity.Defaults{
		DailyLimit: dailyLimit,
		Network:    cfg.Network,
		Token:      cfg.TokenSymbol,
	})
	s.Audit = audit.NewRecorder(s.AuditRepo, logger)

	chain, contract, err := s.buildChain()
	if err != nil {
		return nil, err
	}
	deriver, err := s.buildDeriver()
	if err != nil {
		return nil, err
	}
	var walletRepo wallet.Repository
	var couponRepo coupons.Repository
	if db != nil {
		walletRepo = wallet.NewPostgresRepository(db)
		couponRepo = coupons.NewPostgresRepository(db)
	} else {
		walletRepo = wallet.NewMemoryRepository()
		couponRepo = coupons.NewMemoryRepository()
	}
	s.Wallets = wallet.NewService(walletRepo, deriver, chain, logger)
	s.Coupons = coupons.NewService(couponRepo, contract, logger)

	s.buildPending()
	s.buildSender()

	s.Executor = executor.New(s.Users, s.Wallets, s.Transactions, s.Coupons, s.Sender, logger, executor.Options{
		TransferTimeout: cfg.TransferTimeout,
	})
	s.Sweeper = scheduled.NewSweeper(s.Scheduled, s.Executor, logger)

	var prices price.Feed = price.Static{}
	if cfg.PriceFeedURL != "" {
		prices = price.NewCoinGecko(cfg.PriceFeedURL, logger)
	}

	s.Router = conversation.NewRouter(conversation.Deps{
		Users:        s.Users,
		Wallets:      s.Wallets,
		Onboarding:   onboarding.NewSequencer(s.Users, s.Wallets, s.Audit, logger),
		Classifier:   intent.NewClassifier(s.buildCompleter(), logger),
		Pending:      s.Pending,
		Executor:     s.Executor,
		Coupons:      s.Coupons,
		Transactions: s.Transactions,
		Prices:       prices,
		Audit:        s.Audit,
		Logger:       logger,
		Settings: conversation.Settings{
			Token:       cfg.TokenSymbol,
			Network:     cfg.Network,
			ExplorerURL: cfg.ExplorerURL,
			PendingTTL:  cfg.PendingTTL,
		},
	})
	return s, nil
}

func (s *Stack) buildChain() (wallet.Chain, coupons.Contract, error) {
	cfg := s.Cfg
	switch cfg.WalletMode {
	case config.WalletModeEVM:
		chain := wallet.NewEVMChain(wallet.EVMChainConfig{
			RPCURL:        cfg.EVMRPCURL,
			SignerURL:     cfg.SignerURL,
			TokenContract: cfg.TokenContract,
			TokenSymbol:   cfg.TokenSymbol,
			TokenDecimals: cfg.TokenDecimals,
		}, s.Logger)
		return chain, coupons.NewSignerContract(cfg.SignerURL, cfg.TokenDecimals), nil
	case config.WalletModeSimulated, "":
		initial, err := decimal.NewFromString(cfg.InitialBalance)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid SIMULATED_INITIAL_BALANCE: %w", err)
		}
		s.Simulated = wallet.NewSimulatedChain(s.Ledger, wallet.SimulatedChainConfig{
			NativeSymbol:   cfg.NativeSymbol,
			InitialBalance: initial,
			Token:          cfg.TokenSymbol,
		})
		return s.Simulated, coupons.NewLedgerContract(s.Ledger), nil
	default:
		return nil, nil, fmt.Errorf("unknown wallet mode %q", cfg.WalletMode)
	}
}

func (s *Stack) buildDeriver() (*wallet.Deriver, error) {
	mnemonic := s.Cfg.WalletMnemonic
	if mnemonic == "" {
		if s.Cfg.WalletMode == config.WalletModeEVM {
			return nil, errors.New("WALLET_MNEMONIC is required in evm mode")
		}
		generated, err := wallet.NewRandomMnemonic()
		if err != nil {
			return nil, err
		}
		s.Logger.Warn("WALLET_MNEMONIC not set, using a throwaway mnemonic; addresses change on restart")
		mnemonic = generated
	}
	return wallet.NewDeriver(mnemonic)
}

func (s *Stack) buildPending() {
	if s.Cfg.PendingStore == config.PendingStoreRedis && s.Cache != nil {
		s.Pending = pending.NewRedisStore(s.Cache, s.Cfg.PendingTTL)
		return
	}
	s.MemoryPending = pending.NewMemoryStore(s.Cfg.PendingTTL, pending.WithExpiryHook(func(a pending.Action) {
		metrics.PendingActionsTotal.WithLabelValues("expired").Inc()
		s.Logger.Debug("pending action expired", slog.String("action_id", a.ID), slog.String("kind", string(a.Kind)))
	}))
	s.Pending = s.MemoryPending
}

func (s *Stack) buildSender() {
	if s.Cfg.TwilioEnabled() {
		s.Sender = messaging.NewTwilioSender(messaging.TwilioConfig{
			AccountSID: s.Cfg.TwilioAccountSID,
			AuthToken:  s.Cfg.TwilioAuthToken,
			From:       s.Cfg.TwilioFrom,
		})
		return
	}
	s.Sender = messaging.NewLoggerSender(s.Logger)
}

// buildCompleter returns nil when no LLM is configured so the classifier runs
// on its deterministic rules alone.
func (s *Stack) buildCompleter() llm.Completer {
	if !s.Cfg.LLMEnabled() {
		return nil
	}
	openai := llm.NewOpenAI(llm.OpenAIConfig{
		APIKey:  s.Cfg.OpenAIAPIKey,
		BaseURL: s.Cfg.OpenAIBaseURL,
		Model:   s.Cfg.OpenAIModel,
		Timeout: s.Cfg.LLMTimeout,
	})
	breaker := llm.NewBreaker(llm.BreakerConfig{
		OnStateChange: func(from, to llm.State) {
			s.Logger.Warn("llm breaker state change", slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
	return llm.NewGuarded(openai, breaker)
}
