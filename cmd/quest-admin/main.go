package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juno-intents/quest-escrow/internal/authsig"
	"github.com/juno-intents/quest-escrow/internal/fees"
	"github.com/juno-intents/quest-escrow/internal/quest"
	questpg "github.com/juno-intents/quest-escrow/internal/quest/postgres"
)

// storeOpener returns a quest store for dsn and a func that releases it.
type storeOpener func(ctx context.Context, dsn string) (quest.Store, func(), error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runMain(ctx, os.Args[1:], os.Stdout, openPostgres); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runMain(ctx context.Context, args []string, stdout io.Writer, open storeOpener) error {
	if len(args) == 0 {
		return errors.New("subcommand is required: init|fund|balance|keygen")
	}
	switch sub := strings.TrimSpace(args[0]); sub {
	case "init":
		return runInit(ctx, args[1:], stdout, open)
	case "fund":
		return runFund(ctx, args[1:], stdout, open)
	case "balance":
		return runBalance(ctx, args[1:], stdout, open)
	case "keygen":
		return runKeygen(args[1:], stdout)
	default:
		return fmt.Errorf("unsupported subcommand %q (want init|fund|balance|keygen)", sub)
	}
}

type configOutput struct {
	Authority         string `json:"authority"`
	Treasury          string `json:"treasury"`
	FeeBps            uint16 `json:"fee_bps"`
	BurnBps           uint16 `json:"burn_bps"`
	ProofWindowHours  uint32 `json:"proof_window_hours"`
	ReviewWindowHours uint32 `json:"review_window_hours"`
}

func runInit(ctx context.Context, args []string, stdout io.Writer, open storeOpener) error {
	fs := flag.NewFlagSet("quest-admin init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	postgresDSN := fs.String("postgres-dsn", "", "Postgres DSN (required)")
	authority := fs.String("authority", "", "oracle address allowed to approve and reject completions")
	authorityKeyFile := fs.String("authority-key-file", "", "derive --authority from this private key file")
	treasury := fs.String("treasury", "", "account receiving protocol fees (required)")
	feeBps := fs.Uint("fee-bps", 250, "protocol fee in basis points")
	burnBps := fs.Uint("burn-bps", 0, "share of the fee burned, in basis points")
	proofWindow := fs.Uint("proof-window-hours", 0, "default proof window for new quests (0 selects the protocol default)")
	reviewWindow := fs.Uint("review-window-hours", 0, "review window before auto-approval (0 selects the protocol default)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*postgresDSN) == "" {
		return errors.New("--postgres-dsn is required")
	}
	auth, err := resolveAuthority(*authority, *authorityKeyFile)
	if err != nil {
		return err
	}
	treasuryAddr, err := parseAddress("--treasury", *treasury)
	if err != nil {
		return err
	}
	fee, err := parseBps("--fee-bps", *feeBps)
	if err != nil {
		return err
	}
	burn, err := parseBps("--burn-bps", *burnBps)
	if err != nil {
		return err
	}
	if *proofWindow > math.MaxUint32 || *reviewWindow > math.MaxUint32 {
		return errors.New("window hours must fit uint32")
	}

	store, closeStore, err := open(ctx, *postgresDSN)
	if err != nil {
		return err
	}
	defer closeStore()

	eng, err := quest.NewEngine(store, quest.EngineConfig{}, nil)
	if err != nil {
		return err
	}
	cfg, err := eng.Initialize(ctx, quest.InitParams{
		Authority:         auth,
		Treasury:          treasuryAddr,
		FeeBps:            fee,
		BurnBps:           burn,
		ProofWindowHours:  uint32(*proofWindow),
		ReviewWindowHours: uint32(*reviewWindow),
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return writeJSON(stdout, configOutput{
		Authority:         cfg.Authority.Hex(),
		Treasury:          cfg.Treasury.Hex(),
		FeeBps:            cfg.FeeBps,
		BurnBps:           cfg.BurnBps,
		ProofWindowHours:  cfg.ProofWindowHours,
		ReviewWindowHours: cfg.ReviewWindowHours,
	})
}

type balanceOutput struct {
	Account string `json:"account"`
	Mint    string `json:"mint"`
	Balance string `json:"balance"`
}

func runFund(ctx context.Context, args []string, stdout io.Writer, open storeOpener) error {
	fs := flag.NewFlagSet("quest-admin fund", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	postgresDSN := fs.String("postgres-dsn", "", "Postgres DSN (required)")
	account := fs.String("account", "", "account to credit (required)")
	mint := fs.String("mint", "", "token mint (required)")
	amount := fs.String("amount", "", "amount in base units (required)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*postgresDSN) == "" {
		return errors.New("--postgres-dsn is required")
	}
	acct, err := parseAddress("--account", *account)
	if err != nil {
		return err
	}
	mintAddr, err := parseAddress("--mint", *mint)
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(strings.TrimSpace(*amount), 10, 64)
	if err != nil || n == 0 {
		return errors.New("--amount must be a positive integer")
	}

	store, closeStore, err := open(ctx, *postgresDSN)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Credit(ctx, acct, mintAddr, n); err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	bal, err := store.Balance(ctx, acct, mintAddr)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	return writeJSON(stdout, balanceOutput{Account: acct.Hex(), Mint: mintAddr.Hex(), Balance: strconv.FormatUint(bal, 10)})
}

func runBalance(ctx context.Context, args []string, stdout io.Writer, open storeOpener) error {
	fs := flag.NewFlagSet("quest-admin balance", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	postgresDSN := fs.String("postgres-dsn", "", "Postgres DSN (required)")
	account := fs.String("account", "", "account (required)")
	mint := fs.String("mint", "", "token mint (required)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*postgresDSN) == "" {
		return errors.New("--postgres-dsn is required")
	}
	acct, err := parseAddress("--account", *account)
	if err != nil {
		return err
	}
	mintAddr, err := parseAddress("--mint", *mint)
	if err != nil {
		return err
	}

	store, closeStore, err := open(ctx, *postgresDSN)
	if err != nil {
		return err
	}
	defer closeStore()

	bal, err := store.Balance(ctx, acct, mintAddr)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	return writeJSON(stdout, balanceOutput{Account: acct.Hex(), Mint: mintAddr.Hex(), Balance: strconv.FormatUint(bal, 10)})
}

type keygenOutput struct {
	Address    string `json:"address"`
	KeyPath    string `json:"key_path"`
	KeyCreated bool   `json:"key_created"`
}

func runKeygen(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("quest-admin keygen", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	keyPath := fs.String("key-path", "", "path for the secp256k1 signing key (created if missing)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*keyPath) == "" {
		return errors.New("--key-path is required")
	}
	key, created, err := authsig.EnsureKeyFile(*keyPath)
	if err != nil {
		return err
	}
	return writeJSON(stdout, keygenOutput{
		Address:    authsig.Address(key).Hex(),
		KeyPath:    *keyPath,
		KeyCreated: created,
	})
}

func resolveAuthority(addr, keyFile string) (common.Address, error) {
	addr, keyFile = strings.TrimSpace(addr), strings.TrimSpace(keyFile)
	switch {
	case addr != "" && keyFile != "":
		return common.Address{}, errors.New("use only one of --authority or --authority-key-file")
	case keyFile != "":
		key, err := authsig.LoadPrivateKeyFile(keyFile)
		if err != nil {
			return common.Address{}, err
		}
		return authsig.Address(key), nil
	default:
		return parseAddress("--authority", addr)
	}
}

func parseAddress(name, v string) (common.Address, error) {
	v = strings.TrimSpace(v)
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%s must be a valid hex address", name)
	}
	a := common.HexToAddress(v)
	if a == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s must be non-zero", name)
	}
	return a, nil
}

func parseBps(name string, v uint) (uint16, error) {
	if v > math.MaxUint16 {
		return 0, fmt.Errorf("%s out of range", name)
	}
	if err := fees.ValidateBps(uint16(v)); err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return uint16(v), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func openPostgres(ctx context.Context, dsn string) (quest.Store, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("init pgx pool: %w", err)
	}
	store, err := questpg.New(pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("init quest store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure quest schema: %w", err)
	}
	return store, pool.Close, nil
}
