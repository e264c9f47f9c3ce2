package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/juno-intents/quest-escrow/internal/authsig"
	"github.com/juno-intents/quest-escrow/internal/quest"
	"github.com/juno-intents/quest-escrow/internal/questclient"
	"github.com/juno-intents/quest-escrow/internal/secrets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runMain(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runMain(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("subcommand is required: approve|reject|expire|auto-approve")
	}
	switch sub := strings.TrimSpace(args[0]); sub {
	case "approve", "reject", "expire", "auto-approve":
		return runVerdict(ctx, sub, args[1:], stdout)
	default:
		return fmt.Errorf("unsupported subcommand %q (want approve|reject|expire|auto-approve)", sub)
	}
}

func runVerdict(ctx context.Context, sub string, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("quest-oracle "+sub, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	apiURL := fs.String("api-url", "", "quest API base URL (required)")
	insecure := fs.Bool("insecure-http", false, "allow a plain http API URL")
	timeout := fs.Duration("timeout", 15*time.Second, "HTTP timeout")

	keyFile := fs.String("key-file", "", "oracle private key file")
	keyHex := fs.String("key-hex", "", "oracle private key hex")
	keySecret := fs.String("key-secret", "", "oracle private key secret reference (env:NAME or aws:ID)")

	questID := fs.Uint64("quest-id", 0, "quest id")
	claimer := fs.String("claimer", "", "claimer address (required)")
	safetyFlagged := fs.Bool("safety-flagged", false, "reject: forfeit the stake for a safety violation")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*apiURL) == "" {
		return errors.New("--api-url is required")
	}
	if !common.IsHexAddress(strings.TrimSpace(*claimer)) {
		return errors.New("--claimer must be a valid hex address")
	}
	if *safetyFlagged && sub != "reject" {
		return errors.New("--safety-flagged only applies to reject")
	}
	ref := quest.ClaimRef{QuestID: *questID, Claimer: common.HexToAddress(strings.TrimSpace(*claimer))}

	opts := []questclient.Option{questclient.WithTimeout(*timeout)}
	if *insecure {
		opts = append(opts, questclient.WithInsecureHTTP())
	}
	// Expiry and auto-approval are permissionless, so they work without a key.
	if sub == "approve" || sub == "reject" || *keyFile != "" || *keyHex != "" || *keySecret != "" {
		key, err := loadKey(ctx, *keyFile, *keyHex, *keySecret)
		if err != nil {
			return err
		}
		opts = append(opts, questclient.WithSigner(key))
	}
	client, err := questclient.New(*apiURL, opts...)
	if err != nil {
		return err
	}

	var out any
	switch sub {
	case "approve":
		out, err = client.Approve(ctx, ref)
	case "reject":
		out, err = client.Reject(ctx, ref, *safetyFlagged)
	case "expire":
		out, err = client.Expire(ctx, ref)
	case "auto-approve":
		out, err = client.AutoApprove(ctx, ref)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", sub, ref.String(), err)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func loadKey(ctx context.Context, file, hexKey, secretRef string) (*ecdsa.PrivateKey, error) {
	set := 0
	for _, v := range []string{file, hexKey, secretRef} {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	switch {
	case set == 0:
		return nil, errors.New("one of --key-file, --key-hex or --key-secret is required")
	case set > 1:
		return nil, errors.New("use only one of --key-file, --key-hex or --key-secret")
	}

	switch {
	case strings.TrimSpace(file) != "":
		return authsig.LoadPrivateKeyFile(file)
	case strings.TrimSpace(hexKey) != "":
		return authsig.ParsePrivateKeyHex(hexKey)
	default:
		raw, err := secrets.Resolve(ctx, secretRef)
		if err != nil {
			return nil, fmt.Errorf("resolve oracle key: %w", err)
		}
		return authsig.ParsePrivateKeyHex(raw)
	}
}
