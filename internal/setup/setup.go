// Package setup implements the one-shot Setup Orchestrator (spec.md §4.C):
// declares the benchmark contract classes, deploys an ERC20 and an ERC721
// instance, derives and deploys the benchmark accounts, and funds them,
// before a shooter is ever started. Any failure here is fatal
// (errkind.SetupFailed) — spec.md's benchmark never runs against a
// partially-initialised chain.
package setup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/gateway-fm/starknet-gatling/internal/account"
	"github.com/gateway-fm/starknet-gatling/internal/backoff"
	"github.com/gateway-fm/starknet-gatling/internal/config"
	"github.com/gateway-fm/starknet-gatling/internal/contractclass"
	"github.com/gateway-fm/starknet-gatling/internal/errkind"
	"github.com/gateway-fm/starknet-gatling/internal/rpc"
	"github.com/gateway-fm/starknet-gatling/internal/starkcurve"
	"github.com/gateway-fm/starknet-gatling/pkg/felt"
)

// setupMaxFee bounds every transaction the orchestrator itself submits.
// Real fee estimation for declare/deploy_account is out of scope for the
// same reason class-hash computation is (spec.md §1); this is a generous
// literal sized for a devnet or low-gas test network.
var setupMaxFee = felt.FromUint64(1_000_000_000_000_000_000) // 10^18

const (
	invokeVersion        = "0x1"
	declareVersionLegacy = "0x2"
	declareVersionSierra = "0x3"
	deployAccountVersion = "0x1"

	maxParallelDeploys = 16
)

var (
	transferSelector       = felt.Selector("transfer")
	balanceOfSelector      = felt.Selector("balanceOf")
	udcDeployContractLabel = felt.Selector("deployContract")
)

// Orchestrator runs the setup phase against a Client.
type Orchestrator struct {
	client rpc.Client
	curve  starkcurve.Curve
	logger *slog.Logger
}

// New constructs an Orchestrator.
func New(client rpc.Client, curve starkcurve.Curve, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{client: client, curve: curve, logger: logger}
}

// Result is everything the shooter runtime needs to start a benchmark.
type Result struct {
	ERC20Address  felt.Element
	ERC721Address felt.Element
	Accounts      []*account.Account
}

// Run executes the full setup sequence described in spec.md §4.C.
func (o *Orchestrator) Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	deployerAddress, err := felt.FromHex(cfg.Deployer.Address)
	if err != nil {
		return nil, errkind.New(errkind.SetupFailed, fmt.Errorf("deployer.address: %w", err))
	}
	deployerSigningKey, err := felt.FromHex(cfg.Deployer.SigningKey)
	if err != nil {
		return nil, errkind.New(errkind.SetupFailed, fmt.Errorf("deployer.signing_key: %w", err))
	}
	chainID := felt.Selector(cfg.Setup.ChainID)

	deployer := account.New(o.curve, deployerAddress, deployerSigningKey, chainID, cfg.Deployer.LegacyAccount)
	if err := deployer.Resync(ctx, o.client); err != nil {
		return nil, errkind.New(errkind.SetupFailed, fmt.Errorf("resyncing deployer: %w", err))
	}
	o.logger.Info("deployer ready", slog.String("address", deployer.Address.Hex()), slog.Uint64("nonce", deployer.PeekNonce()))

	erc20Class, err := contractclass.Load(o.curve, cfg.Setup.ERC20Contract)
	if err != nil {
		return nil, errkind.New(errkind.SetupFailed, fmt.Errorf("loading erc20 class: %w", err))
	}
	erc721Class, err := contractclass.Load(o.curve, cfg.Setup.ERC721Contract)
	if err != nil {
		return nil, errkind.New(errkind.SetupFailed, fmt.Errorf("loading erc721 class: %w", err))
	}
	accountClass, err := contractclass.Load(o.curve, cfg.Setup.AccountContract)
	if err != nil {
		return nil, errkind.New(errkind.SetupFailed, fmt.Errorf("loading account class: %w", err))
	}

	classes := []struct {
		name  string
		class *contractclass.Class
	}{
		{"erc20", erc20Class},
		{"erc721", erc721Class},
		{"account", accountClass},
	}
	for _, c := range classes {
		if err := o.declare(ctx, deployer, cfg, c.class); err != nil {
			return nil, errkind.New(errkind.SetupFailed, fmt.Errorf("declaring %s class: %w", c.name, err))
		}
	}
	o.logger.Info("classes declared")

	udcAddress, err := felt.FromHex(cfg.Setup.UDC())
	if err != nil {
		return nil, errkind.New(errkind.SetupFailed, fmt.Errorf("setup.udc_address: %w", err))
	}

	erc20Address, err := o.deployViaUDC(ctx, deployer, cfg, udcAddress, erc20Class.ClassHash, felt.FromUint64(1), []felt.Element{deployer.Address})
	if err != nil {
		return nil, errkind.New(errkind.SetupFailed, fmt.Errorf("deploying erc20: %w", err))
	}
	erc721Address, err := o.deployViaUDC(ctx, deployer, cfg, udcAddress, erc721Class.ClassHash, felt.FromUint64(2), []felt.Element{deployer.Address})
	if err != nil {
		return nil, errkind.New(errkind.SetupFailed, fmt.Errorf("deploying erc721: %w", err))
	}
	o.logger.Info("benchmark contracts deployed",
		slog.String("erc20", erc20Address.Hex()), slog.String("erc721", erc721Address.Hex()))

	accounts, err := o.deriveAccounts(cfg, chainID, accountClass)
	if err != nil {
		return nil, errkind.New(errkind.SetupFailed, err)
	}

	if err := o.fundAccounts(ctx, deployer, cfg, accounts); err != nil {
		return nil, errkind.New(errkind.SetupFailed, fmt.Errorf("funding accounts: %w", err))
	}
	o.logger.Info("accounts funded", slog.Int("count", len(accounts)))

	if err := o.deployAccounts(ctx, cfg, accountClass, accounts); err != nil {
		return nil, errkind.New(errkind.SetupFailed, fmt.Errorf("deploying accounts: %w", err))
	}
	o.logger.Info("accounts deployed", slog.Int("count", len(accounts)))

	if err := o.seedTokenBalances(ctx, deployer, cfg, erc20Address, accounts); err != nil {
		return nil, errkind.New(errkind.SetupFailed, fmt.Errorf("seeding token balances: %w", err))
	}

	expectedBalance, err := felt.FromHex(cfg.Setup.TokenBalance())
	if err != nil {
		return nil, errkind.New(errkind.SetupFailed, fmt.Errorf("setup.initial_token_balance: %w", err))
	}
	if err := o.verifyReadiness(ctx, cfg, erc20Address, accounts, expectedBalance); err != nil {
		return nil, errkind.New(errkind.SetupFailed, fmt.Errorf("verifying account readiness: %w", err))
	}
	o.logger.Info("setup complete", slog.Int("accounts", len(accounts)))

	return &Result{ERC20Address: erc20Address, ERC721Address: erc721Address, Accounts: accounts}, nil
}

// verifyReadiness is spec.md §4.C's final gate: before a shooter is ever
// started, every account's ERC20 balance and on-chain nonce must meet what
// setup expects (at least the seeded balance, and a nonce of at least 1
// following its deploy_account transaction). ">=" rather than strict
// equality keeps a second setup run against an already-provisioned chain
// (TestOrchestratorRunIsIdempotentOnRedeclare's scenario) passing the gate
// instead of hanging on balances a prior run already funded past the
// literal expected amount. Both checks for every account are folded into a
// single BatchCall per attempt, retried on backoff.Setup()'s schedule.
func (o *Orchestrator) verifyReadiness(ctx context.Context, cfg *config.Config, erc20 felt.Element, accounts []*account.Account, expectedBalance felt.Element) error {
	deadline := cfg.Run.MaxWait()

	ready, err := backoff.Retry(ctx, backoff.Setup(), deadline, func() (bool, error) {
		calls := make([]rpc.BatchRequest, 0, len(accounts)*2)
		for _, acc := range accounts {
			calls = append(calls,
				rpc.BatchRequest{Method: "starknet_call", Params: []any{
					map[string]any{
						"contract_address":     erc20.Hex(),
						"entry_point_selector": balanceOfSelector.Hex(),
						"calldata":             []string{acc.Address.Hex()},
					},
					"pending",
				}},
				rpc.BatchRequest{Method: "starknet_getNonce", Params: []any{"pending", acc.Address.Hex()}},
			)
		}

		results, err := o.client.BatchCall(ctx, calls)
		if err != nil {
			return false, err
		}
		if len(results) != len(calls) {
			return false, fmt.Errorf("readiness check: expected %d batch results, got %d", len(calls), len(results))
		}

		for i := range accounts {
			balance, err := decodeBalance(results[2*i])
			if err != nil {
				return false, nil
			}
			nonce, err := decodeNonce(results[2*i+1])
			if err != nil {
				return false, nil
			}
			if balance.BigInt().Cmp(expectedBalance.BigInt()) < 0 || nonce < 1 {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if !ready {
		return errkind.New(errkind.Timeout, fmt.Errorf("accounts not ready within %s", deadline))
	}
	return nil
}

// decodeBalance reads the low limb of a balanceOf response's u256 pair; the
// orchestrator only ever seeds amounts that fit in it.
func decodeBalance(res rpc.BatchResponse) (felt.Element, error) {
	if res.Err != nil {
		return felt.Element{}, res.Err
	}
	var limbs []string
	if err := json.Unmarshal(res.Result, &limbs); err != nil || len(limbs) == 0 {
		return felt.Element{}, fmt.Errorf("decoding balance response: %w", err)
	}
	return felt.FromHex(limbs[0])
}

func decodeNonce(res rpc.BatchResponse) (uint64, error) {
	if res.Err != nil {
		return 0, res.Err
	}
	var nonceHex string
	if err := json.Unmarshal(res.Result, &nonceHex); err != nil {
		return 0, fmt.Errorf("decoding nonce response: %w", err)
	}
	f, err := felt.FromHex(nonceHex)
	if err != nil {
		return 0, err
	}
	return f.Uint64(), nil
}

// declare submits a DECLARE transaction for class, treating an
// "already declared" rejection from the node as success: repeated setup
// runs against the same chain must be idempotent.
func (o *Orchestrator) declare(ctx context.Context, deployer *account.Account, cfg *config.Config, class *contractclass.Class) error {
	version := declareVersionLegacy
	if class.Variant == contractclass.Sierra {
		version = declareVersionSierra
	}

	n := deployer.ReserveNonce()
	tx, err := deployer.SignDeclare(o.curve, version, class.ClassHash, class.CasmHash, setupMaxFee, class.Program, n.Value())
	if err != nil {
		n.Rollback()
		return err
	}

	txHash, _, err := o.client.AddDeclare(ctx, tx)
	if err != nil {
		n.Rollback()
		if isAlreadyDeclared(err) {
			o.logger.Debug("class already declared", slog.String("class_hash", class.ClassHash.Hex()))
			return nil
		}
		return err
	}
	n.Commit()
	return o.waitAccepted(ctx, cfg, []felt.Element{txHash})
}

func isAlreadyDeclared(err error) bool {
	var rpcErr *rpc.RPCError
	if errors.As(err, &rpcErr) {
		return strings.Contains(strings.ToLower(rpcErr.Message), "already declared")
	}
	return false
}

// deployViaUDC invokes the Universal Deployer Contract's deployContract
// entrypoint, following the counterfactual address formula spec.md §4.B
// shares with account deployment: the UDC itself is the "deployer" address
// for a non-unique deployment.
func (o *Orchestrator) deployViaUDC(ctx context.Context, deployer *account.Account, cfg *config.Config, udc, classHash, salt felt.Element, ctorCalldata []felt.Element) (felt.Element, error) {
	udcCalldata := []felt.Element{classHash, salt, felt.Zero, felt.FromUint64(uint64(len(ctorCalldata)))}
	udcCalldata = append(udcCalldata, ctorCalldata...)

	callArgs := buildCall(udc, udcDeployContractLabel, udcCalldata)

	n := deployer.ReserveNonce()
	tx, err := deployer.SignInvoke(o.curve, invokeVersion, callArgs, setupMaxFee, n.Value())
	if err != nil {
		n.Rollback()
		return felt.Element{}, err
	}
	txHash, err := o.client.AddInvoke(ctx, tx)
	if err != nil {
		n.Rollback()
		return felt.Element{}, err
	}
	n.Commit()

	if err := o.waitAccepted(ctx, cfg, []felt.Element{txHash}); err != nil {
		return felt.Element{}, err
	}
	return account.DeriveAddress(o.curve, udc, salt, classHash, ctorCalldata), nil
}

// buildCall assembles a single-call invoke's calldata following Starknet's
// __execute__ multicall convention: call count, then per-call
// (to, selector, calldata_len, calldata...).
func buildCall(to, selector felt.Element, calldata []felt.Element) []felt.Element {
	out := []felt.Element{felt.FromUint64(1), to, selector, felt.FromUint64(uint64(len(calldata)))}
	return append(out, calldata...)
}

// deriveAccounts computes num_accounts deterministic addresses and signing
// keys per spec.md §4.C's salt_i = base_salt XOR i rule. Signing keys are
// derived from the deployer's own key so a run is fully reproducible from
// its config alone.
func (o *Orchestrator) deriveAccounts(cfg *config.Config, chainID felt.Element, accountClass *contractclass.Class) ([]*account.Account, error) {
	deployerSigningKey, err := felt.FromHex(cfg.Deployer.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("deployer.signing_key: %w", err)
	}
	baseSalt := felt.FromUint64(uint64(cfg.Deployer.Salt))
	legacy := accountClass.Variant == contractclass.Legacy

	accounts := make([]*account.Account, cfg.Setup.NumAccounts)
	for i := range accounts {
		salt := baseSalt.Xor(felt.FromUint64(uint64(i)))
		signingKey := o.curve.Pedersen(deployerSigningKey, salt)
		publicKey := o.curve.PublicKey(signingKey)
		ctorCalldata := []felt.Element{publicKey}
		address := account.DeriveAddress(o.curve, felt.Zero, salt, accountClass.ClassHash, ctorCalldata)
		accounts[i] = account.New(o.curve, address, signingKey, chainID, legacy)
	}
	return accounts, nil
}

// fundAccounts sends fee-token transfers to every not-yet-deployed account
// so it can pay for its own deploy_account transaction. Transfers are
// submitted sequentially from the single deployer account, following the
// teacher's sequential-deployment rationale (internal/contract.Deployer):
// a single account's nonce sequence cannot be safely parallelised.
func (o *Orchestrator) fundAccounts(ctx context.Context, deployer *account.Account, cfg *config.Config, accounts []*account.Account) error {
	feeToken, err := felt.FromHex(cfg.Setup.FeeTokenAddress)
	if err != nil {
		return fmt.Errorf("setup.fee_token_address: %w", err)
	}
	amount, err := felt.FromHex(cfg.Setup.FeeBalance())
	if err != nil {
		return fmt.Errorf("setup.initial_fee_balance: %w", err)
	}

	hashes := make([]felt.Element, 0, len(accounts))
	for _, acc := range accounts {
		calldata := buildCall(feeToken, transferSelector, transferCalldata(acc.Address, amount))
		n := deployer.ReserveNonce()
		tx, err := deployer.SignInvoke(o.curve, invokeVersion, calldata, setupMaxFee, n.Value())
		if err != nil {
			n.Rollback()
			return err
		}
		txHash, err := o.client.AddInvoke(ctx, tx)
		if err != nil {
			n.Rollback()
			return fmt.Errorf("funding %s: %w", acc.Address.Hex(), err)
		}
		n.Commit()
		hashes = append(hashes, txHash)
	}
	return o.waitAccepted(ctx, cfg, hashes)
}

// deployAccounts submits one deploy_account transaction per account,
// bounded in parallel: each account has its own nonce sequence so
// cross-account concurrency is safe (spec.md §4.C's per-account submission
// concurrency limit of 1 is met trivially, since each account submits
// exactly one transaction here).
func (o *Orchestrator) deployAccounts(ctx context.Context, cfg *config.Config, accountClass *contractclass.Class, accounts []*account.Account) error {
	sem := semaphore.NewWeighted(maxParallelDeploys)
	g, gctx := errgroup.WithContext(ctx)
	hashes := make([]felt.Element, len(accounts))

	for i, acc := range accounts {
		i, acc := i, acc
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			ctorCalldata := []felt.Element{acc.PublicKey}
			tx, err := acc.SignDeployAccount(o.curve, deployAccountVersion, accountClass.ClassHash,
				derivedSaltOf(cfg, i), setupMaxFee, ctorCalldata, 0)
			if err != nil {
				return fmt.Errorf("account %d: %w", i, err)
			}
			txHash, _, err := o.client.AddDeployAccount(gctx, tx)
			if err != nil {
				return fmt.Errorf("account %d (%s): %w", i, acc.Address.Hex(), err)
			}
			hashes[i] = txHash
			acc.SetNonce(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return o.waitAccepted(ctx, cfg, hashes)
}

// derivedSaltOf recomputes salt_i without threading it through Account,
// which has no field for it once the address is derived.
func derivedSaltOf(cfg *config.Config, i int) felt.Element {
	baseSalt := felt.FromUint64(uint64(cfg.Deployer.Salt))
	return baseSalt.Xor(felt.FromUint64(uint64(i)))
}

// seedTokenBalances mints (via transfer from the deployer, who received
// the ERC20's entire initial supply at construction) a starting balance to
// every account so the transfer shooter has funds to move.
func (o *Orchestrator) seedTokenBalances(ctx context.Context, deployer *account.Account, cfg *config.Config, erc20 felt.Element, accounts []*account.Account) error {
	amount, err := felt.FromHex(cfg.Setup.TokenBalance())
	if err != nil {
		return fmt.Errorf("setup.initial_token_balance: %w", err)
	}

	hashes := make([]felt.Element, 0, len(accounts))
	for _, acc := range accounts {
		calldata := buildCall(erc20, transferSelector, transferCalldata(acc.Address, amount))
		n := deployer.ReserveNonce()
		tx, err := deployer.SignInvoke(o.curve, invokeVersion, calldata, setupMaxFee, n.Value())
		if err != nil {
			n.Rollback()
			return err
		}
		txHash, err := o.client.AddInvoke(ctx, tx)
		if err != nil {
			n.Rollback()
			return fmt.Errorf("seeding %s: %w", acc.Address.Hex(), err)
		}
		n.Commit()
		hashes = append(hashes, txHash)
	}
	return o.waitAccepted(ctx, cfg, hashes)
}

// transferCalldata builds an ERC20 transfer(recipient, amount) call,
// splitting amount into the low/high felt pair the u256 ABI convention
// expects; the orchestrator only ever transfers amounts that fit in the
// low limb.
func transferCalldata(recipient, amount felt.Element) []felt.Element {
	return []felt.Element{recipient, amount, felt.Zero}
}

// waitAccepted polls every transaction hash until it reaches an accepted
// finality status, in parallel, within cfg.Run.MaxWait(). Any rejection or
// on-chain revert is fatal: setup never proceeds on a partial failure.
func (o *Orchestrator) waitAccepted(ctx context.Context, cfg *config.Config, hashes []felt.Element) error {
	if len(hashes) == 0 {
		return nil
	}
	deadline := cfg.Run.MaxWait()
	sem := semaphore.NewWeighted(maxParallelDeploys)
	g, gctx := errgroup.WithContext(ctx)

	for _, h := range hashes {
		h := h
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			accepted, err := backoff.Retry(gctx, backoff.Setup(), deadline, func() (bool, error) {
				r, err := o.client.GetReceipt(gctx, h)
				if err != nil {
					return false, err
				}
				if r.FinalityStatus == rpc.FinalityRejected {
					return false, errkind.New(errkind.RpcRejected, fmt.Errorf("tx %s rejected", h.Hex()))
				}
				if r.ExecutionStatus == rpc.ExecutionReverted {
					return false, errkind.New(errkind.Reverted, fmt.Errorf("tx %s reverted: %s", h.Hex(), r.RevertReason))
				}
				return r.FinalityStatus.Accepted(), nil
			})
			if err != nil {
				return fmt.Errorf("tx %s: %w", h.Hex(), err)
			}
			if !accepted {
				return errkind.New(errkind.Timeout, fmt.Errorf("tx %s: not accepted within %s", h.Hex(), cfg.Run.MaxWait()))
			}
			return nil
		})
	}
	return g.Wait()
}
