package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"lukechampine.com/uint128"

	"github.com/elys-network/lpm/internal/codec"
	"github.com/elys-network/lpm/internal/logger"
	"github.com/elys-network/lpm/internal/manager"
	"github.com/elys-network/lpm/internal/types"
)

// Errors raised by the simulated engine and token program.
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrSlippageExceeded   = errors.New("slippage limit exceeded")
	ErrTokenAccount       = errors.New("token account is invalid")
	ErrOwnerMismatch      = errors.New("authority does not own the source account")
	ErrLiquidityExhausted = errors.New("position liquidity is lower than requested")
)

// CallKind names the external calls a Tx can queue.
type CallKind string

const (
	CallCreateVault       CallKind = "create_vault"
	CallTransfer          CallKind = "transfer"
	CallDecreaseLiquidity CallKind = "decrease_liquidity"
	CallSwap              CallKind = "swap"
	CallIncreaseLiquidity CallKind = "increase_liquidity"
)

// Call is one committed external call.
type Call struct {
	Kind      CallKind
	Reference string
	Payload   any // The manager call struct
}

type tokenAccount struct {
	Owner  solana.PublicKey
	Mint   solana.PublicKey
	Amount uint64
}

// rate is a fixed conversion num/den.
type rate struct {
	num uint64
	den uint64
}

func (r rate) apply(amount uint128.Uint128) (uint64, error) {
	v := amount.Big()
	v.Mul(v, uint128.From64(r.num).Big())
	v.Quo(v, uint128.From64(r.den).Big())
	if !v.IsUint64() {
		return 0, errors.Join(types.ErrCalculationOverflow, fmt.Errorf("amount %s exceeds u64", v))
	}
	return v.Uint64(), nil
}

type simPool struct {
	state types.PoolState
	// Token amounts per unit of liquidity.
	perLiquidityA rate
	perLiquidityB rate
	// Output per unit of input, A to B; B to A uses the inverse.
	swapRate rate
}

type simState struct {
	accounts  map[solana.PublicKey]tokenAccount
	positions map[solana.PublicKey]types.PersonalPosition
	pools     map[solana.PublicKey]simPool
}

func (s simState) clone() simState {
	out := simState{
		accounts:  make(map[solana.PublicKey]tokenAccount, len(s.accounts)),
		positions: make(map[solana.PublicKey]types.PersonalPosition, len(s.positions)),
		pools:     make(map[solana.PublicKey]simPool, len(s.pools)),
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.positions {
		out.positions[k] = v
	}
	for k, v := range s.pools {
		out.pools[k] = v
	}
	return out
}

// SimulatedHost is an in-memory engine and token program. Atomic snapshots state before
// running and restores it on any error, so a unit either fully applies or leaves no trace.
type SimulatedHost struct {
	mu          sync.Mutex
	state       simState
	calls       []Call
	faults      map[CallKind]error
	commitFault error
	lostConfirm error
	units       int
	attempts    int
	logger      zerolog.Logger
}

var _ manager.Host = (*SimulatedHost)(nil)

// NewSimulatedHost creates an empty simulated environment.
func NewSimulatedHost() *SimulatedHost {
	return &SimulatedHost{
		state: simState{
			accounts:  make(map[solana.PublicKey]tokenAccount),
			positions: make(map[solana.PublicKey]types.PersonalPosition),
			pools:     make(map[solana.PublicKey]simPool),
		},
		faults: make(map[CallKind]error),
		logger: logger.GetForComponent("simulated_host"),
	}
}

// AddPool registers a pool. Liquidity converts 1:1 into each token and swaps are 1:1
// until changed with SetRates.
func (h *SimulatedHost) AddPool(id solana.PublicKey, state types.PoolState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.pools[id] = simPool{
		state:         state,
		perLiquidityA: rate{1, 1},
		perLiquidityB: rate{1, 1},
		swapRate:      rate{1, 1},
	}
}

// SetRates changes the pool's token amounts per liquidity unit and its A to B swap rate.
// Every rate is num/den.
func (h *SimulatedHost) SetRates(pool solana.PublicKey, aNum, bNum, liquidityDen, swapNum, swapDen uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.state.pools[pool]
	if !ok {
		return errors.Join(types.ErrAccountNotFound, fmt.Errorf("pool %s", pool))
	}
	if liquidityDen == 0 || swapDen == 0 || swapNum == 0 {
		return errors.New("rates must be positive")
	}
	p.perLiquidityA = rate{aNum, liquidityDen}
	p.perLiquidityB = rate{bNum, liquidityDen}
	p.swapRate = rate{swapNum, swapDen}
	h.state.pools[pool] = p
	return nil
}

// SetTick moves the pool's current tick.
func (h *SimulatedHost) SetTick(pool solana.PublicKey, tick int32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.state.pools[pool]
	if !ok {
		return errors.Join(types.ErrAccountNotFound, fmt.Errorf("pool %s", pool))
	}
	p.state.TickCurrent = tick
	h.state.pools[pool] = p
	return nil
}

// MintPosition creates a position with the given liquidity, as the engine's own open
// position flow would, and returns its NFT mint.
func (h *SimulatedHost) MintPosition(pool solana.PublicKey, lower, upper int32, liquidity uint128.Uint128) solana.PublicKey {
	h.mu.Lock()
	defer h.mu.Unlock()
	mint := solana.NewWallet().PublicKey()
	h.state.positions[mint] = types.PersonalPosition{
		NftMint:   mint,
		PoolID:    pool,
		TickLower: lower,
		TickUpper: upper,
		Liquidity: liquidity,
	}
	return mint
}

// OpenTokenAccount creates a token account holding amount of mint.
func (h *SimulatedHost) OpenTokenAccount(owner, mint solana.PublicKey, amount uint64) solana.PublicKey {
	h.mu.Lock()
	defer h.mu.Unlock()
	account := solana.NewWallet().PublicKey()
	h.state.accounts[account] = tokenAccount{Owner: owner, Mint: mint, Amount: amount}
	return account
}

// SetBalance overwrites the amount held by an existing token account.
func (h *SimulatedHost) SetBalance(account solana.PublicKey, amount uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	acc, ok := h.state.accounts[account]
	if !ok {
		return errors.Join(types.ErrAccountNotFound, fmt.Errorf("token account %s", account))
	}
	acc.Amount = amount
	h.state.accounts[account] = acc
	return nil
}

// FailOn makes every call of kind fail with err. A nil err clears the fault.
func (h *SimulatedHost) FailOn(kind CallKind, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.faults, kind)
		return
	}
	h.faults[kind] = err
}

// FailCommit makes every unit fail after its calls were queued. A nil err clears the fault.
func (h *SimulatedHost) FailCommit(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commitFault = err
}

// LoseConfirmations makes every unit apply and then report err, as a transaction that
// landed after its confirmation wait gave up. A nil err clears the fault.
func (h *SimulatedHost) LoseConfirmations(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lostConfirm = err
}

// Calls returns the committed calls in order.
func (h *SimulatedHost) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Call, len(h.calls))
	copy(out, h.calls)
	return out
}

// Attempts returns how many units were started, committed or not.
func (h *SimulatedHost) Attempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts
}

// Position returns the engine's view of a position.
func (h *SimulatedHost) Position(mint solana.PublicKey) (types.PersonalPosition, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.state.positions[mint]
	return p, ok
}

// Atomic runs fn against a scratch copy of the state and swaps it in only on success.
func (h *SimulatedHost) Atomic(ctx context.Context, fn func(manager.Tx) error) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts++

	tx := &simTx{state: h.state.clone(), faults: h.faults}
	if err := fn(tx); err != nil {
		h.logger.Debug().Err(err).Int("queuedCalls", len(tx.calls)).Msg("Unit rolled back")
		return "", err
	}
	if h.commitFault != nil {
		h.logger.Debug().Err(h.commitFault).Msg("Unit rolled back at commit")
		return "", h.commitFault
	}

	h.units++
	ref := fmt.Sprintf("sim-%d", h.units)
	h.state = tx.state
	for _, c := range tx.calls {
		c.Reference = ref
		h.calls = append(h.calls, c)
	}
	if h.lostConfirm != nil {
		h.logger.Debug().Err(h.lostConfirm).Str("reference", ref).Msg("Unit applied without confirmation")
		return ref, h.lostConfirm
	}
	return ref, nil
}

// PositionData returns the engine-layout bytes of a position.
func (h *SimulatedHost) PositionData(ctx context.Context, positionMint solana.PublicKey) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.state.positions[positionMint]
	if !ok {
		return nil, errors.Join(types.ErrAccountNotFound, fmt.Errorf("position %s", positionMint))
	}
	return codec.EncodePersonalPosition(p), nil
}

// PoolData returns the engine-layout bytes of a pool.
func (h *SimulatedHost) PoolData(ctx context.Context, pool solana.PublicKey) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.state.pools[pool]
	if !ok {
		return nil, errors.Join(types.ErrAccountNotFound, fmt.Errorf("pool %s", pool))
	}
	return codec.EncodePoolState(p.state), nil
}

// TokenBalance returns the amount held by a token account.
func (h *SimulatedHost) TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	acc, ok := h.state.accounts[account]
	if !ok {
		return 0, errors.Join(types.ErrAccountNotFound, fmt.Errorf("token account %s", account))
	}
	return acc.Amount, nil
}

// VaultBalances returns the balances of the given token accounts that exist.
func (h *SimulatedHost) VaultBalances(ctx context.Context, vaults ...solana.PublicKey) ([]types.VaultBalance, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now().UTC()
	out := make([]types.VaultBalance, 0, len(vaults))
	for _, v := range vaults {
		acc, ok := h.state.accounts[v]
		if !ok {
			continue
		}
		out = append(out, types.VaultBalance{Vault: v, Mint: acc.Mint, Amount: acc.Amount, FetchedAt: now})
	}
	return out, nil
}

// simTx mutates a private copy of the host state.
type simTx struct {
	state  simState
	faults map[CallKind]error
	calls  []Call
}

func (t *simTx) record(kind CallKind, payload any) error {
	if err := t.faults[kind]; err != nil {
		return err
	}
	t.calls = append(t.calls, Call{Kind: kind, Payload: payload})
	return nil
}

func (t *simTx) CreateVault(call manager.VaultCall) error {
	if err := t.record(CallCreateVault, call); err != nil {
		return err
	}
	if acc, ok := t.state.accounts[call.Vault]; ok {
		if !acc.Owner.Equals(call.Owner) || !acc.Mint.Equals(call.Mint) {
			return errors.Join(ErrTokenAccount, fmt.Errorf("%s exists with another owner or mint", call.Vault))
		}
		return nil
	}
	t.state.accounts[call.Vault] = tokenAccount{Owner: call.Owner, Mint: call.Mint}
	return nil
}

func (t *simTx) Transfer(call manager.TransferCall) error {
	if err := t.record(CallTransfer, call); err != nil {
		return err
	}
	src, ok := t.state.accounts[call.Source]
	if !ok {
		return errors.Join(types.ErrAccountNotFound, fmt.Errorf("source %s", call.Source))
	}
	if !src.Owner.Equals(call.Authority) {
		return ErrOwnerMismatch
	}
	if !src.Mint.Equals(call.Mint) {
		return errors.Join(ErrTokenAccount, fmt.Errorf("source %s holds another mint", call.Source))
	}
	return t.move(call.Source, call.Destination, call.Mint, call.Amount)
}

func (t *simTx) DecreaseLiquidity(call manager.WithdrawCall) error {
	if err := t.record(CallDecreaseLiquidity, call); err != nil {
		return err
	}
	pos, pool, err := t.positionAndPool(call.Record)
	if err != nil {
		return err
	}
	if pos.Liquidity.Cmp(call.Liquidity) < 0 {
		return ErrLiquidityExhausted
	}

	outA, err := pool.perLiquidityA.apply(call.Liquidity)
	if err != nil {
		return err
	}
	outB, err := pool.perLiquidityB.apply(call.Liquidity)
	if err != nil {
		return err
	}
	if outA < call.MinAmountA || outB < call.MinAmountB {
		return errors.Join(ErrSlippageExceeded, fmt.Errorf("received %d/%d, floors %d/%d", outA, outB, call.MinAmountA, call.MinAmountB))
	}

	pos.Liquidity = pos.Liquidity.Sub(call.Liquidity)
	t.state.positions[pos.NftMint] = pos
	if err := t.credit(call.Record.VaultA, call.Record.MintA, outA); err != nil {
		return err
	}
	return t.credit(call.Record.VaultB, call.Record.MintB, outB)
}

func (t *simTx) Swap(call manager.SwapCall) error {
	if err := t.record(CallSwap, call); err != nil {
		return err
	}
	pool, ok := t.state.pools[call.Record.Pool]
	if !ok {
		return errors.Join(types.ErrAccountNotFound, fmt.Errorf("pool %s", call.Record.Pool))
	}

	inVault, inMint, outVault, outMint := call.Record.VaultA, call.Record.MintA, call.Record.VaultB, call.Record.MintB
	r := pool.swapRate
	if !call.AToB {
		inVault, inMint, outVault, outMint = outVault, outMint, inVault, inMint
		r = rate{r.den, r.num}
	}

	out, err := r.apply(uint128.From64(call.AmountIn))
	if err != nil {
		return err
	}
	if out < call.MinAmountOut {
		return errors.Join(ErrSlippageExceeded, fmt.Errorf("output %d below floor %d", out, call.MinAmountOut))
	}
	if err := t.debit(inVault, inMint, call.AmountIn); err != nil {
		return err
	}
	return t.credit(outVault, outMint, out)
}

func (t *simTx) IncreaseLiquidity(call manager.DepositCall) error {
	if err := t.record(CallIncreaseLiquidity, call); err != nil {
		return err
	}
	pos, pool, err := t.positionAndPool(call.Record)
	if err != nil {
		return err
	}

	needA, err := pool.perLiquidityA.apply(call.Liquidity)
	if err != nil {
		return err
	}
	needB, err := pool.perLiquidityB.apply(call.Liquidity)
	if err != nil {
		return err
	}
	if needA > call.MaxAmountA || needB > call.MaxAmountB {
		return errors.Join(ErrSlippageExceeded, fmt.Errorf("needs %d/%d, maxima %d/%d", needA, needB, call.MaxAmountA, call.MaxAmountB))
	}
	if err := t.debit(call.Record.VaultA, call.Record.MintA, needA); err != nil {
		return err
	}
	if err := t.debit(call.Record.VaultB, call.Record.MintB, needB); err != nil {
		return err
	}

	if pos.Liquidity.Cmp(uint128.Max.Sub(call.Liquidity)) > 0 {
		return errors.Join(types.ErrCalculationOverflow, errors.New("position liquidity overflows u128"))
	}
	pos.Liquidity = pos.Liquidity.Add(call.Liquidity)
	t.state.positions[pos.NftMint] = pos
	return nil
}

func (t *simTx) positionAndPool(rec types.Manager) (types.PersonalPosition, simPool, error) {
	pos, ok := t.state.positions[rec.Position]
	if !ok {
		return types.PersonalPosition{}, simPool{}, errors.Join(types.ErrAccountNotFound, fmt.Errorf("position %s", rec.Position))
	}
	pool, ok := t.state.pools[pos.PoolID]
	if !ok {
		return types.PersonalPosition{}, simPool{}, errors.Join(types.ErrAccountNotFound, fmt.Errorf("pool %s", pos.PoolID))
	}
	return pos, pool, nil
}

func (t *simTx) move(from, to, mint solana.PublicKey, amount uint64) error {
	if err := t.debit(from, mint, amount); err != nil {
		return err
	}
	return t.credit(to, mint, amount)
}

func (t *simTx) debit(account, mint solana.PublicKey, amount uint64) error {
	acc, ok := t.state.accounts[account]
	if !ok {
		return errors.Join(types.ErrAccountNotFound, fmt.Errorf("token account %s", account))
	}
	if !acc.Mint.Equals(mint) {
		return errors.Join(ErrTokenAccount, fmt.Errorf("%s holds another mint", account))
	}
	if acc.Amount < amount {
		return errors.Join(ErrInsufficientFunds, fmt.Errorf("%s holds %d, needs %d", account, acc.Amount, amount))
	}
	acc.Amount -= amount
	t.state.accounts[account] = acc
	return nil
}

func (t *simTx) credit(account, mint solana.PublicKey, amount uint64) error {
	acc, ok := t.state.accounts[account]
	if !ok {
		return errors.Join(types.ErrAccountNotFound, fmt.Errorf("token account %s", account))
	}
	if !acc.Mint.Equals(mint) {
		return errors.Join(ErrTokenAccount, fmt.Errorf("%s holds another mint", account))
	}
	if acc.Amount > ^uint64(0)-amount {
		return errors.Join(types.ErrCalculationOverflow, fmt.Errorf("%s balance overflows", account))
	}
	acc.Amount += amount
	t.state.accounts[account] = acc
	return nil
}
