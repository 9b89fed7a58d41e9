package dex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"earthexchange/native/fixed"
	"earthexchange/observability/metrics"
	"earthexchange/storage"
)

const tracerName = "earthexchange/native/dex"

// SettleFunc executes an outcome's effects. Returning an error rolls the
// invocation back.
type SettleFunc func(ctx context.Context, outcome *Outcome) error

// Engine applies intents to ledger state held in a storage.Store. It keeps no
// ledger state of its own.
type Engine struct {
	logger  *slog.Logger
	metrics *metrics.DexMetrics
	tracer  trace.Tracer
}

// NewEngine constructs an engine with the default logger and tracer. Metrics
// are disabled until SetMetrics is called.
func NewEngine() *Engine {
	return &Engine{
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With("module", "dex")
}

func (e *Engine) SetMetrics(m *metrics.DexMetrics) {
	if e == nil {
		return
	}
	e.metrics = m
}

func (e *Engine) SetTracer(tracer trace.Tracer) {
	if e == nil {
		return
	}
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	e.tracer = tracer
}

// Init writes the parameters and an empty protocol record.
func (e *Engine) Init(store storage.Store, params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	l := newLedger(store)
	if _, err := l.params(); err == nil {
		return fmt.Errorf("%w: already initialized", ErrInvalidParams)
	} else if !errors.Is(err, ErrNotInitialized) {
		return err
	}
	if err := l.putParams(params); err != nil {
		return err
	}
	return l.putProtocol(&ProtocolState{})
}

// Apply runs intent against store at now. State changes reach store only when
// the whole intent succeeds.
func (e *Engine) Apply(store storage.Store, now time.Time, intent Intent) (*Outcome, error) {
	if intent == nil {
		return nil, fmt.Errorf("%w: nil intent", ErrInvalidAmount)
	}
	overlay := storage.NewOverlay(store)
	tx, err := e.begin(overlay, now)
	if err != nil {
		return nil, err
	}
	if err := tx.run(intent); err != nil {
		return nil, fmt.Errorf("%s: %w", intent.Name(), err)
	}
	if err := tx.flush(); err != nil {
		return nil, err
	}
	if err := overlay.Commit(); err != nil {
		return nil, err
	}
	outcome := &Outcome{Intent: intent.Name(), Effects: tx.out.effects(), Events: tx.events}
	e.log().Debug("dex intent applied",
		slog.String("intent", intent.Name()),
		slog.Int("effects", len(outcome.Effects)),
		slog.Int("events", len(outcome.Events)))
	return outcome, nil
}

// Resolve consumes an external confirmation for a pending action.
func (e *Engine) Resolve(store storage.Store, now time.Time, correlationID, value string) (*Outcome, error) {
	return e.Apply(store, now, ConfirmAction{CorrelationID: correlationID, Value: value})
}

// Execute applies intent on a staged copy of store, hands the outcome to
// settle and commits only if settlement succeeds.
func (e *Engine) Execute(ctx context.Context, store storage.Store, now time.Time, intent Intent, settle SettleFunc) (*Outcome, error) {
	name := "unknown"
	if intent != nil {
		name = intent.Name()
	}
	ctx, span := e.tracer.Start(ctx, "dex.execute", trace.WithAttributes(attribute.String("dex.intent", name)))
	defer span.End()
	started := time.Now()

	outcome, err := e.execute(ctx, store, now, intent, settle)
	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log().Warn("dex intent rejected", slog.String("intent", name), slog.Any("error", err))
	} else {
		span.SetAttributes(attribute.Int("dex.effects", len(outcome.Effects)))
		e.observe(outcome)
	}
	e.metrics.ObserveIntent(name, result, time.Since(started))
	return outcome, err
}

func (e *Engine) execute(ctx context.Context, store storage.Store, now time.Time, intent Intent, settle SettleFunc) (*Outcome, error) {
	staged := storage.NewOverlay(store)
	outcome, err := e.Apply(staged, now, intent)
	if err != nil {
		return nil, err
	}
	if settle != nil {
		if err := settle(ctx, outcome); err != nil {
			staged.Discard()
			return nil, fmt.Errorf("dex: settle %s: %w", outcome.Intent, err)
		}
	}
	if err := staged.Commit(); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (e *Engine) log() *slog.Logger {
	if e == nil || e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

// observe forwards committed events to the metrics registry.
func (e *Engine) observe(outcome *Outcome) {
	if e.metrics == nil || outcome == nil {
		return
	}
	for _, ev := range outcome.Events {
		switch ev.Type {
		case EventSwap, EventBurnSwap, EventBuybackSwap:
			for _, pool := range strings.Split(ev.Attributes["pools"], ",") {
				if pool == "" {
					continue
				}
				fills, _ := strconv.Atoi(ev.Attributes["bookFills."+pool])
				e.metrics.ObserveSwap(pool, parseFloat(ev.Attributes["volume."+pool]), fills)
			}
		case EventBurned:
			e.metrics.ObserveBurn(ev.Attributes["class"], parseFloat(ev.Attributes["amount"]))
		case EventRewardsDistributed:
			e.metrics.ObserveRewardDistribution(parseFloat(ev.Attributes["distributed"]))
		case EventUnbondClaimed:
			e.metrics.ObserveUnbond("claimed", parseFloat(ev.Attributes["shares"]))
		case EventUnbondRestaked:
			e.metrics.ObserveUnbond("restaked", parseFloat(ev.Attributes["shares"]))
		}
	}
}

func parseFloat(raw string) float64 {
	v, ok := new(big.Float).SetString(raw)
	if !ok {
		return 0
	}
	f, _ := v.Float64()
	return f
}

// txn carries the working set of one invocation. Pools are cached so every
// sub-step reads the effects of earlier ones, and written back in flush.
type txn struct {
	engine   *Engine
	ledger   *ledger
	params   Params
	now      time.Time
	day      uint64
	protocol *ProtocolState
	pools    map[string]*Pool
	out      *settlement
	events   []Event
	// burns tracks hub/secondary burns for the burn events emitted in flush.
	burns map[string]uint256.Int
}

func (e *Engine) begin(store storage.Store, now time.Time) (*txn, error) {
	l := newLedger(store)
	params, err := l.params()
	if err != nil {
		return nil, err
	}
	protocol, err := l.protocol()
	if err != nil {
		return nil, err
	}
	tx := &txn{
		engine:   e,
		ledger:   l,
		params:   params,
		now:      now,
		day:      dayIndex(now.Unix()),
		protocol: protocol,
		pools:    make(map[string]*Pool),
		out:      newSettlement(),
		burns:    make(map[string]uint256.Int),
	}
	rollForward(&protocol.LastUpdatedDay, tx.day, &protocol.Volumes, &protocol.Rewards)
	return tx, nil
}

func (tx *txn) nowUnix() uint64 {
	if tx.now.Unix() <= 0 {
		return 0
	}
	return uint64(tx.now.Unix())
}

func (tx *txn) run(intent Intent) error {
	switch intent.(type) {
	case UpdateParams, ConfirmAction, UpdatePool:
	default:
		if tx.params.Paused {
			return ErrPaused
		}
	}
	if _, explicit := intent.(DistributePendingRewards); !explicit && tx.params.AutoDistribute && tx.protocol.LastDistributedDay < tx.day {
		if err := tx.distribute(); err != nil {
			return fmt.Errorf("distribute: %w", err)
		}
	}
	switch in := intent.(type) {
	case AddPool:
		return tx.addPool(in)
	case UpdateParams:
		return tx.updateParams(in)
	case ConfirmAction:
		return tx.confirmAction(in)
	case UpdatePool:
		return tx.updatePool(in)
	case AddLiquidity:
		return tx.addLiquidity(in)
	case DepositShares:
		return tx.depositShares(in)
	case Withdraw:
		return tx.withdraw(in)
	case RequestUnbond:
		return tx.requestUnbond(in)
	case UnbondShares:
		return tx.unbondShares(in)
	case ClaimUnbond:
		return tx.claimUnbond(in)
	case ClaimRewards:
		return tx.claimRewards(in)
	case FundRewards:
		return tx.fundRewards(in)
	case DistributePendingRewards:
		return tx.distribute()
	case Swap:
		return tx.swap(in)
	case SwapAndBurn:
		return tx.swapAndBurn(in)
	case BuybackSwap:
		return tx.buybackSwap(in)
	case PlaceOrder:
		return tx.placeOrder(in)
	case CancelOrder:
		return tx.cancelOrder(in)
	case PlaceBuyback:
		return tx.placeBuyback(in)
	default:
		return fmt.Errorf("dex: unsupported intent %T", intent)
	}
}

// pool loads asset into the working set, rolling its windows to today.
func (tx *txn) pool(asset string) (*Pool, error) {
	if p, ok := tx.pools[asset]; ok {
		return p, nil
	}
	p, err := tx.ledger.pool(asset)
	if err != nil {
		return nil, err
	}
	rollForward(&p.LastUpdatedDay, tx.day, &p.Volumes, &p.Rewards)
	tx.pools[asset] = p
	return p, nil
}

// allPools loads every listed pool in key order.
func (tx *txn) allPools() ([]*Pool, error) {
	stored, err := tx.ledger.pools()
	if err != nil {
		return nil, err
	}
	out := make([]*Pool, 0, len(stored))
	for _, p := range stored {
		if cached, ok := tx.pools[p.Asset]; ok {
			out = append(out, cached)
			continue
		}
		rollForward(&p.LastUpdatedDay, tx.day, &p.Volumes, &p.Rewards)
		tx.pools[p.Asset] = p
		out = append(out, p)
	}
	return out, nil
}

func (tx *txn) flush() error {
	assets := make([]string, 0, len(tx.pools))
	for asset := range tx.pools {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	for _, asset := range assets {
		if err := tx.ledger.putPool(tx.pools[asset]); err != nil {
			return err
		}
	}
	for _, class := range []string{"hub", "secondary"} {
		if amount, ok := tx.burns[class]; ok && !amount.IsZero() {
			tx.emit(EventBurned, map[string]string{"class": class, "amount": amount.Dec()})
		}
	}
	return tx.ledger.putProtocol(tx.protocol)
}

func (tx *txn) emit(kind string, attrs map[string]string) {
	tx.events = append(tx.events, Event{Type: kind, Attributes: attrs})
}

// burn queues a burn of a hub or pool asset and updates the protocol's burn
// counters.
func (tx *txn) burn(asset string, amount uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	class := "secondary"
	counter := &tx.protocol.SecondaryBurned
	if asset == tx.params.HubAsset {
		class = "hub"
		counter = &tx.protocol.HubBurned
	}
	total, err := fixed.Add(*counter, amount)
	if err != nil {
		return err
	}
	*counter = total
	if tx.burns[class], err = fixed.Add(tx.burns[class], amount); err != nil {
		return err
	}
	return tx.out.burn(asset, amount)
}

// recordVolume books hub-denominated volume for today on the pool and the
// protocol totals.
func (tx *txn) recordVolume(p *Pool, volume uint256.Int) error {
	if volume.IsZero() {
		return nil
	}
	if err := p.Volumes.Record(volume); err != nil {
		return err
	}
	return tx.protocol.Volumes.Record(volume)
}

func (tx *txn) requireManager(sender string) error {
	if sender == "" || sender != tx.params.Manager {
		return fmt.Errorf("%w: %q is not the manager", ErrUnauthorized, sender)
	}
	return nil
}

func requirePositive(name string, amount uint256.Int) error {
	if amount.IsZero() {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, name)
	}
	if !fixed.Fits(amount) {
		return fmt.Errorf("%w: %s exceeds 128 bits", fixed.ErrOverflow, name)
	}
	return nil
}

func requireUser(user string) error {
	if strings.TrimSpace(user) == "" {
		return fmt.Errorf("%w: user required", ErrUnauthorized)
	}
	return nil
}
