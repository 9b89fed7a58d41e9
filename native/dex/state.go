package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"earthexchange/native/fixed"
	"earthexchange/storage"
)

// ledger provides typed, RLP-encoded access to the engine records held in a
// storage.Store.
type ledger struct {
	store storage.Store
}

func newLedger(store storage.Store) *ledger {
	return &ledger{store: store}
}

func (l *ledger) read(key []byte, out interface{}) (bool, error) {
	raw, ok, err := l.store.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("dex: decode %s: %w", key, err)
	}
	return true, nil
}

func (l *ledger) write(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("dex: encode %s: %w", key, err)
	}
	return l.store.Put(key, encoded)
}

func (l *ledger) scan(prefix []byte, decode func(raw []byte) error) error {
	return l.store.Iterate(prefix, func(_, value []byte) (bool, error) {
		return true, decode(value)
	})
}

func bigs(values []uint256.Int) []*big.Int {
	out := make([]*big.Int, len(values))
	for i := range values {
		out[i] = fixed.ToBig(values[i])
	}
	return out
}

func fromBigs(values []*big.Int) ([]uint256.Int, error) {
	out := make([]uint256.Int, len(values))
	for i, v := range values {
		converted, err := fixed.FromBig(v)
		if err != nil {
			return nil, err
		}
		out[i] = converted
	}
	return out, nil
}

// amounts decodes several stored integers at once.
func amounts(dst []*uint256.Int, src ...*big.Int) error {
	for i := range dst {
		v, err := fixed.FromBig(src[i])
		if err != nil {
			return err
		}
		*dst[i] = v
	}
	return nil
}

// --- params ---

func (l *ledger) params() (Params, error) {
	var p Params
	ok, err := l.read(paramsKey, &p)
	if err != nil {
		return Params{}, err
	}
	if !ok {
		return Params{}, ErrNotInitialized
	}
	return p, nil
}

func (l *ledger) putParams(p Params) error {
	return l.write(paramsKey, p)
}

// --- protocol ---

type storedProtocol struct {
	HubBurned          *big.Int
	SecondaryBurned    *big.Int
	PendingReward      *big.Int
	Undistributed      *big.Int
	Volumes            []*big.Int
	Rewards            []*big.Int
	LastUpdatedDay     uint64
	LastDistributedDay uint64
	NextOrderID        uint64
	ActionNonce        uint64
}

func (l *ledger) protocol() (*ProtocolState, error) {
	var stored storedProtocol
	ok, err := l.read(protocolKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	state := &ProtocolState{
		LastUpdatedDay:     stored.LastUpdatedDay,
		LastDistributedDay: stored.LastDistributedDay,
		NextOrderID:        stored.NextOrderID,
		ActionNonce:        stored.ActionNonce,
	}
	if err := amounts([]*uint256.Int{&state.HubBurned, &state.SecondaryBurned, &state.PendingReward, &state.Undistributed},
		stored.HubBurned, stored.SecondaryBurned, stored.PendingReward, stored.Undistributed); err != nil {
		return nil, err
	}
	volumes, err := fromBigs(stored.Volumes)
	if err != nil {
		return nil, err
	}
	rewards, err := fromBigs(stored.Rewards)
	if err != nil {
		return nil, err
	}
	state.Volumes = windowFromDays(volumes)
	state.Rewards = windowFromDays(rewards)
	return state, nil
}

func (l *ledger) putProtocol(state *ProtocolState) error {
	return l.write(protocolKey, storedProtocol{
		HubBurned:          fixed.ToBig(state.HubBurned),
		SecondaryBurned:    fixed.ToBig(state.SecondaryBurned),
		PendingReward:      fixed.ToBig(state.PendingReward),
		Undistributed:      fixed.ToBig(state.Undistributed),
		Volumes:            bigs(state.Volumes.Days()),
		Rewards:            bigs(state.Rewards.Days()),
		LastUpdatedDay:     state.LastUpdatedDay,
		LastDistributedDay: state.LastDistributedDay,
		NextOrderID:        state.NextOrderID,
		ActionNonce:        state.ActionNonce,
	})
}

// --- pools ---

type storedPool struct {
	Asset           string
	Symbol          string
	LPToken         string
	HubReserve      *big.Int
	AssetReserve    *big.Int
	TotalShares     *big.Int
	TotalStaked     *big.Int
	UnbondingShares *big.Int
	RewardPerShare  *big.Int
	Volumes         []*big.Int
	Rewards         []*big.Int
	LastUpdatedDay  uint64
}

func toStoredPool(p *Pool) storedPool {
	return storedPool{
		Asset:           p.Asset,
		Symbol:          p.Symbol,
		LPToken:         p.LPToken,
		HubReserve:      fixed.ToBig(p.HubReserve),
		AssetReserve:    fixed.ToBig(p.AssetReserve),
		TotalShares:     fixed.ToBig(p.TotalShares),
		TotalStaked:     fixed.ToBig(p.TotalStaked),
		UnbondingShares: fixed.ToBig(p.UnbondingShares),
		RewardPerShare:  fixed.ToBig(p.RewardPerShare),
		Volumes:         bigs(p.Volumes.Days()),
		Rewards:         bigs(p.Rewards.Days()),
		LastUpdatedDay:  p.LastUpdatedDay,
	}
}

func (s storedPool) toPool() (*Pool, error) {
	p := &Pool{Asset: s.Asset, Symbol: s.Symbol, LPToken: s.LPToken, LastUpdatedDay: s.LastUpdatedDay}
	if err := amounts([]*uint256.Int{&p.HubReserve, &p.AssetReserve, &p.TotalShares, &p.TotalStaked, &p.UnbondingShares, &p.RewardPerShare},
		s.HubReserve, s.AssetReserve, s.TotalShares, s.TotalStaked, s.UnbondingShares, s.RewardPerShare); err != nil {
		return nil, fmt.Errorf("dex: pool %s: %w", s.Asset, err)
	}
	volumes, err := fromBigs(s.Volumes)
	if err != nil {
		return nil, err
	}
	rewards, err := fromBigs(s.Rewards)
	if err != nil {
		return nil, err
	}
	p.Volumes = windowFromDays(volumes)
	p.Rewards = windowFromDays(rewards)
	return p, nil
}

func (l *ledger) pool(asset string) (*Pool, error) {
	var stored storedPool
	ok, err := l.read(poolKey(asset), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, asset)
	}
	return stored.toPool()
}

func (l *ledger) hasPool(asset string) (bool, error) {
	_, ok, err := l.store.Get(poolKey(asset))
	return ok, err
}

func (l *ledger) putPool(p *Pool) error {
	return l.write(poolKey(p.Asset), toStoredPool(p))
}

func (l *ledger) pools() ([]*Pool, error) {
	var out []*Pool
	err := l.scan(poolPrefix, func(raw []byte) error {
		var stored storedPool
		if err := rlp.DecodeBytes(raw, &stored); err != nil {
			return err
		}
		p, err := stored.toPool()
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// --- stakes ---

type storedStake struct {
	User       string
	Pool       string
	Staked     *big.Int
	RewardDebt *big.Int
	Pending    *big.Int
}

func (s storedStake) toStake() (*UserStake, error) {
	out := &UserStake{User: s.User, Pool: s.Pool}
	if err := amounts([]*uint256.Int{&out.Staked, &out.RewardDebt, &out.Pending}, s.Staked, s.RewardDebt, s.Pending); err != nil {
		return nil, err
	}
	return out, nil
}

// stake returns the user's record, or a fresh zero record when none exists.
func (l *ledger) stake(pool, user string) (*UserStake, error) {
	var stored storedStake
	ok, err := l.read(stakeKey(pool, user), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &UserStake{User: user, Pool: pool}, nil
	}
	return stored.toStake()
}

// putStake removes records that carry neither stake nor pending rewards.
func (l *ledger) putStake(s *UserStake) error {
	if s.Empty() {
		return l.store.Delete(stakeKey(s.Pool, s.User))
	}
	return l.write(stakeKey(s.Pool, s.User), storedStake{
		User:       s.User,
		Pool:       s.Pool,
		Staked:     fixed.ToBig(s.Staked),
		RewardDebt: fixed.ToBig(s.RewardDebt),
		Pending:    fixed.ToBig(s.Pending),
	})
}

func (l *ledger) stakes(pool string) ([]*UserStake, error) {
	var out []*UserStake
	err := l.scan(poolStakePrefix(pool), func(raw []byte) error {
		var stored storedStake
		if err := rlp.DecodeBytes(raw, &stored); err != nil {
			return err
		}
		s, err := stored.toStake()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// --- unbonding ---

type storedUnbond struct {
	Amount *big.Int
	Start  uint64
}

type storedUnbondList struct {
	User    string
	Records []storedUnbond
}

func (l *ledger) unbonds(pool, user string) ([]UnbondRecord, error) {
	var stored storedUnbondList
	ok, err := l.read(unbondKey(pool, user), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return stored.records()
}

func (s storedUnbondList) records() ([]UnbondRecord, error) {
	out := make([]UnbondRecord, 0, len(s.Records))
	for _, rec := range s.Records {
		amount, err := fixed.FromBig(rec.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, UnbondRecord{Amount: amount, Start: rec.Start})
	}
	return out, nil
}

func (l *ledger) putUnbonds(pool, user string, records []UnbondRecord) error {
	if len(records) == 0 {
		return l.store.Delete(unbondKey(pool, user))
	}
	stored := storedUnbondList{User: user, Records: make([]storedUnbond, len(records))}
	for i, rec := range records {
		stored.Records[i] = storedUnbond{Amount: fixed.ToBig(rec.Amount), Start: rec.Start}
	}
	return l.write(unbondKey(pool, user), stored)
}

// poolUnbonds returns every user's unbond list for pool.
func (l *ledger) poolUnbonds(pool string) (map[string][]UnbondRecord, error) {
	out := make(map[string][]UnbondRecord)
	err := l.scan(poolUnbondPrefix(pool), func(raw []byte) error {
		var stored storedUnbondList
		if err := rlp.DecodeBytes(raw, &stored); err != nil {
			return err
		}
		records, err := stored.records()
		if err != nil {
			return err
		}
		out[stored.User] = records
		return nil
	})
	return out, err
}

// --- order book ---

type storedOrder struct {
	ID        uint64
	Maker     string
	Remaining *big.Int
}

type storedLevel struct {
	Pool   string
	Side   uint8
	Price  *big.Int
	Orders []storedOrder
}

func (s storedLevel) toLevel() (*OrderLevel, error) {
	price, err := fixed.FromBig(s.Price)
	if err != nil {
		return nil, err
	}
	level := &OrderLevel{Pool: s.Pool, Side: Side(s.Side), Price: price, Orders: make([]Order, 0, len(s.Orders))}
	for _, o := range s.Orders {
		remaining, err := fixed.FromBig(o.Remaining)
		if err != nil {
			return nil, err
		}
		level.Orders = append(level.Orders, Order{ID: o.ID, Maker: o.Maker, Remaining: remaining})
	}
	return level, nil
}

func (l *ledger) level(pool string, side Side, price uint256.Int) (*OrderLevel, error) {
	var stored storedLevel
	ok, err := l.read(bookLevelKey(pool, side, price), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &OrderLevel{Pool: pool, Side: side, Price: price}, nil
	}
	return stored.toLevel()
}

// putLevel drops filled orders and removes the level once it is empty.
func (l *ledger) putLevel(level *OrderLevel) error {
	key := bookLevelKey(level.Pool, level.Side, level.Price)
	stored := storedLevel{Pool: level.Pool, Side: uint8(level.Side), Price: fixed.ToBig(level.Price)}
	for _, o := range level.Orders {
		if o.Remaining.IsZero() {
			continue
		}
		stored.Orders = append(stored.Orders, storedOrder{ID: o.ID, Maker: o.Maker, Remaining: fixed.ToBig(o.Remaining)})
	}
	if len(stored.Orders) == 0 {
		return l.store.Delete(key)
	}
	return l.write(key, stored)
}

// levels returns the side's price levels in ascending price order.
func (l *ledger) levels(pool string, side Side) ([]*OrderLevel, error) {
	var out []*OrderLevel
	err := l.scan(bookSidePrefix(pool, side), func(raw []byte) error {
		var stored storedLevel
		if err := rlp.DecodeBytes(raw, &stored); err != nil {
			return err
		}
		level, err := stored.toLevel()
		if err != nil {
			return err
		}
		out = append(out, level)
		return nil
	})
	return out, err
}

// --- pending actions ---

func (l *ledger) pendingAction(id string) (*PendingAction, error) {
	var action PendingAction
	ok, err := l.read(pendingKey(id), &action)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPendingActionNotFound, id)
	}
	return &action, nil
}

func (l *ledger) putPendingAction(action *PendingAction) error {
	return l.write(pendingKey(action.ID), action)
}

func (l *ledger) deletePendingAction(id string) error {
	return l.store.Delete(pendingKey(id))
}
