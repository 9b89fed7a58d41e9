package dex

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"
	"lukechampine.com/blake3"

	"earthexchange/native/fixed"
	"earthexchange/storage"
)

// PoolAudit summarises the share accounting of one pool.
type PoolAudit struct {
	Asset           string `json:"asset" yaml:"asset"`
	LPToken         string `json:"lpToken" yaml:"lpToken"`
	HubReserve      string `json:"hubReserve" yaml:"hubReserve"`
	AssetReserve    string `json:"assetReserve" yaml:"assetReserve"`
	TotalShares     string `json:"totalShares" yaml:"totalShares"`
	TotalStaked     string `json:"totalStaked" yaml:"totalStaked"`
	UnbondingShares string `json:"unbondingShares" yaml:"unbondingShares"`
	StakedSum       string `json:"stakedSum" yaml:"stakedSum"`
	UnbondSum       string `json:"unbondSum" yaml:"unbondSum"`
	Stakers         int    `json:"stakers" yaml:"stakers"`
	RestingLevels   int    `json:"restingLevels" yaml:"restingLevels"`
}

// AuditReport is the result of walking the whole ledger.
type AuditReport struct {
	HubBurned       string      `json:"hubBurned" yaml:"hubBurned"`
	SecondaryBurned string      `json:"secondaryBurned" yaml:"secondaryBurned"`
	PendingReward   string      `json:"pendingReward" yaml:"pendingReward"`
	Undistributed   string      `json:"undistributed" yaml:"undistributed"`
	Pools           []PoolAudit `json:"pools" yaml:"pools"`
	Violations      []string    `json:"violations" yaml:"violations"`

	// StateDigest is the hex BLAKE3 hash of every exchange record in key
	// order. Two ledgers with equal digests hold identical state.
	StateDigest string `json:"stateDigest" yaml:"stateDigest"`
}

// Healthy reports whether no invariant was violated.
func (r *AuditReport) Healthy() bool {
	return r != nil && len(r.Violations) == 0
}

// Audit checks the share-accounting invariants of every pool.
func Audit(store storage.Store) (*AuditReport, error) {
	l := newLedger(store)
	protocol, err := l.protocol()
	if err != nil {
		return nil, err
	}
	report := &AuditReport{
		HubBurned:       protocol.HubBurned.Dec(),
		SecondaryBurned: protocol.SecondaryBurned.Dec(),
		PendingReward:   protocol.PendingReward.Dec(),
		Undistributed:   protocol.Undistributed.Dec(),
		Violations:      []string{},
	}
	pools, err := l.pools()
	if err != nil {
		return nil, err
	}
	for _, p := range pools {
		entry, violations, err := auditPool(l, p)
		if err != nil {
			return nil, err
		}
		report.Pools = append(report.Pools, entry)
		report.Violations = append(report.Violations, violations...)
	}
	if report.StateDigest, err = StateDigest(store); err != nil {
		return nil, err
	}
	return report, nil
}

// StateDigest hashes every record under the exchange prefix. Each record is
// framed as len(key) || key || len(value) || value with big-endian uint32
// lengths.
func StateDigest(store storage.Store) (string, error) {
	h := blake3.New(32, nil)
	var frame [4]byte
	err := store.Iterate(keyspace, func(key, value []byte) (bool, error) {
		binary.BigEndian.PutUint32(frame[:], uint32(len(key)))
		h.Write(frame[:])
		h.Write(key)
		binary.BigEndian.PutUint32(frame[:], uint32(len(value)))
		h.Write(frame[:])
		h.Write(value)
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func auditPool(l *ledger, p *Pool) (PoolAudit, []string, error) {
	var violations []string
	flag := func(format string, args ...interface{}) {
		violations = append(violations, p.Asset+": "+fmt.Sprintf(format, args...))
	}
	stakes, err := l.stakes(p.Asset)
	if err != nil {
		return PoolAudit{}, nil, err
	}
	var stakedSum uint256.Int
	for _, s := range stakes {
		if stakedSum, err = fixed.Add(stakedSum, s.Staked); err != nil {
			return PoolAudit{}, nil, err
		}
	}
	unbonds, err := l.poolUnbonds(p.Asset)
	if err != nil {
		return PoolAudit{}, nil, err
	}
	var unbondSum uint256.Int
	for _, records := range unbonds {
		for _, rec := range records {
			if unbondSum, err = fixed.Add(unbondSum, rec.Amount); err != nil {
				return PoolAudit{}, nil, err
			}
		}
	}
	buys, err := l.levels(p.Asset, SideBuy)
	if err != nil {
		return PoolAudit{}, nil, err
	}
	sells, err := l.levels(p.Asset, SideSell)
	if err != nil {
		return PoolAudit{}, nil, err
	}

	if p.TotalStaked.Gt(&p.TotalShares) {
		flag("total staked %s exceeds total shares %s", p.TotalStaked.Dec(), p.TotalShares.Dec())
	}
	if !stakedSum.Eq(&p.TotalStaked) {
		flag("sum of stakes %s differs from total staked %s", stakedSum.Dec(), p.TotalStaked.Dec())
	}
	if !unbondSum.Eq(&p.UnbondingShares) {
		flag("sum of unbond records %s differs from unbonding shares %s", unbondSum.Dec(), p.UnbondingShares.Dec())
	}
	committed, err := fixed.Add(p.TotalStaked, p.UnbondingShares)
	if err != nil {
		return PoolAudit{}, nil, err
	}
	if committed.Gt(&p.TotalShares) {
		flag("staked plus unbonding %s exceeds total shares %s", committed.Dec(), p.TotalShares.Dec())
	}
	if !p.TotalShares.IsZero() && !p.Liquid() {
		flag("shares outstanding against an empty reserve")
	}
	return PoolAudit{
		Asset:           p.Asset,
		LPToken:         p.LPToken,
		HubReserve:      p.HubReserve.Dec(),
		AssetReserve:    p.AssetReserve.Dec(),
		TotalShares:     p.TotalShares.Dec(),
		TotalStaked:     p.TotalStaked.Dec(),
		UnbondingShares: p.UnbondingShares.Dec(),
		StakedSum:       stakedSum.Dec(),
		UnbondSum:       unbondSum.Dec(),
		Stakers:         len(stakes),
		RestingLevels:   len(buys) + len(sells),
	}, violations, nil
}
