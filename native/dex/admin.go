package dex

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// actionNamespace seeds name-based correlation ids so replaying the same
// intents yields the same ids.
var actionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("earthexchange/dex/pending-action"))

func (tx *txn) addPool(in AddPool) error {
	if err := tx.requireManager(in.Sender); err != nil {
		return err
	}
	if err := validateAsset(in.Asset); err != nil {
		return err
	}
	if in.Asset == tx.params.HubAsset {
		return fmt.Errorf("%w: hub asset cannot be listed against itself", ErrInvalidAsset)
	}
	symbol := strings.TrimSpace(in.Symbol)
	if symbol == "" {
		return fmt.Errorf("%w: symbol required", ErrInvalidAsset)
	}
	exists, err := tx.ledger.hasPool(in.Asset)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrPoolExists, in.Asset)
	}
	tx.pools[in.Asset] = &Pool{Asset: in.Asset, Symbol: symbol, LastUpdatedDay: tx.day}

	tx.protocol.ActionNonce++
	id := uuid.NewSHA1(actionNamespace, []byte(in.Asset+"/"+strconv.FormatUint(tx.protocol.ActionNonce, 10))).String()
	action := &PendingAction{ID: id, Kind: pendingKindLPToken, Pool: in.Asset, CreatedAt: tx.nowUnix()}
	if err := tx.ledger.putPendingAction(action); err != nil {
		return err
	}
	if err := tx.out.instantiate(InstantiateLPToken{
		CorrelationID: id,
		Pool:          in.Asset,
		Name:          symbol + " Earth Exchange LP Share",
		Symbol:        strings.ToUpper(symbol) + "LP",
	}); err != nil {
		return err
	}
	tx.emit(EventPoolAdded, map[string]string{"pool": in.Asset, "symbol": symbol, "correlationId": id})
	return nil
}

// confirmAction applies the external value a pending action was waiting for.
func (tx *txn) confirmAction(in ConfirmAction) error {
	action, err := tx.ledger.pendingAction(in.CorrelationID)
	if err != nil {
		return err
	}
	value := strings.TrimSpace(in.Value)
	switch action.Kind {
	case pendingKindLPToken:
		if err := validateAsset(value); err != nil {
			return err
		}
		p, err := tx.pool(action.Pool)
		if err != nil {
			return err
		}
		p.LPToken = value
		tx.emit(EventLPTokenConfirmed, map[string]string{"pool": p.Asset, "lpToken": value, "correlationId": action.ID})
	default:
		return fmt.Errorf("dex: unknown pending action kind %q", action.Kind)
	}
	return tx.ledger.deletePendingAction(action.ID)
}

func (tx *txn) updateParams(in UpdateParams) error {
	if err := tx.requireManager(in.Sender); err != nil {
		return err
	}
	if err := in.Params.Validate(); err != nil {
		return err
	}
	if in.Params.HubAsset != tx.params.HubAsset {
		return fmt.Errorf("%w: hub asset is fixed at %s", ErrInvalidParams, tx.params.HubAsset)
	}
	if err := tx.ledger.putParams(in.Params); err != nil {
		return err
	}
	tx.params = in.Params
	tx.emit(EventParamsUpdated, map[string]string{
		"manager":        in.Params.Manager,
		"protocolFeeBps": strconv.FormatUint(in.Params.ProtocolFeeBps, 10),
		"paused":         strconv.FormatBool(in.Params.Paused),
	})
	return nil
}

// updatePool swaps the pool's display symbol or LP token. Reserves, shares
// and stakes are untouched.
func (tx *txn) updatePool(in UpdatePool) error {
	if err := tx.requireManager(in.Sender); err != nil {
		return err
	}
	symbol, lpToken := strings.TrimSpace(in.Symbol), strings.TrimSpace(in.LPToken)
	if symbol == "" && lpToken == "" {
		return fmt.Errorf("%w: nothing to update", ErrInvalidAsset)
	}
	p, err := tx.pool(in.Pool)
	if err != nil {
		return err
	}
	if lpToken != "" {
		if err := validateAsset(lpToken); err != nil {
			return err
		}
		if lpToken == tx.params.HubAsset || lpToken == p.Asset {
			return fmt.Errorf("%w: LP token must differ from the pooled assets", ErrInvalidAsset)
		}
		p.LPToken = lpToken
	}
	if symbol != "" {
		p.Symbol = symbol
	}
	tx.emit(EventPoolUpdated, map[string]string{"pool": p.Asset, "symbol": p.Symbol, "lpToken": p.LPToken})
	return nil
}
