package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/likwid-fi/likwid-margin-bot/internal/model"
)

// EventDecoder turns raw protocol logs into the closed model.Event variant
// set. Logs are routed by emitting address first (hook manager vs position
// manager), then by topic0.
type EventDecoder struct {
	hookManager     common.Address
	positionManager common.Address

	initializeID common.Hash
	marginID     common.Hash
	burnID       common.Hash
	repayCloseID common.Hash
	modifyID     common.Hash
}

// NewEventDecoder precomputes the five topic hashes of interest.
func NewEventDecoder(hookManager, positionManager common.Address) (*EventDecoder, error) {
	hookABI, err := HookManagerABI()
	if err != nil {
		return nil, err
	}
	posABI, err := PositionManagerABI()
	if err != nil {
		return nil, err
	}
	return &EventDecoder{
		hookManager:     hookManager,
		positionManager: positionManager,
		initializeID:    hookABI.Events["Initialize"].ID,
		marginID:        posABI.Events["Margin"].ID,
		burnID:          posABI.Events["Burn"].ID,
		repayCloseID:    posABI.Events["RepayClose"].ID,
		modifyID:        posABI.Events["Modify"].ID,
	}, nil
}

// Addresses returns the contract addresses to filter logs by.
func (d *EventDecoder) Addresses() []common.Address {
	return []common.Address{d.hookManager, d.positionManager}
}

// Topics returns the topic0 filter set.
func (d *EventDecoder) Topics() []common.Hash {
	return []common.Hash{d.initializeID, d.marginID, d.burnID, d.repayCloseID, d.modifyID}
}

// Decode converts a raw log to an event variant. The second return is
// false for logs that match neither contract nor topic set.
func (d *EventDecoder) Decode(log types.Log) (model.Event, bool, error) {
	if len(log.Topics) == 0 {
		return nil, false, nil
	}
	switch log.Address {
	case d.hookManager:
		if log.Topics[0] != d.initializeID {
			return nil, false, nil
		}
		return d.decodeInitialize(log)
	case d.positionManager:
		switch log.Topics[0] {
		case d.marginID:
			return d.decodeMargin(log)
		case d.burnID:
			return d.decodeBurn(log)
		case d.repayCloseID, d.modifyID:
			return d.decodeModified(log)
		default:
			return nil, false, nil
		}
	default:
		return nil, false, nil
	}
}

func (d *EventDecoder) decodeInitialize(log types.Log) (model.Event, bool, error) {
	if len(log.Topics) < 4 {
		return nil, false, fmt.Errorf("initialize: want 4 topics, got %d", len(log.Topics))
	}
	return model.PoolInitialized{
		PoolID:    log.Topics[1].Hex(),
		Currency0: common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		Currency1: common.BytesToAddress(log.Topics[3].Bytes()).Hex(),
	}, true, nil
}

func (d *EventDecoder) decodeMargin(log types.Log) (model.Event, bool, error) {
	if len(log.Topics) < 3 {
		return nil, false, fmt.Errorf("margin: want 3 topics, got %d", len(log.Topics))
	}
	posABI, err := PositionManagerABI()
	if err != nil {
		return nil, false, err
	}
	values, err := posABI.Events["Margin"].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, false, fmt.Errorf("unpack margin: %w", err)
	}
	positionID, err := toPositionID(values[0])
	if err != nil {
		return nil, false, err
	}
	return model.MarginOpened{
		PoolID:       log.Topics[1].Hex(),
		Owner:        common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		PositionID:   positionID,
		MarginAmount: values[1].(*big.Int),
		MarginTotal:  values[2].(*big.Int),
		BorrowAmount: values[3].(*big.Int),
		MarginForOne: values[4].(bool),
	}, true, nil
}

func (d *EventDecoder) decodeBurn(log types.Log) (model.Event, bool, error) {
	if len(log.Topics) < 3 {
		return nil, false, fmt.Errorf("burn: want 3 topics, got %d", len(log.Topics))
	}
	posABI, err := PositionManagerABI()
	if err != nil {
		return nil, false, err
	}
	values, err := posABI.Events["Burn"].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, false, fmt.Errorf("unpack burn: %w", err)
	}
	positionID, err := toPositionID(values[0])
	if err != nil {
		return nil, false, err
	}
	return model.PositionClosed{
		PoolID:     log.Topics[1].Hex(),
		Sender:     common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		PositionID: positionID,
		BurnType:   values[1].(uint8),
	}, true, nil
}

func (d *EventDecoder) decodeModified(log types.Log) (model.Event, bool, error) {
	if len(log.Topics) < 3 {
		return nil, false, fmt.Errorf("modify: want 3 topics, got %d", len(log.Topics))
	}
	posABI, err := PositionManagerABI()
	if err != nil {
		return nil, false, err
	}
	name := "Modify"
	if log.Topics[0] == d.repayCloseID {
		name = "RepayClose"
	}
	values, err := posABI.Events[name].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, false, fmt.Errorf("unpack %s: %w", name, err)
	}
	positionID, err := toPositionID(values[0])
	if err != nil {
		return nil, false, err
	}
	return model.PositionModified{
		PoolID:     log.Topics[1].Hex(),
		Sender:     common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		PositionID: positionID,
	}, true, nil
}

func toPositionID(value interface{}) (uint64, error) {
	id, ok := value.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("position id: unexpected type %T", value)
	}
	if !id.IsUint64() {
		return 0, fmt.Errorf("position id does not fit in uint64: %s", id)
	}
	return id.Uint64(), nil
}
