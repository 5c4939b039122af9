package cartsync

import (
	"maps"
	"slices"
	"time"

	"github.com/rs/xid"

	"storefront/internal/domain/entity"
	"storefront/internal/domain/value"
)

type OpKind string

const (
	OpAdd         OpKind = "add"
	OpSetQuantity OpKind = "set_quantity"
	OpRemove      OpKind = "remove"
	OpClear       OpKind = "clear"
)

// Operation is one local mutation waiting to be mirrored to the server. For
// OpAdd, Item.Quantity is the increment applied locally and Line is the
// resulting local line. The server receives Line as an absolute quantity, so
// replaying an add whose response was lost changes nothing.
type Operation struct {
	ID   string          `json:"id"`
	Kind OpKind          `json:"kind"`
	Item entity.CartItem `json:"item"`
	Line entity.CartItem `json:"line"`
	At   time.Time       `json:"at"`
}

func newOperation(kind OpKind, item entity.CartItem) Operation {
	return Operation{
		ID:   xid.New().String(),
		Kind: kind,
		Item: item,
		At:   time.Now(),
	}
}

// apply replays op on a local item list, the same way the server applies
// it, and returns the new list.
func (op Operation) apply(items []entity.CartItem) []entity.CartItem {
	idx := slices.IndexFunc(items, func(item entity.CartItem) bool {
		return item.Key().Same(op.Item.Key())
	})

	switch op.Kind {
	case OpAdd:
		if idx < 0 {
			return append(items, op.Item)
		}

		merged := items[idx]
		merged.Quantity += op.Item.Quantity
		merged.ExtraInfo = mergeExtraInfo(merged.ExtraInfo, op.Item.ExtraInfo)

		if op.Item.PriceType != "" {
			merged.PriceType = op.Item.PriceType
		}

		if merged.UnitPrice == 0 {
			merged.UnitPrice = op.Item.UnitPrice
		}

		items[idx] = merged
	case OpSetQuantity:
		if idx >= 0 {
			items[idx].Quantity = op.Item.Quantity
		}
	case OpRemove:
		if idx >= 0 {
			items = slices.Delete(items, idx, idx+1)
		}
	case OpClear:
		items = items[:0]
	}

	return items
}

// lineFor returns a copy of the line matching key.
func lineFor(items []entity.CartItem, key value.ItemKey) entity.CartItem {
	idx := slices.IndexFunc(items, func(item entity.CartItem) bool {
		return item.Key().Same(key)
	})
	if idx < 0 {
		return entity.CartItem{}
	}

	line := items[idx]
	line.ExtraInfo = maps.Clone(line.ExtraInfo)

	return line
}

// enqueue appends op, collapsing the queue when op makes earlier
// operations irrelevant.
func enqueue(outbox []Operation, op Operation) []Operation {
	if op.Kind == OpClear {
		return []Operation{op}
	}

	return append(outbox, op)
}

func mergeExtraInfo(base, update map[string]string) map[string]string {
	if len(update) == 0 {
		return base
	}

	merged := make(map[string]string, len(base)+len(update))

	maps.Copy(merged, base)
	maps.Copy(merged, update)

	return merged
}
