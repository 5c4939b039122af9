// Package cart manages the server-held cart. Unit prices are always computed
// here from the variant's pricing inputs; client-sent prices are ignored.
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"storefront/internal/domain"
	"storefront/internal/domain/entity"
	"storefront/internal/domain/service/pricing"
	"storefront/internal/domain/service/promo"
	"storefront/internal/domain/value"
	"storefront/pkg/contextx"
	"storefront/pkg/errcodes"
	"storefront/pkg/logx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

// DefaultMaxQuantity caps a line when no limit is configured.
const DefaultMaxQuantity = 99

// Repository stores cart lines per user.
type Repository interface {
	ListItems(ctx context.Context, userID int64) ([]entity.CartItem, error)
	// UpsertItems writes the lines in one transaction, replacing quantity,
	// price type and extra info of lines that already exist.
	UpsertItems(ctx context.Context, userID int64, items []entity.CartItem) error
	// AddItem atomically adds the line's quantity to the stored line, or
	// inserts it. It reports false, leaving the line untouched, when the sum
	// would exceed maxQuantity.
	AddItem(ctx context.Context, userID int64, item entity.CartItem, maxQuantity int) (bool, error)
	DeleteItems(ctx context.Context, userID int64, variantIDs ...int64) error
	Clear(ctx context.Context, userID int64) error
}

// VariantCatalog resolves the pricing inputs of variants.
type VariantCatalog interface {
	// GetVariantPricing omits unknown ids from the result.
	GetVariantPricing(ctx context.Context, variantIDs []int64) (map[int64]entity.VariantPricing, error)
}

// Line is a requested cart line. Quantity is the line's target quantity for
// Sync and the increment for Add.
type Line struct {
	VariantID int64
	Quantity  int
	PriceType value.PriceType
	ExtraInfo map[string]string
}

// Service is the server-side cart. Quantities are capped at maxQuantity.
type Service struct {
	items       Repository
	variants    VariantCatalog
	maxQuantity int
	now         func() time.Time
}

// NewService builds the cart service; a non-positive maxQuantity means
// DefaultMaxQuantity.
func NewService(items Repository, variants VariantCatalog, maxQuantity int) *Service {
	if maxQuantity <= 0 {
		maxQuantity = DefaultMaxQuantity
	}

	return &Service{
		items:       items,
		variants:    variants,
		maxQuantity: maxQuantity,
		now:         time.Now,
	}
}

// Get returns the cart repriced from current pricing. Lines whose variant is
// gone or retired are removed and listed in Dropped.
func (s *Service) Get(ctx context.Context, owner entity.Principal) (entity.Cart, error) {
	items, err := s.items.ListItems(ctx, owner.UserID)
	if err != nil {
		return entity.Cart{}, fmt.Errorf("items.ListItems: %w", err)
	}

	variants, err := s.lookup(ctx, variantIDs(items))
	if err != nil {
		return entity.Cart{}, err
	}

	cart := entity.Cart{Items: make([]entity.CartItem, 0, len(items))}

	for _, item := range items {
		vp, ok := variants[item.VariantID]
		if !ok {
			cart.Dropped = append(cart.Dropped, item.VariantID)

			continue
		}

		cart.Items = append(cart.Items, s.price(owner, item, vp))
	}

	if len(cart.Dropped) > 0 {
		if err = s.items.DeleteItems(ctx, owner.UserID, cart.Dropped...); err != nil {
			logger(ctx).Warn("failed to delete retired cart lines", logx.Error(err))
		}
	}

	return cart, nil
}

// Add puts line.Quantity more of the variant into the cart. The increment is
// applied by the repository in one step, so concurrent adds all count.
func (s *Service) Add(ctx context.Context, owner entity.Principal, line Line) (entity.Cart, error) {
	if err := s.checkQuantity(line.Quantity); err != nil {
		return entity.Cart{}, err
	}

	variants, err := s.lookup(ctx, []int64{line.VariantID})
	if err != nil {
		return entity.Cart{}, err
	}

	if _, ok := variants[line.VariantID]; !ok {
		return entity.Cart{}, domain.NewError(errcodes.VariantNotFound, "variant not found")
	}

	added, err := s.items.AddItem(ctx, owner.UserID, s.newItem(line), s.maxQuantity)
	if err != nil {
		return entity.Cart{}, fmt.Errorf("items.AddItem: %w", err)
	}

	if !added {
		return entity.Cart{}, s.quantityError()
	}

	return s.Get(ctx, owner)
}

// UpdateQuantity sets a line's quantity; zero or less removes the line.
func (s *Service) UpdateQuantity(
	ctx context.Context,
	owner entity.Principal,
	variantID int64,
	quantity int,
) (entity.Cart, error) {
	if quantity <= 0 {
		return s.Remove(ctx, owner, variantID)
	}

	if err := s.checkQuantity(quantity); err != nil {
		return entity.Cart{}, err
	}

	existing, err := s.find(ctx, owner.UserID, variantID)
	if err != nil {
		return entity.Cart{}, err
	}

	if existing == nil {
		return entity.Cart{}, domain.NewError(errcodes.CartItemNotFound, "cart item not found")
	}

	item := *existing
	item.Quantity = quantity
	item.UpdatedAt = s.now()

	if err = s.items.UpsertItems(ctx, owner.UserID, []entity.CartItem{item}); err != nil {
		return entity.Cart{}, fmt.Errorf("items.UpsertItems: %w", err)
	}

	return s.Get(ctx, owner)
}

// Remove is idempotent.
func (s *Service) Remove(ctx context.Context, owner entity.Principal, variantID int64) (entity.Cart, error) {
	if err := s.items.DeleteItems(ctx, owner.UserID, variantID); err != nil {
		return entity.Cart{}, fmt.Errorf("items.DeleteItems: %w", err)
	}

	return s.Get(ctx, owner)
}

// Clear removes every line of the owner's cart.
func (s *Service) Clear(ctx context.Context, owner entity.Principal) error {
	if err := s.items.Clear(ctx, owner.UserID); err != nil {
		return fmt.Errorf("items.Clear: %w", err)
	}

	return nil
}

// Count is the total quantity across lines, without repricing.
func (s *Service) Count(ctx context.Context, owner entity.Principal) (int, error) {
	items, err := s.items.ListItems(ctx, owner.UserID)
	if err != nil {
		return 0, fmt.Errorf("items.ListItems: %w", err)
	}

	return entity.Cart{Items: items}.Count(), nil
}

// Sync merges a client cart into the server cart. Lines are keyed by variant:
// duplicates in the request are summed, every requested variant ends up with
// the requested quantity and lines absent from the request are kept. Syncing
// the same request twice therefore leaves the same cart. Unknown or retired
// variants are skipped and reported in Dropped.
func (s *Service) Sync(ctx context.Context, owner entity.Principal, lines []Line) (entity.Cart, error) {
	merged := mergeLines(lines)

	variants, err := s.lookup(ctx, slices.Collect(maps.Keys(merged)))
	if err != nil {
		return entity.Cart{}, err
	}

	current, err := s.items.ListItems(ctx, owner.UserID)
	if err != nil {
		return entity.Cart{}, fmt.Errorf("items.ListItems: %w", err)
	}

	byVariant := make(map[int64]entity.CartItem, len(current))
	for _, item := range current {
		byVariant[item.VariantID] = item
	}

	var (
		upserts []entity.CartItem
		dropped []int64
	)

	for _, id := range sortedKeys(merged) {
		line := merged[id]

		if _, ok := variants[id]; !ok {
			dropped = append(dropped, id)

			continue
		}

		item := s.newItem(line)
		item.Quantity = min(line.Quantity, s.maxQuantity)

		if existing, ok := byVariant[id]; ok {
			item.ExtraInfo = mergeExtraInfo(existing.ExtraInfo, line.ExtraInfo)
		}

		upserts = append(upserts, item)
	}

	if len(upserts) > 0 {
		if err = s.items.UpsertItems(ctx, owner.UserID, upserts); err != nil {
			return entity.Cart{}, fmt.Errorf("items.UpsertItems: %w", err)
		}
	}

	if len(dropped) > 0 {
		logger(ctx).Info("cart sync dropped unavailable variants",
			slog.Int64(logx.FieldUserID, owner.UserID),
			slog.Any("variants", dropped),
		)
	}

	cart, err := s.Get(ctx, owner)
	if err != nil {
		return entity.Cart{}, err
	}

	cart.Dropped = append(dropped, cart.Dropped...)

	return cart, nil
}

// Quote previews checkout with a cart-level discount split over the lines.
// A discount larger than the subtotal is capped at the subtotal.
func (s *Service) Quote(ctx context.Context, owner entity.Principal, discount int64) (entity.CartQuote, error) {
	if discount < 0 {
		return entity.CartQuote{}, domain.NewError(errcodes.InvalidDiscount, "discount must not be negative")
	}

	cart, err := s.Get(ctx, owner)
	if err != nil {
		return entity.CartQuote{}, err
	}

	subtotal := cart.Subtotal()
	discount = min(discount, subtotal)

	items := make([]promo.Item, len(cart.Items))
	for i, item := range cart.Items {
		items[i] = promo.Item{Price: item.UnitPrice, Quantity: item.Quantity}
	}

	shares := promo.AllocateByItems(items, discount)

	quote := entity.CartQuote{
		Lines:    make([]entity.QuoteLine, len(cart.Items)),
		Subtotal: subtotal,
	}

	for i, item := range cart.Items {
		total := item.LineTotal()

		quote.Lines[i] = entity.QuoteLine{
			Item:      item,
			LineTotal: total,
			Discount:  shares[i],
			Payable:   total - shares[i],
		}
		quote.Discount += shares[i]
	}

	quote.Total = subtotal - quote.Discount

	return quote, nil
}

func (s *Service) lookup(ctx context.Context, ids []int64) (map[int64]entity.VariantPricing, error) {
	if len(ids) == 0 {
		return map[int64]entity.VariantPricing{}, nil
	}

	variants, err := s.variants.GetVariantPricing(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("variants.GetVariantPricing: %w", err)
	}

	for id, vp := range variants {
		if !vp.Variant.Active {
			delete(variants, id)
		}
	}

	return variants, nil
}

func (s *Service) find(ctx context.Context, userID, variantID int64) (*entity.CartItem, error) {
	items, err := s.items.ListItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("items.ListItems: %w", err)
	}

	for i := range items {
		if items[i].VariantID == variantID {
			return &items[i], nil
		}
	}

	return nil, nil //nolint:nilnil
}

func (s *Service) newItem(line Line) entity.CartItem {
	priceType := line.PriceType
	if priceType == "" {
		priceType = value.PriceTypeRetail
	}

	return entity.CartItem{
		VariantID: line.VariantID,
		Quantity:  line.Quantity,
		PriceType: priceType,
		ExtraInfo: line.ExtraInfo,
		UpdatedAt: s.now(),
	}
}

// price fills the server-side fields of a stored line. The collaborator
// price list is only honoured for ctv principals.
func (s *Service) price(owner entity.Principal, item entity.CartItem, vp entity.VariantPricing) entity.CartItem {
	if item.PriceType == value.PriceTypeCtv && owner.Role != entity.RoleCtv {
		item.PriceType = value.PriceTypeRetail
	}

	item.ProductID = vp.Variant.ProductID
	item.Duration = vp.Variant.Duration
	item.UnitPrice = pricing.PriceFor(pricing.ForVariant(vp), item.PriceType)

	return item
}

func (s *Service) checkQuantity(quantity int) error {
	if quantity < 1 || quantity > s.maxQuantity {
		return s.quantityError()
	}

	return nil
}

func (s *Service) quantityError() error {
	return domain.NewError(errcodes.InvalidQuantity, fmt.Sprintf("quantity must be between 1 and %d", s.maxQuantity))
}

// mergeLines sums quantities of lines sharing a variant; the last line's
// price type wins and extra info is merged in order. Non-positive lines are
// ignored.
func mergeLines(lines []Line) map[int64]Line {
	merged := make(map[int64]Line, len(lines))

	for _, line := range lines {
		if line.Quantity <= 0 || line.VariantID <= 0 {
			continue
		}

		prev, ok := merged[line.VariantID]
		if ok {
			line.Quantity += prev.Quantity
			line.ExtraInfo = mergeExtraInfo(prev.ExtraInfo, line.ExtraInfo)
		}

		merged[line.VariantID] = line
	}

	return merged
}

func mergeExtraInfo(base, update map[string]string) map[string]string {
	if len(base) == 0 && len(update) == 0 {
		return nil
	}

	merged := make(map[string]string, len(base)+len(update))
	maps.Copy(merged, base)
	maps.Copy(merged, update)

	return merged
}

func variantIDs(items []entity.CartItem) []int64 {
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.VariantID
	}

	return ids
}

func sortedKeys(m map[int64]Line) []int64 {
	keys := slices.Collect(maps.Keys(m))
	slices.Sort(keys)

	return keys
}
