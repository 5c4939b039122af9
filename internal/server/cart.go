package server

import (
	"context"
	"fmt"
	"net/http"

	"storefront/internal/domain/entity"
	"storefront/internal/domain/service/cart"
	"storefront/pkg/errcodes"
	"storefront/pkg/httpx/reply"
	"storefront/pkg/httpx/req"
	"storefront/pkg/rest"
)

type cartService interface {
	Get(ctx context.Context, owner entity.Principal) (entity.Cart, error)
	Add(ctx context.Context, owner entity.Principal, line cart.Line) (entity.Cart, error)
	UpdateQuantity(ctx context.Context, owner entity.Principal, variantID int64, quantity int) (entity.Cart, error)
	Remove(ctx context.Context, owner entity.Principal, variantID int64) (entity.Cart, error)
	Clear(ctx context.Context, owner entity.Principal) error
	Count(ctx context.Context, owner entity.Principal) (int, error)
	Sync(ctx context.Context, owner entity.Principal, lines []cart.Line) (entity.Cart, error)
	Quote(ctx context.Context, owner entity.Principal, discount int64) (entity.CartQuote, error)
}

// CartServer serves the authenticated cart endpoints.
type CartServer struct {
	cart cartService
}

func NewCartServer(cart cartService) CartServer {
	return CartServer{cart: cart}
}

func (s CartServer) getCart(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	owner, err := principal(ctx)
	if err != nil {
		return err
	}

	c, err := s.cart.Get(ctx, owner)
	if err != nil {
		return fmt.Errorf("cart.Get: %w", err)
	}

	reply.OK(ctx, w, c)

	return nil
}

func (s CartServer) getCartCount(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	owner, err := principal(ctx)
	if err != nil {
		return err
	}

	count, err := s.cart.Count(ctx, owner)
	if err != nil {
		return fmt.Errorf("cart.Count: %w", err)
	}

	reply.OK(ctx, w, rest.CountResponse{Count: count})

	return nil
}

func (s CartServer) postCartAdd(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	owner, err := principal(ctx)
	if err != nil {
		return err
	}

	var request rest.CartLine

	if err = req.Read(r, &request); err != nil {
		return fmt.Errorf("req.Read: %w", err)
	}

	line, err := newDomainLine(request)
	if err != nil {
		return err
	}

	c, err := s.cart.Add(ctx, owner, line)
	if err != nil {
		return fmt.Errorf("cart.Add: %w", err)
	}

	reply.OK(ctx, w, c)

	return nil
}

func (s CartServer) putCartItem(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	owner, err := principal(ctx)
	if err != nil {
		return err
	}

	variantID, err := req.PathInt64(r.PathValue("variantId"), errcodes.InvalidVariantID)
	if err != nil {
		return fmt.Errorf("req.PathInt64: %w", err)
	}

	var request rest.UpdateQuantityRequest

	if err = req.Read(r, &request); err != nil {
		return fmt.Errorf("req.Read: %w", err)
	}

	c, err := s.cart.UpdateQuantity(ctx, owner, variantID, request.Quantity)
	if err != nil {
		return fmt.Errorf("cart.UpdateQuantity: %w", err)
	}

	reply.OK(ctx, w, c)

	return nil
}

func (s CartServer) deleteCartItem(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	owner, err := principal(ctx)
	if err != nil {
		return err
	}

	variantID, err := req.PathInt64(r.PathValue("variantId"), errcodes.InvalidVariantID)
	if err != nil {
		return fmt.Errorf("req.PathInt64: %w", err)
	}

	c, err := s.cart.Remove(ctx, owner, variantID)
	if err != nil {
		return fmt.Errorf("cart.Remove: %w", err)
	}

	reply.OK(ctx, w, c)

	return nil
}

func (s CartServer) deleteCart(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	owner, err := principal(ctx)
	if err != nil {
		return err
	}

	if err = s.cart.Clear(ctx, owner); err != nil {
		return fmt.Errorf("cart.Clear: %w", err)
	}

	reply.OK(ctx, w, entity.Cart{Items: []entity.CartItem{}})

	return nil
}

func (s CartServer) postCartSync(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	owner, err := principal(ctx)
	if err != nil {
		return err
	}

	var request rest.SyncCartRequest

	if err = req.Read(r, &request); err != nil {
		return fmt.Errorf("req.Read: %w", err)
	}

	lines, err := newDomainLines(request.Items)
	if err != nil {
		return err
	}

	c, err := s.cart.Sync(ctx, owner, lines)
	if err != nil {
		return fmt.Errorf("cart.Sync: %w", err)
	}

	reply.OK(ctx, w, c)

	return nil
}

func (s CartServer) postCartQuote(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	owner, err := principal(ctx)
	if err != nil {
		return err
	}

	var request rest.QuoteRequest

	if err = req.Read(r, &request); err != nil {
		return fmt.Errorf("req.Read: %w", err)
	}

	quote, err := s.cart.Quote(ctx, owner, request.Discount)
	if err != nil {
		return fmt.Errorf("cart.Quote: %w", err)
	}

	reply.OK(ctx, w, quote)

	return nil
}
