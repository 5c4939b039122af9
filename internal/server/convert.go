package server

import (
	"context"
	"fmt"

	"git.appkode.ru/pub/go/failure"

	"storefront/internal/domain/entity"
	"storefront/internal/domain/service/cart"
	"storefront/internal/domain/value"
	"storefront/pkg/contextx"
	"storefront/pkg/errcodes"
	"storefront/pkg/lox"
	"storefront/pkg/rest"
)

func newDomainLine(line rest.CartLine) (cart.Line, error) {
	priceType, err := value.ParsePriceType(line.PriceType)
	if err != nil {
		return cart.Line{}, failure.NewInvalidArgumentErrorFromError(
			fmt.Errorf("value.ParsePriceType: %w", err),
			failure.WithCode(errcodes.InvalidPriceType),
		)
	}

	return cart.Line{
		VariantID: line.VariantID,
		Quantity:  line.Quantity,
		PriceType: priceType,
		ExtraInfo: line.ExtraInfo,
	}, nil
}

func newDomainLines(lines []rest.CartLine) ([]cart.Line, error) {
	return lox.MapErr(lines, newDomainLine)
}

// principal reads the caller resolved by the auth middleware. A missing role
// means a plain customer.
func principal(ctx context.Context) (entity.Principal, error) {
	userID, err := contextx.UserIDFromContext(ctx)
	if err != nil {
		return entity.Principal{}, fmt.Errorf("contextx.UserIDFromContext: %w", err)
	}

	role, _ := contextx.UserRoleFromContext(ctx)

	return entity.Principal{UserID: int64(userID), Role: role.String()}, nil
}
