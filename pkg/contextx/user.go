package contextx

import (
	"context"
	"fmt"
	"strconv"
)

// UserID identifies the customer behind an authenticated session.
type UserID int64

// UserRole is the pricing role of the authenticated customer ("customer",
// "ctv", ...). It only selects which price list applies to the caller.
type UserRole string

type (
	contextKeyUserID   struct{}
	contextKeyUserRole struct{}
)

func (u UserID) String() string {
	return strconv.FormatInt(int64(u), 10)
}

func (r UserRole) String() string {
	return string(r)
}

func WithUserID(ctx context.Context, userID UserID) context.Context {
	return context.WithValue(ctx, contextKeyUserID{}, userID)
}

func UserIDFromContext(ctx context.Context) (UserID, error) {
	userID, ok := ctx.Value(contextKeyUserID{}).(UserID)
	if !ok {
		return 0, fmt.Errorf("user id: %w", ErrNoValue)
	}

	return userID, nil
}

func WithUserRole(ctx context.Context, role UserRole) context.Context {
	return context.WithValue(ctx, contextKeyUserRole{}, role)
}

func UserRoleFromContext(ctx context.Context) (UserRole, error) {
	role, ok := ctx.Value(contextKeyUserRole{}).(UserRole)
	if !ok {
		return "", fmt.Errorf("user role: %w", ErrNoValue)
	}

	return role, nil
}
