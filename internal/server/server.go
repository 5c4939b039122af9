package server

import (
	"context"

	"storefront/pkg/middlewarex"
)

type sessionVerifier interface {
	VerifyToken(ctx context.Context, token string) (middlewarex.Principal, error)
}

// Server joins the HTTP handlers of each API area.
type Server struct {
	ProductServer
	CartServer

	sessions sessionVerifier
}

func NewServer(
	productServer ProductServer,
	cartServer CartServer,
	sessions sessionVerifier,
) Server {
	return Server{
		ProductServer: productServer,
		CartServer:    cartServer,
		sessions:      sessions,
	}
}
