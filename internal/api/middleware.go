package api

import (
	"net/http"
	"strings"

	"github.com/fluxchat/relay/internal/wire"
)

// authedHandler is a handler that runs only for verified callers.
type authedHandler func(w http.ResponseWriter, r *http.Request, identity wire.Identity)

// requireAuth enforces a Bearer token on a route and passes the verified
// identity through to the handler.
func (s *Server) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing auth")
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid auth header")
			return
		}

		identity, err := s.verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next(w, r, identity)
	}
}
