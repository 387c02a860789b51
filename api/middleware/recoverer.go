package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/angelmondragon/partnerledger-backend/api/responses"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

// Recoverer answers a handler panic with the generic 500 envelope. The panic
// value and stack go to the log only. http.ErrAbortHandler keeps propagating
// so net/http still drops the connection.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					handlePanic(logg, w, r, v)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func handlePanic(logg *logger.Logger, w http.ResponseWriter, r *http.Request, v any) {
	if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
		panic(v)
	}
	cause := fmt.Errorf("panic: %v", v)
	ctx := logg.WithFields(r.Context(), map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"stack":  string(debug.Stack()),
	})
	logg.Error(ctx, "panic.recovered", cause)
	responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, cause, "internal error"))
}
