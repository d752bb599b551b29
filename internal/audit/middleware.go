package audit

import (
	"net/http"

	"github.com/medantara/backend-klinik/internal/common"
	"github.com/medantara/backend-klinik/internal/obs"
)

// HTTPRecorder audits every mutating request passing through it.
type HTTPRecorder struct {
	Service Service
	OnError func(error)
}

// Middleware records POST/PUT/PATCH/DELETE requests after they have
// been handled, with the response status and the acting user.
func (rec HTTPRecorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rec.Service.Enabled || !mutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		sr := obs.NewStatusRecorder(w)
		next.ServeHTTP(sr, r)

		actorID, _ := common.UserID(r.Context())
		if err := rec.Service.Record(r.Context(), actorID, "", "", "", r, sr.Status()); err != nil && rec.OnError != nil {
			rec.OnError(err)
		}
	})
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
