package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/hushapp/anonid/pkg/secerrors"
)

const timeFormat = time.RFC3339

// renderError maps structured errors onto HTTP responses. Unstructured
// errors collapse to a 500 with the fallback message so internals never
// leak.
func renderError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var serr *secerrors.Error
	if errors.As(err, &serr) {
		render.Status(r, serr.HTTPStatusCode())
		render.JSON(w, r, ErrorResponse{Status: "error", Message: serr.Message, Code: string(serr.Code)})
		return
	}
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, ErrorResponse{Status: "error", Message: fallback})
}
