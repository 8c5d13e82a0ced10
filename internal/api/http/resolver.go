package http

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/httplog/v2"
	"github.com/openstream/link-shortener/internal/database"
)

// slugCandidatePattern matches a single path segment of alphanumerics with
// internal hyphens, never starting or ending with one.
var slugCandidatePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)

// redirectResolver intercepts slug candidates before routing. A resolved
// slug terminates the request with a permanent redirect; anything else
// passes through to the next handler unchanged, so unknown slugs end up in
// normal 404 handling rather than an error page.
//
// Storage failures on this path also pass through: the shortener stays
// invisible when it can't resolve.
func redirectResolver(svc LinkService) func(http.Handler) http.Handler {
	const op = "api.http.redirectResolver"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			slug := strings.TrimPrefix(r.URL.Path, "/")
			slug = strings.TrimSuffix(slug, "/")

			if !slugCandidatePattern.MatchString(slug) {
				next.ServeHTTP(w, r)
				return
			}

			link, err := svc.ResolveSlug(r.Context(), slug)
			if err != nil {
				if !errors.Is(err, database.ErrLinkNotFound) {
					httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})
				}

				next.ServeHTTP(w, r)
				return
			}

			http.Redirect(w, r, link.DestinationURL, http.StatusMovedPermanently)
		})
	}
}
