package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/openstream/link-shortener/internal/database"
	"github.com/openstream/link-shortener/internal/models"
	"github.com/openstream/link-shortener/internal/nonce"
	"github.com/openstream/link-shortener/pkg/response"
)

// LinkService defines the interface for the core slug allocation and resolution logic.
type LinkService interface {
	// CreateLink persists a link under customSlug when non-empty, or under a
	// generated slug otherwise. It returns the created link or an error if
	// validation fails or the slug is taken.
	CreateLink(ctx context.Context, destinationURL, customSlug string) (*models.Link, error)

	// ResolveSlug maps an inbound slug to its link and counts the click.
	ResolveSlug(ctx context.Context, slug string) (*models.Link, error)

	// GetLink retrieves a link by its id.
	GetLink(ctx context.Context, id int64) (*models.Link, error)

	// DeleteLink removes a link permanently, freeing its slug for reuse.
	DeleteLink(ctx context.Context, id int64) error

	// ListLinks returns a page of links plus the total count for pagination.
	ListLinks(ctx context.Context, params database.ListParams) ([]*models.Link, int64, error)

	// ShortURL builds the full short URL for a slug.
	ShortURL(slug string) string
}

// getValidate initializes a new validator instance for validating incoming request payloads.
// It customizes tag name extraction from struct fields to match JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// NewRouter initializes and returns a new HTTP router with all routes and middleware configured.
//
// The redirect resolver runs ahead of routing: any single-segment path that
// looks like a slug is a resolution candidate and, when it resolves, the
// request never reaches the rest of the router. There are no reserved words;
// the slug namespace shadows the entire single-segment top-level path space.
func NewRouter(logger *httplog.Logger, linkSvc LinkService, nonces *nonce.Issuer, adminToken string) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept", "Authorization", "X-Confirmation-Token"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(redirectResolver(linkSvc))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.ResourceNotFoundResponse)
	})

	r.Route("/api/v1", func(r chi.Router) {
		validate := getValidate()

		r.Get("/ping", handlePing)

		r.Route("/links", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			r.Use(requireManageLinks(adminToken))

			r.Post("/", handleCreateLink(linkSvc, validate))
			r.Get("/", handleListLinks(linkSvc))

			r.Route("/{id:[0-9]+}", func(r chi.Router) {
				r.Get("/", handleGetLink(linkSvc))
				r.Get("/deletion-token", handleDeletionToken(linkSvc, nonces))
				r.Delete("/", handleDeleteLink(linkSvc, nonces))
			})
		})
	})

	return r
}

// requireManageLinks guards the administration API behind the manage-links
// capability, presented as a bearer token.
func requireManageLinks(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

			if token == "" || subtle.ConstantTimeCompare([]byte(auth), []byte(token)) != 1 {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.UnauthorizedResponse)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
