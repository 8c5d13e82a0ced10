package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/openstream/link-shortener/internal/database"
	"github.com/openstream/link-shortener/internal/models"
	"github.com/openstream/link-shortener/internal/nonce"
	"github.com/openstream/link-shortener/internal/service"
	"github.com/openstream/link-shortener/pkg/response"
)

var (
	invalidURLResponse   = response.ErrorResponse("Invalid URL", "The destination URL must be a well-formed absolute URL.")
	invalidSlugResponse  = response.ErrorResponse("Invalid Slug", "The custom slug must contain only letters and numbers, up to 20 characters.")
	slugInUseResponse    = response.ErrorResponse("Slug In Use", "That custom slug is already in use. Please choose another.")
	invalidTokenResponse = response.ErrorResponse("Invalid Confirmation Token", "A valid confirmation token is required for this action.")
)

// handlePing handles health check requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

// createLinkRequest represents the request payload for creating a short link.
type createLinkRequest struct {
	DestinationURL string `json:"destination_url" validate:"required,url"`
	CustomSlug     string `json:"custom_slug" validate:"omitempty,alphanum,max=20"`
}

// linkResponse represents the response payload for a link operation.
type linkResponse struct {
	ID             int64     `json:"id"`
	Slug           string    `json:"slug"`
	ShortURL       string    `json:"short_url"`
	DestinationURL string    `json:"destination_url"`
	ClickCount     int64     `json:"click_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toLinkResponse(svc LinkService, link *models.Link) linkResponse {
	return linkResponse{
		ID:             link.ID,
		Slug:           link.Slug,
		ShortURL:       svc.ShortURL(link.Slug),
		DestinationURL: link.DestinationURL,
		ClickCount:     link.ClickCount,
		CreatedAt:      link.CreatedAt,
		UpdatedAt:      link.UpdatedAt,
	}
}

// deleteLinkAction names the action a confirmation token is bound to, one
// per link id.
func deleteLinkAction(id int64) string {
	return fmt.Sprintf("delete-link:%d", id)
}

func linkID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// handleCreateLink handles POST requests to create a short link.
//
// The request must contain a valid absolute destination URL and may carry a
// custom slug. Each failure mode is reported distinctly: malformed URL,
// malformed slug, slug already in use, storage failure.
func handleCreateLink(svc LinkService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleCreateLink"
	const successMsg = "The link has been created successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req createLinkRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		link, err := svc.CreateLink(r.Context(), req.DestinationURL, req.CustomSlug)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidURL):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, invalidURLResponse)
			case errors.Is(err, service.ErrInvalidSlug):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, invalidSlugResponse)
			case errors.Is(err, database.ErrSlugExists):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, slugInUseResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(svc, link)))
	}
}

// listLinksResponse represents a page of links plus the total count for pagination.
type listLinksResponse struct {
	Links   []linkResponse `json:"links"`
	Total   int64          `json:"total"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
}

// handleListLinks handles GET requests for a paged, sorted, searched link listing.
func handleListLinks(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleListLinks"
	const successMsg = "The links were retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		page, _ := strconv.Atoi(q.Get("page"))
		perPage, _ := strconv.Atoi(q.Get("per_page"))

		params := database.ListParams{
			Page:    page,
			PerPage: perPage,
			OrderBy: q.Get("order_by"),
			Order:   q.Get("order"),
			Search:  q.Get("search"),
		}.Normalize()

		links, total, err := svc.ListLinks(r.Context(), params)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		data := listLinksResponse{
			Links:   make([]linkResponse, 0, len(links)),
			Total:   total,
			Page:    params.Page,
			PerPage: params.PerPage,
		}
		for _, link := range links {
			data.Links = append(data.Links, toLinkResponse(svc, link))
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, data))
	}
}

// handleGetLink handles GET requests for a single link by id.
func handleGetLink(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleGetLink"
	const successMsg = "The link was retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := linkID(r)
		if err != nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.ResourceNotFoundResponse)
			return
		}

		link, err := svc.GetLink(r.Context(), id)
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(svc, link)))
	}
}

// deletionTokenResponse carries a freshly issued confirmation token.
type deletionTokenResponse struct {
	Token string `json:"token"`
}

// handleDeletionToken issues a single-use confirmation token bound to the
// link id, required by a subsequent delete request.
func handleDeletionToken(svc LinkService, nonces *nonce.Issuer) http.HandlerFunc {
	const op = "api.http.handleDeletionToken"
	const successMsg = "The deletion token was issued successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := linkID(r)
		if err != nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.ResourceNotFoundResponse)
			return
		}

		if _, err := svc.GetLink(r.Context(), id); err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		token, err := nonces.Issue(deleteLinkAction(id))
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, deletionTokenResponse{Token: token}))
	}
}

// handleDeleteLink handles DELETE requests for a link. The caller must prove
// intent with a confirmation token previously issued for this id; a missing,
// invalid or reused token is rejected outright with no effect.
func handleDeleteLink(svc LinkService, nonces *nonce.Issuer) http.HandlerFunc {
	const op = "api.http.handleDeleteLink"
	const successMsg = "The link was deleted successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := linkID(r)
		if err != nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.ResourceNotFoundResponse)
			return
		}

		token := r.Header.Get("X-Confirmation-Token")
		if token == "" || !nonces.Verify(deleteLinkAction(id), token) {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, invalidTokenResponse)
			return
		}

		if err := svc.DeleteLink(r.Context(), id); err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}
