package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/openstream/link-shortener/internal/database"
	"github.com/openstream/link-shortener/internal/models"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// slugAlphabet is the set of symbols slugs are drawn from. 62^6 for the
// default length leaves collision retries a rounding error in practice.
const slugAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultSlugLength is the length of generated slugs.
const DefaultSlugLength = 6

var (
	// ErrInvalidURL is returned when the destination URL is empty or doesn't parse as an absolute URL.
	ErrInvalidURL = errors.New("invalid destination url")
	// ErrInvalidSlug is returned when a custom slug doesn't match the allowed format.
	ErrInvalidSlug = errors.New("invalid slug format")
	// ErrSlugSpaceExhausted is returned when the maximum number of attempts
	// to generate a free slug is exceeded.
	ErrSlugSpaceExhausted = errors.New("maximum attempts exceeded for generating slug")
)

// slugPattern is the format custom slugs must match: 1-20 alphanumerics, case-sensitive.
var slugPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,20}$`)

// LinkRepository defines the interface for working with links at the business logic layer.
type LinkRepository interface {
	// Insert persists a new link. It returns database.ErrSlugExists if the
	// slug is already taken; the unique constraint at the storage layer is
	// what closes the race between concurrent inserts of the same slug.
	Insert(ctx context.Context, slug, destinationURL string) (*models.Link, error)

	// GetBySlug retrieves a link by its slug, exact and case-sensitive.
	// Returns database.ErrLinkNotFound if no such link exists.
	GetBySlug(ctx context.Context, slug string) (*models.Link, error)

	// GetByID retrieves a link by its id.
	GetByID(ctx context.Context, id int64) (*models.Link, error)

	// Delete removes a link permanently, freeing its slug for reuse.
	Delete(ctx context.Context, id int64) error

	// IncrementClickCount bumps the click counter as an atomic delta.
	IncrementClickCount(ctx context.Context, id int64) error

	// List returns a page of links ordered and filtered by params.
	List(ctx context.Context, params database.ListParams) ([]*models.Link, error)

	// Count returns the total number of links matching the search term.
	Count(ctx context.Context, search string) (int64, error)
}

// LinkService implements slug allocation and resolution on top of a LinkRepository.
// It holds no mutable state of its own; all shared state lives in the store.
type LinkService struct {
	repo       LinkRepository
	logger     *slog.Logger
	slugLength int
	baseURL    string
}

// NewLinkService creates a LinkService. baseURL is the public origin short
// URLs are built from, e.g. "https://srt.example.com".
func NewLinkService(repo LinkRepository, logger *slog.Logger, slugLength int, baseURL string) *LinkService {
	if slugLength < 1 {
		slugLength = DefaultSlugLength
	}

	return &LinkService{
		repo:       repo,
		logger:     logger,
		slugLength: slugLength,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// CreateLink validates the destination URL and persists a link under
// customSlug when given, or under a freshly generated slug otherwise.
//
// For custom slugs a duplicate surfaces as database.ErrSlugExists so the
// caller can pick another. For generated slugs a duplicate is retried
// transparently with a fresh slug, capped at a maximum attempt count.
func (s *LinkService) CreateLink(ctx context.Context, destinationURL, customSlug string) (*models.Link, error) {
	const op = "service.LinkService.CreateLink"
	const maxAttempts = 5

	if err := validateDestinationURL(destinationURL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if customSlug != "" {
		if !slugPattern.MatchString(customSlug) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidSlug)
		}

		link, err := s.repo.Insert(ctx, customSlug, destinationURL)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to create link: %w", op, err)
		}

		return link, nil
	}

	for i := 0; i < maxAttempts; i++ {
		slug, err := gonanoid.Generate(slugAlphabet, s.slugLength)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate slug: %w", op, err)
		}

		link, err := s.repo.Insert(ctx, slug, destinationURL)
		if err != nil {
			if errors.Is(err, database.ErrSlugExists) {
				continue
			}

			return nil, fmt.Errorf("%s: failed to create link: %w", op, err)
		}

		return link, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrSlugSpaceExhausted)
}

// ResolveSlug looks up the link for an inbound slug and counts the click.
// The increment is best-effort relative to the redirect itself: a counter
// failure is logged and the resolved link is still returned.
func (s *LinkService) ResolveSlug(ctx context.Context, slug string) (*models.Link, error) {
	const op = "service.LinkService.ResolveSlug"

	link, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve slug: %w", op, err)
	}

	if err := s.repo.IncrementClickCount(ctx, link.ID); err != nil {
		s.logger.Error(
			"failed to increment click count",
			slog.String("op", op),
			slog.Int64("link_id", link.ID),
			slog.Any("err", err),
		)
	} else {
		link.ClickCount++
	}

	return link, nil
}

// GetLink retrieves a link by its id.
func (s *LinkService) GetLink(ctx context.Context, id int64) (*models.Link, error) {
	const op = "service.LinkService.GetLink"

	link, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get link: %w", op, err)
	}

	return link, nil
}

// DeleteLink removes a link permanently. Deletion is final: the slug becomes
// available for reuse by the generator or by a future custom-slug request.
func (s *LinkService) DeleteLink(ctx context.Context, id int64) error {
	const op = "service.LinkService.DeleteLink"

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("%s: failed to delete link: %w", op, err)
	}

	return nil
}

// ListLinks returns a page of links plus the total count matching the search
// term, for pagination.
func (s *LinkService) ListLinks(ctx context.Context, params database.ListParams) ([]*models.Link, int64, error) {
	const op = "service.LinkService.ListLinks"

	links, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: failed to list links: %w", op, err)
	}

	total, err := s.repo.Count(ctx, params.Search)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: failed to count links: %w", op, err)
	}

	return links, total, nil
}

// ShortURL builds the full short URL for a slug.
func (s *LinkService) ShortURL(slug string) string {
	return s.baseURL + "/" + slug
}

func validateDestinationURL(raw string) error {
	if raw == "" {
		return ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ErrInvalidURL
	}

	return nil
}
