package e2e

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gavv/httpexpect/v2"
	"github.com/jmoiron/sqlx"
	"github.com/openstream/link-shortener/internal/config"
	"github.com/openstream/link-shortener/internal/database/postgres"
	"github.com/openstream/link-shortener/tests"
	"github.com/stretchr/testify/suite"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type APITestSuite struct {
	suite.Suite
	cfg      *config.Config
	db       *sqlx.DB
	linkRepo *postgres.LinkRepository
	e        *httpexpect.Expect
}

func (suite *APITestSuite) SetupSuite() {
	root, err := tests.FindProjectRoot()
	if err != nil {
		suite.T().Fatalf("Failed to get project root: %v", err)
	}

	configPath := filepath.Join(root, os.Getenv("CONFIG_PATH"))

	suite.cfg, err = config.Load(configPath)
	if err != nil {
		suite.T().Fatalf("Failed to load config: %v", err)
	}

	suite.db, err = sqlx.Connect("pgx", suite.cfg.Postgres.DSN())
	if err != nil {
		suite.T().Fatalf("Failed to connect to database: %v", err)
	}
	suite.T().Cleanup(func() {
		suite.db.Close()
	})

	suite.linkRepo = postgres.NewLinkRepository(suite.db)

	baseURL := fmt.Sprintf("http://localhost:%d", suite.cfg.HTTPServer.Port)
	suite.e = httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  baseURL,
		Reporter: httpexpect.NewAssertReporter(suite.T()),
		Client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	})
}

func (suite *APITestSuite) TearDownSubTest() {
	_, err := suite.db.Exec(`TRUNCATE TABLE links RESTART IDENTITY CASCADE`)
	if err != nil {
		suite.T().Fatalf("Failed to clean links table: %v", err)
	}
}

func (suite *APITestSuite) authorized(req *httpexpect.Request) *httpexpect.Request {
	return req.WithHeader("Authorization", "Bearer "+suite.cfg.Admin.Token)
}

func (suite *APITestSuite) TestPing() {
	const path = "/api/v1/ping"

	suite.Run("success", func() {
		suite.e.GET(path).
			Expect().
			Status(http.StatusOK).
			Text().Contains("pong")
	})
}

func (suite *APITestSuite) TestCreateLink() {
	const path = "/api/v1/links"

	suite.Run("missing authorization", func() {
		resp := suite.e.POST(path).
			WithJSON(map[string]string{"destination_url": "https://example.com"}).
			Expect().
			Status(http.StatusUnauthorized).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.ContainsKey("message")
	})

	suite.Run("empty request body", func() {
		resp := suite.authorized(suite.e.POST(path)).
			WithHeader("Content-Type", "application/json").
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.ContainsKey("message")
	})

	suite.Run("validation error", func() {
		resp := suite.authorized(suite.e.POST(path)).
			WithJSON(map[string]string{"destination_url": "invalid url"}).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.ContainsKey("message")
		resp.Value("details").Array().Value(0).Object().
			HasValue("field", "destination_url")
	})

	suite.Run("custom slug conflict", func() {
		if _, err := suite.linkRepo.Insert(context.Background(), "spotify", "https://example.com"); err != nil {
			suite.T().Fatalf("Failed to insert link record: %v", err)
		}

		resp := suite.authorized(suite.e.POST(path)).
			WithJSON(map[string]string{
				"destination_url": "https://example2.com",
				"custom_slug":     "spotify",
			}).
			Expect().
			Status(http.StatusConflict).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.ContainsKey("message")
	})

	suite.Run("success with generated slug", func() {
		resp := suite.authorized(suite.e.POST(path)).
			WithJSON(map[string]string{"destination_url": "https://example.com"}).
			Expect().
			Status(http.StatusCreated).
			JSON().Object()

		resp.HasValue("status", "success")

		data := resp.Value("data").Object()
		data.ContainsKey("id")
		data.Value("slug").String().Match(`^[A-Za-z0-9]{6}$`)
		data.ContainsKey("short_url")
		data.HasValue("destination_url", "https://example.com")
		data.HasValue("click_count", int64(0))
		data.ContainsKey("created_at")
		data.ContainsKey("updated_at")
	})

	suite.Run("success with custom slug", func() {
		resp := suite.authorized(suite.e.POST(path)).
			WithJSON(map[string]string{
				"destination_url": "https://example.com",
				"custom_slug":     "spotify",
			}).
			Expect().
			Status(http.StatusCreated).
			JSON().Object()

		resp.HasValue("status", "success")
		resp.Value("data").Object().HasValue("slug", "spotify")
	})
}

func (suite *APITestSuite) TestListLinks() {
	const path = "/api/v1/links"

	suite.Run("success", func() {
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			slug := fmt.Sprintf("slug%d", i)
			if _, err := suite.linkRepo.Insert(ctx, slug, "https://example.com"); err != nil {
				suite.T().Fatalf("Failed to insert link record: %v", err)
			}
		}

		resp := suite.authorized(suite.e.GET(path)).
			WithQuery("order_by", "slug").
			WithQuery("order", "asc").
			Expect().
			Status(http.StatusOK).
			JSON().Object()

		resp.HasValue("status", "success")

		data := resp.Value("data").Object()
		data.HasValue("total", int64(3))
		data.HasValue("page", 1)
		data.HasValue("per_page", 20)
		data.Value("links").Array().Length().IsEqual(3)
		data.Value("links").Array().Value(0).Object().HasValue("slug", "slug0")
	})

	suite.Run("search narrows results", func() {
		ctx := context.Background()
		if _, err := suite.linkRepo.Insert(ctx, "spotify", "https://open.spotify.com"); err != nil {
			suite.T().Fatalf("Failed to insert link record: %v", err)
		}
		if _, err := suite.linkRepo.Insert(ctx, "gh", "https://github.com"); err != nil {
			suite.T().Fatalf("Failed to insert link record: %v", err)
		}

		resp := suite.authorized(suite.e.GET(path)).
			WithQuery("search", "spot").
			Expect().
			Status(http.StatusOK).
			JSON().Object()

		data := resp.Value("data").Object()
		data.HasValue("total", int64(1))
		data.Value("links").Array().Value(0).Object().HasValue("slug", "spotify")
	})
}

func (suite *APITestSuite) TestGetLink() {
	const path = "/api/v1/links/%d"

	suite.Run("link not found", func() {
		resp := suite.authorized(suite.e.GET(fmt.Sprintf(path, 42))).
			Expect().
			Status(http.StatusNotFound).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.ContainsKey("message")
	})

	suite.Run("success", func() {
		link, err := suite.linkRepo.Insert(context.Background(), "spotify", "https://example.com")
		if err != nil {
			suite.T().Fatalf("Failed to insert link record: %v", err)
		}

		resp := suite.authorized(suite.e.GET(fmt.Sprintf(path, link.ID))).
			Expect().
			Status(http.StatusOK).
			JSON().Object()

		resp.HasValue("status", "success")

		data := resp.Value("data").Object()
		data.HasValue("id", link.ID)
		data.HasValue("slug", link.Slug)
		data.HasValue("destination_url", link.DestinationURL)
	})
}

func (suite *APITestSuite) TestDeleteLink() {
	const path = "/api/v1/links/%d"
	const tokenPath = "/api/v1/links/%d/deletion-token"

	suite.Run("missing confirmation token", func() {
		link, err := suite.linkRepo.Insert(context.Background(), "spotify", "https://example.com")
		if err != nil {
			suite.T().Fatalf("Failed to insert link record: %v", err)
		}

		resp := suite.authorized(suite.e.DELETE(fmt.Sprintf(path, link.ID))).
			Expect().
			Status(http.StatusForbidden).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.ContainsKey("message")
	})

	suite.Run("success", func() {
		link, err := suite.linkRepo.Insert(context.Background(), "spotify", "https://example.com")
		if err != nil {
			suite.T().Fatalf("Failed to insert link record: %v", err)
		}

		token := suite.authorized(suite.e.GET(fmt.Sprintf(tokenPath, link.ID))).
			Expect().
			Status(http.StatusOK).
			JSON().Object().
			Value("data").Object().
			Value("token").String().Raw()

		suite.authorized(suite.e.DELETE(fmt.Sprintf(path, link.ID))).
			WithHeader("X-Confirmation-Token", token).
			Expect().
			Status(http.StatusOK).
			JSON().Object().
			HasValue("status", "success")

		suite.authorized(suite.e.GET(fmt.Sprintf(path, link.ID))).
			Expect().
			Status(http.StatusNotFound)
	})

	suite.Run("token is single use", func() {
		link, err := suite.linkRepo.Insert(context.Background(), "spotify", "https://example.com")
		if err != nil {
			suite.T().Fatalf("Failed to insert link record: %v", err)
		}

		token := suite.authorized(suite.e.GET(fmt.Sprintf(tokenPath, link.ID))).
			Expect().
			Status(http.StatusOK).
			JSON().Object().
			Value("data").Object().
			Value("token").String().Raw()

		suite.authorized(suite.e.DELETE(fmt.Sprintf(path, link.ID))).
			WithHeader("X-Confirmation-Token", token).
			Expect().
			Status(http.StatusOK)

		suite.authorized(suite.e.DELETE(fmt.Sprintf(path, link.ID))).
			WithHeader("X-Confirmation-Token", token).
			Expect().
			Status(http.StatusForbidden)
	})
}

func (suite *APITestSuite) TestRedirect() {
	suite.Run("unknown slug falls through", func() {
		suite.e.GET("/missing").
			Expect().
			Status(http.StatusNotFound)
	})

	suite.Run("success counts the click", func() {
		link, err := suite.linkRepo.Insert(context.Background(), "spotify", "https://example.com")
		if err != nil {
			suite.T().Fatalf("Failed to insert link record: %v", err)
		}

		resp := suite.e.GET("/" + link.Slug).
			Expect().
			Status(http.StatusMovedPermanently)

		resp.Header("Location").IsEqual(link.DestinationURL)

		got, err := suite.linkRepo.GetBySlug(context.Background(), link.Slug)
		if err != nil {
			suite.T().Fatalf("Failed to get link record: %v", err)
		}
		suite.Equal(int64(1), got.ClickCount)
	})
}

func TestAPI(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
