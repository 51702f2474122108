// Package httpapi — HTTP API столовой: заказы, статусы, сводка продаж и меню.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/service/idempotency"
	"github.com/vladislavdragonenkov/canteen/internal/service/ordering"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxBodyBytes          = 1 << 20
)

// Config задаёт параметры HTTP API.
type Config struct {
	JWTSecret      string
	RequestTimeout time.Duration
	AllowedOrigins []string
	Logger         *log.Entry
}

// API связывает HTTP-маршруты с сервисом заказов и каталогом.
type API struct {
	orders   *ordering.Service
	catalog  domain.MenuCatalog
	guard    *idempotency.Guard
	auth     *Authenticator
	validate *validator.Validate
	query    *schema.Decoder
	timeout  time.Duration
	origins  []string
	logger   *log.Entry
}

// New создаёт API. guard может быть nil: тогда Idempotency-Key игнорируется.
func New(orders *ordering.Service, catalog domain.MenuCatalog, guard *idempotency.Guard, cfg Config) *API {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	return &API{
		orders:   orders,
		catalog:  catalog,
		guard:    guard,
		auth:     NewAuthenticator(cfg.JWTSecret),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		query:    decoder,
		timeout:  timeout,
		origins:  origins,
		logger:   logger,
	}
}

// Routes собирает chi-роутер.
func (a *API) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(a.accessLog)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(a.timeout))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders: []string{"Idempotent-Replayed"},
		MaxAge:         300,
	}))

	router.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Use(a.requireActor)
			r.Post("/", a.placeOrder)
			r.Get("/", a.listOrders)
			r.Get("/my", a.listMyOrders)
			r.Get("/summary", a.salesSummary)
			r.Get("/{id}", a.getOrder)
			r.Patch("/{id}/status", a.setOrderStatus)
		})

		r.Route("/menu", func(r chi.Router) {
			r.Get("/", a.listMenu)
			r.Get("/{id}", a.getMenuItem)

			r.Group(func(r chi.Router) {
				r.Use(a.requireActor)
				r.Get("/all", a.listFullMenu)
				r.Post("/", a.createMenuItem)
				r.Put("/{id}", a.updateMenuItem)
				r.Delete("/{id}", a.deleteMenuItem)
			})
		})
	})

	return router
}
