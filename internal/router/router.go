package router

import (
	"fmt"
	"net/http"

	"marketplace-api/internal/handlers"
	"marketplace-api/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	Products *handlers.ProductHandler
	Carts    *handlers.CartHandler
	Orders   *handlers.OrderHandler
	Payments *handlers.PaymentHandler
}

type Options struct {
	RateLimit rate.Limit
	RateBurst int
	// UploadDir is served under /uploads/ when set.
	UploadDir string
}

// SetupRouter wires every route. CORS wraps the whole router so preflight
// requests are answered even for paths that only register other methods.
func SetupRouter(h Handlers, tokens middleware.TokenValidator, opts Options, logger zerolog.Logger) http.Handler {
	r := mux.NewRouter()

	rateLimiter := middleware.NewRateLimiter(opts.RateLimit, opts.RateBurst)

	r.Use(middleware.ErrorHandling(logger))
	r.Use(middleware.PerformanceMonitoring(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(rateLimiter.Middleware())

	authenticate := middleware.Authentication(tokens, logger)

	api := r.PathPrefix("/api").Subrouter()

	users := api.PathPrefix("/users").Subrouter()
	users.HandleFunc("/register", h.Auth.Register).Methods("POST")
	users.HandleFunc("/login", h.Auth.Login).Methods("POST")
	users.HandleFunc("/register-seller", h.Auth.RegisterSeller).Methods("POST")
	users.HandleFunc("/login-seller", h.Auth.LoginSeller).Methods("POST")
	users.Handle("/me", authenticate(http.HandlerFunc(h.Auth.Me))).Methods("GET")

	products := api.PathPrefix("/products").Subrouter()
	products.HandleFunc("", h.Products.CreateProduct).Methods("POST")
	products.HandleFunc("", h.Products.ListProducts).Methods("GET")
	products.HandleFunc("/{id}", h.Products.GetProduct).Methods("GET")
	products.HandleFunc("/{id}", h.Products.UpdateProduct).Methods("PUT")
	products.HandleFunc("/{id}", h.Products.DeleteProduct).Methods("DELETE")

	cart := api.PathPrefix("/cart").Subrouter()
	cart.Use(authenticate)
	cart.Use(middleware.RequestValidation())
	cart.HandleFunc("", h.Carts.GetCart).Methods("GET")
	cart.HandleFunc("/add", h.Carts.AddItem).Methods("POST")
	cart.HandleFunc("/update", h.Carts.UpdateItem).Methods("PUT")
	cart.HandleFunc("/remove/{productId}", h.Carts.RemoveItem).Methods("DELETE")

	orders := api.PathPrefix("/orders").Subrouter()
	orders.Use(authenticate)
	orders.Use(middleware.RequestValidation())
	orders.HandleFunc("", h.Orders.PlaceOrder).Methods("POST")
	orders.HandleFunc("", h.Orders.ListMyOrders).Methods("GET")
	orders.Handle("/{id}/status", middleware.RequireRole("seller")(http.HandlerFunc(h.Orders.UpdateOrderStatus))).Methods("PUT")

	payments := api.PathPrefix("/payments").Subrouter()
	payments.Handle("/create-payment-intent", middleware.RequestValidation()(http.HandlerFunc(h.Payments.CreatePaymentIntent))).Methods("POST")
	payments.HandleFunc("/webhook", h.Payments.Webhook).Methods("POST")

	if opts.UploadDir != "" {
		r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", http.FileServer(http.Dir(opts.UploadDir)))).Methods("GET")
	}

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "Marketplace API is running")
	}).Methods("GET")

	return middleware.CORS()(r)
}
