// Command x402-gateway protects an HTTP resource with x402 payments.
//
// Every path except the skip list requires an X-PAYMENT header. Paid requests
// are proxied to API_UPSTREAM_URL, or answered with a JSON receipt when no
// upstream is configured.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	x402 "github.com/becomeliminal/x402-paywall"
	"github.com/becomeliminal/x402-paywall/internal/config"
	"github.com/becomeliminal/x402-paywall/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	logger.Init(logger.FromEnv())
	l := logger.Get()

	srvCfg := config.LoadServer()
	payCfg := config.Load()
	payCfg.SkipPaths = append(payCfg.SkipPaths, "/health")

	svc, err := x402.NewService(payCfg, x402.WithLogger(logger.Named("x402")))
	if err != nil {
		l.Fatal().Err(err).Msg("invalid payment configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logSupported(ctx, svc)

	resource, err := resourceHandler(srvCfg.Upstream)
	if err != nil {
		l.Fatal().Err(err).Str("upstream", srvCfg.Upstream).Msg("invalid upstream url")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   srvCfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", x402.HeaderPayment},
		ExposedHeaders:   []string{x402.HeaderPaymentResponse},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(x402.PaymentMiddleware(svc))
		r.Handle("/*", resource)
	})

	srv := &http.Server{
		Addr:              srvCfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	l.Info().Str("addr", srvCfg.Addr).Str("upstream", srvCfg.Upstream).Msg("http listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Fatal().Err(err).Msg("http server stopped")
	}
	l.Info().Msg("http server stopped")
}

// logSupported reports which payment kinds the facilitator handles. A
// failure is only a warning since verify and settle may still work.
func logSupported(ctx context.Context, svc *x402.Service) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	log := logger.Named("facilitator")
	kinds, err := svc.Supported(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not list supported payment kinds")
		return
	}
	for _, k := range kinds {
		log.Info().Int("x402_version", k.X402Version).Str("scheme", k.Scheme).Str("network", k.Network).Msg("facilitator supports")
	}
}

// requestLogger bridges chi's request id into the logger context and writes
// one access line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithRequest(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.C(ctx, logger.Named("http")).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func resourceHandler(upstream string) (http.Handler, error) {
	if upstream == "" {
		return http.HandlerFunc(receipt), nil
	}
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, err
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.C(r.Context(), logger.Named("proxy")).Error().Err(err).Msg("upstream request failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream unavailable"})
	}
	return proxy, nil
}

// receipt answers paid requests when no upstream is configured.
func receipt(w http.ResponseWriter, r *http.Request) {
	payment, err := x402.RequirePayment(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"paid":    true,
		"path":    r.URL.Path,
		"scheme":  payment.Scheme,
		"payer":   payment.PayerAddress,
		"amount":  payment.Amount,
		"network": payment.Network,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
