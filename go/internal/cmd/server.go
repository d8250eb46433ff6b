package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/srkrcodingclub/iconcoderz/go/internal/config"
	"github.com/srkrcodingclub/iconcoderz/go/internal/httpapi"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	handler := httpapi.NewHandler(httpapi.Services{
		Registration: services.Registration,
		Outbox:       services.Outbox,
		Attendance:   services.Attendance,
		Feed:         services.Feed,
		DB:           services.DB,
	}, httpapi.NewAuthenticator(cfg.JWT.Secret), cfg.Env == config.EnvProduction)

	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h2c.NewHandler(c.Handler(httpapi.NewRouter(handler)), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
