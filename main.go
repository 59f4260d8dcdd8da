package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/EmpoweredVote/meresahar/internal/auth"
	"github.com/EmpoweredVote/meresahar/internal/cache"
	"github.com/EmpoweredVote/meresahar/internal/config"
	"github.com/EmpoweredVote/meresahar/internal/db"
	"github.com/EmpoweredVote/meresahar/internal/issues"
	"github.com/EmpoweredVote/meresahar/internal/mapview"
	"github.com/EmpoweredVote/meresahar/internal/metrics"
	"github.com/EmpoweredVote/meresahar/internal/middleware"
	"github.com/EmpoweredVote/meresahar/internal/reporting"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

func main() {
	_ = godotenv.Load(".env.local")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid config: ", err)
	}

	gdb, err := db.Connect(cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		log.Fatal(err)
	}
	issues.Init(gdb)
	auth.Init(gdb)

	sqlDB, err := gdb.DB()
	if err != nil {
		log.Fatal("Failed to get sql.DB: ", err)
	}
	store := issues.NewSQLStore(sqlDB, issues.DialectPostgres)

	var imageCache issues.ImageCache
	if cfg.RedisAddress != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := cache.Connect(ctx, cfg.RedisAddress, cfg.RedisPassword)
		cancel()
		if err != nil {
			log.Printf("[cache] running without image cache: %v", err)
		} else {
			imageCache = cache.NewImageCache(client, "meresahar")
		}
	}

	policy := issues.Permissive
	if cfg.StrictTransitions {
		policy = issues.ForwardOnly
	}
	images := issues.NewImageService(store, imageCache, cfg.ImageCacheTTL)
	svc := issues.NewService(store, images, policy)

	sessions := auth.SessionInfo{DB: gdb}
	admin := middleware.AdminOnly(sessions, sessions)
	limiter := middleware.NewRateLimiter(cfg.SubmitRatePerMinute, cfg.SubmitBurst)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/", RootHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/issues", issues.SetupRoutes(issues.NewHandler(svc, cfg.MaxUploadBytes), issues.Guards{
		Admin:  admin,
		Submit: []func(http.Handler) http.Handler{limiter.Middleware},
	}))
	r.Mount("/reports", reporting.SetupRoutes(reporting.NewHandler(reporting.NewService(store)), admin...))
	r.Mount("/map", mapview.SetupRoutes(mapview.NewHandler(svc, mapview.Options{
		MaxZoom: cfg.MapMaxZoom,
		Radius:  float64(cfg.MapClusterRadius),
	}, "/issues")))
	r.Mount("/auth", auth.SetupRoutes(auth.NewHandler(gdb, cfg.SessionTTL, cfg.SecureCookies)))

	log.Printf("Server listening on port :%s...", cfg.Port)
	log.Fatal(http.ListenAndServe("0.0.0.0:"+cfg.Port, r))
}
