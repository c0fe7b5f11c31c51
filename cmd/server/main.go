package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/chat"
	"github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/config"
	"github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/db"
	myMiddleware "github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/middleware"
	"github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/session"
	"github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/storage"
	"github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/telemetry"
	"github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/transcribe"
	"github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/user"
)

func main() {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(cfg.DBDsn)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database Schema Initialized")

	// 3. Session Store (Redis when configured, in-memory otherwise)
	var sessions session.Store
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		log.Println("✅ Connected to Redis")
		sessions = session.NewRedis(redisClient, cfg.SessionTTL)
	} else {
		sessions = session.NewMemory()
	}

	// 4. Object Storage (optional; upload endpoints 503 without it)
	var objectStore transcribe.ObjectStore
	if cfg.StorageConfigured() {
		store, err := storage.New(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseSSL, cfg.InputBucket, cfg.OutputBucket)
		if err != nil {
			log.Fatalf("❌ Failed to connect to object storage: %v", err)
		}
		log.Println("✅ Connected to object storage")
		objectStore = store
	} else {
		log.Println("⚠️  Object storage not configured, upload endpoints disabled")
	}

	telemetry.Init()

	// 5. Initialize User Feature
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, sessions, cfg.AdminUsername)
	userHandler := user.NewHandler(userService)

	// 6. Initialize Chat Feature
	chatRepo := chat.NewRepository(database.Conn)
	registry := chat.NewRegistry()
	fanout := chat.NewFanout(registry, chatRepo)
	chatHandler := chat.NewHandler(chatRepo, registry, fanout, userService, cfg.AdminUsername)

	// 7. Transcription pipeline glue
	transcribeHandler := transcribe.NewHandler(userRepo, chatRepo, fanout, objectStore, cfg.SharedSecret, cfg.AdminUsername)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 8. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/api/register", userHandler.Register)
	r.Post("/api/login", userHandler.Login)
	r.Post("/api/logout", userHandler.Logout)
	r.Get("/api/me", userHandler.Me)
	r.Get("/api/validate-invite", userHandler.ValidateInvite)
	r.Post("/transcription-callback", transcribeHandler.Callback)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "index.html")
	})

	// WebSocket: auth happens in-band (first frame carries the token)
	r.Get("/ws", chatHandler.ServeWs)

	// Protected Routes (require a session)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/api/chats", chatHandler.Chats)
		r.Get("/api/get-messages", chatHandler.GetMessages)
		r.Post("/api/send-message", chatHandler.SendMessage)
		r.Post("/api/mark-read", chatHandler.MarkRead)

		r.Post("/api/get-presigned-url", transcribeHandler.PresignUpload)
		r.Get("/api/get-transcription", transcribeHandler.GetTranscription)
		r.Get("/api/get-transcription-feed", transcribeHandler.TranscriptionFeed)
	})

	log.Printf("🚀 Server starting on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatal(err)
	}
}
