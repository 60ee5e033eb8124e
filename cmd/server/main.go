package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/survey-wizard/backend/internal/api"
	"github.com/survey-wizard/backend/internal/config"
	"github.com/survey-wizard/backend/internal/db"
	"github.com/survey-wizard/backend/internal/llm"
	"github.com/survey-wizard/backend/internal/middleware"
	"github.com/survey-wizard/backend/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("skipping .env: %v", err)
	}
	cfg := config.FromEnv()

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database %q: %v", cfg.DBPath, err)
	}
	defer store.Close()
	if err := db.Migrate(store.DB()); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	questions := services.NewQuestionService(store)
	syncQuestions(questions, cfg.QuestionsPath)

	client := llm.New(cfg.LLM)
	if err := client.WaitReady(context.Background(), llm.GateConfig{
		Attempts: cfg.HealthAttempts,
		Interval: cfg.HealthInterval,
	}); err != nil {
		log.Fatalf("startup gate: %v", err)
	}

	surveys := services.NewSurveyService(store)
	chats := services.NewChatService(store, client)

	mux := http.NewServeMux()
	api.NewRouter(surveys, chats, questions, client).Register(mux)

	handler := cors.AllowAll().Handler(middleware.SecureHeaders(middleware.RequestLog(mux)))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
		// Write timeout must cover a full upstream generation round-trip.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLM.ReadTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("survey backend listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("received %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// syncQuestions upserts the question config into the store at boot. A missing
// or broken config file falls back to the built-in question set so that a
// fresh deployment still serves a questionnaire.
func syncQuestions(svc *services.QuestionService, path string) {
	doc, err := config.LoadQuestions(path)
	if err != nil {
		log.Printf("question config %q: %v; using built-in defaults", path, err)
		doc = config.DefaultQuestions()
	}
	res, err := svc.Sync(doc.ActiveQuestions())
	if err != nil {
		log.Fatalf("sync questions: %v", err)
	}
	log.Printf("question sync: %d added, %d updated, %d unchanged", res.Added, res.Updated, res.Skipped)
}
