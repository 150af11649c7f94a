/*
Package main is the entry point for the BankingBot server.

The server exposes a REST API for a banking customer-support assistant: an
LLM-driven agent with typed data-retrieval tools, a streamed reasoning
protocol, and post-hoc response evaluation.

Initialization steps:
1. Load .env (if present) and configuration from environment variables
2. Initialize structured logging
3. Open the relational store and the document vector index
4. Create the core server instance with dependencies
5. Set up HTTP middleware (logging, recovery, CORS) and register routes
6. Start the server with graceful shutdown support
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/philippgille/chromem-go"

	"github.com/arslan2k12/BankingBot/core"
	"github.com/arslan2k12/BankingBot/store"
	"github.com/arslan2k12/BankingBot/vectorstore"
)

func main() {
	// Load .env for local development; missing file is fine.
	_ = godotenv.Load()

	config := core.LoadConfig()
	logger := core.InitializeLogger(config)
	logger.Info("Starting BankingBot server")

	db, err := store.Open(config.DatabasePath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open database")
	}
	defer db.Close()

	embed := chromem.NewEmbeddingFuncOpenAI(config.OpenAIAPIKey, chromem.EmbeddingModelOpenAI(config.OpenAIEmbeddingModel))
	index, err := vectorstore.Open(config.VectorDir, embed, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open document index")
	}

	server, err := core.NewServer(config, logger, db, index)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create server")
	}

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server.RegisterRoutes(e)

	go func() {
		logger.WithField("port", config.Port).Info("Starting server")
		if err := e.Start(fmt.Sprintf(":%s", config.Port)); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Failed to gracefully shutdown server")
	} else {
		logger.Info("Server shutdown complete")
	}
}
