package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/kus-aws/backend-go/internal/agent"
	"github.com/kus-aws/backend-go/internal/config"
	"github.com/kus-aws/backend-go/internal/llm"
	"github.com/kus-aws/backend-go/internal/logger"
	"github.com/kus-aws/backend-go/internal/server"
	"github.com/kus-aws/backend-go/internal/store"
)

func main() {
	// Local development keeps secrets in .env; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetFormat(cfg.Log.Format)
	logger.SetLevel(cfg.Log.Level)

	st, err := store.Open(cfg.Store)
	if err != nil {
		logger.L.Error("failed to open conversation store", "error", err, "path", cfg.Store.Path)
		os.Exit(1)
	}
	defer st.Close()

	modelClient, err := llm.NewClient(cfg.Model)
	if err != nil {
		logger.L.Error("failed to build model client", "error", err)
		os.Exit(1)
	}

	orchestrator := agent.New(modelClient, st, cfg.Model)
	srv := server.New(orchestrator, st, cfg.CORS)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	if err := srv.ListenAndServe(addr); err != nil {
		logger.L.Error("server exited", "error", err)
		os.Exit(1)
	}
}
