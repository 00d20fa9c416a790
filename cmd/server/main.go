package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/deca/voicecmd/internal/config"
	"github.com/deca/voicecmd/internal/executor"
	"github.com/deca/voicecmd/internal/handler"
	"github.com/deca/voicecmd/internal/llm"
	"github.com/deca/voicecmd/internal/planner"
	"github.com/deca/voicecmd/internal/prompt"
	"github.com/deca/voicecmd/internal/rules"
	"github.com/deca/voicecmd/internal/safety"
	"github.com/deca/voicecmd/internal/session"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load configuration", "error", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalw("invalid configuration", "error", err)
	}
	log.Infow("configuration loaded", "port", cfg.Port, "model", cfg.LLMModel, "confirm_dangerous", cfg.ConfirmDangerous)

	// Rule matcher: built-in tables, or the YAML override when given.
	matcher := rules.NewMatcher()
	if cfg.RulesFile != "" {
		matcher, err = rules.LoadMatcher(cfg.RulesFile)
		if err != nil {
			log.Fatalw("failed to load rules file", "file", cfg.RulesFile, "error", err)
		}
		log.Infow("loaded rule tables", "file", cfg.RulesFile)
	}

	prompts := prompt.New(cfg.PromptsDir, log)
	log.Infow("prompts loaded", "fewshot_examples", prompts.ExampleCount())

	client := llm.NewClient(cfg, log)
	parser := llm.NewParser(client, prompts, cfg.LLMMaxRetries, log)
	escalator := safety.New(matcher, cfg.ConfirmDangerous)
	resolver := planner.New(parser, matcher, escalator, log)
	actuator := executor.New(cfg.ActuatorTimeout, log)

	sessions, err := session.Open(cfg.SessionDBPath, cfg.SessionMaxHistory,
		time.Duration(cfg.SessionExpiryHours)*time.Hour, log)
	if err != nil {
		log.Fatalw("failed to open session store", "error", err)
	}
	defer sessions.Close()

	stop := make(chan struct{})
	defer close(stop)
	sessions.StartCleanup(time.Hour, stop)

	h := handler.New(cfg, resolver, actuator, sessions, log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	api := r.Group("/api")
	{
		api.GET("/health", h.HealthCheck)
		api.POST("/text", h.TextInteraction)
		api.POST("/resolve", h.ResolveOnly)
		api.GET("/sessions/:id", h.History)
		api.GET("/stream", h.Stream)
	}

	addr := ":" + cfg.Port
	log.Infow("starting voicecmd server", "addr", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalw("server exited", "error", err)
	}
}
