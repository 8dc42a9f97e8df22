package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"

	"github.com/tbillet/routier/internal/filestore"
	"github.com/tbillet/routier/internal/store"
)

type AIConfig struct {
	Provider      string      `json:"provider"`
	GenerateModel string      `json:"generate_model"`
	EmbedModel    string      `json:"embed_model"`
	Data          interface{} `json:"data"`
}

type RetrievalConfig struct {
	TopK int `json:"top_k"`
	// Threshold is the minimum acceptable top-1 similarity before the
	// service declines to answer. 0 means "use the default" (0.2).
	Threshold float32 `json:"threshold"`
}

type FilterConfig struct {
	Banned []string `json:"banned"`
}

type Config struct {
	Port             int               `json:"port"`
	LogConfig        logger.LogConfig  `json:"log_config"`
	Corpus           store.Config      `json:"corpus"`
	AI               AIConfig          `json:"ai"`
	Retrieval        RetrievalConfig   `json:"retrieval"`
	Filter           FilterConfig      `json:"filter"`
	CORSOrigins      []string          `json:"cors_origins"`
	RateLimitSeconds int               `json:"rate_limit_seconds"`
	ReloadCronSpec   string            `json:"reload_cron_spec"`
	ArtifactStore    *filestore.Config `json:"artifact_store"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.Corpus.ChunksPath == "" {
		return nil, fmt.Errorf("corpus.chunks_path is required")
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.EmbedModel == "" {
		cfg.AI.EmbedModel = "text-embedding-004"
	}
	if cfg.AI.GenerateModel == "" {
		cfg.AI.GenerateModel = "gemini-2.0-flash"
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.Threshold == 0 {
		cfg.Retrieval.Threshold = 0.2
	}
	if cfg.ReloadCronSpec == "" {
		cfg.ReloadCronSpec = "*/5 * * * *"
	}
	return &cfg, nil
}
