package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"natural-alert/internal/ai"
	"natural-alert/internal/chunker"
	"natural-alert/internal/config"
	"natural-alert/internal/ingest"
	"natural-alert/internal/logger"
	"natural-alert/internal/pdfextract"
	"natural-alert/internal/platform/redis"
	"natural-alert/internal/vectorindex"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	dir := flag.String("dir", cfg.Ingest.AssetsDir, "directory containing the PDF documents to index")
	flag.Parse()

	appLog, err := logger.New(cfg.App.Env)
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer appLog.Sync()

	ctx := context.Background()

	redisClient, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLog.Fatalw("init redis failed", "err", err)
	}
	defer redisClient.Close()

	aiClient := ai.NewOpenAICompatibleClient()
	chatModel := ai.NewChatModel(aiClient, ai.ChatConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.ChatModel,
	})
	embedder := ai.NewEmbedder(aiClient, ai.EmbeddingConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.EmbeddingModel,
	})

	index := vectorindex.New(
		redisClient,
		cfg.Index.Name,
		cfg.Index.Dimension,
		vectorindex.HNSWParams{
			M:              cfg.Index.HNSWM,
			EFConstruction: cfg.Index.HNSWEFConstruct,
			EFRuntime:      cfg.Index.HNSWEFRuntime,
		},
	)

	paths, err := ingest.ListPDFs(*dir)
	if err != nil {
		appLog.Fatalw("list documents failed", "dir", *dir, "err", err)
	}
	if len(paths) == 0 {
		appLog.Infow("no PDF documents found", "dir", *dir)
		return
	}

	ing := ingest.NewIngestor(
		pdfextract.ExtractFile,
		chunker.NewDensifier(chatModel),
		chunker.NewSplitter(cfg.Chunking.MaxLength, cfg.Chunking.MinLength),
		embedder,
		index,
		cfg.Ingest.Concurrency,
		cfg.Ingest.EmbedBatchSize,
		appLog,
	)

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("indexing documents"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	ing.OnDocumentDone = func(ingest.DocumentResult) {
		_ = bar.Add(1)
	}

	results, err := ing.Run(ctx, paths)
	if err != nil {
		appLog.Fatalw("ingestion failed", "err", err)
	}

	indexed, failed, chunks := 0, 0, 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			appLog.Warnw("document failed", "path", res.Path, "err", res.Err)
			continue
		}
		indexed++
		chunks += res.Chunks
		appLog.Infow("document indexed", "path", res.Path, "chunks", res.Chunks)
	}
	appLog.Infow("ingestion finished", "indexed", indexed, "failed", failed, "chunks", chunks)
}
