package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"pdfrag/internal/chunker"
	"pdfrag/internal/config"
	"pdfrag/internal/domain"
	embollama "pdfrag/internal/embedding/ollama"
	embopenai "pdfrag/internal/embedding/openai"
	"pdfrag/internal/llm"
	"pdfrag/internal/pdf"
	"pdfrag/internal/prompt"
	"pdfrag/internal/service"
	"pdfrag/internal/tui"
	"pdfrag/internal/vectorstore"
	"pdfrag/internal/vectorstore/chroma"
	"pdfrag/internal/vectorstore/memory"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath    string
		ask        string
		stats      bool
		clearStore bool
		delSource  string
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/pdfrag/config.yaml if not provided)")
	flag.StringVar(&ask, "ask", "", "Answer a single question and exit")
	flag.BoolVar(&stats, "stats", false, "Print index statistics and exit")
	flag.BoolVar(&clearStore, "clear", false, "Clear the vector store and exit")
	flag.StringVar(&delSource, "delete", "", "Delete all chunks from the named source file and exit")
	flag.Parse()
	inputs := flag.Args()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Assemble components
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "ollama", "":
		var ocfg config.OllamaEmbedderConfig
		if cfg.Embedder.Ollama != nil {
			ocfg = *cfg.Embedder.Ollama
		}
		emb = embollama.NewClient(embollama.Config{
			BaseURL: ocfg.BaseURL,
			Model:   ocfg.Model,
			Timeout: time.Duration(ocfg.TimeoutSecs) * time.Second,
		})
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			log.Fatalf("openai embedder config missing")
		}
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			log.Fatalf("openai embedder init failed: %v", err)
		}
		emb = client
	default:
		log.Fatalf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var st vectorstore.Storage
	switch cfg.VectorStore.Type {
	case "chroma", "":
		var ccfg config.ChromaConfig
		if cfg.VectorStore.Chroma != nil {
			ccfg = *cfg.VectorStore.Chroma
		}
		st = chroma.NewStorage(chroma.Config{
			URL:        ccfg.URL,
			Collection: ccfg.Collection,
			Timeout:    time.Duration(ccfg.TimeoutSecs) * time.Second,
		})
	case "memory":
		st = memory.NewStorage()
	default:
		log.Fatalf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	ch := chunker.NewWindowChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap, cfg.Chunker.MinChunkSize)
	gen := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	})
	prompts := prompt.NewBuilder(cfg.LLM.ContextWindow, cfg.LLM.MaxTokens)
	svc := service.NewRAGService(pdf.NewExtractor(), ch, emb, st, gen, prompts, cfg.Retrieval.TopK, cfg.Retrieval.HistorySize)

	ctx := context.Background()

	if clearStore {
		if err := svc.Clear(ctx); err != nil {
			log.Fatalf("clear failed: %v", err)
		}
		fmt.Println("Vector store cleared.")
		return
	}
	if delSource != "" {
		if err := svc.DeleteSource(ctx, delSource); err != nil {
			log.Fatalf("delete failed: %v", err)
		}
		fmt.Printf("Deleted all chunks from %s\n", delSource)
		return
	}

	if len(inputs) > 0 {
		n, err := svc.IngestPDFs(ctx, inputs)
		if err != nil {
			log.Fatalf("ingest failed: %v", err)
		}
		log.Printf("Indexed %d chunks", n)
	}

	if ask != "" {
		answer, err := svc.AskStream(ctx, ask, func(token string) error {
			_, err := fmt.Print(token)
			return err
		})
		if err != nil {
			log.Fatalf("ask failed: %v", err)
		}
		fmt.Println()
		printSources(answer.Sources)
		return
	}

	info, err := svc.Stats(ctx)
	if err != nil {
		log.Fatalf("stats failed: %v", err)
	}
	if stats {
		fmt.Printf("Documents: %d\nChunks: %d\n", info.Documents, info.TotalChunks)
		for _, src := range info.Sources {
			fmt.Printf("  %s\n", src)
		}
		return
	}
	if len(inputs) == 0 && info.TotalChunks == 0 {
		fmt.Println("Usage: pdfrag [--config=config.yaml] [--ask question] [--stats] [--clear] file1.pdf [file2.pdf ...]")
		os.Exit(1)
	}

	summary := fmt.Sprintf("%d documents, %d chunks indexed", info.Documents, info.TotalChunks)
	m := tui.New(svc, summary)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}

func printSources(sources []domain.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Println("\nSources:")
	for i, s := range sources {
		pages := make([]string, len(s.Pages))
		for j, p := range s.Pages {
			pages[j] = fmt.Sprintf("%d", p)
		}
		fmt.Printf("  [%d] %s, pages %s\n", i+1, s.File, strings.Join(pages, ", "))
	}
}
