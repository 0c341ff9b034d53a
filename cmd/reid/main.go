package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"player-reid-go/internal/app"
	"player-reid-go/internal/config"
	"player-reid-go/internal/service"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config")
	broadcast := flag.String("broadcast", "", "Broadcast frames directory (overrides config)")
	tacticam := flag.String("tacticam", "", "Tacticam frames directory (overrides config)")
	output := flag.String("output", "", "Output directory (overrides config)")
	frameLimit := flag.Int("frame-limit", -1, "Last frame index to process, 0 for all (overrides config)")
	render := flag.Bool("render", false, "Write annotated frames")
	heatmap := flag.Bool("heatmap", false, "Write similarity heat map")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return service.Classify(err).ExitCode
	}
	if *broadcast != "" {
		cfg.BroadcastFrames = *broadcast
	}
	if *tacticam != "" {
		cfg.TacticamFrames = *tacticam
	}
	if *output != "" {
		cfg.OutputDir = *output
	}
	if *frameLimit >= 0 {
		cfg.FrameLimit = *frameLimit
	}
	cfg.Render.Enabled = cfg.Render.Enabled || *render
	cfg.Report.HeatMap = cfg.Report.HeatMap || *heatmap

	if err := cfg.ValidateStreams(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return service.Classify(err).ExitCode
	}

	logger, err := app.NewLogger(cfg, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return service.Classify(err).ExitCode
	}

	components, err := app.Build(cfg, logger)
	if err != nil {
		logger.Errorf("Ошибка инициализации конвейера: %v", err)
		return service.ExitFailure
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := components.Pipeline.RunAll(ctx, service.PipelineInput{
		RunID:           uuid.New().String(),
		BroadcastFrames: cfg.BroadcastFrames,
		TacticamFrames:  cfg.TacticamFrames,
		OutputDir:       cfg.OutputDir,
		FrameLimit:      cfg.FrameLimit,
	})
	if err != nil {
		outcome := service.Classify(err)
		logger.Errorf("Конвейер завершился со статусом %s: %v", outcome.Status, err)
		return outcome.ExitCode
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Errorf("Ошибка вывода результата: %v", err)
		return service.ExitFailure
	}
	return service.ExitOK
}
