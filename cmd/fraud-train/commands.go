package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/bibbank/fraudscoring/internal/app"
	"github.com/bibbank/fraudscoring/internal/application/dto"
	"github.com/bibbank/fraudscoring/internal/infrastructure/config"
	"github.com/bibbank/fraudscoring/pkg/observability"
)

var version = "v0.0.1-default"

var (
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	datasetFlag = &cli.StringFlag{
		Name:  "dataset",
		Usage: "Path to the training CSV (default: DATASET_PATH)",
	}

	artifactsFlag = &cli.StringFlag{
		Name:  "artifacts",
		Usage: "Artifact store directory (default: ARTIFACT_DIR)",
	}

	seedFlag = &cli.Uint64Flag{
		Name:  "seed",
		Usage: "Seed for oversampling, the split and fold assignment (default: TRAINING_SEED)",
	}

	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "Parallel cross-validation fits (default: TRAINING_WORKERS)",
	}

	inputFlag = &cli.StringFlag{
		Name:  "input",
		Usage: "JSON file with one score request or an array of them, - for stdin",
		Value: "-",
	}

	limitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum runs to list",
		Value: 20,
	}

	offsetFlag = &cli.IntFlag{
		Name:  "offset",
		Usage: "Runs to skip",
	}
)

// runner carries state from Before into the command actions.
type runner struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

func newCommand() *cli.Command {
	r := &runner{out: os.Stdout}
	return &cli.Command{
		Name:            "fraud-train",
		Version:         version,
		Usage:           "Train fraud models and score transactions offline",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			debugFlag,
			artifactsFlag,
		},
		Before: r.before,
		Commands: []*cli.Command{
			{
				Name:   "train",
				Usage:  "Train a model on the dataset and publish it to the artifact store",
				Flags:  []cli.Flag{datasetFlag, seedFlag, workersFlag},
				Action: r.train,
			},
			{
				Name:   "score",
				Usage:  "Score transactions against the current model",
				Flags:  []cli.Flag{inputFlag},
				Action: r.score,
			},
			{
				Name:   "runs",
				Usage:  "List training runs, newest first",
				Flags:  []cli.Flag{limitFlag, offsetFlag},
				Action: r.runs,
			},
			{
				Name:   "versions",
				Usage:  "List the model versions in the artifact store",
				Action: r.versions,
			},
		},
	}
}

func (r *runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load()
	if err != nil {
		return ctx, err
	}
	level := cfg.LogLevel
	if cmd.Bool(debugFlag.Name) {
		level = "debug"
	}
	// Logs go to stderr; stdout carries only results.
	r.logger = observability.InitLogger(observability.LogConfig{
		Level:   level,
		Format:  cfg.LogFormat,
		Service: "fraud-train",
		Output:  os.Stderr,
	})

	if cmd.IsSet(artifactsFlag.Name) {
		cfg.ArtifactDir = cmd.String(artifactsFlag.Name)
	}
	r.cfg = cfg
	return ctx, nil
}

func (r *runner) build(ctx context.Context) (*app.App, error) {
	return app.Build(ctx, r.cfg, r.logger, app.Options{})
}

func (r *runner) train(ctx context.Context, cmd *cli.Command) error {
	if cmd.IsSet(datasetFlag.Name) {
		r.cfg.DatasetPath = cmd.String(datasetFlag.Name)
	}
	if cmd.IsSet(seedFlag.Name) {
		r.cfg.Training.Seed = uint64(cmd.Uint64(seedFlag.Name))
	}
	if cmd.IsSet(workersFlag.Name) {
		r.cfg.Training.Workers = int(cmd.Int(workersFlag.Name))
	}
	if err := r.cfg.Validate(); err != nil {
		return err
	}

	a, err := r.build(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Train.Execute(ctx)
	if err != nil {
		return err
	}
	return r.print(resp)
}

func (r *runner) score(ctx context.Context, cmd *cli.Command) error {
	reqs, err := readScoreRequests(cmd.String(inputFlag.Name))
	if err != nil {
		return err
	}

	a, err := r.build(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.LoadModel(ctx); err != nil {
		return err
	}

	results := make([]dto.ScoreResponse, 0, len(reqs))
	for i, req := range reqs {
		resp, err := a.Score.Execute(ctx, req)
		if err != nil {
			return fmt.Errorf("request %d: %w", i, err)
		}
		results = append(results, resp)
	}
	if len(results) == 1 {
		return r.print(results[0])
	}
	return r.print(results)
}

func (r *runner) runs(ctx context.Context, cmd *cli.Command) error {
	a, err := r.build(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.ListRuns.Execute(ctx, dto.ListTrainingRunsRequest{
		Limit:  int(cmd.Int(limitFlag.Name)),
		Offset: int(cmd.Int(offsetFlag.Name)),
	})
	if err != nil {
		return err
	}
	return r.print(resp)
}

type versionsOutput struct {
	Current  string   `json:"current,omitempty"`
	Versions []string `json:"versions"`
}

func (r *runner) versions(ctx context.Context, _ *cli.Command) error {
	a, err := r.build(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	all, err := a.Store.Versions()
	if err != nil {
		return err
	}
	out := versionsOutput{Versions: all}
	// An unset pointer just means nothing is published yet.
	if current, err := a.Store.CurrentVersion(); err == nil {
		out.Current = current
	}
	return r.print(out)
}

func (r *runner) print(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readScoreRequests accepts a single JSON object or an array of them.
func readScoreRequests(path string) ([]dto.ScoreRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read score input: %w", err)
	}
	return decodeScoreRequests(data)
}

func decodeScoreRequests(data []byte) ([]dto.ScoreRequest, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, errors.New("score input is empty")
	}
	if strings.HasPrefix(trimmed, "[") {
		var reqs []dto.ScoreRequest
		if err := json.Unmarshal(data, &reqs); err != nil {
			return nil, fmt.Errorf("failed to decode score requests: %w", err)
		}
		return reqs, nil
	}
	var req dto.ScoreRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode score request: %w", err)
	}
	return []dto.ScoreRequest{req}, nil
}
