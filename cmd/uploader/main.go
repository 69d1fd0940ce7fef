// Command uploader sends one storyboard or question file to a Canvas New
// Quiz and prints the run report as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-uploader/internal/app"
	"github.com/gokatarajesh/quiz-uploader/internal/auth"
	"github.com/gokatarajesh/quiz-uploader/internal/config"
	"github.com/gokatarajesh/quiz-uploader/internal/logging"
	"github.com/gokatarajesh/quiz-uploader/internal/upload"
)

func main() {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load("configs/.env")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	file       string
	format     string
	course     string
	assignment string
	title      string
	module     string
	dryRun     bool
	reset      bool
	publish    bool
	hashCode   string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("uploader", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.file, "file", "", "storyboard (.txt), YAML or JSON question file; - reads stdin")
	fs.StringVar(&o.format, "format", "", "markup, yaml or json (default: from file extension)")
	fs.StringVar(&o.course, "course", "", "Canvas course id")
	fs.StringVar(&o.assignment, "assignment", "", "existing New Quiz assignment id (default: create a new quiz)")
	fs.StringVar(&o.title, "title", "", "title for a new quiz")
	fs.StringVar(&o.module, "module", "", "module name to add the quiz to")
	fs.BoolVar(&o.dryRun, "dry-run", false, "parse, build and validate only")
	fs.BoolVar(&o.reset, "reset", false, "delete existing items of -assignment before posting")
	fs.BoolVar(&o.publish, "publish", true, "publish the quiz after a run with at least one item")
	fs.StringVar(&o.hashCode, "hash-access-code", "", "print a bcrypt hash for ACCESS_CODE_HASH and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.hashCode != "" {
		return o, nil
	}
	if o.file == "" {
		return o, errors.New("-file is required")
	}
	if o.course == "" && !o.dryRun {
		return o, errors.New("-course is required unless -dry-run is set")
	}
	if o.reset && o.assignment == "" {
		return o, errors.New("-reset needs -assignment")
	}
	return o, nil
}

func formatFor(o options) string {
	if o.format != "" {
		return o.format
	}
	switch strings.ToLower(filepath.Ext(o.file)) {
	case ".yaml", ".yml":
		return upload.FormatYAML
	case ".json":
		return upload.FormatJSON
	}
	return upload.FormatMarkup
}

func readSource(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		raw, err := io.ReadAll(stdin)
		return string(raw), err
	}
	raw, err := os.ReadFile(path)
	return string(raw), err
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, "uploader:", err)
		return 2
	}

	if o.hashCode != "" {
		hash, err := auth.HashAccessCode(o.hashCode)
		if err != nil {
			fmt.Fprintln(stderr, "uploader:", err)
			return 1
		}
		fmt.Fprintln(stdout, hash)
		return 0
	}

	cfg, err := config.LoadCLI()
	if err != nil {
		fmt.Fprintln(stderr, "uploader:", err)
		return 1
	}
	logger := logging.NewTo(stderr, "quiz-uploader", cfg.Env, cfg.LogLevel)

	source, err := readSource(o.file, os.Stdin)
	if err != nil {
		logger.Error().Err(err).Str("file", o.file).Msg("read source")
		return 1
	}

	client, err := app.NewCanvasClient(cfg.Canvas, cfg.Submit, logger)
	if err != nil {
		logger.Error().Err(err).Msg("canvas client")
		return 1
	}
	if !o.dryRun {
		user, err := client.WhoAmI(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("canvas token check failed")
			return 1
		}
		logger.Info().Str("user", user.Name).Int64("user_id", user.ID).Msg("authenticated with canvas")
	}

	opts := app.UploadOptions(cfg.Upload, nil, nil)
	opts.Publish = o.publish
	svc := upload.NewService(client, nil, nil, app.NewConverter(cfg.Converter, logger), opts, logger)

	rep, runErr := svc.Run(ctx, upload.Request{
		Source:       source,
		Format:       formatFor(o),
		CourseID:     o.course,
		AssignmentID: o.assignment,
		Title:        o.title,
		ModuleName:   o.module,
		Reset:        o.reset,
		DryRun:       o.dryRun,
	})
	if err := writeReport(stdout, rep); err != nil {
		logger.Error().Err(err).Msg("write report")
		return 1
	}
	return exitCode(rep, runErr, logger)
}

func writeReport(w io.Writer, rep upload.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func exitCode(rep upload.Report, err error, logger zerolog.Logger) int {
	if err != nil {
		logger.Error().Err(err).Str("status", rep.Status).Msg("upload did not complete")
		return 1
	}
	switch rep.Status {
	case upload.StatusCompleted, upload.StatusDryRun:
		return 0
	case upload.StatusPartial:
		logger.Warn().Int("failed", len(rep.Failures)).Msg("some items were not uploaded")
		return 3
	default:
		return 1
	}
}
