// Package cli implements the runway operator command line.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ZanzyTHEbar/runway/internal/model"
	"github.com/ZanzyTHEbar/runway/internal/scoring"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	appConfigKey = "app-config"

	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	modelFlag = &cli.StringFlag{
		Name:    "model",
		Usage:   "Path to the model artifact (.json, .yaml)",
		EnvVars: []string{"MODEL_PATH"},
		Value:   "data/model/runway_model.json",
	}

	datasetFlag = &cli.StringFlag{
		Name:    "dataset",
		Usage:   "Processed dataset CSV whose header defines the feature order (optional)",
		EnvVars: []string{"DATASET_PATH"},
	}

	labelFlag = &cli.StringFlag{
		Name:    "label",
		Usage:   "Label column in the dataset header (default: the artifact's label, then \"" + model.DefaultLabelColumn + "\")",
		EnvVars: []string{"LABEL_COLUMN"},
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format [text, json, yaml]",
		Value: formatText,
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	initLogging(false)

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Format string
	Scorer *scoring.Scorer
}

func getConfig(c *cli.Context) *appConfig {
	return c.App.Metadata[appConfigKey].(*appConfig)
}

func newApp() *cli.App {
	return &cli.App{
		Name:                 "runway",
		Version:              fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Compiled:             time.Now(),
		EnableBashCompletion: true,
		HideHelpCommand:      true,
		Usage:                "Inspect the startup failure risk model and score startups offline",
		Metadata:             map[string]interface{}{},
		Flags: []cli.Flag{
			debugFlag,
			modelFlag,
			datasetFlag,
			labelFlag,
			formatFlag,
		},
		Commands: []*cli.Command{
			featuresCmd,
			inspectCmd,
			importanceCmd,
			scoreCmd,
		},
		Before: func(c *cli.Context) error {
			if c.Bool(debugFlag.Name) {
				initLogging(true)
			}

			format := c.String(formatFlag.Name)
			switch format {
			case formatText, formatJSON:
			case formatYAML, "yml":
				format = formatYAML
			default:
				return fmt.Errorf("unsupported format %q", format)
			}

			m, err := model.Load(model.LoadOptions{
				ArtifactPath: c.String(modelFlag.Name),
				DatasetPath:  c.String(datasetFlag.Name),
				LabelColumn:  c.String(labelFlag.Name),
			})
			if err != nil {
				return err
			}

			c.App.Metadata[appConfigKey] = &appConfig{
				Format: format,
				Scorer: scoring.NewScorer(m),
			}
			return nil
		},
	}
}

func initLogging(debug bool) {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
}

func jsonDecoder(data []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec
}

// encode writes v as JSON or YAML. Text output falls back to YAML for
// commands without a dedicated printer.
func encode(w io.Writer, format string, v any) error {
	if format == formatJSON {
		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		return e.Encode(v)
	}
	e := yaml.NewEncoder(w)
	e.SetIndent(2)
	defer e.Close()
	return e.Encode(v)
}
