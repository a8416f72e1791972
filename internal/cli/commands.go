package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	apperrors "github.com/ZanzyTHEbar/runway/internal/errors"
	"github.com/ZanzyTHEbar/runway/internal/intake"
	"github.com/ZanzyTHEbar/runway/internal/scoring"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var (
	topFlag = &cli.IntFlag{
		Name:  "top",
		Usage: "Number of features to show (0 for all)",
		Value: 10,
	}

	inputFlag = &cli.StringFlag{
		Name:     "input",
		Aliases:  []string{"i"},
		Usage:    "Input file (.json, .yaml) or - for stdin",
		Required: true,
	}

	profileFlag = &cli.BoolFlag{
		Name:  "profile",
		Usage: "Input is a startup profile rather than a feature vector",
	}

	detailFlag = &cli.BoolFlag{
		Name:  "detail",
		Usage: "Include the linear score and per-feature contributions",
	}

	featuresCmd = &cli.Command{
		Name:   "features",
		Usage:  "List the features the model requires, in order",
		Action: cmdFeatures,
	}

	inspectCmd = &cli.Command{
		Name:   "inspect",
		Usage:  "Show model version, bias and weights",
		Action: cmdInspect,
	}

	importanceCmd = &cli.Command{
		Name:    "importance",
		Aliases: []string{"imp"},
		Usage:   "Rank features by absolute coefficient",
		Action:  cmdImportance,
		Flags:   []cli.Flag{topFlag},
	}

	scoreCmd = &cli.Command{
		Name:  "score",
		Usage: "Score a feature vector or startup profile",
		UsageText: `runway score -i startup.json                 # feature vector
   runway score -i startup.yaml --profile       # form-style profile
   cat startup.json | runway score -i - --detail`,
		Action: cmdScore,
		Flags:  []cli.Flag{inputFlag, profileFlag, detailFlag},
	}
)

type featureItem struct {
	Name  string `json:"name" yaml:"name"`
	Label string `json:"label" yaml:"label"`
}

type weightItem struct {
	Feature string  `json:"feature" yaml:"feature"`
	Weight  float64 `json:"weight" yaml:"weight"`
}

type modelSummary struct {
	Version  string       `json:"version" yaml:"version"`
	Bias     float64      `json:"bias" yaml:"bias"`
	Features int          `json:"feature_count" yaml:"feature_count"`
	Weights  []weightItem `json:"weights" yaml:"weights"`
}

type importanceItem struct {
	Feature   string            `json:"feature" yaml:"feature"`
	Label     string            `json:"label" yaml:"label"`
	Weight    float64           `json:"weight" yaml:"weight"`
	Direction scoring.Direction `json:"direction" yaml:"direction"`
}

type contributionItem struct {
	Feature      string  `json:"feature" yaml:"feature"`
	Value        float64 `json:"value" yaml:"value"`
	Weight       float64 `json:"weight" yaml:"weight"`
	Contribution float64 `json:"contribution" yaml:"contribution"`
}

type scoreResult struct {
	ModelVersion       string             `json:"model_version" yaml:"model_version"`
	FailureProbability float64            `json:"failure_probability" yaml:"failure_probability"`
	RiskLevel          scoring.RiskTier   `json:"risk_level" yaml:"risk_level"`
	TopRiskFactors     []string           `json:"top_risk_factors" yaml:"top_risk_factors"`
	PositiveSignals    []string           `json:"positive_signals" yaml:"positive_signals"`
	LinearScore        *float64           `json:"linear_score,omitempty" yaml:"linear_score,omitempty"`
	Contributions      []contributionItem `json:"contributions,omitempty" yaml:"contributions,omitempty"`
}

func cmdFeatures(c *cli.Context) error {
	cfg := getConfig(c)

	features := cfg.Scorer.Features()
	items := make([]featureItem, len(features))
	for i, f := range features {
		items[i] = featureItem{Name: f, Label: intake.DisplayName(f)}
	}

	if cfg.Format == formatText {
		tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
		for _, it := range items {
			fmt.Fprintf(tw, "%s\t%s\n", it.Name, it.Label)
		}
		return tw.Flush()
	}
	return encode(c.App.Writer, cfg.Format, items)
}

func cmdInspect(c *cli.Context) error {
	cfg := getConfig(c)
	m := cfg.Scorer.Model()

	summary := modelSummary{
		Version:  m.Version(),
		Bias:     m.Bias(),
		Features: m.Schema().Len(),
		Weights:  make([]weightItem, m.Schema().Len()),
	}
	for i, f := range m.Schema().Names() {
		summary.Weights[i] = weightItem{Feature: f, Weight: m.Weight(i)}
	}

	return encode(c.App.Writer, cfg.Format, summary)
}

func cmdImportance(c *cli.Context) error {
	cfg := getConfig(c)

	ranked := cfg.Scorer.Importance()
	if top := c.Int(topFlag.Name); top > 0 && top < len(ranked) {
		ranked = ranked[:top]
	}

	items := make([]importanceItem, len(ranked))
	for i, fw := range ranked {
		items[i] = importanceItem{
			Feature:   fw.Feature,
			Label:     intake.DisplayName(fw.Feature),
			Weight:    fw.Weight,
			Direction: fw.Direction,
		}
	}

	if cfg.Format != formatText {
		return encode(c.App.Writer, cfg.Format, items)
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tFEATURE\tWEIGHT\tEFFECT")
	for i, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%+.4f\t%s\n", i+1, it.Label, it.Weight, directionColor(it.Direction).Sprint(it.Direction))
	}
	return tw.Flush()
}

func cmdScore(c *cli.Context) error {
	cfg := getConfig(c)

	path := c.String(inputFlag.Name)
	data, err := readInput(path, c.App.Reader)
	if err != nil {
		return err
	}

	var fv scoring.FeatureVector
	if c.Bool(profileFlag.Name) {
		fv, err = decodeProfile(path, data)
	} else {
		var raw scoring.RawVector
		if raw, err = decodeVector(path, data); err == nil {
			fv, err = cfg.Scorer.Vector(raw)
		}
	}
	if err != nil {
		return describe(err)
	}

	p, err := cfg.Scorer.Predict(fv)
	if err != nil {
		return describe(err)
	}

	result := newScoreResult(p, c.Bool(detailFlag.Name))
	if cfg.Format != formatText {
		return encode(c.App.Writer, cfg.Format, result)
	}
	return printScore(c.App.Writer, result)
}

func newScoreResult(p *scoring.Prediction, detail bool) scoreResult {
	resp := p.Response(detail)
	res := scoreResult{
		ModelVersion:       p.ModelVersion,
		FailureProbability: resp.FailureProbability,
		RiskLevel:          resp.RiskLevel,
		TopRiskFactors:     resp.TopRiskFactors,
		PositiveSignals:    resp.PositiveSignals,
		LinearScore:        resp.LinearScore,
	}
	for _, ct := range resp.Contributions {
		res.Contributions = append(res.Contributions, contributionItem(ct))
	}
	return res
}

func printScore(w io.Writer, r scoreResult) error {
	fmt.Fprintf(w, "Failure probability: %.2f%%\n", r.FailureProbability*100)
	fmt.Fprintf(w, "Risk level:          %s\n", tierColor(r.RiskLevel).Sprint(r.RiskLevel))

	fmt.Fprintln(w, "Risk factors:")
	printFactors(w, r.TopRiskFactors, color.New(color.FgRed))
	fmt.Fprintln(w, "Positive signals:")
	printFactors(w, r.PositiveSignals, color.New(color.FgGreen))

	if r.LinearScore != nil {
		fmt.Fprintf(w, "Linear score:        %+.4f\n", *r.LinearScore)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "FEATURE\tVALUE\tWEIGHT\tCONTRIBUTION")
		for _, ct := range r.Contributions {
			fmt.Fprintf(tw, "%s\t%g\t%+.4f\t%+.4f\n", ct.Feature, ct.Value, ct.Weight, ct.Contribution)
		}
		return tw.Flush()
	}
	return nil
}

func printFactors(w io.Writer, names []string, c *color.Color) {
	if len(names) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, n := range names {
		fmt.Fprintf(w, "  - %s\n", c.Sprint(intake.DisplayName(n)))
	}
}

func tierColor(t scoring.RiskTier) *color.Color {
	switch t {
	case scoring.HighRisk:
		return color.New(color.FgRed, color.Bold)
	case scoring.MediumRisk:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgGreen, color.Bold)
	}
}

func directionColor(d scoring.Direction) *color.Color {
	switch d {
	case scoring.IncreasesRisk:
		return color.New(color.FgRed)
	case scoring.ReducesRisk:
		return color.New(color.FgGreen)
	default:
		return color.New(color.Faint)
	}
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		if stdin == nil {
			stdin = os.Stdin
		}
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return data, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func decodeVector(path string, data []byte) (scoring.RawVector, error) {
	if !isYAML(path) {
		return scoring.DecodeFeatureVector(data)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return scoring.RawVector{}, apperrors.NewValidationError("input must be a mapping of feature values", err.Error())
	}
	if raw == nil {
		return scoring.RawVector{}, apperrors.NewValidationError("input is empty")
	}

	rv := scoring.RawVector{Values: make(scoring.FeatureVector, len(raw))}
	for name, v := range raw {
		switch n := v.(type) {
		case int:
			rv.Values[name] = float64(n)
		case int64:
			rv.Values[name] = float64(n)
		case uint64:
			rv.Values[name] = float64(n)
		case float64:
			rv.Values[name] = n
		default:
			rv.Invalid = append(rv.Invalid, name)
		}
	}
	sort.Strings(rv.Invalid)
	return rv, nil
}

func decodeProfile(path string, data []byte) (scoring.FeatureVector, error) {
	var p intake.Profile
	if isYAML(path) {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return nil, apperrors.NewValidationError("invalid startup profile", err.Error())
		}
	} else {
		dec := jsonDecoder(data)
		if err := dec.Decode(&p); err != nil {
			return nil, apperrors.NewValidationError("invalid startup profile", err.Error())
		}
	}
	return p.Vector()
}

// describe flattens a schema mismatch into a message an operator can act on
func describe(err error) error {
	resp := apperrors.NewResponse(err)
	if resp.MissingFeatures == nil {
		return err
	}
	return fmt.Errorf("%s (missing: [%s], extra: [%s])", resp.Error,
		strings.Join(*resp.MissingFeatures, ", "), strings.Join(*resp.ExtraFeatures, ", "))
}
