// Package evaluation scores the recommendation pipeline against labelled
// queries.
package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"teabot/internal/domain"
	"teabot/internal/service"
)

// Mode selects what is scored.
type Mode string

const (
	// ModeRetrieval scores the retrieved names only; no generation call.
	ModeRetrieval Mode = "retrieval"
	// ModeGeneration scores the names the LLM returns as a JSON array.
	ModeGeneration Mode = "generation"
)

// DefaultSystemContext asks the model for machine-readable output.
const DefaultSystemContext = "Output ONLY a JSON array of tea names."

// ParseMode validates a configured mode. Empty means retrieval.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeRetrieval:
		return ModeRetrieval, nil
	case ModeGeneration:
		return ModeGeneration, nil
	}
	return "", fmt.Errorf("unknown evaluation mode %q", s)
}

// Pipeline is the part of service.Recommender the harness drives.
type Pipeline interface {
	Recommend(ctx context.Context, req service.Request) (*service.Result, error)
	Retrieve(ctx context.Context, query string, k int) ([]domain.ScoredItem, error)
}

// Options configure a Harness.
type Options struct {
	Mode Mode
	// TopN is N in Precision@N.
	TopN int
	// SystemContext replaces the pipeline's system context in generation
	// mode. Empty selects DefaultSystemContext.
	SystemContext string
}

// Harness runs evaluation cases through a pipeline.
type Harness struct {
	pipeline Pipeline
	opts     Options
	log      *zap.Logger
}

// NewHarness creates a harness over p.
func NewHarness(p Pipeline, opts Options, log *zap.Logger) (*Harness, error) {
	if p == nil {
		return nil, errors.New("evaluation needs a pipeline")
	}
	if opts.Mode == "" {
		opts.Mode = ModeRetrieval
	}
	if opts.Mode != ModeRetrieval && opts.Mode != ModeGeneration {
		return nil, fmt.Errorf("unknown evaluation mode %q", opts.Mode)
	}
	if opts.TopN <= 0 {
		return nil, fmt.Errorf("invalid top_n %d", opts.TopN)
	}
	if opts.SystemContext == "" {
		opts.SystemContext = DefaultSystemContext
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Harness{pipeline: p, opts: opts, log: log}, nil
}

// CaseResult is the outcome of one case. Err is set when the pipeline failed;
// such a case counts as a miss.
type CaseResult struct {
	Query     string   `json:"query"`
	Expected  []string `json:"expected"`
	Predicted []string `json:"predicted"`
	Correct   bool     `json:"correct"`
	// TopScore is the similarity of the best retrieved item, or 0 when
	// nothing was retrieved.
	TopScore float64 `json:"top_score"`
	// MatchedScore is the retrieval similarity of the matched name, when
	// that name was among the retrieved items.
	MatchedScore *float64 `json:"matched_similarity,omitempty"`
	Err          error    `json:"-"`
	Error        string   `json:"error,omitempty"`
}

// Report aggregates a run.
type Report struct {
	RunID   string        `json:"run_id"`
	Mode    Mode          `json:"mode"`
	TopN    int           `json:"top_n"`
	Started time.Time     `json:"started_at"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Total   int           `json:"total"`
	Correct int           `json:"correct"`
	Failed  int           `json:"failed"`
	// Precision is Precision@TopN as a percentage.
	Precision float64 `json:"precision_percent"`
	// AvgMatchedSimilarity is the mean MatchedScore over cases that have one.
	AvgMatchedSimilarity float64 `json:"avg_matched_similarity"`
	// PredictionRate is the mean of 1 for correct cases and TopScore for
	// the rest.
	PredictionRate float64      `json:"prediction_rate"`
	Cases          []CaseResult `json:"cases"`
}

// Run evaluates every case in order. Pipeline failures are recorded per case;
// only an empty case list or a cancelled context fails the run.
func (h *Harness) Run(ctx context.Context, cases []Case) (*Report, error) {
	if len(cases) == 0 {
		return nil, errors.New("no evaluation cases")
	}
	rep := &Report{
		RunID:   uuid.NewString(),
		Mode:    h.opts.Mode,
		TopN:    h.opts.TopN,
		Started: time.Now(),
		Total:   len(cases),
		Cases:   make([]CaseResult, 0, len(cases)),
	}
	var matchedSum, rateSum float64
	var matchedN int
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := h.runCase(ctx, c)
		switch {
		case res.Err != nil:
			rep.Failed++
			h.log.Warn("evaluation case failed", zap.String("query", c.Query), zap.Error(res.Err))
		case res.Correct:
			rep.Correct++
		}
		if res.MatchedScore != nil {
			matchedSum += *res.MatchedScore
			matchedN++
		}
		if res.Correct {
			rateSum += 1
		} else {
			rateSum += res.TopScore
		}
		rep.Cases = append(rep.Cases, res)
	}
	rep.Precision = float64(rep.Correct) / float64(rep.Total) * 100
	if matchedN > 0 {
		rep.AvgMatchedSimilarity = matchedSum / float64(matchedN)
	}
	rep.PredictionRate = rateSum / float64(rep.Total)
	rep.Elapsed = time.Since(rep.Started)
	h.log.Info("evaluation complete",
		zap.String("run_id", rep.RunID),
		zap.String("mode", string(rep.Mode)),
		zap.Int("total", rep.Total),
		zap.Int("correct", rep.Correct),
		zap.Float64("precision", rep.Precision),
	)
	return rep, nil
}

func (h *Harness) runCase(ctx context.Context, c Case) CaseResult {
	res := CaseResult{Query: c.Query, Expected: c.ExpectedNames, Predicted: []string{}}
	var retrieved []domain.ScoredItem
	switch h.opts.Mode {
	case ModeGeneration:
		out, err := h.pipeline.Recommend(ctx, service.Request{
			Query:         c.Query,
			TopN:          h.opts.TopN,
			SystemContext: h.opts.SystemContext,
			Deterministic: true,
		})
		if err != nil {
			res.Err, res.Error = err, err.Error()
			return res
		}
		retrieved = out.Retrieved
		res.Predicted = ParseNames(out.Text)
	default:
		items, err := h.pipeline.Retrieve(ctx, c.Query, h.opts.TopN)
		if err != nil {
			res.Err, res.Error = err, err.Error()
			return res
		}
		retrieved = items
		for _, it := range items {
			res.Predicted = append(res.Predicted, it.Item.Name)
		}
	}
	if len(retrieved) > 0 {
		res.TopScore = retrieved[0].Score
	}
	scores := make(map[string]float64, len(retrieved))
	for _, it := range retrieved {
		if _, seen := scores[it.Item.Name]; !seen {
			scores[it.Item.Name] = it.Score
		}
	}
	for _, name := range res.Predicted {
		if !contains(c.ExpectedNames, name) {
			continue
		}
		res.Correct = true
		if s, ok := scores[name]; ok {
			res.MatchedScore = &s
		}
		break
	}
	return res
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes a per-case transcript followed by the summary metrics.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Evaluating %s (N=%d) on %d samples...\n", r.Mode, r.TopN, r.Total)
	for _, c := range r.Cases {
		fmt.Fprintf(&b, "Query: %s\n", c.Query)
		fmt.Fprintf(&b, "  Expected: %s\n", strings.Join(c.Expected, ", "))
		fmt.Fprintf(&b, "  Predicted: %s\n", strings.Join(c.Predicted, ", "))
		match := "No"
		if c.Correct {
			match = "Yes"
		}
		fmt.Fprintf(&b, "  Match: %s\n", match)
		if c.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", c.Error)
		}
		b.WriteString(strings.Repeat("-", 20) + "\n")
	}
	fmt.Fprintf(&b, "Evaluation Complete.\n")
	fmt.Fprintf(&b, "Precision@%d: %.2f%% (%d/%d)\n", r.TopN, r.Precision, r.Correct, r.Total)
	fmt.Fprintf(&b, "Average matched similarity: %.4f\n", r.AvgMatchedSimilarity)
	fmt.Fprintf(&b, "Overall prediction rate: %.4f\n", r.PredictionRate)
	if r.Failed > 0 {
		fmt.Fprintf(&b, "Failed cases: %d\n", r.Failed)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
