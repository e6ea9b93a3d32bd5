package alignment

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"slidealign/internal/models"
	"slidealign/pkg/imageio"
	"slidealign/pkg/telemetry"
)

// PairResult is the outcome of one pair
type PairResult struct {
	ID string

	// Path is the artifact written, empty when the pair was skipped
	Path string

	Transform *models.AlignmentTransform
	Err       error
	Duration  time.Duration
}

// Outcome classifies the result for metrics and the summary
func (r *PairResult) Outcome() string {
	switch {
	case r.Err != nil:
		return telemetry.OutcomeSkipped
	case r.Transform.LowConfidence:
		return telemetry.OutcomeLowConfidence
	}
	return telemetry.OutcomeSucceeded
}

// AlignPair loads both images, estimates the transform and writes the
// artifact (plus debug images when enabled)
func (a *Aligner) AlignPair(ctx context.Context, pair models.Pair) (*PairResult, error) {
	start := time.Now()
	fixedImg, err := imageio.Load(pair.ID, models.Fixed, pair.FixedPath)
	if err != nil {
		return nil, err
	}
	movingImg, err := imageio.Load(pair.ID, models.Moving, pair.MovingPath)
	if err != nil {
		return nil, err
	}
	a.observe("load", start)

	est, err := a.Estimate(ctx, pair.ID, fixedImg.Image, movingImg.Image)
	if err != nil {
		return nil, err
	}

	path, err := a.writer.Write(pair.ID, est.Transform)
	if err != nil {
		return nil, err
	}
	a.log.Infof("%s: wrote %s", pair.ID, path)

	if a.cfg.Processing.Debug {
		if err := a.saveDebug(pair.ID, est); err != nil {
			// debug output never fails a pair
			a.log.Errorf("%s: failed to save debug images: %v", pair.ID, err)
		}
	}

	return &PairResult{ID: pair.ID, Path: path, Transform: &est.Transform}, nil
}

// runPair wraps AlignPair with the per-pair deadline and bookkeeping
func (a *Aligner) runPair(ctx context.Context, pair models.Pair) *PairResult {
	if timeout := a.cfg.Processing.PairTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := a.AlignPair(ctx, pair)
	if err != nil {
		res = &PairResult{ID: pair.ID, Err: err}
	}
	res.Duration = time.Since(start)

	a.latency.Record(res.Duration)
	a.metrics.ObserveOutcome(res.Outcome())
	if err != nil {
		a.log.Errorf("%s: skipped: %v", pair.ID, err)
		var missing *models.InputMissingError
		if !errors.As(err, &missing) {
			a.reporter.Report(pair.ID, err)
		}
	} else {
		a.metrics.ObserveResult(res.Transform.Confidence, res.Transform.Detection.AcceptedRank)
	}
	return res
}

// Process aligns every pair on a bounded worker pool. Pairs fail
// independently: an error in one never cancels the others.
func (a *Aligner) Process(ctx context.Context, pairs []models.Pair) *Summary {
	results := make([]*PairResult, len(pairs))

	var g errgroup.Group
	g.SetLimit(a.cfg.Processing.Workers)
	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			results[i] = a.runPair(ctx, pair)
			return nil
		})
	}
	g.Wait()

	s := NewSummary()
	for _, r := range results {
		s.Add(r)
	}
	s.Latency = a.latency.Summary()
	return s
}

// Skipped is a pair that produced no artifact
type Skipped struct {
	ID     string
	Reason string
}

// Summary aggregates a batch
type Summary struct {
	mu sync.Mutex

	Succeeded     []string
	LowConfidence []string
	Skipped       []Skipped

	confidences []float64
	Latency     telemetry.LatencySummary
}

func NewSummary() *Summary {
	return &Summary{}
}

// Add records one pair result
func (s *Summary) Add(r *PairResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Outcome() {
	case telemetry.OutcomeSkipped:
		s.Skipped = append(s.Skipped, Skipped{ID: r.ID, Reason: r.Err.Error()})
		return
	case telemetry.OutcomeLowConfidence:
		s.LowConfidence = append(s.LowConfidence, r.ID)
	default:
		s.Succeeded = append(s.Succeeded, r.ID)
	}
	s.confidences = append(s.confidences, r.Transform.Confidence)
}

// AddMissing records pairs discovery could not complete
func (s *Summary) AddMissing(missing []*models.InputMissingError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range missing {
		s.Skipped = append(s.Skipped, Skipped{ID: m.ID, Reason: m.Error()})
	}
}

// Produced is the number of pairs with an artifact, low confidence included
func (s *Summary) Produced() int {
	return len(s.Succeeded) + len(s.LowConfidence)
}

// ConfidenceStats returns the mean and standard deviation of confidences
func (s *Summary) ConfidenceStats() (float64, float64) {
	switch len(s.confidences) {
	case 0:
		return 0, 0
	case 1:
		return s.confidences[0], 0
	}
	return stat.MeanStdDev(s.confidences, nil)
}

// ExitCode is 0 when every pair produced an artifact and 1 otherwise
func (s *Summary) ExitCode() int {
	if len(s.Skipped) > 0 {
		return 1
	}
	return 0
}

// Print writes a human readable report
func (s *Summary) Print(w io.Writer) {
	sort.Strings(s.Succeeded)
	sort.Strings(s.LowConfidence)
	sort.Slice(s.Skipped, func(i, j int) bool { return s.Skipped[i].ID < s.Skipped[j].ID })

	mean, std := s.ConfidenceStats()
	fmt.Fprintf(w, "\nAlignment summary\n")
	fmt.Fprintf(w, "=================\n")
	fmt.Fprintf(w, "Succeeded:      %d\n", len(s.Succeeded))
	fmt.Fprintf(w, "Low confidence: %d\n", len(s.LowConfidence))
	fmt.Fprintf(w, "Skipped:        %d\n", len(s.Skipped))
	if s.Produced() > 0 {
		fmt.Fprintf(w, "Confidence:     mean %.3f, stddev %.3f\n", mean, std)
	}
	if s.Latency.Count > 0 {
		fmt.Fprintf(w, "Pair time:      p50 %v, p90 %v, max %v\n", s.Latency.P50, s.Latency.P90, s.Latency.Max)
	}
	if len(s.LowConfidence) > 0 {
		fmt.Fprintf(w, "\nNeeds manual review:\n")
		for _, id := range s.LowConfidence {
			fmt.Fprintf(w, "  - %s\n", id)
		}
	}
	if len(s.Skipped) > 0 {
		fmt.Fprintf(w, "\nSkipped:\n")
		for _, sk := range s.Skipped {
			fmt.Fprintf(w, "  - %s: %s\n", sk.ID, sk.Reason)
		}
	}
}
