// Package cost estimates embedding spend and gates runs that exceed a budget.
package cost

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	DefaultTokensPerWord   = 1.3
	DefaultCostPer1KTokens = 0.00013
	DefaultThreshold       = 0.10
)

var (
	// ErrApprovalRequired is returned when the estimate is over threshold and
	// nobody is available to confirm it.
	ErrApprovalRequired = errors.New("estimated cost exceeds threshold and requires confirmation")
	// ErrDeclined is returned when the operator answers anything but yes.
	ErrDeclined = errors.New("embedding run declined by operator")
)

// Estimator turns word counts into an estimated dollar cost.
type Estimator struct {
	TokensPerWord   float64
	CostPer1KTokens float64
	Threshold       float64
}

// DefaultEstimator returns the text-embedding-3-large pricing.
func DefaultEstimator() Estimator {
	return Estimator{
		TokensPerWord:   DefaultTokensPerWord,
		CostPer1KTokens: DefaultCostPer1KTokens,
		Threshold:       DefaultThreshold,
	}
}

// Estimate returns the cost of embedding words words.
func (e Estimator) Estimate(words int) float64 {
	tokens := float64(words) * e.TokensPerWord
	return tokens / 1000 * e.CostPer1KTokens
}

// TokenCost returns the cost of tokens actually billed.
func (e Estimator) TokenCost(tokens int64) float64 {
	return float64(tokens) / 1000 * e.CostPer1KTokens
}

// Approver decides whether an over-threshold run may proceed.
type Approver interface {
	Approve(ctx context.Context, estimate, threshold float64) (bool, error)
}

// Gate returns the estimate for words and an error when the run must not
// proceed. Runs at or under the threshold never consult the approver.
func (e Estimator) Gate(ctx context.Context, words int, approver Approver) (float64, error) {
	estimate := e.Estimate(words)
	if estimate <= e.Threshold {
		return estimate, nil
	}
	if approver == nil {
		return estimate, ErrApprovalRequired
	}
	ok, err := approver.Approve(ctx, estimate, e.Threshold)
	if err != nil {
		return estimate, err
	}
	if !ok {
		return estimate, ErrDeclined
	}
	return estimate, nil
}

// NonInteractive refuses every over-threshold run.
type NonInteractive struct{}

func (NonInteractive) Approve(context.Context, float64, float64) (bool, error) {
	return false, ErrApprovalRequired
}

// AutoApprove accepts every run. Use only when an operator has opted in.
type AutoApprove struct{}

func (AutoApprove) Approve(context.Context, float64, float64) (bool, error) {
	return true, nil
}

// Prompt asks on Out and reads a yes/no answer from In.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

func (p Prompt) Approve(ctx context.Context, estimate, threshold float64) (bool, error) {
	fmt.Fprintf(p.Out, "Estimated cost ($%.4f) exceeds $%.2f. Continue? (yes/no): ", estimate, threshold)

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		ch <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.line == "" {
			if errors.Is(a.err, io.EOF) {
				return false, ErrApprovalRequired
			}
			return false, fmt.Errorf("read confirmation: %w", a.err)
		}
		return strings.EqualFold(strings.TrimSpace(a.line), "yes"), nil
	}
}
