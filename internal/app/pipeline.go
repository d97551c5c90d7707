package app

import (
	"fmt"
	"log/slog"

	"balance-sheets/internal/chunker"
	"balance-sheets/internal/config"
	"balance-sheets/internal/cost"
	"balance-sheets/internal/edgar"
	"balance-sheets/internal/filing"
	"balance-sheets/internal/fmp"
	"balance-sheets/internal/metadata"
	"balance-sheets/internal/sections"
)

// NewProcessor builds the filing processor from SECTION_RULES_FILE and the
// CHUNK_* settings.
func NewProcessor(cfg config.Config, log *slog.Logger) (*filing.Processor, error) {
	rules := sections.DefaultRules()
	if cfg.SectionRulesFile != "" {
		var err error
		if rules, err = sections.LoadRules(cfg.SectionRulesFile); err != nil {
			return nil, fmt.Errorf("invalid SECTION_RULES_FILE: %w", err)
		}
		log.Info("loaded section rules", "file", cfg.SectionRulesFile, "rules", len(rules))
	}

	seg := chunker.DefaultSegmenter(log)
	ch := chunker.New(chunker.Options{
		TargetWords: cfg.ChunkTargetWords,
		MinWords:    cfg.ChunkMinWords,
		MaxWords:    cfg.ChunkMaxWords,
		Overlap:     cfg.ChunkOverlap,
	}, seg)

	return filing.NewProcessor(
		sections.NewLocator(rules, sections.WithLogger(log)),
		ch,
		metadata.NewExtractor(seg),
		log,
	), nil
}

func NewEstimator(cfg config.Config) cost.Estimator {
	return cost.Estimator{
		TokensPerWord:   cfg.TokensPerWord,
		CostPer1KTokens: cfg.CostPer1KTokens,
		Threshold:       cfg.CostThreshold,
	}
}

func NewEDGAR(cfg config.Config, log *slog.Logger) (*edgar.Client, error) {
	return edgar.New(cfg.SECUserAgent, edgar.WithLogger(log))
}

func NewFMP(cfg config.Config, log *slog.Logger) (*fmp.Client, error) {
	if cfg.FMPKey == "" {
		return nil, fmt.Errorf("FMP_API_KEY is required")
	}
	return fmp.New(cfg.FMPBaseURL, cfg.FMPKey, fmp.WithLogger(log))
}
