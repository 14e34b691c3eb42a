package output

import (
	"log/slog"

	"github.com/giantswarm/mcp-kube-audit/internal/audit"
)

// Processor applies masking, slimming and size truncation to query results.
type Processor struct {
	config *Config
	logger *slog.Logger
}

// NewProcessor creates a Processor. A nil config uses DefaultConfig.
func NewProcessor(cfg *Config, logger *slog.Logger) *Processor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{config: cfg.Validate(), logger: logger}
}

// Process edits agg in place. Truncation drops trailing entries and
// updates Count and the per-unit summaries so they describe what is
// actually returned.
func (p *Processor) Process(agg *audit.AggregateResult) *TruncationWarning {
	if agg == nil {
		return nil
	}

	masked := 0
	for _, e := range agg.Entries {
		if p.config.MaskSecrets && MaskSecrets(e) {
			masked++
		}
		if p.config.SlimOutput {
			SlimEntry(e, p.config.ExcludedFields)
		}
	}
	if masked > 0 {
		p.logger.Debug("Masked secret payloads in audit entries", slog.Int("entries", masked))
	}

	kept, warning := FitEntries(agg.Entries, p.config.MaxResponseBytes)
	if warning == nil {
		return nil
	}

	agg.Entries = agg.Entries[:kept]
	agg.Count = kept
	remaining := kept
	for i := range agg.Units {
		if agg.Units[i].Count > remaining {
			agg.Units[i].Count = remaining
		}
		remaining -= agg.Units[i].Count
	}

	p.logger.Warn("Audit response truncated",
		slog.Int("shown", warning.Shown),
		slog.Int("total", warning.Total))
	return warning
}
