package synth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/pkg/anthropic"
)

const systemPrompt = `You summarize healthcare provider validation results for a credentialing reviewer.
Write at most five short sentences of plain text. State what was verified, what conflicts were
resolved and from which source, and anything that needs a human decision. Never invent facts
that are not in the input. Do not use markdown.`

// LLMConfig configures the model call.
type LLMConfig struct {
	Model     string        `mapstructure:"model"`
	MaxTokens int64         `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// DefaultLLMConfig returns the settings used when none are configured.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 400,
		Timeout:   20 * time.Second,
	}
}

// LLM writes summaries with an Anthropic model.
type LLM struct {
	client anthropic.Client
	cfg    LLMConfig
}

// NewLLM creates an LLM summarizer. Zero config fields take defaults.
func NewLLM(client anthropic.Client, cfg LLMConfig) *LLM {
	def := DefaultLLMConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &LLM{client: client, cfg: cfg}
}

// Summarize implements Summarizer.
func (l *LLM) Summarize(ctx context.Context, in Input) (string, error) {
	facts, err := json.Marshal(factsFor(in))
	if err != nil {
		return "", eris.Wrap(err, "synth: marshal facts")
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	temp := 0.0
	resp, err := l.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       l.cfg.Model,
		MaxTokens:   l.cfg.MaxTokens,
		System:      anthropic.CachedSystem(systemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: string(facts)}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "synth: create message")
	}
	resp.Usage.LogCost(l.cfg.Model, "synthesis")

	text := resp.Text()
	if text == "" {
		return "", eris.New("synth: empty model response")
	}
	return text, nil
}

type facts struct {
	Submitted   model.SubmittedRecord   `json:"submitted"`
	Golden      map[model.Field]string  `json:"golden"`
	Corrections []model.Correction      `json:"corrections,omitempty"`
	Provenance  []model.ProvenanceEntry `json:"provenance,omitempty"`
	Checks      []model.VerifierResult  `json:"checks"`
	Flags       []model.QAFlag          `json:"flags,omitempty"`
	Fraud       []string                `json:"fraud_indicators,omitempty"`
	Address     *model.AddressVerdict   `json:"address,omitempty"`
	Freshness   *model.Freshness        `json:"freshness,omitempty"`
}

func factsFor(in Input) facts {
	golden := make(map[model.Field]string, len(in.Golden.Fields))
	for f, v := range in.Golden.Fields {
		if v.Value != "" {
			golden[f] = v.Value
		}
	}
	return facts{
		Submitted:   in.Record,
		Golden:      golden,
		Corrections: in.Golden.Corrections,
		Provenance:  in.Golden.Provenance,
		Checks:      in.Results,
		Flags:       in.QA.Flags,
		Fraud:       in.QA.FraudIndicators,
		Address:     in.QA.Address,
		Freshness:   in.QA.Freshness,
	}
}
