// Package insight generates short analyst narratives over reconciled facts.
package insight

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/market-explorer/internal/model"
	"github.com/sells-group/market-explorer/pkg/ai"
)

const systemPrompt = "You are an equity research analyst. Answer with exactly " +
	"three bullet points, one line each, starting with \"- \". No preamble."

// Generator produces company and segment insights from stored observations.
type Generator struct {
	client    ai.Client
	model     string
	maxTokens int64
	printer   *message.Printer
}

// NewGenerator creates a Generator using the given model.
func NewGenerator(client ai.Client, modelID string, maxTokens int64) *Generator {
	return &Generator{
		client:    client,
		model:     modelID,
		maxTokens: maxTokens,
		printer:   message.NewPrinter(language.English),
	}
}

// Company generates a three-bullet narrative for one entity from its
// observations.
func (g *Generator) Company(ctx context.Context, entity model.Entity, facts []model.Observation) (*model.Insight, error) {
	digest := g.digest(facts)
	if digest == "" {
		return nil, eris.Errorf("insight: no facts for %s", entity.DisplayName)
	}

	prompt := "Summarize the financial position of " + entity.DisplayName +
		" (" + entity.Identifier + ") from these figures:\n\n" + digest
	bullets, err := g.generate(ctx, prompt, "company")
	if err != nil {
		return nil, err
	}

	return &model.Insight{
		Segment:   entity.Segment,
		Level:     model.InsightLevelCompany,
		Target:    entity.Identifier,
		Bullets:   bullets,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Segment generates a three-bullet narrative across a whole segment.
func (g *Generator) Segment(ctx context.Context, segment string, roster []model.Entity, facts []model.Observation) (*model.Insight, error) {
	if len(roster) == 0 {
		return nil, eris.Errorf("insight: empty roster for segment %q", segment)
	}

	names := make([]string, 0, len(roster))
	for _, e := range roster {
		names = append(names, e.DisplayName+" ("+e.Identifier+")")
	}

	prompt := "Compare the companies in the " + segment + " segment: " +
		strings.Join(names, ", ") + ".\n\nFigures:\n\n" + g.digest(facts)
	bullets, err := g.generate(ctx, prompt, "segment")
	if err != nil {
		return nil, err
	}

	return &model.Insight{
		Segment:   segment,
		Level:     model.InsightLevelSegment,
		Target:    segment,
		Bullets:   bullets,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (g *Generator) generate(ctx context.Context, prompt, phase string) (string, error) {
	resp, err := g.client.CreateMessage(ctx, ai.MessageRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    systemPrompt,
		Prompt:    prompt,
	})
	if err != nil {
		return "", eris.Wrap(err, "insight: generate")
	}
	resp.Usage.Log(g.model, "insight-"+phase)

	bullets := extractBullets(resp.Text)
	if len(bullets) == 0 {
		zap.L().Warn("insight: response had no bullet lines", zap.String("phase", phase))
		return strings.TrimSpace(resp.Text), nil
	}
	if len(bullets) > 3 {
		bullets = bullets[:3]
	}
	return strings.Join(bullets, "\n"), nil
}

// digest renders observations as one "Name Metric Year: value" line each,
// grouped by identifier and ordered for stable prompts.
func (g *Generator) digest(facts []model.Observation) string {
	sorted := make([]model.Observation, len(facts))
	copy(sorted, facts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Identifier != sorted[j].Identifier {
			return sorted[i].Identifier < sorted[j].Identifier
		}
		if sorted[i].Metric != sorted[j].Metric {
			return sorted[i].Metric < sorted[j].Metric
		}
		return sorted[i].Period < sorted[j].Period
	})

	var b strings.Builder
	for _, o := range sorted {
		// Years stay unformatted; values get thousands separators.
		b.WriteString(o.Identifier)
		b.WriteString(" ")
		b.WriteString(string(o.Metric))
		b.WriteString(" ")
		b.WriteString(strconv.Itoa(o.Period))
		b.WriteString(": ")
		b.WriteString(g.printer.Sprintf("%.2f", o.Value))
		b.WriteString("\n")
	}
	return b.String()
}

func extractBullets(text string) []string {
	var bullets []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "• ") || strings.HasPrefix(line, "* ") {
			bullets = append(bullets, "- "+strings.TrimSpace(line[2:]))
		}
	}
	return bullets
}
