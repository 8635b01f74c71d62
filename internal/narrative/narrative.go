package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"

	"github.com/lox/wandistats/internal/stats"
)

const systemPrompt = `You summarise weather station history for the people who live nearby.
Write two or three plain sentences. Mention the notable extremes with their dates and
how rainfall compared with normal when that is given. Use metric units. Do not invent
figures that are not in the data.`

// Narrator describes a statistics report in plain English.
type Narrator struct {
	client openai.Client
	model  openai.ChatModel
	log    zerolog.Logger
}

// New returns a Narrator using apiKey. Extra request options are passed to
// the client, for example a different base URL.
func New(apiKey string, logger zerolog.Logger, opts ...option.RequestOption) (*Narrator, error) {
	if apiKey == "" {
		return nil, errors.New("narrative: OpenAI API key not set")
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Narrator{
		client: openai.NewClient(opts...),
		model:  openai.ChatModelGPT4oMini,
		log:    logger.With().Str("component", "narrative").Logger(),
	}, nil
}

func (n *Narrator) WithModel(model string) *Narrator {
	if model != "" {
		n.model = openai.ChatModel(model)
	}
	return n
}

// Describe asks the model for a short description of r.
func (n *Narrator) Describe(ctx context.Context, station, period string, r stats.Report) (string, error) {
	if r.Days == 0 {
		return fmt.Sprintf("No data was recorded at %s for %s.", station, period), nil
	}

	resp, err := n.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: n.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(BuildPrompt(station, period, r)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices returned")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	n.log.Debug().Str("station", station).Str("period", period).Int("chars", len(text)).Msg("generated narrative")
	return text, nil
}

// BuildPrompt renders the facts of r as a compact bullet list.
func BuildPrompt(station, period string, r stats.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Station %s, %s", station, period)
	if !r.From.IsZero() {
		fmt.Fprintf(&b, " (%s to %s)", r.From.Format("2 Jan 2006"), r.To.Format("2 Jan 2006"))
	}
	fmt.Fprintf(&b, ", %d days of data.\n", r.Days)

	writeMetric(&b, "Temperature", "°C", r.Temperature)
	writeMetric(&b, "Humidity", "%", r.Humidity)
	writeMetric(&b, "Pressure", " hPa", r.Pressure)
	writeMetric(&b, "Wind speed", " km/h", r.WindSpeed)
	if r.WindGust.Max != nil {
		fmt.Fprintf(&b, "- Strongest gust: %.0f km/h on %s\n", r.WindGust.Max.Value, day(r.WindGust.Max))
	}

	fmt.Fprintf(&b, "- Rain: %.1f mm over %d rain days", r.Rain.Total, r.Rain.RainDays)
	if r.Rain.Normal != nil && r.Rain.Anomaly != nil {
		fmt.Fprintf(&b, " (normal %.1f mm, %+.1f mm)", *r.Rain.Normal, *r.Rain.Anomaly)
	}
	b.WriteString("\n")
	if r.Rain.WettestDay != nil && r.Rain.WettestDay.Value > 0 {
		fmt.Fprintf(&b, "- Wettest day: %.1f mm on %s\n", r.Rain.WettestDay.Value, day(r.Rain.WettestDay))
	}

	if r.HighDeviation != nil {
		fmt.Fprintf(&b, "- Highs averaged %+.1f°C against normal\n", *r.HighDeviation)
	}
	if r.LowDeviation != nil {
		fmt.Fprintf(&b, "- Lows averaged %+.1f°C against normal\n", *r.LowDeviation)
	}
	for _, t := range r.Thresholds {
		if t.Days > 0 {
			fmt.Fprintf(&b, "- %s days: %d\n", t.Bin.Name, t.Days)
		}
	}
	return b.String()
}

func writeMetric(b *strings.Builder, name, unit string, m stats.MetricReport) {
	if m.Max == nil && m.Min == nil {
		return
	}
	fmt.Fprintf(b, "- %s:", name)
	if m.Max != nil {
		fmt.Fprintf(b, " highest %.1f%s on %s;", m.Max.Value, unit, day(m.Max))
	}
	if m.Min != nil {
		fmt.Fprintf(b, " lowest %.1f%s on %s;", m.Min.Value, unit, day(m.Min))
	}
	if m.Mean != nil {
		fmt.Fprintf(b, " mean %.1f%s", *m.Mean, unit)
	}
	b.WriteString("\n")
}

func day(e *stats.Extreme) string {
	return e.At.Format("Mon 2 Jan")
}
