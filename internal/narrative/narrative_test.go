package narrative

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/wandistats/internal/models"
	"github.com/lox/wandistats/internal/stats"
)

func ptr(v float64) *float64 { return &v }

func sampleReport() stats.Report {
	day := func(d int) time.Time { return time.Date(2025, 1, d, 15, 0, 0, 0, time.UTC) }
	return stats.Report{
		From: day(1),
		To:   day(7),
		Days: 7,
		Temperature: stats.MetricReport{
			Max:  &stats.Extreme{Value: 38.4, At: day(4)},
			Min:  &stats.Extreme{Value: 9.1, At: day(2)},
			Mean: ptr(21.3),
		},
		Rain: stats.RainReport{
			Total:      12.6,
			RainDays:   2,
			WettestDay: &stats.Extreme{Value: 10.2, At: day(6)},
			Normal:     ptr(8.0),
			Anomaly:    ptr(4.6),
		},
		HighDeviation: ptr(2.4),
		Thresholds: []stats.ThresholdCount{
			{Bin: models.ThresholdBin{Name: "hot", Field: models.FieldHigh, Direction: models.Above, Threshold: 30}, Days: 3},
			{Bin: models.ThresholdBin{Name: "frost", Field: models.FieldLow, Direction: models.Below, Threshold: 0}},
		},
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("IWANDI23", "this week", sampleReport())

	assert.Contains(t, prompt, "Station IWANDI23, this week (1 Jan 2025 to 7 Jan 2025), 7 days of data.")
	assert.Contains(t, prompt, "highest 38.4°C on Sat 4 Jan")
	assert.Contains(t, prompt, "lowest 9.1°C on Thu 2 Jan")
	assert.Contains(t, prompt, "- Rain: 12.6 mm over 2 rain days (normal 8.0 mm, +4.6 mm)")
	assert.Contains(t, prompt, "- Wettest day: 10.2 mm on Mon 6 Jan")
	assert.Contains(t, prompt, "- Highs averaged +2.4°C against normal")
	assert.Contains(t, prompt, "- hot days: 3")
	assert.NotContains(t, prompt, "frost")
	assert.NotContains(t, prompt, "Humidity")
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New("", zerolog.Nop())
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		gotPrompt = req.Messages[1].Content

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1736899200,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "  A hot week, peaking at 38.4°C on Saturday.  "}}]
		}`)
	}))
	defer srv.Close()

	n, err := New("test-key", zerolog.Nop(), option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)

	text, err := n.Describe(context.Background(), "IWANDI23", "this week", sampleReport())
	require.NoError(t, err)
	assert.Equal(t, "A hot week, peaking at 38.4°C on Saturday.", text)
	assert.Contains(t, gotPrompt, "IWANDI23")
}

func TestDescribe_EmptyReportSkipsModel(t *testing.T) {
	n, err := New("test-key", zerolog.Nop(), option.WithBaseURL("http://127.0.0.1:1/"), option.WithMaxRetries(0))
	require.NoError(t, err)

	text, err := n.Describe(context.Background(), "IWANDI23", "today", stats.Report{})
	require.NoError(t, err)
	assert.Equal(t, "No data was recorded at IWANDI23 for today.", text)
}
