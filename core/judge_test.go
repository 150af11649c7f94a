package core

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func newTestJudge(model *scriptedModel) *Judge {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewJudge(model, &Config{JudgeTemperature: 0.1, LogTruncateLength: 500}, logger)
}

func TestJudgeModelErrorFallsBack(t *testing.T) {
	judge := newTestJudge(&scriptedModel{err: errors.New("upstream unavailable")})

	result := judge.EvaluateResponse(context.Background(), "q", "a", nil)
	assert.True(t, result.Error)
	assert.Equal(t, 3, result.OverallScore)
	assert.Equal(t, "Medium", result.ConfidenceLevel)
	assert.NotEmpty(t, result.Weaknesses)
}

func TestJudgeInvalidJSONFallsBack(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{textResponse("not json at all")}}
	judge := newTestJudge(model)

	result := judge.EvaluateResponse(context.Background(), "q", "a", nil)
	assert.True(t, result.Error)
	assert.Equal(t, 3, result.OverallScore)
}

func TestJudgeParsesFencedJSON(t *testing.T) {
	verdict := "```json\n" + `{
		"overall_score": 4,
		"criteria_scores": [{"criterion": "Accuracy", "score": 5, "reasoning": "matched the data"}],
		"strengths": ["clear"],
		"weaknesses": [],
		"confidence_level": "High",
		"summary": "good answer"
	}` + "\n```"
	model := &scriptedModel{responses: []*llms.ContentResponse{textResponse(verdict)}}
	judge := newTestJudge(model)

	result := judge.EvaluateResponse(context.Background(), "q", "a", []string{"[get_account_balance] {}"})
	assert.False(t, result.Error)
	assert.Equal(t, 4, result.OverallScore)
	require.Len(t, result.CriteriaScores, 1)
	assert.Equal(t, "High", result.ConfidenceLevel)

	// The judge prompt carried the tool context section.
	require.Len(t, model.calls, 1)
	prompt := model.calls[0][1].Parts[0].(llms.TextContent).Text
	assert.Contains(t, prompt, "--- Context 1 ---")
	assert.Contains(t, prompt, "[get_account_balance] {}")
}

func TestParseEvaluationClampsAndNormalizes(t *testing.T) {
	result, err := parseEvaluation(`{
		"overall_score": 9,
		"criteria_scores": [{"criterion": "Accuracy", "score": 0}, {"criterion": "Security", "score": 7}],
		"confidence_level": "very high"
	}`)
	require.NoError(t, err)
	assert.Equal(t, 5, result.OverallScore)
	assert.Equal(t, 1, result.CriteriaScores[0].Score)
	assert.Equal(t, 5, result.CriteriaScores[1].Score)
	assert.Equal(t, "Medium", result.ConfidenceLevel, "unknown confidence normalizes")

	result, err = parseEvaluation(`{"overall_score": 2}`)
	require.NoError(t, err)
	assert.NotNil(t, result.CriteriaScores)
	assert.Empty(t, result.CriteriaScores)
}
