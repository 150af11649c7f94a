/*
This file implements the response judge: a second, low-temperature model call
that scores a completed exchange against a fixed rubric.

The judge runs only after the turn's final answer is known and receives the
full unsummarized tool context. It can never fail the turn: parse errors,
model errors and out-of-range scores all degrade to a neutral fallback with
Error set, and the cause is logged.
*/
package core

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
)

// CriterionScore is one rubric dimension's verdict.
type CriterionScore struct {
	Criterion string `json:"criterion"`
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

// EvaluationResult is the judge's structured verdict on one exchange.
type EvaluationResult struct {
	OverallScore    int              `json:"overall_score"`
	CriteriaScores  []CriterionScore `json:"criteria_scores"`
	Strengths       []string         `json:"strengths"`
	Weaknesses      []string         `json:"weaknesses"`
	ConfidenceLevel string           `json:"confidence_level"`
	Summary         string           `json:"summary"`
	Error           bool             `json:"error,omitempty"`
}

// Judge scores completed exchanges.
type Judge struct {
	model  llms.Model
	config *Config
	logger *logrus.Logger
}

// NewJudge creates a judge sharing the engine's model but calling it at
// evaluation temperature.
func NewJudge(model llms.Model, config *Config, logger *logrus.Logger) *Judge {
	return &Judge{model: model, config: config, logger: logger}
}

// fallbackEvaluation is returned whenever evaluation cannot complete.
func fallbackEvaluation() *EvaluationResult {
	return &EvaluationResult{
		OverallScore:    3,
		CriteriaScores:  []CriterionScore{},
		Strengths:       []string{"Response provided"},
		Weaknesses:      []string{"Could not evaluate due to technical error"},
		ConfidenceLevel: "Medium",
		Summary:         "Evaluation unavailable due to technical error",
		Error:           true,
	}
}

// EvaluateResponse scores the exchange. Never returns an error; all failure
// paths yield the neutral fallback.
func (j *Judge) EvaluateResponse(ctx context.Context, userQuery, finalAnswer string, toolContext []string) *EvaluationResult {
	judgeLogger := j.logger.WithField("component", "judge")
	judgeLogger.WithField("query", truncateForLog(userQuery, j.config.LogTruncateLength)).Info("Evaluation started")

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, JudgeSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, BuildJudgePrompt(userQuery, finalAnswer, toolContext)),
	}

	response, err := j.model.GenerateContent(ctx, messages,
		llms.WithTemperature(j.config.JudgeTemperature),
		llms.WithJSONMode(),
	)
	if err != nil {
		judgeLogger.WithError(err).Error("Evaluation model call failed")
		return fallbackEvaluation()
	}
	if len(response.Choices) == 0 {
		judgeLogger.Error("Evaluation model returned no choices")
		return fallbackEvaluation()
	}

	result, err := parseEvaluation(response.Choices[0].Content)
	if err != nil {
		judgeLogger.WithError(err).WithField("raw",
			truncateForLog(response.Choices[0].Content, j.config.LogTruncateLength)).Error("Evaluation parse failed")
		return fallbackEvaluation()
	}

	judgeLogger.WithFields(logrus.Fields{
		"overallScore":    result.OverallScore,
		"confidenceLevel": result.ConfidenceLevel,
	}).Info("Evaluation completed")
	return result
}

// parseEvaluation decodes and sanitizes the judge model's JSON verdict.
func parseEvaluation(raw string) (*EvaluationResult, error) {
	// Some models wrap JSON in a code fence even in JSON mode.
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var result EvaluationResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, err
	}

	result.OverallScore = clampScore(result.OverallScore)
	for i := range result.CriteriaScores {
		result.CriteriaScores[i].Score = clampScore(result.CriteriaScores[i].Score)
	}
	if result.CriteriaScores == nil {
		result.CriteriaScores = []CriterionScore{}
	}
	switch result.ConfidenceLevel {
	case "High", "Medium", "Low":
	default:
		result.ConfidenceLevel = "Medium"
	}
	return &result, nil
}

func clampScore(score int) int {
	if score < 1 {
		return 1
	}
	if score > 5 {
		return 5
	}
	return score
}
