package model

import "time"

// Source identifies how the submission text was produced.
type Source string

const (
	SourceText   Source = "text"
	SourceUpload Source = "upload"
	SourceOCR    Source = "ocr"
)

// Metadata carries typing and timing telemetry captured while the answer was written.
type Metadata struct {
	TimeSpent  float64   `json:"timeSpent" validate:"gte=0"`  // minutes
	WordCount  int       `json:"wordCount" validate:"gte=0"`
	Keystrokes int       `json:"keystrokes" validate:"gte=0"`
	Pauses     []float64 `json:"pauses" validate:"dive,gte=0"` // milliseconds
	Source     Source    `json:"source,omitempty" validate:"omitempty,oneof=text upload ocr"`
}

// Submission is the raw candidate object received from a caller.
type Submission struct {
	Content      string    `json:"content"`
	QuestionText string    `json:"questionText"`
	ExamType     string    `json:"examType"`
	Subject      string    `json:"subject"`
	TimeSpent    *float64  `json:"timeSpent,omitempty"` // minutes
	Metadata     *Metadata `json:"metadata,omitempty"`
}

// EvaluationInput is a validated and normalized submission.
// It is passed by value; its Metadata is a private copy.
type EvaluationInput struct {
	Content      string    `json:"content" validate:"utf8,min=100,max=10000"`
	QuestionText string    `json:"questionText" validate:"required,utf8"`
	ExamType     string    `json:"examType" validate:"max=100"`
	Subject      string    `json:"subject" validate:"max=200"`
	TimeSpent    *float64  `json:"timeSpent,omitempty" validate:"omitempty,gte=0"`
	Metadata     *Metadata `json:"metadata,omitempty" validate:"omitempty"`
}

// Minutes returns the best available writing duration in minutes and whether one was supplied.
// Telemetry wins over the top-level field.
func (in EvaluationInput) Minutes() (float64, bool) {
	if in.Metadata != nil && in.Metadata.TimeSpent > 0 {
		return in.Metadata.TimeSpent, true
	}
	if in.TimeSpent != nil && *in.TimeSpent > 0 {
		return *in.TimeSpent, true
	}
	return 0, false
}

// Scores holds the five category scores, each in [0,100].
type Scores struct {
	Content        int `json:"content" bson:"content"`
	Structure      int `json:"structure" bson:"structure"`
	Language       int `json:"language" bson:"language"`
	Presentation   int `json:"presentation" bson:"presentation"`
	TimeManagement int `json:"timeManagement" bson:"timeManagement"`
}

// Feedback holds merged, capped feedback lists.
type Feedback struct {
	Strengths       []string `json:"strengths" bson:"strengths"`
	Improvements    []string `json:"improvements" bson:"improvements"`
	Suggestions     []string `json:"suggestions" bson:"suggestions"`
	MissingKeywords []string `json:"missingKeywords" bson:"missingKeywords"`
}

// Analytics describes readability properties of the answer.
type Analytics struct {
	ReadabilityScore   int    `json:"readabilityScore" bson:"readabilityScore"`
	VocabularyLevel    string `json:"vocabularyLevel" bson:"vocabularyLevel"`
	SentenceComplexity string `json:"sentenceComplexity" bson:"sentenceComplexity"`
	ParagraphStructure string `json:"paragraphStructure" bson:"paragraphStructure"`
}

// Comparison places the overall score against a reference population.
type Comparison struct {
	PeerPercentile  int     `json:"peerPercentile" bson:"peerPercentile"`
	AverageScore    float64 `json:"averageScore" bson:"averageScore"`
	TopPerformerGap int     `json:"topPerformerGap" bson:"topPerformerGap"`
}

// PauseAnalysis summarizes pauses recorded while writing.
type PauseAnalysis struct {
	TotalPauses    int     `json:"totalPauses" bson:"totalPauses"`
	LongPauses     int     `json:"longPauses" bson:"longPauses"`
	AveragePauseMs float64 `json:"averagePauseMs" bson:"averagePauseMs"`
	LongestPauseMs float64 `json:"longestPauseMs" bson:"longestPauseMs"`
}

// WritingEfficiency is derived from telemetry only, never from agent output.
type WritingEfficiency struct {
	WPM           float64       `json:"wpm" bson:"wpm"`
	Efficiency    string        `json:"efficiency" bson:"efficiency"`
	TypingPattern string        `json:"typingPattern" bson:"typingPattern"`
	PauseAnalysis PauseAnalysis `json:"pauseAnalysis" bson:"pauseAnalysis"`
}

// AgentTrace records how one analysis agent contributed to a result.
type AgentTrace struct {
	Role      string `json:"role" bson:"role"`
	Backend   string `json:"backend" bson:"backend"`
	Model     string `json:"model" bson:"model"`
	Fallback  bool   `json:"fallback" bson:"fallback"`
	LatencyMs int64  `json:"latencyMs" bson:"latencyMs"`
}

// EvaluationResult is the durable outcome of one evaluation.
type EvaluationResult struct {
	ID                string             `json:"id" bson:"_id"`
	ExamType          string             `json:"examType,omitempty" bson:"examType"`
	Subject           string             `json:"subject,omitempty" bson:"subject"`
	OverallScore      int                `json:"overallScore" bson:"overallScore"`
	Scores            Scores             `json:"scores" bson:"scores"`
	Feedback          Feedback           `json:"feedback" bson:"feedback"`
	Analytics         Analytics          `json:"analytics" bson:"analytics"`
	Comparison        Comparison         `json:"comparison" bson:"comparison"`
	WritingEfficiency *WritingEfficiency `json:"writingEfficiency,omitempty" bson:"writingEfficiency,omitempty"`
	Agents            []AgentTrace       `json:"agents,omitempty" bson:"agents,omitempty"`
	ProcessingTime    int64              `json:"processingTime" bson:"processingTime"` // milliseconds
	CreatedAt         time.Time          `json:"createdAt" bson:"createdAt"`
}

// EvaluationSummary is a listing row for stored results.
type EvaluationSummary struct {
	ID           string    `json:"id" bson:"_id"`
	ExamType     string    `json:"examType" bson:"examType"`
	Subject      string    `json:"subject" bson:"subject"`
	QuestionText string    `json:"questionText" bson:"questionText"`
	OverallScore int       `json:"overallScore" bson:"overallScore"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// HistoryFilter narrows a history listing. Empty strings mean no filtering on that field.
type HistoryFilter struct {
	ExamType string
	Subject  string
	Limit    int
}

// Role names one of the three analysis agents.
type Role string

const (
	RoleContent   Role = "content"
	RoleStructure Role = "structure"
	RoleLanguage  Role = "language"
)

// Roles lists the agents in their fixed synthesis order.
var Roles = []Role{RoleContent, RoleStructure, RoleLanguage}
