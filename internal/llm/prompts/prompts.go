package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/essayeval/internal/model"
	"github.com/pavelanni/essayeval/internal/textstat"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxAnswerRunes = 10000

var systemPrompts = map[model.Role]string{
	model.RoleContent:   "You are a rigorous exam content evaluator. You always answer with a single JSON object and nothing else.",
	model.RoleStructure: "You are an exam evaluator specialised in essay structure. You always answer with a single JSON object and nothing else.",
	model.RoleLanguage:  "You are an exam evaluator specialised in written language. You always answer with a single JSON object and nothing else.",
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[model.Role]*template.Template
)

// Data holds template data for agent prompts.
type Data struct {
	QuestionText string
	ExamType     string
	Subject      string
	Answer       string
	WordCount    int
	Paragraphs   int
}

// Load parses the embedded role templates. It is safe to call repeatedly.
func Load() error {
	loadOnce.Do(func() {
		templates = make(map[model.Role]*template.Template)
		for _, role := range model.Roles {
			file := "templates/" + string(role) + ".tmpl"
			content, err := templateFS.ReadFile(file)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + file + ": " + err.Error())
				return
			}
			tmpl, err := template.New(string(role)).Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + file + ": " + err.Error())
				return
			}
			templates[role] = tmpl
		}
	})
	return loadErr
}

// System returns the fixed system instruction for a role.
func System(role model.Role) string {
	return systemPrompts[role]
}

// Build renders the user prompt for one agent role.
func Build(role model.Role, in model.EvaluationInput) (string, error) {
	if err := Load(); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	tmpl, ok := templates[role]
	if !ok {
		return "", errors.New("invalid agent role: " + string(role))
	}

	data := Data{
		QuestionText: strings.TrimSpace(in.QuestionText),
		ExamType:     in.ExamType,
		Subject:      in.Subject,
		Answer:       sanitizeAnswer(in.Content),
		WordCount:    textstat.Words(in.Content),
		Paragraphs:   textstat.Paragraphs(in.Content),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		runes = runes[:maxAnswerRunes]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
