package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/libelia/libelia/internal/model"
	"github.com/libelia/libelia/internal/scoring"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// maxAnswerRunes bounds the OCR text forwarded to the LLM.
const maxAnswerRunes = 20000

// PromptVariant represents a grading strictness variant.
type PromptVariant string

const (
	PromptStrict   PromptVariant = "strict"
	PromptStandard PromptVariant = "standard"
	PromptLenient  PromptVariant = "lenient"
)

var strictness = map[PromptVariant]string{
	PromptStrict:   "Sé exigente: otorga puntaje completo solo si la respuesta es correcta, completa y bien justificada.",
	PromptStandard: "Otorga puntaje parcial cuando la respuesta es correcta pero incompleta.",
	PromptLenient:  "Sé flexible: valora la idea central aunque la redacción o el desarrollo sean incompletos.",
}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	_, ok := strictness[PromptVariant(v)]
	return ok
}

// ParseVariant returns the named variant, or PromptStandard when the name is unknown.
func ParseVariant(v string) PromptVariant {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return PromptStandard
	}
	if !IsValidVariant(v) {
		slog.Warn("unknown prompt variant, using standard", "variant", v)
		return PromptStandard
	}
	return PromptVariant(v)
}

// Subject is the per-subject part of the grading prompt.
type Subject struct {
	Key      string
	Name     string
	Focus    string
	Notation string
}

var subjects = map[string]Subject{
	"general": {
		Key:   "general",
		Name:  "educación general",
		Focus: "Evalúa la comprensión del contenido y la coherencia de la respuesta.",
	},
	"matematicas": {
		Key:      "matematicas",
		Name:     "matemáticas",
		Focus:    "Evalúa el procedimiento además del resultado final; un resultado correcto sin desarrollo no obtiene puntaje completo.",
		Notation: "Acepta notación equivalente (fracciones, decimales con coma o punto, expresiones simplificadas).",
	},
	"lenguaje": {
		Key:      "lenguaje",
		Name:     "lenguaje y comunicación",
		Focus:    "Evalúa comprensión lectora, uso de evidencia del texto y claridad de la argumentación.",
		Notation: "No descuentes por errores ortográficos menores salvo que la pauta lo indique.",
	},
	"ciencias": {
		Key:      "ciencias",
		Name:     "ciencias naturales",
		Focus:    "Evalúa el uso correcto de conceptos científicos y la relación causa-efecto.",
		Notation: "Acepta unidades y nombres científicos equivalentes.",
	},
	"historia": {
		Key:   "historia",
		Name:  "historia, geografía y ciencias sociales",
		Focus: "Evalúa la contextualización temporal y espacial y el uso de fuentes o ejemplos.",
	},
	"ingles": {
		Key:      "ingles",
		Name:     "inglés",
		Focus:    "Evalúa comprensión y producción en inglés; la retroalimentación va en español.",
		Notation: "Acepta variantes británicas y estadounidenses.",
	},
}

var aliases = map[string]string{
	"matematica": "matematicas",
	"math":       "matematicas",
	"lengua":     "lenguaje",
	"ciencia":    "ciencias",
	"biologia":   "ciencias",
	"quimica":    "ciencias",
	"fisica":     "ciencias",
	"sociales":   "historia",
	"english":    "ingles",
}

// LookupSubject finds a profile by name, ignoring case and accents.
// Unknown subjects get the general profile.
func LookupSubject(name string) Subject {
	// Chains are stateful, so each call builds its own.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	key, _, err := transform.String(fold, strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		key = strings.ToLower(strings.TrimSpace(name))
	}
	if first, _, ok := strings.Cut(key, " "); ok {
		key = first
	}
	if a, ok := aliases[key]; ok {
		key = a
	}
	if s, ok := subjects[key]; ok {
		return s
	}
	if key != "" {
		slog.Debug("unknown subject, using general profile", "subject", name)
	}
	return subjects["general"]
}

// SystemData holds template data for the grading system prompt.
type SystemData struct {
	Subject     Subject
	Strictness  string
	Objective   []model.RubricItem
	Development []model.RubricItem
	AnswerKey   string
}

var (
	loadOnce sync.Once
	loadErr  error
	grading  *template.Template
)

func load() error {
	loadOnce.Do(func() {
		content, err := templateFS.ReadFile("templates/grading.tmpl")
		if err != nil {
			loadErr = fmt.Errorf("read prompt template: %w", err)
			return
		}
		grading, err = template.New("grading").Parse(string(content))
		if err != nil {
			loadErr = fmt.Errorf("parse prompt template: %w", err)
		}
	})
	return loadErr
}

// BuildSystemPrompt renders the grading instructions for one request.
func BuildSystemPrompt(variant PromptVariant, req model.GradingRequest) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	guide, ok := strictness[variant]
	if !ok {
		return "", fmt.Errorf("invalid prompt variant: %s", variant)
	}

	data := SystemData{
		Subject:    LookupSubject(req.Subject),
		Strictness: guide,
		AnswerKey:  scoring.FormatAnswerKey(scoring.ParseAnswerKey(req.AnswerKey)),
	}
	for _, it := range scoring.ParseRubric(req.RubricStructured) {
		if it.IsDevelopment {
			data.Development = append(data.Development, it)
		} else {
			data.Objective = append(data.Objective, it)
		}
	}

	var buf bytes.Buffer
	if err := grading.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildUserPrompt wraps the OCR text so it cannot pass for instructions.
func BuildUserPrompt(extractedText string) string {
	return "<student-answer>\n" + sanitizeAnswer(extractedText) + "\n</student-answer>"
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[Sin texto extraído]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		rs := []rune(answer)
		answer = string(rs[:maxAnswerRunes]) + "\n\n[Texto truncado por longitud]"
	}
	return answer
}
