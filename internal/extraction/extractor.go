package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/qaforge/qaforge/internal/llm"
	"github.com/qaforge/qaforge/internal/logging"
	"github.com/qaforge/qaforge/internal/store"
)

// Validation thresholds applied after extraction.
const (
	// MinQuestionLength is the minimum question length in characters.
	MinQuestionLength = 10
	// MinAnswerLength is the minimum answer length in characters.
	MinAnswerLength = 15
	// MinQualityScore filters out pairs the model scored below this (of 10).
	MinQualityScore = 6.0
)

// extractionSystemPrompt sets up the analyst persona for QA extraction.
const extractionSystemPrompt = `Ты — аналитик колл-центра. Ты извлекаешь из стенограмм звонков
пары вопрос-ответ, пригодные для базы знаний службы поддержки.

ПРАВИЛА:
- Извлекай только деловые пары: вопросы клиентов и содержательные ответы оператора
- Пропускай приветствия, прощания, уточнения связи и прочий служебный обмен
- Формулируй вопрос и ответ литературно, сохраняя смысл сказанного
- Не придумывай информацию, которой нет в диалоге
- Отвечай строго в формате JSON без пояснений`

// extractionPromptTemplate asks for the JSON envelope of extracted pairs.
const extractionPromptTemplate = `Проанализируй стенограмму звонка и извлеки пары вопрос-ответ.

Стенограмма:
%s

Верни JSON строго такой структуры:
{
  "has_business_pairs": true,
  "pairs": [
    {
      "question": "вопрос клиента или оператора",
      "answer": "содержательный ответ",
      "direction": "клиент→оператор или оператор→клиент",
      "question_type": "краткая категория вопроса",
      "keywords": ["ключевые", "слова"]
    }
  ]
}

Если деловых пар в диалоге нет, верни {"has_business_pairs": false, "pairs": []}.`

// qualityPromptTemplate asks the model to score already-extracted pairs.
const qualityPromptTemplate = `Оцени качество следующих пар вопрос-ответ по шкале от 1 до 10
(полнота ответа, самостоятельная ценность для базы знаний, ясность формулировок).

Пары:
%s

Верни JSON строго такой структуры:
{
  "pairs": [
    {"average_score": 8.5, "recommendation": "keep"}
  ]
}

Порядок элементов должен совпадать с порядком входных пар. recommendation: "keep" или "drop".`

// Pair is a QA pair as returned by the extraction model.
type Pair struct {
	Question     string   `json:"question"`
	Answer       string   `json:"answer"`
	Direction    string   `json:"direction"`
	QuestionType string   `json:"question_type"`
	Keywords     []string `json:"keywords"`
	// QualityScore is filled by ScoreQuality, nil until then.
	QualityScore *float64 `json:"-"`
}

// Result is the extraction outcome for one transcript.
type Result struct {
	HasBusinessPairs bool   `json:"has_business_pairs"`
	Pairs            []Pair `json:"pairs"`
}

// Completer runs a single completion at an explicit temperature.
// *llm.Client is the production implementation.
type Completer interface {
	CompleteWith(ctx context.Context, system, user string, temperature float32) (string, error)
}

// Extractor extracts and scores QA pairs via the LLM.
type Extractor struct {
	client Completer
}

// NewExtractor constructs an Extractor.
func NewExtractor(client Completer) *Extractor {
	return &Extractor{client: client}
}

// ExtractPairs runs the extraction prompt over a cleaned transcript and
// parses the JSON result. A syntactically successful completion that fails
// to parse is a malformed-response error and is not retried here.
func (e *Extractor) ExtractPairs(ctx context.Context, dialogText string) (*Result, error) {
	raw, err := e.client.CompleteWith(ctx, extractionSystemPrompt,
		fmt.Sprintf(extractionPromptTemplate, dialogText), 0.3)
	if err != nil {
		return nil, fmt.Errorf("extraction: %w", err)
	}

	var result Result
	if err := json.Unmarshal([]byte(StripFences(raw)), &result); err != nil {
		return nil, llm.NewError(llm.KindMalformed,
			fmt.Errorf("extraction: parse model response: %w", err))
	}
	return &result, nil
}

// ScoreQuality asks the model to rate the pairs and writes the scores back
// into the slice. Scoring failures leave the pairs unscored; the caller
// decides whether that is fatal.
func (e *Extractor) ScoreQuality(ctx context.Context, pairs []Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	input, err := json.Marshal(pairs)
	if err != nil {
		return fmt.Errorf("extraction: marshal pairs: %w", err)
	}

	raw, err := e.client.CompleteWith(ctx, extractionSystemPrompt,
		fmt.Sprintf(qualityPromptTemplate, string(input)), 0.2)
	if err != nil {
		return fmt.Errorf("extraction: quality check: %w", err)
	}

	var scored struct {
		Pairs []struct {
			AverageScore   float64 `json:"average_score"`
			Recommendation string  `json:"recommendation"`
		} `json:"pairs"`
	}
	if err := json.Unmarshal([]byte(StripFences(raw)), &scored); err != nil {
		return llm.NewError(llm.KindMalformed,
			fmt.Errorf("extraction: parse quality response: %w", err))
	}

	for i := range pairs {
		if i < len(scored.Pairs) {
			score := scored.Pairs[i].AverageScore
			pairs[i].QualityScore = &score
		}
	}
	return nil
}

// ValidatePairs filters pairs by minimum lengths, required direction, and
// quality score when present.
func ValidatePairs(pairs []Pair) []Pair {
	valid := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		p.Question = strings.TrimSpace(p.Question)
		p.Answer = strings.TrimSpace(p.Answer)
		if utf8.RuneCountInString(p.Question) < MinQuestionLength {
			continue
		}
		if utf8.RuneCountInString(p.Answer) < MinAnswerLength {
			continue
		}
		if p.Direction == "" {
			continue
		}
		if p.QualityScore != nil && *p.QualityScore < MinQualityScore {
			continue
		}
		valid = append(valid, p)
	}
	return valid
}

// StripFences removes a markdown code fence wrapping around a JSON response.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// FileResult is the outcome of processing one transcript file.
type FileResult struct {
	Filename         string
	DialogID         string
	Meta             *store.CallMetadata
	HasBusinessPairs bool
	// Pairs is ready for store.SavePairs, metadata filled in.
	Pairs []store.Pair
	// Err is the non-fatal processing error recorded in the file ledger.
	Err string
}

// Processor runs the full per-file pipeline: read, clean, parse metadata,
// extract, validate.
type Processor struct {
	extractor *Extractor
	// scoreQuality enables the optional LLM quality pass.
	scoreQuality bool
}

// NewProcessor constructs a Processor. When scoreQuality is set each
// extracted batch gets an extra scoring call before validation.
func NewProcessor(extractor *Extractor, scoreQuality bool) *Processor {
	return &Processor{extractor: extractor, scoreQuality: scoreQuality}
}

// ProcessFile processes one transcript file. IO and extraction failures are
// recorded in the result rather than returned, so batch runs continue past
// bad files.
func (p *Processor) ProcessFile(ctx context.Context, path string) *FileResult {
	filename := filepath.Base(path)
	log := logging.FromContext(ctx).With(slog.String("file", filename))
	result := &FileResult{Filename: filename}

	raw, err := os.ReadFile(path)
	if err != nil {
		log.Error("read failed", slog.Any("error", err))
		result.Err = fmt.Sprintf("read failed: %v", err)
		return result
	}

	cleaned := CleanDialog(string(raw))
	if cleaned == "" {
		result.Err = "file empty after cleanup"
		return result
	}

	result.DialogID = DialogID(filename, cleaned)

	meta, err := ParseFilename(filename)
	if err != nil {
		log.Warn("filename metadata unavailable", slog.Any("error", err))
	} else {
		result.Meta = meta
	}

	extracted, err := p.extractor.ExtractPairs(ctx, cleaned)
	if err != nil {
		log.Error("extraction failed",
			slog.String("kind", llm.KindOf(err).String()),
			slog.Any("error", err))
		result.Err = err.Error()
		return result
	}

	result.HasBusinessPairs = extracted.HasBusinessPairs
	if !extracted.HasBusinessPairs || len(extracted.Pairs) == 0 {
		log.Info("no business pairs in dialog")
		return result
	}

	if p.scoreQuality {
		if err := p.extractor.ScoreQuality(ctx, extracted.Pairs); err != nil {
			// Scoring is best-effort; unscored pairs pass validation.
			log.Warn("quality scoring failed", slog.Any("error", err))
		}
	}

	valid := ValidatePairs(extracted.Pairs)
	log.Info("pairs validated",
		slog.Int("extracted", len(extracted.Pairs)),
		slog.Int("valid", len(valid)))
	if len(valid) == 0 {
		result.HasBusinessPairs = false
		return result
	}

	result.Pairs = make([]store.Pair, 0, len(valid))
	for _, pair := range valid {
		sp := store.Pair{
			DialogID:     result.DialogID,
			Filename:     filename,
			Question:     pair.Question,
			Answer:       pair.Answer,
			Direction:    pair.Direction,
			QuestionType: pair.QuestionType,
			Keywords:     pair.Keywords,
			QualityScore: pair.QualityScore,
		}
		if meta != nil {
			sp.CallDirection = meta.CallDirection
			sp.OperatorPhone = meta.OperatorPhone
			sp.ClientPhone = meta.ClientPhone
			sp.CallDate = meta.CallDate
			sp.CallTime = meta.CallTime
		}
		result.Pairs = append(result.Pairs, sp)
	}
	return result
}
