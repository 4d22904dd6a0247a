package store

import (
	"context"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func callPair(dialogID, question, answer string) Pair {
	return Pair{
		DialogID:      dialogID,
		Filename:      "1234567-i-79001234567-79007654321-20240315-103000.txt",
		CallDirection: "i",
		OperatorPhone: "79001234567",
		ClientPhone:   "79007654321",
		CallDate:      "2024-03-15",
		CallTime:      "10:30:00",
		Question:      question,
		Answer:        answer,
		Direction:     "клиент→оператор",
		QuestionType:  "доставка",
		Keywords:      []string{"доставка", "сроки"},
	}
}

func TestSaveAndListPairs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pairs := []Pair{
		callPair("d1", "Какие сроки доставки?", "До пяти рабочих дней."),
		callPair("d1", "Можно ли вернуть товар?", "Да, в течение 14 дней."),
	}
	if err := s.SavePairs(ctx, pairs); err != nil {
		t.Fatalf("SavePairs: %v", err)
	}

	got, err := s.ListEligible(ctx, true, true)
	if err != nil {
		t.Fatalf("ListEligible: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Question != "Какие сроки доставки?" {
		t.Errorf("question = %q", got[0].Question)
	}
	if len(got[0].Keywords) != 2 || got[0].Keywords[0] != "доставка" {
		t.Errorf("keywords = %v", got[0].Keywords)
	}
	if got[0].CallDate != "2024-03-15" {
		t.Errorf("call_date = %q", got[0].CallDate)
	}
}

func TestListEligible_Filters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SavePairs(ctx, []Pair{
		callPair("d1", "вопрос номер один", "ответ номер один, длинный"),
		callPair("d2", "вопрос номер два", "ответ номер два, длинный"),
		callPair("d3", "вопрос номер три", "ответ номер три, длинный"),
	}); err != nil {
		t.Fatalf("SavePairs: %v", err)
	}

	all, err := s.ListEligible(ctx, true, true)
	if err != nil {
		t.Fatalf("ListEligible: %v", err)
	}
	if err := s.SetAudited(ctx, all[0].ID); err != nil {
		t.Fatalf("SetAudited: %v", err)
	}
	if err := s.SetIrrelevant(ctx, all[1].ID); err != nil {
		t.Fatalf("SetIrrelevant: %v", err)
	}

	// indexAll + excludeIrrelevant drops only the irrelevant pair.
	got, err := s.ListEligible(ctx, true, true)
	if err != nil {
		t.Fatalf("ListEligible: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("indexAll+exclude: len = %d, want 2", len(got))
	}

	// audited-only keeps just the audited pair.
	got, err = s.ListEligible(ctx, false, true)
	if err != nil {
		t.Fatalf("ListEligible: %v", err)
	}
	if len(got) != 1 || got[0].ID != all[0].ID {
		t.Errorf("audited-only: got %v", got)
	}

	// irrelevant included when exclusion is off.
	got, err = s.ListEligible(ctx, true, false)
	if err != nil {
		t.Fatalf("ListEligible: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("no exclusion: len = %d, want 3", len(got))
	}
}

func TestAuditedAndIrrelevantAreMutuallyExclusive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SavePairs(ctx, []Pair{callPair("d1", "вопрос достаточно длинный", "ответ тоже достаточно длинный")}); err != nil {
		t.Fatalf("SavePairs: %v", err)
	}
	all, _ := s.ListEligible(ctx, true, false)
	id := all[0].ID

	if err := s.SetAudited(ctx, id); err != nil {
		t.Fatalf("SetAudited: %v", err)
	}
	if err := s.SetIrrelevant(ctx, id); err != nil {
		t.Fatalf("SetIrrelevant: %v", err)
	}
	p, err := s.GetPair(ctx, id)
	if err != nil {
		t.Fatalf("GetPair: %v", err)
	}
	if p.IsAudited || !p.IsIrrelevant {
		t.Errorf("after SetIrrelevant: audited=%v irrelevant=%v", p.IsAudited, p.IsIrrelevant)
	}

	if err := s.SetAudited(ctx, id); err != nil {
		t.Fatalf("SetAudited: %v", err)
	}
	p, _ = s.GetPair(ctx, id)
	if !p.IsAudited || p.IsIrrelevant {
		t.Errorf("after SetAudited: audited=%v irrelevant=%v", p.IsAudited, p.IsIrrelevant)
	}
}

func TestUpdateAnswerAndQualityScore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SavePairs(ctx, []Pair{callPair("d1", "вопрос достаточно длинный", "старый ответ на вопрос")}); err != nil {
		t.Fatalf("SavePairs: %v", err)
	}
	all, _ := s.ListEligible(ctx, true, false)
	id := all[0].ID

	if err := s.UpdateAnswer(ctx, id, "исправленный ответ"); err != nil {
		t.Fatalf("UpdateAnswer: %v", err)
	}
	if err := s.SetQualityScore(ctx, id, 8.5); err != nil {
		t.Fatalf("SetQualityScore: %v", err)
	}

	p, err := s.GetPair(ctx, id)
	if err != nil {
		t.Fatalf("GetPair: %v", err)
	}
	if p.Answer != "исправленный ответ" {
		t.Errorf("answer = %q", p.Answer)
	}
	if p.QualityScore == nil || *p.QualityScore != 8.5 {
		t.Errorf("quality score = %v", p.QualityScore)
	}

	if err := s.UpdateAnswer(ctx, 9999, "x"); err == nil {
		t.Error("expected error for missing pair")
	}
}

func TestProcessedFiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	done, err := s.IsFileProcessed(ctx, "call.txt")
	if err != nil {
		t.Fatalf("IsFileProcessed: %v", err)
	}
	if done {
		t.Error("unprocessed file reported as processed")
	}

	meta := &CallMetadata{
		DialogID:      "1234567",
		CallDirection: "i",
		OperatorPhone: "79001234567",
		ClientPhone:   "79007654321",
		CallDate:      "2024-03-15",
		CallTime:      "10:30:00",
	}
	if err := s.MarkFileProcessed(ctx, "call.txt", 3, true, "", meta); err != nil {
		t.Fatalf("MarkFileProcessed: %v", err)
	}
	done, _ = s.IsFileProcessed(ctx, "call.txt")
	if !done {
		t.Error("processed file not reported")
	}

	// Re-marking updates in place rather than failing on the unique filename.
	if err := s.MarkFileProcessed(ctx, "call.txt", 5, false, "частичная ошибка", meta); err != nil {
		t.Fatalf("MarkFileProcessed (update): %v", err)
	}

	stats, err := s.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalFiles != 1 {
		t.Errorf("TotalFiles = %d, want 1", stats.TotalFiles)
	}
	if stats.FilesWithPairs != 0 {
		t.Errorf("FilesWithPairs = %d, want 0 after update", stats.FilesWithPairs)
	}
}

func TestPairExists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	exists, err := s.PairExists(ctx, "abc")
	if err != nil {
		t.Fatalf("PairExists: %v", err)
	}
	if exists {
		t.Error("missing pair reported as existing")
	}

	p := callPair("abc", "вопрос достаточно длинный", "ответ тоже достаточно длинный")
	p.Source = SourceTelegram
	if err := s.SavePairs(ctx, []Pair{p}); err != nil {
		t.Fatalf("SavePairs: %v", err)
	}
	exists, _ = s.PairExists(ctx, "abc")
	if !exists {
		t.Error("saved pair not found by dialog id")
	}

	got, _ := s.ListEligible(ctx, true, false)
	if got[0].Source != SourceTelegram {
		t.Errorf("source = %q", got[0].Source)
	}
}

func TestStatistics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p1 := callPair("d1", "вопрос про доставку товара", "ответ про доставку товара")
	p2 := callPair("d2", "вопрос про возврат товара", "ответ про возврат товара")
	p2.Direction = "оператор→клиент"
	p2.QuestionType = "возврат"
	score := 7.0
	p2.QualityScore = &score
	if err := s.SavePairs(ctx, []Pair{p1, p2}); err != nil {
		t.Fatalf("SavePairs: %v", err)
	}

	stats, err := s.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalPairs != 2 {
		t.Errorf("TotalPairs = %d", stats.TotalPairs)
	}
	if stats.ByDirection["клиент→оператор"] != 1 || stats.ByDirection["оператор→клиент"] != 1 {
		t.Errorf("ByDirection = %v", stats.ByDirection)
	}
	if stats.ByType["возврат"] != 1 {
		t.Errorf("ByType = %v", stats.ByType)
	}
	if stats.AvgQualityScore != 7.0 {
		t.Errorf("AvgQualityScore = %v", stats.AvgQualityScore)
	}
}
