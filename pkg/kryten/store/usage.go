package store

import "fmt"

// UsageSummary is the aggregate of recorded model API usage.
type UsageSummary struct {
	Calls        int
	InputTokens  int64
	OutputTokens int64
	TotalCost    float64
	Model        string
}

// LogAPIUsage records one model invocation's token counts and cost.
func (s *Store) LogAPIUsage(userID int64, inputTokens, outputTokens int, model string, costUSD float64) error {
	_, err := s.db.Exec(`
		INSERT INTO api_usage (user_id, input_tokens, output_tokens, model, cost_usd)
		VALUES (?, ?, ?, ?, ?)
	`, userID, inputTokens, outputTokens, model, costUSD)
	if err != nil {
		return fmt.Errorf("log api usage: %w", err)
	}
	return nil
}

// GetUsageSummary aggregates all recorded usage.
func (s *Store) GetUsageSummary() (*UsageSummary, error) {
	row := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0),
		       COALESCE(SUM(cost_usd), 0),
		       COALESCE(MAX(model), '')
		FROM api_usage
	`)

	var u UsageSummary
	if err := row.Scan(&u.Calls, &u.InputTokens, &u.OutputTokens, &u.TotalCost, &u.Model); err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	return &u, nil
}
