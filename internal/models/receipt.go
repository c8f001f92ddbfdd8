package models

// ReceiptStatusOK marks a request that produced feedback.
const ReceiptStatusOK = "ok"

// Receipt is the metadata record kept for each feedback request.
// It deliberately has no field for journal text or model output.
type Receipt struct {
	RequestID     string   `json:"request_id"`
	Status        string   `json:"status"`
	PromptVersion string   `json:"prompt_version"`
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	TextLength    int      `json:"text_length"`
	Mood          *int     `json:"mood,omitempty"`
	Stress        *int     `json:"stress,omitempty"`
	Language      string   `json:"language"`
	Timezone      string   `json:"timezone"`
	DurationMS    int64    `json:"duration_ms"`
	RiskScore     *float64 `json:"risk_score,omitempty"`
	HasSafetyNote bool     `json:"has_safety_note"`
	Time          int64    `json:"time"`
}

// Stats aggregates receipts for GET /v1/stats.
type Stats struct {
	Total            int            `json:"total"`
	ByStatus         map[string]int `json:"by_status"`
	AverageRiskScore float64        `json:"average_risk_score"`
	SafetyNoteCount  int            `json:"safety_note_count"`
}

// ComputeStats aggregates a set of receipts. The average covers only receipts with a score.
func ComputeStats(receipts []Receipt) Stats {
	stats := Stats{ByStatus: make(map[string]int)}
	var sum float64
	var scored int
	for _, r := range receipts {
		stats.Total++
		stats.ByStatus[r.Status]++
		if r.RiskScore != nil {
			sum += *r.RiskScore
			scored++
		}
		if r.HasSafetyNote {
			stats.SafetyNoteCount++
		}
	}
	if scored > 0 {
		stats.AverageRiskScore = sum / float64(scored)
	}
	return stats
}
