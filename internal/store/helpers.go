package store

import (
	"database/sql"
	"fmt"

	"github.com/nisiwa02/sleep-journal-app/internal/models"
)

const receiptColumns = `request_id, status, prompt_version, provider, model, text_length, mood, stress,
	language, timezone, duration_ms, risk_score, has_safety_note, time`

// nilIfNilInt returns nil for a nil pointer, otherwise the value.
// Used for nullable database columns.
func nilIfNilInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nilIfNilFloat(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// receiptArgs returns insert arguments in receiptColumns order.
func receiptArgs(r models.Receipt) []interface{} {
	return []interface{}{
		r.RequestID, r.Status, r.PromptVersion, r.Provider, r.Model, r.TextLength,
		nilIfNilInt(r.Mood), nilIfNilInt(r.Stress), r.Language, r.Timezone,
		r.DurationMS, nilIfNilFloat(r.RiskScore), r.HasSafetyNote, r.Time,
	}
}

// scanReceipts reads all rows selected with receiptColumns.
func scanReceipts(rows *sql.Rows) ([]models.Receipt, error) {
	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		var mood, stress sql.NullInt64
		var risk sql.NullFloat64
		err := rows.Scan(
			&r.RequestID, &r.Status, &r.PromptVersion, &r.Provider, &r.Model, &r.TextLength,
			&mood, &stress, &r.Language, &r.Timezone, &r.DurationMS, &risk, &r.HasSafetyNote, &r.Time,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		if mood.Valid {
			v := int(mood.Int64)
			r.Mood = &v
		}
		if stress.Valid {
			v := int(stress.Int64)
			r.Stress = &v
		}
		if risk.Valid {
			v := risk.Float64
			r.RiskScore = &v
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	return receipts, nil
}
