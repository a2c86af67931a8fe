package services

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
	"time"
)

// LongRow is one answered question in a long-format export.
type LongRow struct {
	SessionID   string
	Role        Role
	QuestionID  string
	Dimension   string
	ChoiceValue int
	UpdatedAt   time.Time
}

// ExportLongCSV renders one row per (participant, question) answer.
func ExportLongCSV(rows []LongRow) ([]byte, error) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Role != rows[j].Role {
			return rows[i].Role < rows[j].Role
		}
		return rows[i].QuestionID < rows[j].QuestionID
	})
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"session_id", "role", "question_id", "dimension", "choice_value", "updated_at"})
	for _, r := range rows {
		rec := []string{
			r.SessionID,
			string(r.Role),
			r.QuestionID,
			r.Dimension,
			strconv.Itoa(r.ChoiceValue),
			r.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportWideCSV renders one row per role and one column per question.
// inputs is map[role]map[questionID]choiceValue; unanswered cells are empty.
func ExportWideCSV(inputs map[Role]map[string]int) ([]byte, error) {
	qset := map[string]struct{}{}
	for _, m := range inputs {
		for qid := range m {
			qset[qid] = struct{}{}
		}
	}
	questions := make([]string, 0, len(qset))
	for id := range qset {
		questions = append(questions, id)
	}
	sort.Strings(questions)

	roles := make([]Role, 0, len(inputs))
	for r := range inputs {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write(append([]string{"role"}, questions...))
	for _, role := range roles {
		row := make([]string, 0, 1+len(questions))
		row = append(row, string(role))
		for _, qid := range questions {
			if v, ok := inputs[role][qid]; ok {
				row = append(row, strconv.Itoa(v))
			} else {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
