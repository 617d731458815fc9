package export

import "strconv"

// Cohort export column names.
const (
	ColumnRank        = "Rank"
	ColumnLearner     = "Learner"
	ColumnEmail       = "Email"
	ColumnPractical   = "Practical %"
	ColumnTheoretical = "Theoretical %"
	ColumnGrade       = "Grade"
	ColumnStatus      = "Status"
)

// CohortRow is one ranked member of a course cohort.
type CohortRow struct {
	Rank        int
	Learner     string
	Email       string
	Practical   float64
	Theoretical float64
	Grade       string
	Status      string
}

// CohortDataset lays out ranked cohort rows for the exporters.
func CohortDataset(rows []CohortRow) Dataset {
	data := Dataset{
		Headers: []string{ColumnRank, ColumnLearner, ColumnEmail, ColumnPractical, ColumnTheoretical, ColumnGrade, ColumnStatus},
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for _, r := range rows {
		data.Rows = append(data.Rows, map[string]string{
			ColumnRank:        strconv.Itoa(r.Rank),
			ColumnLearner:     r.Learner,
			ColumnEmail:       r.Email,
			ColumnPractical:   strconv.FormatFloat(r.Practical, 'f', 2, 64),
			ColumnTheoretical: strconv.FormatFloat(r.Theoretical, 'f', 2, 64),
			ColumnGrade:       r.Grade,
			ColumnStatus:      r.Status,
		})
	}
	return data
}

// CohortColumnWeights widens the name and email columns of the PDF table.
var CohortColumnWeights = map[string]float64{
	ColumnRank:        0.6,
	ColumnLearner:     2,
	ColumnEmail:       2.4,
	ColumnPractical:   1,
	ColumnTheoretical: 1,
	ColumnGrade:       0.7,
	ColumnStatus:      1,
}
