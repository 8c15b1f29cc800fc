package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	dErrors "trustdoc/pkg/domain-errors"
)

// Row is one student record as read from an import source, keyed by
// normalized column name. Validation happens later, per row, in the service.
type Row map[string]string

// Source supplies rows for an import job. Rows reads the whole source up
// front so TotalRows is known before processing starts.
type Source interface {
	Name() string
	Rows() ([]Row, error)
}

// Column names recognized by the row validator.
const (
	ColMatricule      = "matricule"
	ColFirstName      = "first_name"
	ColLastName       = "last_name"
	ColEmail          = "email"
	ColBirthDate      = "birth_date"
	ColBirthPlace     = "birth_place"
	ColDiscipline     = "discipline"
	ColSpecialization = "specialization"
	ColAcademicYear   = "academic_year"
	ColAverage        = "average"
)

var requiredColumns = []string{
	ColMatricule, ColFirstName, ColLastName, ColBirthDate,
	ColBirthPlace, ColDiscipline, ColAverage, ColAcademicYear,
}

// CSVSource reads header-mapped comma-delimited input. Header names are
// matched case-insensitively after trimming.
type CSVSource struct {
	name   string
	reader io.Reader
}

func NewCSVSource(name string, r io.Reader) *CSVSource {
	return &CSVSource{name: name, reader: r}
}

func (s *CSVSource) Name() string {
	return s.name
}

func (s *CSVSource) Rows() ([]Row, error) {
	r := csv.NewReader(s.reader)
	r.TrimLeadingSpace = true
	// Ragged rows become per-row validation errors, not a dead source.
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeImportSourceUnreadable, "failed to read header row")
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(h))
	}
	for _, required := range requiredColumns {
		if !contains(columns, required) {
			return nil, dErrors.New(dErrors.CodeImportSourceUnreadable,
				fmt.Sprintf("missing required column %q", required))
		}
	}

	var rows []Row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeImportSourceUnreadable, "failed to read data row")
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
