package internal

import "github.com/shopspring/decimal"

type SourceType string

const (
	SourceBoschPreventive SourceType = "bosch_preventiva"
	SourceGeneric         SourceType = "generic"
)

// Field is a logical vehicle attribute compared against a reference table.
type Field string

const (
	FieldPlate    Field = "placa"
	FieldModel    Field = "modelo"
	FieldYear     Field = "ano"
	FieldOdometer Field = "km_atual"
	FieldChassis  Field = "chassi"
)

// MatchFields is the evaluation order used for scoring and for difference reports.
var MatchFields = []Field{FieldPlate, FieldModel, FieldYear, FieldOdometer, FieldChassis}

type Vehicle struct {
	Plate    *string `json:"plate"`
	Brand    *string `json:"brand,omitempty"`
	Model    *string `json:"model"`
	Year     *string `json:"year"`
	Odometer *string `json:"odometer"`
	Chassis  *string `json:"chassis"`
}

func (v Vehicle) Value(f Field) *string {
	switch f {
	case FieldPlate:
		return v.Plate
	case FieldModel:
		return v.Model
	case FieldYear:
		return v.Year
	case FieldOdometer:
		return v.Odometer
	case FieldChassis:
		return v.Chassis
	default:
		return nil
	}
}

type OrderMetadata struct {
	OrderType  *string `json:"order_type"`
	Status     *string `json:"status"`
	Technician *string `json:"technician"`
}

type LineItem struct {
	Description string          `json:"description"`
	TotalValue  decimal.Decimal `json:"total_value"`
}

type Totals struct {
	PartsTotal    *decimal.Decimal `json:"parts_total"`
	ServicesTotal *decimal.Decimal `json:"services_total"`
	OrderTotal    *decimal.Decimal `json:"order_total"`
}

type StructuredRecord struct {
	SourceType SourceType     `json:"source_type"`
	Vehicle    Vehicle        `json:"vehicle"`
	Order      *OrderMetadata `json:"order_metadata,omitempty"`
	LineItems  []LineItem     `json:"line_items"`
	Totals     Totals         `json:"totals"`
	RawText    string         `json:"raw_text"`
}

// ReferenceRow maps a column name to a cell value: string, number or nil.
type ReferenceRow map[string]any

type ReferenceTable struct {
	Columns []string       `json:"columns"`
	Rows    []ReferenceRow `json:"rows"`
}

// ColumnMapping is the caller supplied field -> column association.
type ColumnMapping map[Field]string

// ColumnMap is the resolved association; unresolved fields are missing.
type ColumnMap map[Field]string

type FieldScore struct {
	Score   int  `json:"score"`
	Max     int  `json:"max"`
	Matched bool `json:"matched"`
}

type Difference struct {
	Field      Field `json:"field"`
	ExcelValue any   `json:"excel_value"`
	PDFValue   any   `json:"pdf_value"`
}

type MatchReport struct {
	TotalRows         int                  `json:"total_rows"`
	BestRowIndex      *int                 `json:"best_row_index"`
	BestRowData       ReferenceRow         `json:"best_row_data"`
	MatchScore        int                  `json:"match_score"`
	ComparisonNote    string               `json:"comparison_note"`
	SampleDifferences []Difference         `json:"sample_differences"`
	FieldScores       map[Field]FieldScore `json:"field_scores"`
}

type SheetSource string

const (
	SheetSourceXLSX        SheetSource = "xlsx"
	SheetSourceGoogleSheet SheetSource = "gsheet"
)

type Sheet struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Source    SheetSource `json:"source"`
	Columns   []string    `json:"columns"`
	RowCount  int         `json:"row_count"`
	CreatedAt string      `json:"created_at"`
}

type DocumentKind string

const (
	DocumentPDF  DocumentKind = "pdf"
	DocumentHTML DocumentKind = "html"
	DocumentText DocumentKind = "text"
)

type Document struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Kind      DocumentKind     `json:"kind"`
	Record    StructuredRecord `json:"record"`
	CreatedAt string           `json:"created_at"`
}

type Comparison struct {
	ID           string      `json:"id"`
	DocumentID   string      `json:"document_id"`
	DocumentName string      `json:"document_name"`
	SheetID      string      `json:"sheet_id"`
	SheetName    string      `json:"sheet_name"`
	EmailID      *int        `json:"email_id,omitempty"`
	Report       MatchReport `json:"report"`
	CreatedAt    string      `json:"created_at"`
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
