package httptransport

import (
	"time"

	"trustdoc/internal/audit"
	"trustdoc/internal/document"
	"trustdoc/internal/importer"
	"trustdoc/internal/verification"
)

type documentResponse struct {
	ID                string            `json:"id"`
	InstitutionID     string            `json:"institution_id"`
	TemplateID        string            `json:"template_id"`
	StudentName       string            `json:"student_name"`
	Content           map[string]string `json:"content"`
	Hash              string            `json:"hash"`
	Status            string            `json:"status"`
	IssuedBy          string            `json:"issued_by"`
	IssuedAt          time.Time         `json:"issued_at"`
	VerificationCount int64             `json:"verification_count"`
	LastVerified      *time.Time        `json:"last_verified,omitempty"`
	Payload           string            `json:"payload,omitempty"`
}

func toDocumentResponse(doc *document.Document, payload string) documentResponse {
	return documentResponse{
		ID:                string(doc.ID),
		InstitutionID:     doc.InstitutionID.String(),
		TemplateID:        doc.TemplateID.String(),
		StudentName:       doc.StudentName,
		Content:           doc.Content,
		Hash:              doc.Hash,
		Status:            string(doc.Status),
		IssuedBy:          doc.IssuedBy.String(),
		IssuedAt:          doc.IssuedAt,
		VerificationCount: doc.VerificationCount,
		LastVerified:      doc.LastVerified,
		Payload:           payload,
	}
}

type verificationResponse struct {
	Valid          bool              `json:"valid"`
	Document       *documentResponse `json:"document,omitempty"`
	Errors         []string          `json:"errors"`
	Warnings       []string          `json:"warnings"`
	VerificationID string            `json:"verification_id"`
	VerifiedAt     time.Time         `json:"verified_at"`
}

func toVerificationResponse(result *verification.Result) verificationResponse {
	resp := verificationResponse{
		Valid:          result.Valid,
		Errors:         result.Errors,
		Warnings:       result.Warnings,
		VerificationID: result.VerificationID.String(),
		VerifiedAt:     result.VerifiedAt,
	}
	if resp.Errors == nil {
		resp.Errors = []string{}
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	if result.Document != nil {
		doc := toDocumentResponse(result.Document, "")
		resp.Document = &doc
	}
	return resp
}

type rowErrorResponse struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type jobResponse struct {
	ID            string             `json:"id"`
	InstitutionID string             `json:"institution_id"`
	SourceName    string             `json:"source_name"`
	FileSize      int64              `json:"file_size"`
	TotalRows     int                `json:"total_rows"`
	ProcessedRows int                `json:"processed_rows"`
	SuccessRows   int                `json:"success_rows"`
	ErrorRows     int                `json:"error_rows"`
	Status        string             `json:"status"`
	RowErrors     []rowErrorResponse `json:"row_errors"`
	FailureReason string             `json:"failure_reason,omitempty"`
	SubmittedBy   string             `json:"submitted_by"`
	CreatedAt     time.Time          `json:"created_at"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
}

func toJobResponse(job *importer.Job) jobResponse {
	rowErrors := make([]rowErrorResponse, 0, len(job.RowErrors))
	for _, re := range job.RowErrors {
		rowErrors = append(rowErrors, rowErrorResponse{Row: re.Row, Reason: re.Reason})
	}
	return jobResponse{
		ID:            job.ID.String(),
		InstitutionID: job.InstitutionID.String(),
		SourceName:    job.SourceName,
		FileSize:      job.FileSize,
		TotalRows:     job.TotalRows,
		ProcessedRows: job.ProcessedRows,
		SuccessRows:   job.SuccessRows,
		ErrorRows:     job.ErrorRows,
		Status:        string(job.Status),
		RowErrors:     rowErrors,
		FailureReason: job.FailureReason,
		SubmittedBy:   job.SubmittedBy.String(),
		CreatedAt:     job.CreatedAt,
		CompletedAt:   job.CompletedAt,
	}
}

type connectionResponse struct {
	ID            string     `json:"id"`
	InstitutionID string     `json:"institution_id"`
	Name          string     `json:"name"`
	Driver        string     `json:"driver"`
	Host          string     `json:"host"`
	Port          int        `json:"port"`
	DatabaseName  string     `json:"database_name"`
	Username      string     `json:"username"`
	IsActive      bool       `json:"is_active"`
	LastSync      *time.Time `json:"last_sync,omitempty"`
	StudentsCount int        `json:"students_count"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toConnectionResponse(conn *importer.DatabaseConnection) connectionResponse {
	return connectionResponse{
		ID:            conn.ID.String(),
		InstitutionID: conn.InstitutionID.String(),
		Name:          conn.Name,
		Driver:        conn.Driver,
		Host:          conn.Host,
		Port:          conn.Port,
		DatabaseName:  conn.DatabaseName,
		Username:      conn.Username,
		IsActive:      conn.IsActive,
		LastSync:      conn.LastSync,
		StudentsCount: conn.StudentsCount,
		CreatedAt:     conn.CreatedAt,
	}
}

type auditEntryResponse struct {
	ID            string            `json:"id"`
	Seq           int64             `json:"seq"`
	Action        string            `json:"action"`
	DocumentID    string            `json:"document_id,omitempty"`
	ActorID       string            `json:"actor_id"`
	InstitutionID string            `json:"institution_id"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	OriginIP      string            `json:"origin_ip,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

func toAuditResponse(entries []audit.Entry) []auditEntryResponse {
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:            e.ID.String(),
			Seq:           e.Seq,
			Action:        string(e.Action),
			DocumentID:    string(e.DocumentID),
			ActorID:       e.ActorID.String(),
			InstitutionID: e.InstitutionID.String(),
			Metadata:      e.Metadata,
			OriginIP:      e.OriginIP,
			Timestamp:     e.Timestamp,
		})
	}
	return out
}
