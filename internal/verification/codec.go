package verification

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"trustdoc/internal/document"
	id "trustdoc/pkg/domain"
	dErrors "trustdoc/pkg/domain-errors"
)

// Payload is the portable verification payload carried in a QR code or
// shared link. JSON keys follow the published wire format.
type Payload struct {
	ID              string `json:"id"`
	Hash            string `json:"hash,omitempty"`
	VerificationURL string `json:"verificationUrl,omitempty"`
	IssuedDate      string `json:"issuedDate,omitempty"`
	InstitutionID   string `json:"institutionId,omitempty"`
}

// HasHash reports whether the payload carries an integrity hash. Payloads
// decoded from a bare identifier do not, which downgrades trust downstream.
func (p Payload) HasHash() bool {
	return p.Hash != ""
}

// Encode packages a document for distribution. The result is the exact
// string embedded in QR codes.
func Encode(doc *document.Document, baseURL string) (string, error) {
	p := Payload{
		ID:              string(doc.ID),
		Hash:            doc.Hash,
		VerificationURL: baseURL + "/verify?id=" + url.QueryEscape(string(doc.ID)) + "&hash=" + url.QueryEscape(doc.Hash),
		IssuedDate:      doc.IssuedAt.UTC().Format(time.RFC3339),
		InstitutionID:   doc.InstitutionID.String(),
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode verification payload")
	}
	return string(raw), nil
}

// Decode parses a raw QR-decoded string into a Payload. Three shapes are
// accepted, tried in order:
//
//  1. the structured JSON payload with id, hash and verificationUrl;
//  2. a verification URL carrying id and hash query parameters;
//  3. a bare document identifier (hash absent, identifier-only lookup).
//
// Decoding is pure; trust adjudication happens in the engine.
func Decode(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}, dErrors.New(dErrors.CodeInvalidInput, "empty verification payload")
	}

	if p, ok := decodeJSON(raw); ok {
		return p, nil
	}
	if p, ok := decodeURL(raw); ok {
		return p, nil
	}
	if id.IsValidDocumentID(raw) {
		return Payload{ID: raw}, nil
	}

	return Payload{}, dErrors.New(dErrors.CodeInvalidInput, "unrecognized verification payload")
}

func decodeJSON(raw string) (Payload, bool) {
	if !strings.HasPrefix(raw, "{") {
		return Payload{}, false
	}
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, false
	}
	if p.ID == "" || p.Hash == "" || p.VerificationURL == "" {
		return Payload{}, false
	}
	return p, true
}

func decodeURL(raw string) (Payload, bool) {
	u, err := url.Parse(raw)
	if err != nil || !strings.Contains(u.Path, "/verify") {
		return Payload{}, false
	}
	q := u.Query()
	docID, hash := q.Get("id"), q.Get("hash")
	if docID == "" || hash == "" {
		return Payload{}, false
	}
	return Payload{
		ID:              docID,
		Hash:            hash,
		VerificationURL: raw,
	}, true
}
