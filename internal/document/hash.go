package document

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"

	"golang.org/x/crypto/hkdf"

	id "trustdoc/pkg/domain"
)

// Hasher produces the keyed integrity fingerprint binding a document's
// content snapshot to its identifier. It is a pure function over its inputs:
// the same (identifier, content, institution) always yields the same hash,
// and forging one requires the institution key. Per-institution keys are
// derived from the process master secret so one leaked key does not
// compromise other institutions.
type Hasher struct {
	master []byte
}

// NewHasher creates a Hasher seeded with the master secret.
func NewHasher(masterSecret string) *Hasher {
	return &Hasher{master: []byte(masterSecret)}
}

// Compute returns the hex-encoded HMAC-SHA256 over the canonical
// serialization of the identifier and content snapshot.
func (h *Hasher) Compute(docID id.DocumentID, content map[string]string, institutionID id.InstitutionID) string {
	mac := hmac.New(sha256.New, h.institutionKey(institutionID))
	writeCanonical(mac, docID, content)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a candidate hash in constant time.
func (h *Hasher) Verify(docID id.DocumentID, content map[string]string, institutionID id.InstitutionID, candidate string) bool {
	expected := h.Compute(docID, content, institutionID)
	return hmac.Equal([]byte(expected), []byte(candidate))
}

// institutionKey derives the 32-byte MAC key for one institution via HKDF.
func (h *Hasher) institutionKey(institutionID id.InstitutionID) []byte {
	r := hkdf.New(sha256.New, h.master, nil, []byte("trustdoc-integrity:"+institutionID.String()))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails when asked for more than 255*HashLen bytes.
		panic("hkdf: " + err.Error())
	}
	return key
}

// writeCanonical serializes the hash input deterministically: identifier
// first, then content fields in key order, each field delimited with control
// bytes that cannot appear in a way that lets two snapshots collide.
func writeCanonical(w io.Writer, docID id.DocumentID, content map[string]string) {
	io.WriteString(w, string(docID)) //nolint:errcheck // hash.Hash writes never fail
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.Write([]byte{0x1e}) //nolint:errcheck
		io.WriteString(w, k)  //nolint:errcheck
		w.Write([]byte{0x1f}) //nolint:errcheck
		io.WriteString(w, content[k]) //nolint:errcheck
	}
}
