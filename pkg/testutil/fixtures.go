package testutil

import (
	"github.com/google/uuid"

	id "trustdoc/pkg/domain"
)

// TestIDs provides convenient pre-generated IDs for tests.
// Use these for deterministic test data.
var TestIDs = struct {
	InstitutionID1 id.InstitutionID
	InstitutionID2 id.InstitutionID
	ActorID1       id.ActorID
	ActorID2       id.ActorID
	TemplateID1    id.TemplateID
}{
	InstitutionID1: id.InstitutionID(uuid.MustParse("11111111-1111-1111-1111-111111111111")),
	InstitutionID2: id.InstitutionID(uuid.MustParse("22222222-2222-2222-2222-222222222222")),
	ActorID1:       id.ActorID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000001")),
	ActorID2:       id.ActorID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000002")),
	TemplateID1:    id.TemplateID(uuid.MustParse("cccc0000-0000-0000-0000-000000000001")),
}
