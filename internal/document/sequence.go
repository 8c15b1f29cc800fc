package document

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/redis/go-redis/v9"

	id "trustdoc/pkg/domain"
	dErrors "trustdoc/pkg/domain-errors"
)

// Sequencer yields the sequence component of a new document identifier.
// The identifier format only guarantees well-formedness; uniqueness within
// (institution, year) is the sequencer's concern.
type Sequencer interface {
	Next(ctx context.Context, institutionID id.InstitutionID, year int) (int, error)
}

// RedisSequencer allocates monotonic per-(institution, year) sequences with
// INCR, guaranteeing uniqueness across processes.
type RedisSequencer struct {
	client redis.Cmdable
}

func NewRedisSequencer(client redis.Cmdable) *RedisSequencer {
	return &RedisSequencer{client: client}
}

func (s *RedisSequencer) Next(ctx context.Context, institutionID id.InstitutionID, year int) (int, error) {
	key := fmt.Sprintf("trustdoc:docseq:%s:%d", institutionID, year)
	seq, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment document sequence: %w", err)
	}
	if seq > id.MaxDocumentSequence {
		return 0, dErrors.New(dErrors.CodeConflict, "document sequence exhausted for year")
	}
	return int(seq), nil
}

// RandomSequencer draws sequences from crypto/rand. Collision probability is
// negligible at realistic volumes; the registry's uniqueness check catches
// the rest. Used when Redis is not configured.
type RandomSequencer struct{}

func NewRandomSequencer() *RandomSequencer {
	return &RandomSequencer{}
}

func (s *RandomSequencer) Next(_ context.Context, _ id.InstitutionID, _ int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(id.MaxDocumentSequence+1))
	if err != nil {
		return 0, fmt.Errorf("draw document sequence: %w", err)
	}
	return int(n.Int64()), nil
}

// Generator mints structurally valid document identifiers.
type Generator struct {
	seq Sequencer
}

func NewGenerator(seq Sequencer) *Generator {
	return &Generator{seq: seq}
}

// NewID produces a well-formed identifier for the given issuance year.
func (g *Generator) NewID(ctx context.Context, institutionID id.InstitutionID, year int) (id.DocumentID, error) {
	seq, err := g.seq.Next(ctx, institutionID, year)
	if err != nil {
		return "", err
	}
	return id.NewDocumentID(year, seq)
}
