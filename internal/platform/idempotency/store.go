// Package idempotency stores the first response to a keyed mutation so that
// client retries replay it instead of repeating the side effect.
package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a completed response can be replayed.
const DefaultTTL = 24 * time.Hour

// Status is the persisted state of a record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState is what Reserve found for a key.
type ReservationState int

const (
	// ReservationStateNew: the caller owns the key and must run the request.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted: Record holds the response to replay.
	ReservationStateCompleted
	// ReservationStatePending: another request holds the key.
	ReservationStatePending
)

type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is one stored key. Key is the caller-scoped key, not the raw header.
type Record struct {
	Key             string
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

// Response is what the handler produced for a reserved key.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// ErrFingerprintMismatch means the key was first used for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

// Store is implemented by MemoryStore, PostgresStore and FirestoreStore.
// Reserve treats expired records as absent; CleanupExpired deletes at most
// limit of them and reports how many went.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// recordID hashes the scoped key into a fixed-width document id. The
// fingerprint stays out so reuse with another request is detectable.
func recordID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func newPendingRecord(key, fingerprint string, now time.Time, ttl time.Duration) Record {
	return Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// completed returns the record after resp was stored for it. prev is nil when
// no reservation exists any more, e.g. it expired while the handler ran.
func completed(prev *Record, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) (Record, error) {
	record := Record{Key: key, Fingerprint: fingerprint, CreatedAt: now}
	if prev != nil {
		if prev.Fingerprint != fingerprint {
			return Record{}, ErrFingerprintMismatch
		}
		record = *prev
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	record.Status = StatusCompleted
	record.ResponseStatus = resp.Status
	record.ResponseHeaders = storableHeaders(resp.Headers)
	record.ResponseBody = bytes.Clone(resp.Body)
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(ttl)
	return record, nil
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// reservationFor classifies a live record found for the key.
func reservationFor(record Record, fingerprint string) (Reservation, error) {
	switch {
	case record.Fingerprint != fingerprint:
		return Reservation{}, ErrFingerprintMismatch
	case record.Status == StatusCompleted:
		return Reservation{State: ReservationStateCompleted, Record: record}, nil
	default:
		return Reservation{State: ReservationStatePending, Record: record}, nil
	}
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
