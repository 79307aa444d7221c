// Package fairness implements the commit-reveal protocol behind winner
// selection. Both operations are pure: anyone holding the revealed seed and
// the final participant list can recompute the draw and check the published
// hashes.
package fairness

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Version tags proofs with the algorithm that produced them, so the scheme
// can evolve without breaking verification of past draws.
const Version = "v1"

// ErrEmptyParticipants is returned when a winner is requested for an empty
// participant set. The orchestrator checks first; this is the last line of
// defense against a modulo by zero.
var ErrEmptyParticipants = errors.New("no participants to draw a winner")

// Commit is the public half of the protocol: SeedHash is published before
// the participant set is final, so the operator cannot pick a seed to favor
// a known set.
type Commit struct {
	Seed         string
	SeedHash     string
	GraceSeconds int64
}

// DrawResult is the full proof bundle for a completed draw.
type DrawResult struct {
	WinnerUserID     int64
	WinnerIndex      int
	ParticipantsHash string
	WinnerHash       string
	Seed             string
	SeedHash         string
}

func sha256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// GenerateCommit draws 256 bits of cryptographically secure randomness and
// returns it hex-encoded together with its SHA-256 commitment.
func GenerateCommit(graceSeconds int64) (Commit, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return Commit{}, fmt.Errorf("generate seed: %w", err)
	}
	seed := hex.EncodeToString(buf)
	return Commit{
		Seed:         seed,
		SeedHash:     sha256Hex(seed),
		GraceSeconds: graceSeconds,
	}, nil
}

// CommitOf builds the commitment for an externally provided seed, e.g. one
// derived from a master secret instead of drawn at random.
func CommitOf(seed string, graceSeconds int64) Commit {
	return Commit{
		Seed:         seed,
		SeedHash:     sha256Hex(seed),
		GraceSeconds: graceSeconds,
	}
}

// DeriveSeed computes a per-raffle seed as a keyed PRF of the raffle id under
// a server-held master secret (HMAC-SHA256). Recomputable on demand, so the
// secret never needs to survive in process memory across a restart.
func DeriveSeed(masterSecret string, raffleID int64) string {
	mac := hmac.New(sha256.New, []byte(masterSecret))
	mac.Write([]byte("raffle-seed:" + strconv.FormatInt(raffleID, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// ComputeWinner deterministically selects a winner from the seed and the
// participant set:
//
//  1. sort participant ids ascending by numeric value
//  2. participantsHash = sha256(join(sortedIds, ","))
//  3. winnerHash = sha256(seed + ":" + participantsHash)
//  4. winnerIndex = first 8 bytes of winnerHash as big-endian uint64, mod N
//
// The sort makes the result independent of admission order, so permuting the
// input never changes the outcome.
func ComputeWinner(seed string, participantIDs []int64) (DrawResult, error) {
	if len(participantIDs) == 0 {
		return DrawResult{}, ErrEmptyParticipants
	}

	sorted := make([]int64, len(participantIDs))
	copy(sorted, participantIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	joined := make([]string, len(sorted))
	for i, id := range sorted {
		joined[i] = strconv.FormatInt(id, 10)
	}
	participantsHash := sha256Hex(strings.Join(joined, ","))

	winnerHash := sha256Hex(seed + ":" + participantsHash)

	raw, err := hex.DecodeString(winnerHash[:16])
	if err != nil {
		return DrawResult{}, fmt.Errorf("decode winner hash: %w", err)
	}
	winnerIndex := int(binary.BigEndian.Uint64(raw) % uint64(len(sorted)))

	return DrawResult{
		WinnerUserID:     sorted[winnerIndex],
		WinnerIndex:      winnerIndex,
		ParticipantsHash: participantsHash,
		WinnerHash:       winnerHash,
		Seed:             seed,
		SeedHash:         sha256Hex(seed),
	}, nil
}
