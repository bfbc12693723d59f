package questions

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const storeKey = "security_questions"

// AnswerMode selects how answers are kept at rest.
type AnswerMode int

const (
	// AnswerHashArgon2 stores an Argon2id PHC string per answer.
	AnswerHashArgon2 AnswerMode = iota
	// AnswerPlaintext stores the normalized answer itself.
	AnswerPlaintext
)

var (
	// ErrNoQuestions is returned by Save when the set is empty.
	ErrNoQuestions = errors.New("at least one security question is required")
	// ErrEmptyAnswer is returned by Save when a question or answer is blank.
	ErrEmptyAnswer = errors.New("security question and answer must not be empty")
	// ErrDuplicateID is returned by Save when two questions share an ID.
	ErrDuplicateID = errors.New("duplicate security question id")
	// ErrUnavailable wraps secure store failures.
	ErrUnavailable = errors.New("security question store unavailable")
	// ErrHasherRequired is returned by New when hashing is selected without a hasher.
	ErrHasherRequired = errors.New("answer hasher required for hashed mode")
)

// Question is one prompt/answer pair as entered by the user.
type Question struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Prompt is a stored question without its answer.
type Prompt struct {
	ID       string
	Question string
}

// Hasher hashes and verifies normalized answers. password.Argon2 satisfies it.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) (bool, error)
}

// Upgrader reports whether a stored hash was produced with weaker
// parameters than the hasher now uses. password.Argon2 satisfies it.
type Upgrader interface {
	NeedsUpgrade(encoded string) (bool, error)
}

// SecureStore is the subset of kv.SecureStore used here.
type SecureStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

type storedQuestion struct {
	ID       string     `json:"id"`
	Question string     `json:"question"`
	Answer   string     `json:"answer"`
	Mode     AnswerMode `json:"mode"`
}

// Store persists the security question set.
type Store struct {
	secure SecureStore
	mode   AnswerMode
	hasher Hasher
	logger *slog.Logger
}

// New returns a Store. hasher may be nil only with AnswerPlaintext. When the
// hasher is also an [Upgrader], answers hashed with weaker parameters are
// re-hashed after a successful Verify.
func New(secure SecureStore, mode AnswerMode, hasher Hasher, logger *slog.Logger) (*Store, error) {
	if mode == AnswerHashArgon2 && hasher == nil {
		return nil, ErrHasherRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{secure: secure, mode: mode, hasher: hasher, logger: logger}, nil
}

// NormalizeAnswer lower-cases and trims an answer.
func NormalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}

// Save replaces the stored set with qs.
func (s *Store) Save(ctx context.Context, qs []Question) error {
	if len(qs) == 0 {
		return ErrNoQuestions
	}

	seen := make(map[string]struct{}, len(qs))
	out := make([]storedQuestion, 0, len(qs))
	for _, q := range qs {
		answer := NormalizeAnswer(q.Answer)
		if strings.TrimSpace(q.ID) == "" || strings.TrimSpace(q.Question) == "" || answer == "" {
			return ErrEmptyAnswer
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, q.ID)
		}
		seen[q.ID] = struct{}{}

		stored := answer
		if s.mode == AnswerHashArgon2 {
			h, err := s.hasher.Hash(answer)
			if err != nil {
				return err
			}
			stored = h
		}
		out = append(out, storedQuestion{ID: q.ID, Question: q.Question, Answer: stored, Mode: s.mode})
	}

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	if err := s.secure.Set(ctx, storeKey, string(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Exists reports whether a non-empty set is stored. Read failures report false.
func (s *Store) Exists(ctx context.Context) bool {
	qs, err := s.load(ctx)
	return err == nil && len(qs) > 0
}

// Questions returns the stored prompts in saved order.
func (s *Store) Questions(ctx context.Context) ([]Prompt, error) {
	qs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Prompt, 0, len(qs))
	for _, q := range qs {
		out = append(out, Prompt{ID: q.ID, Question: q.Question})
	}
	return out, nil
}

// Verify reports whether every stored question is answered correctly.
// Answers are keyed by question ID and compared after NormalizeAnswer.
func (s *Store) Verify(ctx context.Context, answers map[string]string) (bool, error) {
	qs, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	if len(qs) == 0 {
		return false, nil
	}

	all := true
	for _, q := range qs {
		given, ok := answers[q.ID]
		if !ok {
			all = false
			continue
		}
		match, err := s.matches(q, NormalizeAnswer(given))
		if err != nil {
			return false, err
		}
		if !match {
			all = false
		}
	}
	if all {
		s.upgrade(ctx, qs, answers)
	}
	return all, nil
}

// upgrade re-hashes verified answers whose stored hash is outdated. Failures
// are logged and leave the stored set unchanged.
func (s *Store) upgrade(ctx context.Context, qs []storedQuestion, answers map[string]string) {
	up, ok := s.hasher.(Upgrader)
	if !ok {
		return
	}

	changed := 0
	for i, q := range qs {
		if q.Mode != AnswerHashArgon2 {
			continue
		}
		stale, err := up.NeedsUpgrade(q.Answer)
		if err != nil || !stale {
			continue
		}
		h, err := s.hasher.Hash(NormalizeAnswer(answers[q.ID]))
		if err != nil {
			s.logger.Warn("security answer rehash failed", slog.String("question_id", q.ID), slog.String("error", err.Error()))
			return
		}
		qs[i].Answer = h
		changed++
	}
	if changed == 0 {
		return
	}

	data, err := json.Marshal(qs)
	if err != nil {
		s.logger.Warn("security answer rehash encode failed", slog.String("error", err.Error()))
		return
	}
	if err := s.secure.Set(ctx, storeKey, string(data)); err != nil {
		s.logger.Warn("security answer rehash write failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("security answers rehashed", slog.Int("count", changed))
}

// Clear removes the stored set.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.secure.Remove(ctx, storeKey); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Store) matches(q storedQuestion, answer string) (bool, error) {
	if q.Mode == AnswerPlaintext {
		return subtle.ConstantTimeCompare([]byte(q.Answer), []byte(answer)) == 1, nil
	}
	if s.hasher == nil {
		return false, ErrHasherRequired
	}
	if answer == "" {
		return false, nil
	}
	return s.hasher.Verify(answer, q.Answer)
}

func (s *Store) load(ctx context.Context) ([]storedQuestion, error) {
	raw, ok, err := s.secure.Get(ctx, storeKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var qs []storedQuestion
	if err := json.Unmarshal([]byte(raw), &qs); err != nil {
		return nil, fmt.Errorf("%w: corrupt question set", ErrUnavailable)
	}
	return qs, nil
}
