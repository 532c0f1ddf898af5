package tambal

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/odit-bit/tambal/tambal/agent"
)

const (
	defaultMaxSessions  = 1000
	defaultMaxExchanges = 4
	defaultMaxRunes     = 1500
)

// Fix is the code extracted from the last answer a user received.
type Fix struct {
	Code     string
	Filename string
	Model    string
}

type session struct {
	mu      sync.Mutex
	history []*agent.Message
	pending string
	lastFix *Fix
}

// sessions keeps per-user conversation state in a bounded LRU.
// The least recently used user loses their context once the cap is reached.
type sessions struct {
	mu          sync.Mutex
	cache       *lru.Cache[int64, *session]
	maxMessages int
	maxRunes    int
}

func newSessions(maxSessions, maxExchanges, maxRunes int) (*sessions, error) {
	if maxSessions <= 0 {
		maxSessions = defaultMaxSessions
	}
	if maxExchanges <= 0 {
		maxExchanges = defaultMaxExchanges
	}
	if maxRunes <= 0 {
		maxRunes = defaultMaxRunes
	}
	c, err := lru.New[int64, *session](maxSessions)
	if err != nil {
		return nil, err
	}
	return &sessions{
		cache:       c,
		maxMessages: maxExchanges * 2,
		maxRunes:    maxRunes,
	}, nil
}

func (s *sessions) get(userID int64) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.cache.Get(userID); ok {
		return sess
	}
	sess := &session{}
	s.cache.Add(userID, sess)
	return sess
}

// peek does not create a session or touch recency.
func (s *sessions) peek(userID int64) (*session, bool) {
	return s.cache.Peek(userID)
}

func (s *sessions) history(userID int64) []*agent.Message {
	sess, ok := s.peek(userID)
	if !ok {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]*agent.Message, len(sess.history))
	copy(out, sess.history)
	return out
}

// appendExchange keeps only the newest maxMessages entries.
func (s *sessions) appendExchange(userID int64, query, answer string) {
	sess := s.get(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.history = append(sess.history,
		agent.NewTextMessage(agent.RoleUser, truncateRunes(query, s.maxRunes)),
		agent.NewTextMessage(agent.RoleAssistant, truncateRunes(answer, s.maxRunes)),
	)
	if over := len(sess.history) - s.maxMessages; over > 0 {
		sess.history = append([]*agent.Message(nil), sess.history[over:]...)
	}
}

func (s *sessions) setPending(userID int64, hash string) {
	sess := s.get(userID)
	sess.mu.Lock()
	sess.pending = hash
	sess.mu.Unlock()
}

// takePending returns and clears the pending-rating fingerprint.
func (s *sessions) takePending(userID int64) (string, bool) {
	sess, ok := s.peek(userID)
	if !ok {
		return "", false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	hash := sess.pending
	sess.pending = ""
	return hash, hash != ""
}

func (s *sessions) setLastFix(userID int64, fix Fix) {
	sess := s.get(userID)
	sess.mu.Lock()
	sess.lastFix = &fix
	sess.mu.Unlock()
}

func (s *sessions) lastFix(userID int64) (Fix, bool) {
	sess, ok := s.peek(userID)
	if !ok {
		return Fix{}, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.lastFix == nil {
		return Fix{}, false
	}
	return *sess.lastFix, true
}

func (s *sessions) clear(userID int64) {
	s.cache.Remove(userID)
}

func (s *sessions) len() int {
	return s.cache.Len()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
