package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate row")

type ProfileStore interface {
	CreateProfile(ctx context.Context, p *Profile) error
	GetProfileByID(ctx context.Context, id string) (*Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*Profile, error)
	SetStripeCustomerID(ctx context.Context, id, customerID string) error
	StartTrial(ctx context.Context, id string, at time.Time) (bool, error)
	MarkGuestMerged(ctx context.Context, id string, at time.Time) (bool, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, s *GameSession) error
	GetSession(ctx context.Context, id string) (*GameSession, error)
	GetSessionByInviteCode(ctx context.Context, code string) (*GameSession, error)
	UpdateSessionStatus(ctx context.Context, id, status string) error
	AddParticipant(ctx context.Context, p *Participant) error
	GetParticipant(ctx context.Context, sessionID, userID string) (*Participant, error)
	GetParticipantByID(ctx context.Context, id string) (*Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]*Participant, error)
	IncrementParticipantScore(ctx context.Context, participantID string, delta int) (int, error)
	CreateRound(ctx context.Context, r *Round) error
	GetRound(ctx context.Context, id string) (*Round, error)
	LatestRound(ctx context.Context, sessionID string) (*Round, error)
	CloseOpenRounds(ctx context.Context, sessionID string) error
	CreateAnswer(ctx context.Context, a *RoundAnswer) error
}

// PointsStore covers the ledger and the denormalised total on the profile.
// Stores that can bump the total in one statement also implement
// PointsIncrementer.
type PointsStore interface {
	AddLedgerEntry(ctx context.Context, e *LedgerEntry) error
	GetTotalPoints(ctx context.Context, userID string) (int, error)
	SetTotalPoints(ctx context.Context, userID string, total int) error
	RecordGameResult(ctx context.Context, r *GameResult) error
	CountGameResults(ctx context.Context, userID, mode string) (int, error)
}

type PointsIncrementer interface {
	IncrementTotalPoints(ctx context.Context, userID string, delta int) (int, error)
}

type ContentStore interface {
	GetVocabForDate(ctx context.Context, date string) (*Vocab, error)
	GetTrialQuiz(ctx context.Context, date, locale string) (*TrialQuiz, error)
	GetTrialQuizByID(ctx context.Context, id int64) (*TrialQuiz, error)
	GetSwirdleForDate(ctx context.Context, date string) (*SwirdleWord, error)
	GetGuessWhatForWeek(ctx context.Context, weekStart string) (*GuessWhat, error)
	RecordContentAttempt(ctx context.Context, a *ContentAttempt) (bool, error)
	CreateTrialQuizAttempt(ctx context.Context, a *TrialQuizAttempt) (bool, error)
	UpsertVocab(ctx context.Context, v *Vocab) error
	UpsertTrialQuiz(ctx context.Context, q *TrialQuiz) error
	UpsertSwirdle(ctx context.Context, w *SwirdleWord) error
	UpsertGuessWhat(ctx context.Context, g *GuessWhat) error
}

type BadgeStore interface {
	ListBadges(ctx context.Context) ([]*Badge, error)
	UpsertBadge(ctx context.Context, b *Badge) error
	AwardBadge(ctx context.Context, userID, code string) (bool, error)
	ListBadgeAwards(ctx context.Context, userID string) ([]*BadgeAward, error)
}

type Store interface {
	ProfileStore
	SessionStore
	PointsStore
	ContentStore
	BadgeStore
	Close() error
}

type Profile struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	Alias            string     `json:"alias"`
	Country          string     `json:"country"`
	Tier             string     `json:"tier"`
	TotalPoints      int        `json:"total_points"`
	StripeCustomerID string     `json:"stripe_customer_id,omitempty"`
	TrialStartedAt   *time.Time `json:"trial_started_at,omitempty"`
	CreatedAt        string     `json:"created_at"`
}

type GameSession struct {
	ID         string `json:"id"`
	InviteCode string `json:"invite_code"`
	HostUserID string `json:"host_user_id"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
}

type Participant struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
	JoinedAt    string `json:"joined_at"`
}

type Round struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	RoundNumber int             `json:"round_number"`
	Status      string          `json:"status"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   string          `json:"created_at"`
}

type RoundAnswer struct {
	RoundID       string `json:"round_id"`
	ParticipantID string `json:"participant_id"`
	SelectedIndex int    `json:"selected_index"`
	IsCorrect     bool   `json:"is_correct"`
	AnsweredAt    string `json:"answered_at"`
}

type LedgerEntry struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Points    int             `json:"points"`
	Reason    string          `json:"reason"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	CreatedAt string          `json:"created_at"`
}

type GameResult struct {
	UserID        string `json:"user_id"`
	Mode          string `json:"mode"`
	Score         int    `json:"score"`
	PointsAwarded int    `json:"points_awarded"`
}

type Vocab struct {
	ID           int64    `json:"id"`
	ForDate      string   `json:"for_date"`
	Term         string   `json:"term"`
	Definition   string   `json:"definition"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"-"`
	PointsAward  int      `json:"points_award"`
}

type TrialQuiz struct {
	ID          int64           `json:"id"`
	ForDate     string          `json:"for_date"`
	Locale      string          `json:"locale"`
	Title       string          `json:"title"`
	Questions   json.RawMessage `json:"questions"`
	PointsAward int             `json:"points_award"`
}

type SwirdleWord struct {
	ID          int64  `json:"id"`
	ForDate     string `json:"for_date"`
	Word        string `json:"word"`
	Hint        string `json:"hint"`
	PointsAward int    `json:"points_award"`
}

type GuessWhat struct {
	ID           int64    `json:"id"`
	WeekStart    string   `json:"week_start"`
	Clues        []string `json:"clues"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"-"`
	PointsAward  int      `json:"points_award"`
}

type ContentAttempt struct {
	UserID    string
	Kind      string
	ContentID int64
	ForDate   string
	Correct   bool
	Points    int
}

type TrialQuizAttempt struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	QuizID         int64  `json:"quiz_id"`
	CorrectCount   int    `json:"correct_count"`
	TotalQuestions int    `json:"total_questions"`
	PointsAwarded  int    `json:"points_awarded"`
}

type Badge struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Tier      string `json:"tier"`
	Icon      string `json:"icon"`
	Rule      string `json:"rule"`
	Mode      string `json:"mode,omitempty"`
	Threshold int    `json:"threshold"`
}

type BadgeAward struct {
	UserID    string `json:"user_id"`
	Code      string `json:"code"`
	AwardedAt string `json:"awarded_at"`
	Badge     *Badge `json:"badge,omitempty"`
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func rawOrEmpty(raw json.RawMessage, empty string) string {
	if len(raw) == 0 {
		return empty
	}
	return string(raw)
}
