package model

import "time"

// ModalState is the visibility state of the book detail modal.
type ModalState int

const (
	ModalClosed ModalState = iota
	ModalOpen
)

func (s ModalState) String() string {
	switch s {
	case ModalOpen:
		return "open"
	default:
		return "closed"
	}
}

// Modal is the detail view. While Open, Book is the book being shown and
// Similar its similar set (possibly empty). Closing drops both.
type Modal struct {
	State   ModalState    `json:"state"`
	Book    *Book         `json:"book,omitempty"`
	Similar []SimilarBook `json:"similar,omitempty"`
}

// IsOpen reports whether the modal is visible.
func (m Modal) IsOpen() bool {
	return m.State == ModalOpen && m.Book != nil
}

// NoticeLevel distinguishes failure notices from confirmations.
type NoticeLevel string

const (
	NoticeError NoticeLevel = "error"
	NoticeInfo  NoticeLevel = "info"
)

// Notice is a blocking message shown to the user on the next page render.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// Session is the UI-scoped state of one browser session.
//
// It is created when the browser first opens the page and lives until the
// session goes idle. Only the service layer writes to it, always through
// SessionRepository.Update, so each write sees the latest state.
//
//   - SelectedUserID: nil until a profile is chosen; when set it is always
//     the id of one of Users.
//   - Users, Catalog: snapshots taken at bootstrap, never refreshed.
//   - Recommendations: the result currently shown in the recommendations
//     panel; nil keeps the panel hidden.
//   - Notices: queued messages, removed once rendered.
type Session struct {
	ID              string                `json:"id"`
	SelectedUserID  *int64                `json:"selectedUserId,omitempty"`
	Users           []User                `json:"users"`
	Catalog         []Book                `json:"catalog"`
	Recommendations *RecommendationResult `json:"recommendations,omitempty"`
	Modal           Modal                 `json:"modal"`
	Notices         []Notice              `json:"notices,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

// NewSession returns the initial state: no user selected, empty catalog,
// recommendations hidden, modal closed.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Users:     []User{},
		Catalog:   []Book{},
		Modal:     Modal{State: ModalClosed},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so stores can hand out snapshots that callers
// are free to mutate.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.SelectedUserID != nil {
		id := *s.SelectedUserID
		c.SelectedUserID = &id
	}
	c.Users = append([]User(nil), s.Users...)
	c.Catalog = append([]Book(nil), s.Catalog...)
	if s.Recommendations != nil {
		c.Recommendations = &RecommendationResult{
			Recommendations: append([]Book(nil), s.Recommendations.Recommendations...),
		}
	}
	if s.Modal.Book != nil {
		b := *s.Modal.Book
		c.Modal.Book = &b
	}
	c.Modal.Similar = append([]SimilarBook(nil), s.Modal.Similar...)
	c.Notices = append([]Notice(nil), s.Notices...)
	return &c
}
