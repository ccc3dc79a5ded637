package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/sakif/bookshelf/internal/model"
)

// The remote service is loose about types: ids and ratings sometimes arrive
// as strings, optional fields as null. The payload types below accept those
// variants and coerce them once, here, so nothing past this package has to.

var errBadID = errors.New("missing or non-integer id")

// number is a JSON number that may also be sent as a numeric string.
// null, unparseable and non-finite values decode as absent.
type number struct {
	value float64
	valid bool
}

func (n *number) UnmarshalJSON(data []byte) error {
	*n = number{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var f float64
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
		f = parsed
	} else if err := json.Unmarshal(data, &f); err != nil {
		return nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n.value, n.valid = f, true
	return nil
}

// maxExact is the largest magnitude a JSON number carries as an exact integer.
const maxExact = 1 << 53

func (n number) inRange() bool {
	return math.Abs(n.value) <= maxExact
}

// id reports the value as an integer id, failing for anything fractional
// or too large to be exact.
func (n number) id() (int64, error) {
	if !n.valid || !n.inRange() || n.value != math.Trunc(n.value) {
		return 0, errBadID
	}
	return int64(n.value), nil
}

// clamped returns the value limited to [lo,hi], or nil when absent.
func (n number) clamped(lo, hi float64) *float64 {
	if !n.valid {
		return nil
	}
	v := math.Min(math.Max(n.value, lo), hi)
	return &v
}

// truncated drops the fraction. Out-of-range values count as absent.
func (n number) truncated() int {
	if !n.valid || !n.inRange() {
		return 0
	}
	return int(n.value)
}

// text is a JSON string that may also be sent as a number.
type text struct {
	value string
	valid bool
}

func (t *text) UnmarshalJSON(data []byte) error {
	*t = text{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch {
	case data[0] == '"':
		if err := json.Unmarshal(data, &t.value); err != nil {
			return nil
		}
	case data[0] == '-' || (data[0] >= '0' && data[0] <= '9'):
		t.value = string(data)
	default:
		return nil
	}
	t.valid = true
	return nil
}

func (t text) optional() *string {
	if !t.valid {
		return nil
	}
	s := t.value
	return &s
}

type userPayload struct {
	ID       number `json:"id"`
	Username text   `json:"username"`
}

func (p userPayload) toModel() (model.User, error) {
	id, err := p.ID.id()
	if err != nil {
		return model.User{}, err
	}
	return model.User{ID: id, Username: p.Username.value}, nil
}

type bookPayload struct {
	ID          number `json:"id"`
	Title       text   `json:"title"`
	Author      text   `json:"author"`
	Genre       text   `json:"genre"`
	Year        number `json:"year"`
	Rating      number `json:"rating"`
	Description text   `json:"description"`
}

func (p bookPayload) toModel() (model.Book, error) {
	id, err := p.ID.id()
	if err != nil {
		return model.Book{}, err
	}
	return model.Book{
		ID:          id,
		Title:       p.Title.value,
		Author:      p.Author.value,
		Genre:       p.Genre.value,
		Year:        p.Year.truncated(),
		Rating:      p.Rating.clamped(0, 5),
		Description: p.Description.optional(),
	}, nil
}

type similarPayload struct {
	SimilarBooks []similarBookPayload `json:"similar_books"`
}

type similarBookPayload struct {
	bookPayload
	Similarity number `json:"similarity"`
}

func (p similarBookPayload) toModel() (model.SimilarBook, error) {
	b, err := p.bookPayload.toModel()
	if err != nil {
		return model.SimilarBook{}, err
	}
	return model.SimilarBook{Book: b, Similarity: p.Similarity.clamped(0, 1)}, nil
}

type recommendationsPayload struct {
	Recommendations []bookPayload `json:"recommendations"`
}

type ratePayload struct {
	BookID int64 `json:"book_id"`
	Rating int   `json:"rating"`
}

func booksToModel(payload []bookPayload) ([]model.Book, error) {
	books := make([]model.Book, 0, len(payload))
	for i, p := range payload {
		b, err := p.toModel()
		if err != nil {
			return nil, fmt.Errorf("book %d: %w", i, err)
		}
		books = append(books, b)
	}
	return books, nil
}
