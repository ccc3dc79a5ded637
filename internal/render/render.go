// Package render turns book records into HTML fragments.
//
// The functions here are pure: they read their arguments and write markup,
// nothing else. The service layer calls them and hands the fragments to the
// page template as template.HTML.
//
// SAFETY:
// Every free-text field goes through sanitize.Text before it is written.
// Numbers (year, star count, percentages) are written by html/template
// directly; they come from typed fields that the data access layer has
// already coerced.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/sanitize"
)

// NoDescription is shown in the detail panel when a book has no description.
const NoDescription = "No description available"

// Links builds the form actions that cards and similar-book entries post to.
// Activating a card asks for the detail view of that book; activating a
// similar-book entry asks to switch the open modal to that book.
type Links struct {
	OpenDetail  func(bookID int64) string
	OpenSimilar func(bookID int64) string
}

// DefaultLinks points at the routes registered by the server package.
func DefaultLinks() Links {
	return Links{
		OpenDetail:  func(id int64) string { return fmt.Sprintf("/modal/open/%d", id) },
		OpenSimilar: func(id int64) string { return fmt.Sprintf("/modal/similar/%d", id) },
	}
}

func (l Links) withDefaults() Links {
	d := DefaultLinks()
	if l.OpenDetail == nil {
		l.OpenDetail = d.OpenDetail
	}
	if l.OpenSimilar == nil {
		l.OpenSimilar = d.OpenSimilar
	}
	return l
}

var funcs = template.FuncMap{
	"text":       sanitize.Text,
	"optional":   sanitize.Optional,
	"stars":      Stars,
	"starGlyphs": StarGlyphs,
	"ratingText": RatingText,
	"percent":    SimilarityPercent,
}

// Cards are buttons so that the whole card is the activation target; the
// inner elements are spans because a button may only hold phrasing content.
const gridTemplate = `{{define "grid"}}{{if not .Books}}<p class="empty-state">No books to display</p>{{else}}{{range .Books}}
<form class="book-card" method="post" action="{{call $.Links.OpenDetail .ID}}">
  <button type="submit" class="book-card-button" data-book-id="{{.ID}}">
    <span class="title">{{text .Title}}</span>
    <span class="author">by {{text .Author}}</span>
    <span class="genre">{{text .Genre}}</span>
    <span class="rating" data-stars="{{stars .Rating}}">{{starGlyphs .Rating}} {{ratingText .Rating}}</span>
    <span class="year">{{.Year}}</span>
  </button>
</form>{{end}}{{end}}{{end}}`

const detailTemplate = `{{define "detail"}}<h2 id="book-title">{{text .Book.Title}}</h2>
<p><span class="detail-label">Author:</span> {{text .Book.Author}}</p>
<p><span class="detail-label">Genre:</span> {{text .Book.Genre}}</p>
<p><span class="detail-label">Year:</span> {{.Book.Year}}</p>
<p><span class="detail-label">Rating:</span> <span class="rating" data-stars="{{stars .Book.Rating}}">{{starGlyphs .Book.Rating}} {{ratingText .Book.Rating}}</span></p>
<p><span class="detail-label">Description:</span> {{optional .Book.Description .NoDescription}}</p>
{{if .Similar}}<section id="similar-section" class="similar-section">
  <h3>Similar Books</h3>
  <div id="modal-similar-books" class="book-list">{{range .Similar}}
    <form class="book-list-item" method="post" action="{{call $.Links.OpenSimilar .ID}}">
      <button type="submit" data-book-id="{{.ID}}">
        <span class="title">{{text .Title}}</span>
        <span class="byline">by {{text .Author}} | {{text .Genre}}</span>
        <span class="similarity-score">Similarity: {{percent .Similarity}}%</span>
      </button>
    </form>{{end}}
  </div>
</section>{{else}}<section id="similar-section" class="similar-section" hidden></section>{{end}}{{end}}`

var templates = template.Must(template.New("render").Funcs(funcs).Parse(gridTemplate + detailTemplate))

type gridData struct {
	Books []model.Book
	Links Links
}

type detailData struct {
	Book          model.Book
	Similar       []model.SimilarBook
	Links         Links
	NoDescription string
}

// RenderGrid writes a grid of book cards to w, replacing whatever the
// caller previously showed in that slot. An empty list writes a single
// "No books to display" line.
func RenderGrid(w io.Writer, books []model.Book, links Links) error {
	return templates.ExecuteTemplate(w, "grid", gridData{Books: books, Links: links.withDefaults()})
}

// RenderDetail writes the detail panel for book. A non-empty similar list
// is rendered as clickable entries; an empty one produces a hidden section
// with no list at all.
func RenderDetail(w io.Writer, book model.Book, similar []model.SimilarBook, links Links) error {
	return templates.ExecuteTemplate(w, "detail", detailData{
		Book:          book,
		Similar:       similar,
		Links:         links.withDefaults(),
		NoDescription: NoDescription,
	})
}

// GridHTML is RenderGrid into a buffer, for embedding in a page template.
func GridHTML(books []model.Book, links Links) (template.HTML, error) {
	var buf bytes.Buffer
	if err := RenderGrid(&buf, books, links); err != nil {
		return "", fmt.Errorf("rendering grid: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// DetailHTML is RenderDetail into a buffer.
func DetailHTML(book model.Book, similar []model.SimilarBook, links Links) (template.HTML, error) {
	var buf bytes.Buffer
	if err := RenderDetail(&buf, book, similar, links); err != nil {
		return "", fmt.Errorf("rendering detail: %w", err)
	}
	return template.HTML(buf.String()), nil
}
