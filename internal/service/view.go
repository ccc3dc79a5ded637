package service

import (
	"context"
	"fmt"
	"html/template"

	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/render"
)

// Page is everything the page template needs to draw one session.
// Recommendations, AllBooks and Detail are already-rendered fragments.
type Page struct {
	Users          []model.User
	SelectedUserID int64 // 0 when none
	HasSelection   bool

	// CanRecommend enables the "Get Recommendations" control.
	CanRecommend bool

	RecommendationsVisible bool
	Recommendations        template.HTML
	AllBooks               template.HTML

	ModalOpen   bool
	ModalBookID int64
	Detail      template.HTML

	// Notices are shown once: View removes them from the session.
	Notices []model.Notice
}

// View renders the session into a Page and pops its queued notices.
func (s *BrowseService) View(ctx context.Context, sid string) (*Page, error) {
	var notices []model.Notice
	sess, err := s.sessions.Update(ctx, sid, func(sess *model.Session) error {
		notices = sess.Notices
		sess.Notices = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	page := &Page{
		Users:   sess.Users,
		Notices: notices,
	}

	if sess.SelectedUserID != nil {
		page.SelectedUserID = *sess.SelectedUserID
		page.HasSelection = true
		page.CanRecommend = true
	}

	page.AllBooks, err = render.GridHTML(sess.Catalog, s.links)
	if err != nil {
		return nil, fmt.Errorf("rendering catalog: %w", err)
	}

	if sess.Recommendations != nil {
		page.RecommendationsVisible = true
		page.Recommendations, err = render.GridHTML(sess.Recommendations.Recommendations, s.links)
		if err != nil {
			return nil, fmt.Errorf("rendering recommendations: %w", err)
		}
	}

	if sess.Modal.IsOpen() {
		page.ModalOpen = true
		page.ModalBookID = sess.Modal.Book.ID
		page.Detail, err = render.DetailHTML(*sess.Modal.Book, sess.Modal.Similar, s.links)
		if err != nil {
			return nil, fmt.Errorf("rendering book detail: %w", err)
		}
	}

	return page, nil
}
