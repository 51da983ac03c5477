package handler

import (
	"net/http"

	"github.com/shuleplus/backend/internal/contextkeys"
	"github.com/shuleplus/backend/internal/domain"
)

// ContentHandler serves the subscription-gated learning endpoints. The
// content itself lives in the front end's CMS; this backend only answers the
// listings the gate protects.
type ContentHandler struct{}

// NewContentHandler creates a new ContentHandler.
func NewContentHandler() *ContentHandler {
	return &ContentHandler{}
}

var subjectsByLevel = map[domain.Segment][]string{
	domain.SegmentPrimary:   {"Mathematics", "English", "Science", "Kiswahili"},
	domain.SegmentSecondary: {"Mathematics", "Physics", "Chemistry", "Biology", "English"},
	domain.SegmentAdvance:   {"Advanced Mathematics", "Physics", "Chemistry", "Economics"},
}

// Quizzes handles GET /api/quizzes.
func (h *ContentHandler) Quizzes(w http.ResponseWriter, r *http.Request) {
	level, _ := r.Context().Value(contextkeys.UserLevel).(string)
	JSON(w, http.StatusOK, map[string]interface{}{
		"level":    level,
		"subjects": subjectsByLevel[domain.ParseSegment(level)],
	})
}

// Lessons handles GET /api/lessons.
func (h *ContentHandler) Lessons(w http.ResponseWriter, r *http.Request) {
	level, _ := r.Context().Value(contextkeys.UserLevel).(string)
	JSON(w, http.StatusOK, map[string]interface{}{
		"level":    level,
		"subjects": subjectsByLevel[domain.ParseSegment(level)],
	})
}
