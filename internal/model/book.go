package model

// Book is a catalog entry as the remote service reports it.
//
// Optional fields are pointers so "absent" and "zero" stay distinct:
// a book with no ratings yet has Rating == nil, which renders as "N/A",
// while a present rating of 0 renders as "0.0/5".
type Book struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Genre       string   `json:"genre"`
	Year        int      `json:"year"`
	Rating      *float64 `json:"rating,omitempty"`      // [0,5] when present
	Description *string  `json:"description,omitempty"` // free text, may be absent
}

// SimilarBook is a Book plus the service's similarity score against the
// book being viewed.
type SimilarBook struct {
	Book
	Similarity *float64 `json:"similarity,omitempty"` // [0,1] when present
}

// RecommendationResult is the answer to "what should this user read next".
// It is produced per request and never reused for another user.
type RecommendationResult struct {
	Recommendations []Book `json:"recommendations"`
}

// SimilarityResult lists books close to a given book.
type SimilarityResult struct {
	SimilarBooks []SimilarBook `json:"similar_books"`
}
