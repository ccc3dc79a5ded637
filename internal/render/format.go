package render

import (
	"fmt"
	"math"
	"strings"
)

const (
	maxStars  = 5
	starGlyph = "⭐"
	noRating  = "N/A"
)

// Stars is the number of star glyphs shown for a rating: round(rating),
// kept within [0,5]. An absent rating gets no stars.
func Stars(rating *float64) int {
	if rating == nil || math.IsNaN(*rating) {
		return 0
	}
	n := int(math.Round(*rating))
	if n < 0 {
		return 0
	}
	if n > maxStars {
		return maxStars
	}
	return n
}

// StarGlyphs repeats the star glyph Stars(rating) times.
func StarGlyphs(rating *float64) string {
	return strings.Repeat(starGlyph, Stars(rating))
}

// RatingText formats a rating as "4.7/5", or "N/A" when absent.
func RatingText(rating *float64) string {
	if rating == nil || math.IsNaN(*rating) {
		return noRating
	}
	return fmt.Sprintf("%.1f/5", *rating)
}

// SimilarityPercent converts a [0,1] similarity score into a whole
// percentage: round(similarity*100), 0 when absent.
func SimilarityPercent(similarity *float64) int {
	if similarity == nil || math.IsNaN(*similarity) {
		return 0
	}
	p := int(math.Round(*similarity * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
