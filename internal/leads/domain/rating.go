package domain

// ApplyRating folds stars into a running mean.
func ApplyRating(avg float64, count int, stars int) (float64, int) {
	if count < 0 {
		count = 0
	}
	next := (avg*float64(count) + float64(stars)) / float64(count+1)
	return next, count + 1
}

// ValidStars reports whether stars can be stored as a review.
func ValidStars(stars int) bool {
	return stars >= 1 && stars <= 5
}
