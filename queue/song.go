package queue

import "fmt"

// Song describes a resolved track. Songs are passed by value and never
// modified after the resolver creates them.
type Song struct {
	// Locator is what the decoder is started with: a URL or a free-text
	// search query.
	Locator   string
	Title     string
	Requester string
	// Duration is a display label such as "3:45", not a parsed duration.
	Duration string
}

// String renders the song the way chat messages show it.
func (s Song) String() string {
	return fmt.Sprintf("*%s* [%s]", s.Title, s.Duration)
}
