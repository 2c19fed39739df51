package imap

import (
	"time"

	"github.com/emersion/go-imap"
)

type Client interface {
	Connect(server string) error
	Login(user, password string) error
	SelectMailbox(name string) error
	SearchSince(subjectContains string, since time.Time) ([]uint32, error)
	FetchMessages(uids []uint32) ([]*imap.Message, error)
	Close() error
}

// BodySection is the full-message section fetched without setting \Seen
func BodySection() *imap.BodySectionName {
	return &imap.BodySectionName{Peek: true}
}

// SearchCriteria builds the UID SEARCH for subjectContains received after since.
// SINCE is a bare date read in the server's zone, so it starts one UTC day
// before since and never excludes a message received after it.
func SearchCriteria(subjectContains string, since time.Time) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	if !since.IsZero() {
		criteria.Since = since.UTC().AddDate(0, 0, -1)
	}
	if subjectContains != "" {
		criteria.Header.Add("Subject", subjectContains)
	}
	return criteria
}
