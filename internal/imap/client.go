package imap

import (
	"fmt"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

type StandardClient struct {
	client  *client.Client
	timeout time.Duration
}

// NewStandardClient creates a new StandardClient with a default timeout of 30 seconds for IMAP operations
func NewStandardClient() *StandardClient {
	return &StandardClient{
		timeout: 30 * time.Second,
	}
}

// Connect establishes a secure connection to the IMAP server using TLS. It returns an error if the connection fails.
func (c *StandardClient) Connect(server string) error {
	cl, err := client.DialTLS(server, nil)
	if err != nil {
		return fmt.Errorf("IMAP connection error: %w", err)
	}
	c.client = cl
	return nil
}

// Login authenticates the user with the IMAP server using the provided username and password.
func (c *StandardClient) Login(user, password string) error {
	if c.client == nil {
		return fmt.Errorf("not connected")
	}
	return c.client.Login(user, password)
}

// SelectMailbox selects the specified mailbox read-only; the report pipeline never changes flags.
func (c *StandardClient) SelectMailbox(name string) error {
	if c.client == nil {
		return fmt.Errorf("not connected")
	}
	_, err := c.client.Select(name, true)
	return err
}

// SearchSince returns the UIDs of messages whose subject contains subjectContains and
// that may have arrived after since. The server match is a day wider than since; callers
// still filter on the exact internal date.
func (c *StandardClient) SearchSince(subjectContains string, since time.Time) ([]uint32, error) {
	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	uids, err := c.client.UidSearch(SearchCriteria(subjectContains, since))
	if err != nil {
		return nil, fmt.Errorf("error searching for messages: %w", err)
	}

	return uids, nil
}

// FetchMessages retrieves envelope, internal date and full body of the given UIDs.
func (c *StandardClient) FetchMessages(uids []uint32) ([]*imap.Message, error) {
	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	items := []imap.FetchItem{BodySection().FetchItem(), imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid}

	prevTimeout := c.client.Timeout
	c.client.Timeout = c.timeout
	defer func() { c.client.Timeout = prevTimeout }()

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var fetched []*imap.Message
	for m := range messages {
		fetched = append(fetched, m)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("error fetching %d messages: %w", len(uids), err)
	}

	return fetched, nil
}

// Close logs out from the IMAP server and closes the connection. If there is no active connection, it simply returns nil.
func (c *StandardClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Logout()
}
