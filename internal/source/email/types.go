package email

import "time"

// Envelope holds the parsed envelope data from an IMAP message.
type Envelope struct {
	MessageID string
	Subject   string
	From      string
	To        []string
	Date      time.Time
	Flags     []string // \Seen, \Flagged, \Answered, \Deleted
	UID       uint32
	Preview   string
}

// Config holds the mailbox connection settings of a source.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool
	Mailbox  string
}
