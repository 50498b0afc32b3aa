package email

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/frontdesk-notify/internal/model"
	"github.com/nhle/frontdesk-notify/internal/notify"
	"github.com/nhle/frontdesk-notify/internal/source"
)

// fetchLimit caps how many new messages one poll turns into events.
const fetchLimit = 20

// mailbox is the subset of IMAPClient the adapter needs.
type mailbox interface {
	Validate(ctx context.Context) error
	LatestUID(ctx context.Context) (uint32, error)
	FetchSince(ctx context.Context, afterUID uint32, limit int) ([]Envelope, error)
}

// Adapter implements source.Source for a booking mailbox: every message
// that lands in the mailbox becomes a booking notification.
type Adapter struct {
	mailbox  mailbox
	sourceID string
	username string
}

// NewAdapter creates a new mailbox source adapter.
func NewAdapter(sourceID string, cfg Config) *Adapter {
	return &Adapter{
		mailbox:  NewIMAPClient(cfg),
		sourceID: sourceID,
		username: cfg.Username,
	}
}

// ConfigFromSource reads mailbox settings from a source's config map.
// The password is supplied separately from the keyring.
func ConfigFromSource(src model.SourceConfig, password string) (Config, error) {
	cfg := Config{
		Host:     src.Config["imap_host"],
		Port:     src.Config["imap_port"],
		Username: src.Config["username"],
		Password: password,
		TLS:      true,
		Mailbox:  src.Config["mailbox"],
	}
	if cfg.Host == "" || cfg.Username == "" {
		return Config{}, fmt.Errorf("source %q: imap_host and username are required", src.ID)
	}
	if cfg.Port == "" {
		cfg.Port = "993"
	}
	if v, ok := src.Config["tls"]; ok {
		useTLS, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("source %q: invalid tls %q: %w", src.ID, v, err)
		}
		cfg.TLS = useTLS
	}
	return cfg, nil
}

// ID returns the configured source identifier.
func (a *Adapter) ID() string {
	return a.sourceID
}

// Type returns the source type identifier for Email.
func (a *Adapter) Type() source.SourceType {
	return source.SourceTypeEmail
}

// ValidateConnection verifies IMAP credentials by connecting,
// authenticating, and selecting the mailbox. Returns the username on
// success.
func (a *Adapter) ValidateConnection(
	ctx context.Context,
) (string, error) {
	if err := a.mailbox.Validate(ctx); err != nil {
		return "", fmt.Errorf("validating email connection: %w", err)
	}
	return a.username, nil
}

// FetchSince returns booking events for messages above the cursor UID.
// An empty cursor seeds itself from the newest message in the mailbox.
func (a *Adapter) FetchSince(
	ctx context.Context, cursor string,
) (*source.FetchResult, error) {
	if cursor == "" {
		latest, err := a.mailbox.LatestUID(ctx)
		if err != nil {
			return nil, fmt.Errorf("seeding email cursor: %w", err)
		}
		return &source.FetchResult{Cursor: formatUID(latest)}, nil
	}

	after, err := parseUID(cursor)
	if err != nil {
		return nil, err
	}

	envelopes, err := a.mailbox.FetchSince(ctx, after, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching email items: %w", err)
	}

	result := &source.FetchResult{Cursor: cursor}
	for _, env := range envelopes {
		result.Events = append(result.Events, a.envelopeToEvent(env))
		if env.UID > after {
			after = env.UID
			result.Cursor = formatUID(after)
		}
	}
	return result, nil
}

// envelopeToEvent maps a message to a booking event.
func (a *Adapter) envelopeToEvent(env Envelope) notify.RawEvent {
	id := "email-" + a.sourceID + "-" + formatUID(env.UID)
	if env.MessageID != "" {
		id = "email-" + sanitizeID(env.MessageID)
	}

	title := strings.TrimSpace(env.Subject)
	if title == "" {
		title = "(no subject)"
	}

	message := "From " + env.From
	if !env.Date.IsZero() {
		message += " · " + env.Date.Local().Format("Jan 2 15:04")
	}

	data, _ := json.Marshal(map[string]any{
		"source":  a.sourceID,
		"uid":     env.UID,
		"from":    env.From,
		"to":      env.To,
		"preview": env.Preview,
	})

	raw := notify.RawEvent{
		ID:      id,
		Type:    string(model.NotificationBooking),
		Title:   title,
		Message: message,
		Data:    data,
	}
	if !env.Date.IsZero() {
		raw.Timestamp = env.Date.UTC().Format(time.RFC3339Nano)
	}
	return raw
}

func formatUID(uid uint32) string {
	return strconv.FormatUint(uint64(uid), 10)
}

// parseUID converts a cursor to a uint32 UID.
func parseUID(cursor string) (uint32, error) {
	uid, err := strconv.ParseUint(cursor, 10, 32)
	if err != nil {
		return 0, fmt.Errorf(
			"invalid email cursor %q: %w", cursor, err,
		)
	}
	return uint32(uid), nil
}

// idUnsafeChars matches characters that are not safe in a notification ID.
var idUnsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitizeID(s string) string {
	return idUnsafeChars.ReplaceAllString(s, "_")
}

// htmlTagPattern matches HTML tags for stripping.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML removes HTML tags from a string and decodes common
// entities, providing a basic plain-text rendering.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := html
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	return strings.TrimSpace(replacer.Replace(result))
}
