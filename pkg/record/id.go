package record

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Non-actor ids follow ^{epochSeconds}-{kind}-{kebab-slug}$. The leading
// integer is minted at creation and doubles as the record's creation
// timestamp for time-based metrics.
var (
	actorIDPattern = regexp.MustCompile(`^(human|agent)(:[a-z0-9-]+)+$`)
	timedIDPattern = regexp.MustCompile(`^(\d+)-(task|cycle|feedback|exec|changelog)-[a-z0-9-]+$`)
)

const maxSlugLen = 64

// Slug converts free text into a lowercase kebab slug. Unicode input is
// NFKD-normalized and stripped of combining marks first, so "Café Über"
// slugs to "cafe-uber".
func Slug(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	flat, _, err := transform.String(t, s)
	if err != nil {
		flat = s
	}
	var b strings.Builder
	lastDash := true // suppress leading dash
	for _, r := range strings.ToLower(flat) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > maxSlugLen {
		out = strings.Trim(out[:maxSlugLen], "-")
	}
	if out == "" {
		out = "untitled"
	}
	return out
}

// GenerateTaskID mints a task id from the title at the given instant.
func GenerateTaskID(title string, now time.Time) string {
	return fmt.Sprintf("%d-task-%s", now.Unix(), Slug(title))
}

// GenerateCycleID mints a cycle id.
func GenerateCycleID(title string, now time.Time) string {
	return fmt.Sprintf("%d-cycle-%s", now.Unix(), Slug(title))
}

// GenerateFeedbackID mints a feedback id.
func GenerateFeedbackID(content string, now time.Time) string {
	return fmt.Sprintf("%d-feedback-%s", now.Unix(), Slug(content))
}

// GenerateExecutionID mints an execution id.
func GenerateExecutionID(summary string, now time.Time) string {
	return fmt.Sprintf("%d-exec-%s", now.Unix(), Slug(summary))
}

// GenerateChangelogID mints a changelog id.
func GenerateChangelogID(title string, now time.Time) string {
	return fmt.Sprintf("%d-changelog-%s", now.Unix(), Slug(title))
}

// GenerateActorID builds an actor id like "human:ada-lovelace" from the
// actor type and display name.
func GenerateActorID(actorType ActorType, displayName string) string {
	return fmt.Sprintf("%s:%s", actorType, Slug(displayName))
}

// ValidActorID reports whether id matches the actor id grammar.
func ValidActorID(id string) bool {
	return actorIDPattern.MatchString(id)
}

// ValidTimedID reports whether id matches the timestamped id grammar.
func ValidTimedID(id string) bool {
	return timedIDPattern.MatchString(id)
}

// IDTimestamp extracts the epoch-seconds prefix of a timestamped id.
// Fails with INVALID_DATA when the prefix is missing or not a positive
// integer.
func IDTimestamp(id string) (time.Time, error) {
	head, _, ok := strings.Cut(id, "-")
	if !ok {
		return time.Time{}, E(CodeInvalidData, "id %q has no timestamp prefix", id)
	}
	secs, err := strconv.ParseInt(head, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}, E(CodeInvalidData, "id %q timestamp prefix is not a positive integer", id)
	}
	return time.Unix(secs, 0).UTC(), nil
}
