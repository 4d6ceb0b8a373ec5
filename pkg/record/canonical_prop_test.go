//go:build property

package record

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// go test -tags property ./pkg/record

func TestCanonicalizationProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("checksum is deterministic", prop.ForAll(
		func(title, desc string, tags []string) bool {
			p := TaskPayload{
				ID: "1700000000-task-x", Title: title, Description: desc,
				Status: TaskStatusDraft, Priority: TaskPriorityMedium,
				Tags: tags, References: []string{}, CycleIDs: []string{},
			}
			a, errA := Checksum(p)
			b, errB := Checksum(p)
			return errA == nil && errB == nil && a == b
		},
		gen.AlphaString(), gen.AlphaString(), gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("checksum is key-order insensitive", prop.ForAll(
		func(a, b int) bool {
			x, errX := Checksum(map[string]any{"a": a, "b": b})
			y, errY := Checksum(map[string]any{"b": b, "a": a})
			return errX == nil && errY == nil && x == y
		},
		gen.Int(), gen.Int(),
	))

	properties.Property("any payload change moves the checksum", prop.ForAll(
		func(title string) bool {
			if title == "fixed" {
				return true
			}
			base := TaskPayload{
				ID: "1700000000-task-x", Title: "fixed", Description: "d",
				Status: TaskStatusDraft, Priority: TaskPriorityMedium,
				Tags: []string{}, References: []string{}, CycleIDs: []string{},
			}
			changed := base
			changed.Title = title
			a, errA := Checksum(base)
			b, errB := Checksum(changed)
			return errA == nil && errB == nil && a != b
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestIDProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	epochGen := gen.Int64Range(1, 4102444800) // through 2100

	properties.Property("generated task ids validate and keep their timestamp", prop.ForAll(
		func(secs int64, title string) bool {
			now := time.Unix(secs, 0)
			id := GenerateTaskID(title, now)
			if !ValidTimedID(id) {
				return false
			}
			ts, err := IDTimestamp(id)
			return err == nil && ts.Unix() == secs
		},
		epochGen, gen.AnyString(),
	))

	properties.Property("slugs stay within the id alphabet", prop.ForAll(
		func(s string) bool {
			slug := Slug(s)
			if slug == "" || len(slug) > 64 {
				return false
			}
			for _, r := range slug {
				ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
				if !ok {
					return false
				}
			}
			return slug[0] != '-' && slug[len(slug)-1] != '-'
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
