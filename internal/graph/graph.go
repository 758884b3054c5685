// Package graph orders headers into include-respecting waves and resolves
// the transitive bases of their classes.
package graph

import (
	"github.com/phobologic/scg/internal/model"
)

// DefaultMaxRounds bounds wave construction when no cap is configured.
const DefaultMaxRounds = 8

// Plan is the result of ordering a set of files.
type Plan struct {
	// Waves holds files in dependency order; every in-set include of a file
	// lives in an earlier wave.
	Waves [][]*model.HeaderFile
	// Unscheduled holds files that could not be ordered within the round
	// cap, typically because of an include cycle.
	Unscheduled []*model.HeaderFile
}

// Waves layers files so each one follows the files it includes. Only
// includes naming another file of the set count; self-includes are ignored.
// Within a wave, files keep their input order.
func Waves(files []*model.HeaderFile, maxRounds int) Plan {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	inSet := make(map[string]struct{}, len(files))
	for _, f := range files {
		inSet[f.FullPath] = struct{}{}
	}

	var plan Plan
	scheduled := make(map[string]struct{}, len(files))
	remaining := files

	for round := 0; round < maxRounds && len(remaining) > 0; round++ {
		var wave, rest []*model.HeaderFile
		for _, f := range remaining {
			if ready(f, inSet, scheduled) {
				wave = append(wave, f)
			} else {
				rest = append(rest, f)
			}
		}
		if len(wave) == 0 {
			break
		}
		for _, f := range wave {
			scheduled[f.FullPath] = struct{}{}
		}
		plan.Waves = append(plan.Waves, wave)
		remaining = rest
	}

	plan.Unscheduled = remaining
	return plan
}

func ready(f *model.HeaderFile, inSet, scheduled map[string]struct{}) bool {
	for _, inc := range f.Includes {
		if inc == f.FullPath {
			continue
		}
		if _, known := inSet[inc]; !known {
			continue
		}
		if _, done := scheduled[inc]; !done {
			return false
		}
	}
	return true
}
