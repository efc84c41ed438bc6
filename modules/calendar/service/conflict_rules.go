package service

import (
	"time"

	"homeschool-api/modules/calendar/dto"
	"homeschool-api/modules/calendar/entity"

	"github.com/google/uuid"
)

const (
	shortOverlapMinutes   = 30
	criticalConflictCount = 3
	// A meeting covering at least 4/5 of a lesson is critical.
	coverageNumerator   = 4
	coverageDenominator = 5
)

// Overlaps is the half-open interval predicate shared with the lessons query.
func Overlaps(eventStart, eventEnd, lessonStart, lessonEnd time.Time) bool {
	return lessonStart.Before(eventEnd) && lessonEnd.After(eventStart)
}

// ClassifyOverlap assigns exactly one conflict type to an overlapping pair.
// An event covering the whole lesson is a full overlap, including equal ranges.
func ClassifyOverlap(eventStart, eventEnd, lessonStart, lessonEnd time.Time) entity.ConflictType {
	switch {
	case !eventStart.After(lessonStart) && !eventEnd.Before(lessonEnd):
		return entity.ConflictFullOverlap
	case !eventStart.Before(lessonStart) && !eventEnd.After(lessonEnd):
		return entity.ConflictWorkWithinLesson
	default:
		return entity.ConflictPartialOverlap
	}
}

// OverlapMinutes returns the whole minutes shared by both ranges, floored at 0.
func OverlapMinutes(eventStart, eventEnd, lessonStart, lessonEnd time.Time) int {
	start := eventStart
	if lessonStart.After(start) {
		start = lessonStart
	}
	end := eventEnd
	if lessonEnd.Before(end) {
		end = lessonEnd
	}
	if !end.After(start) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}

// SuggestResolutions ranks the resolutions offered for one conflict.
func SuggestResolutions(conflictType entity.ConflictType, overlapMinutes int, isMeeting bool) []entity.ResolutionType {
	switch conflictType {
	case entity.ConflictFullOverlap:
		if isMeeting {
			return []entity.ResolutionType{entity.ResolutionRescheduleLesson, entity.ResolutionCancelLesson}
		}
		return []entity.ResolutionType{entity.ResolutionRescheduleLesson, entity.ResolutionRescheduleWork, entity.ResolutionMarkFlexible}
	case entity.ConflictWorkWithinLesson:
		if isMeeting {
			return []entity.ResolutionType{entity.ResolutionRescheduleLesson, entity.ResolutionMarkFlexible}
		}
		return []entity.ResolutionType{entity.ResolutionRescheduleWork, entity.ResolutionMarkFlexible, entity.ResolutionIgnoreConflict}
	default:
		if overlapMinutes < shortOverlapMinutes {
			return []entity.ResolutionType{entity.ResolutionIgnoreConflict, entity.ResolutionMarkFlexible, entity.ResolutionRescheduleLesson}
		}
		if isMeeting {
			return []entity.ResolutionType{entity.ResolutionRescheduleLesson, entity.ResolutionMarkFlexible}
		}
		return []entity.ResolutionType{entity.ResolutionRescheduleWork, entity.ResolutionRescheduleLesson, entity.ResolutionMarkFlexible}
	}
}

// ComputeSeverity derives the overall severity of one event's conflicts.
func ComputeSeverity(conflicts []dto.CalendarConflict) entity.Severity {
	if len(conflicts) == 0 {
		return entity.SeverityNone
	}
	if len(conflicts) >= criticalConflictCount {
		return entity.SeverityCritical
	}
	for _, c := range conflicts {
		if c.ConflictType == entity.ConflictFullOverlap {
			return entity.SeverityCritical
		}
		if c.IsMeeting {
			lesson := c.LessonEnd.Sub(c.LessonStart)
			overlap := time.Duration(c.OverlapMinutes) * time.Minute
			if lesson > 0 && overlap*coverageDenominator >= lesson*coverageNumerator {
				return entity.SeverityCritical
			}
		}
	}
	return entity.SeverityWarning
}

type lessonCandidate struct {
	id    uuid.UUID
	title string
	start time.Time
	end   time.Time
}

// buildConflicts turns overlapping lessons into conflicts, dropping pairs
// that share less than one whole minute.
func buildConflicts(event entity.SyncedWorkEvent, lessons []lessonCandidate) []dto.CalendarConflict {
	conflicts := make([]dto.CalendarConflict, 0, len(lessons))
	for _, l := range lessons {
		if !Overlaps(event.StartTime, event.EndTime, l.start, l.end) {
			continue
		}
		minutes := OverlapMinutes(event.StartTime, event.EndTime, l.start, l.end)
		if minutes == 0 {
			continue
		}
		conflictType := ClassifyOverlap(event.StartTime, event.EndTime, l.start, l.end)
		conflicts = append(conflicts, dto.CalendarConflict{
			WorkEventID:          event.ID,
			LessonID:             l.id,
			LessonTitle:          l.title,
			LessonStart:          l.start,
			LessonEnd:            l.end,
			ConflictType:         conflictType,
			OverlapMinutes:       minutes,
			IsMeeting:            event.IsMeeting,
			SuggestedResolutions: SuggestResolutions(conflictType, minutes, event.IsMeeting),
		})
	}
	return conflicts
}
