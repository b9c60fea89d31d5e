package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OwnerSeparator splits a schedule owner into subject and instructor.
const OwnerSeparator = "||"

// DaysPerWeek is the number of schedulable days; Sunday is not schedulable.
const DaysPerWeek = 6

var dayNames = [DaysPerWeek]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

type ScheduleSlot struct {
	Owner string `json:"owner"`
	Day   int    `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type Owner struct {
	Subject    string `json:"subject"`
	Instructor string `json:"instructor,omitempty"`
}

func ParseOwner(raw string) Owner {
	subject, instructor, _ := strings.Cut(raw, OwnerSeparator)
	return Owner{
		Subject:    strings.TrimSpace(subject),
		Instructor: strings.TrimSpace(instructor),
	}
}

func (o Owner) String() string {
	if o.Instructor == "" {
		return o.Subject
	}
	return o.Subject + OwnerSeparator + o.Instructor
}

// DayIndex maps a calendar weekday onto the schedule week. Monday is 0 and
// Saturday is 5; Sunday reports ok=false.
func DayIndex(t time.Time) (int, bool) {
	wd := t.Weekday()
	if wd == time.Sunday {
		return 0, false
	}
	return int(wd) - 1, true
}

func DayName(day int) string {
	if day < 0 || day >= DaysPerWeek {
		return ""
	}
	return dayNames[day]
}

// ParseDay accepts either the numeric index or the English day name.
func ParseDay(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n >= DaysPerWeek {
			return 0, fmt.Errorf("day %d out of range", n)
		}
		return n, nil
	}
	for i, name := range dayNames {
		if name == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown day %q", s)
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("missing colon in %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
