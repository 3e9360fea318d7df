// Package report builds attendance reports and analytics on top of the
// attendance store. All entry points authorize the caller against the
// target scope before touching data.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/markrhq/markr/internal/access"
	"github.com/markrhq/markr/internal/store"
)

// Service computes reports over attendance records.
type Service struct {
	attendance store.AttendanceStore
	roster     store.RosterStore
	directory  store.DirectoryStore
}

// NewService creates a report service.
func NewService(attendance store.AttendanceStore, roster store.RosterStore, directory store.DirectoryStore) *Service {
	return &Service{attendance: attendance, roster: roster, directory: directory}
}

// Entry is one student's row in a daily report.
type Entry struct {
	StudentID     int64    `json:"student_id"`
	StudentName   string   `json:"student_name"`
	StudentNumber string   `json:"student_number"`
	ClassName     string   `json:"class_name"`
	Status        string   `json:"status"` // present, absent, or unmarked
	Method        string   `json:"method,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// Daily is a school-wide attendance report for one date.
type Daily struct {
	Date     string  `json:"date"`
	SchoolID int64   `json:"school_id"`
	Total    int     `json:"total_students"`
	Present  int     `json:"present"`
	Absent   int     `json:"absent"`
	Unmarked int     `json:"unmarked"`
	Rate     float64 `json:"attendance_rate"` // present / total, 0 for empty schools
	Entries  []Entry `json:"entries"`
}

// StudentSummary aggregates one student over a date range.
type StudentSummary struct {
	StudentID     int64   `json:"student_id"`
	StudentName   string  `json:"student_name"`
	StudentNumber string  `json:"student_number"`
	Present       int     `json:"present"`
	Absent        int     `json:"absent"`
	Rate          float64 `json:"attendance_rate"` // present / (present + absent)
}

// ClassRange summarizes a class between two dates.
type ClassRange struct {
	ClassName string           `json:"class_name"`
	From      string           `json:"from"`
	To        string           `json:"to"`
	MeanRate  float64          `json:"mean_rate"`   // mean of per-student rates
	StdDev    float64          `json:"rate_stddev"` // spread of per-student rates
	Students  []StudentSummary `json:"students"`
}

// ClassStats is a per-class slice of school analytics.
type ClassStats struct {
	ClassName string  `json:"class_name"`
	Students  int     `json:"students"`
	MeanRate  float64 `json:"mean_rate"`
}

// SchoolAnalytics summarizes a whole school over a date range.
type SchoolAnalytics struct {
	SchoolID   int64        `json:"school_id"`
	From       string       `json:"from"`
	To         string       `json:"to"`
	MeanRate   float64      `json:"mean_rate"`   // mean of daily school rates
	RateStdDev float64      `json:"rate_stddev"` // day-to-day variability
	Classes    []ClassStats `json:"classes"`
}

// SchoolRate is one school's standing in a district overview.
type SchoolRate struct {
	SchoolID   int64   `json:"school_id"`
	SchoolName string  `json:"school_name"`
	Total      int     `json:"total_students"`
	Present    int     `json:"present"`
	Absent     int     `json:"absent"`
	Rate       float64 `json:"attendance_rate"`
}

// DistrictOverview is the per-school daily summary for a district.
type DistrictOverview struct {
	DistrictID int64        `json:"district_id"`
	Date       string       `json:"date"`
	Schools    []SchoolRate `json:"schools"`
}

const dateFormat = "2006-01-02"

func (s *Service) schoolScope(ctx context.Context, schoolID int64, className string) (access.Scope, error) {
	school, err := s.directory.SchoolByID(ctx, schoolID)
	if err != nil {
		return access.Scope{}, fmt.Errorf("resolving school %d: %w", schoolID, err)
	}
	return access.Scope{
		SchoolID:         school.ID,
		SchoolDistrictID: school.DistrictID,
		ClassName:        className,
	}, nil
}

// Daily builds the school-wide report for one date. Students with no
// record that day are reported as unmarked, never guessed absent.
func (s *Service) Daily(ctx context.Context, schoolID int64, date time.Time, actor access.Actor) (*Daily, error) {
	scope, err := s.schoolScope(ctx, schoolID, "")
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.ActionReportAttendance, scope); err != nil {
		return nil, err
	}

	students, err := s.roster.SearchStudents(ctx, schoolID, "")
	if err != nil {
		return nil, fmt.Errorf("loading school roster: %w", err)
	}
	records, err := s.attendance.RecordsByDate(ctx, schoolID, date)
	if err != nil {
		return nil, fmt.Errorf("loading attendance records: %w", err)
	}

	byStudent := make(map[int64]store.AttendanceRecord, len(records))
	for _, rec := range records {
		byStudent[rec.StudentID] = rec
	}

	report := &Daily{
		Date:     date.UTC().Format(dateFormat),
		SchoolID: schoolID,
		Total:    len(students),
	}
	for _, student := range students {
		entry := Entry{
			StudentID:     student.ID,
			StudentName:   student.Name,
			StudentNumber: student.StudentNumber,
			ClassName:     student.ClassName,
			Status:        "unmarked",
		}
		if rec, ok := byStudent[student.ID]; ok {
			entry.Status = rec.Status
			entry.Method = rec.Method
			entry.Confidence = rec.Confidence
			entry.Notes = rec.Notes
		}
		switch entry.Status {
		case store.StatusPresent:
			report.Present++
		case store.StatusAbsent:
			report.Absent++
		default:
			report.Unmarked++
		}
		report.Entries = append(report.Entries, entry)
	}
	if report.Total > 0 {
		report.Rate = float64(report.Present) / float64(report.Total)
	}
	sort.Slice(report.Entries, func(i, j int) bool {
		a, b := report.Entries[i], report.Entries[j]
		if a.ClassName != b.ClassName {
			return a.ClassName < b.ClassName
		}
		return a.StudentName < b.StudentName
	})
	return report, nil
}

// ClassRange summarizes one class between two dates inclusive. Teachers
// may only request classes they are assigned to.
func (s *Service) ClassRange(ctx context.Context, schoolID int64, className string, from, to time.Time, actor access.Actor) (*ClassRange, error) {
	scope, err := s.schoolScope(ctx, schoolID, className)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.ActionReportAttendance, scope); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("invalid range: %s is before %s", to.Format(dateFormat), from.Format(dateFormat))
	}

	students, err := s.roster.ActiveStudents(ctx, className, schoolID)
	if err != nil {
		return nil, fmt.Errorf("loading class roster: %w", err)
	}
	records, err := s.attendance.RecordsByClassRange(ctx, schoolID, className, from, to)
	if err != nil {
		return nil, fmt.Errorf("loading attendance records: %w", err)
	}

	present := make(map[int64]int)
	absent := make(map[int64]int)
	for _, rec := range records {
		switch rec.Status {
		case store.StatusPresent:
			present[rec.StudentID]++
		case store.StatusAbsent:
			absent[rec.StudentID]++
		}
	}

	result := &ClassRange{
		ClassName: className,
		From:      from.UTC().Format(dateFormat),
		To:        to.UTC().Format(dateFormat),
	}
	var rates []float64
	for _, student := range students {
		summary := StudentSummary{
			StudentID:     student.ID,
			StudentName:   student.Name,
			StudentNumber: student.StudentNumber,
			Present:       present[student.ID],
			Absent:        absent[student.ID],
		}
		if marked := summary.Present + summary.Absent; marked > 0 {
			summary.Rate = float64(summary.Present) / float64(marked)
			rates = append(rates, summary.Rate)
		}
		result.Students = append(result.Students, summary)
	}
	if len(rates) > 0 {
		result.MeanRate = stat.Mean(rates, nil)
	}
	if len(rates) > 1 {
		result.StdDev = stat.StdDev(rates, nil)
	}
	sort.Slice(result.Students, func(i, j int) bool {
		return result.Students[i].StudentName < result.Students[j].StudentName
	})
	return result, nil
}

// SchoolAnalytics computes daily-rate statistics for a school over a
// range, with a per-class breakdown. Principal scope.
func (s *Service) SchoolAnalytics(ctx context.Context, schoolID int64, from, to time.Time, actor access.Actor) (*SchoolAnalytics, error) {
	scope, err := s.schoolScope(ctx, schoolID, "")
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.ActionSchoolAnalytics, scope); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("invalid range: %s is before %s", to.Format(dateFormat), from.Format(dateFormat))
	}

	students, err := s.roster.SearchStudents(ctx, schoolID, "")
	if err != nil {
		return nil, fmt.Errorf("loading school roster: %w", err)
	}
	classOf := make(map[int64]string, len(students))
	classSize := make(map[string]int)
	for _, student := range students {
		classOf[student.ID] = student.ClassName
		classSize[student.ClassName]++
	}

	var dailyRates []float64
	classPresent := make(map[string]int)
	classMarked := make(map[string]int)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		records, err := s.attendance.RecordsByDate(ctx, schoolID, day)
		if err != nil {
			return nil, fmt.Errorf("loading records for %s: %w", day.Format(dateFormat), err)
		}
		if len(records) == 0 {
			// No capture that day (weekend, holiday); not a zero-rate day.
			continue
		}
		present := 0
		for _, rec := range records {
			class := classOf[rec.StudentID]
			classMarked[class]++
			if rec.Status == store.StatusPresent {
				present++
				classPresent[class]++
			}
		}
		dailyRates = append(dailyRates, float64(present)/float64(len(records)))
	}

	analytics := &SchoolAnalytics{
		SchoolID: schoolID,
		From:     from.UTC().Format(dateFormat),
		To:       to.UTC().Format(dateFormat),
	}
	if len(dailyRates) > 0 {
		analytics.MeanRate = stat.Mean(dailyRates, nil)
	}
	if len(dailyRates) > 1 {
		analytics.RateStdDev = stat.StdDev(dailyRates, nil)
	}
	for class, size := range classSize {
		cs := ClassStats{ClassName: class, Students: size}
		if marked := classMarked[class]; marked > 0 {
			cs.MeanRate = float64(classPresent[class]) / float64(marked)
		}
		analytics.Classes = append(analytics.Classes, cs)
	}
	sort.Slice(analytics.Classes, func(i, j int) bool {
		return analytics.Classes[i].ClassName < analytics.Classes[j].ClassName
	})
	return analytics, nil
}

// DistrictOverview builds the per-school daily summary for a district
// officer's own district.
func (s *Service) DistrictOverview(ctx context.Context, districtID int64, date time.Time, actor access.Actor) (*DistrictOverview, error) {
	// SchoolID 0: every school in the actor's district.
	if err := access.Authorize(actor, access.ActionDistrictOverview, access.Scope{}); err != nil {
		return nil, err
	}
	if actor.DistrictID != districtID {
		return nil, fmt.Errorf("%w: district %d is not the officer's district", access.ErrScopeViolation, districtID)
	}

	schools, err := s.directory.SchoolsByDistrict(ctx, districtID)
	if err != nil {
		return nil, fmt.Errorf("loading district schools: %w", err)
	}

	overview := &DistrictOverview{
		DistrictID: districtID,
		Date:       date.UTC().Format(dateFormat),
	}
	for _, school := range schools {
		if !school.Active {
			continue
		}
		students, err := s.roster.SearchStudents(ctx, school.ID, "")
		if err != nil {
			return nil, fmt.Errorf("loading roster for school %d: %w", school.ID, err)
		}
		records, err := s.attendance.RecordsByDate(ctx, school.ID, date)
		if err != nil {
			return nil, fmt.Errorf("loading records for school %d: %w", school.ID, err)
		}
		rate := SchoolRate{SchoolID: school.ID, SchoolName: school.Name, Total: len(students)}
		for _, rec := range records {
			switch rec.Status {
			case store.StatusPresent:
				rate.Present++
			case store.StatusAbsent:
				rate.Absent++
			}
		}
		if rate.Total > 0 {
			rate.Rate = float64(rate.Present) / float64(rate.Total)
		}
		overview.Schools = append(overview.Schools, rate)
	}
	sort.Slice(overview.Schools, func(i, j int) bool {
		return overview.Schools[i].SchoolName < overview.Schools[j].SchoolName
	})
	return overview, nil
}
