package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Schedule yields the next fire time strictly after a given instant.
type Schedule interface {
	Next(after time.Time) time.Time
	String() string
}

type every time.Duration

// Every fires at a fixed interval.
func Every(d time.Duration) Schedule { return every(d) }

func (e every) Next(after time.Time) time.Time { return after.Add(time.Duration(e)) }
func (e every) String() string                 { return "every " + time.Duration(e).String() }

// calendar fires at hour:minute on matching days in loc. Zero month or day and
// a negative weekday match anything.
type calendar struct {
	month   time.Month
	day     int
	weekday int
	hour    int
	minute  int
	loc     *time.Location
}

func Daily(hour, minute int, loc *time.Location) Schedule {
	return calendar{weekday: -1, hour: hour, minute: minute, loc: orUTC(loc)}
}

func Weekly(wd time.Weekday, hour, minute int, loc *time.Location) Schedule {
	return calendar{weekday: int(wd), hour: hour, minute: minute, loc: orUTC(loc)}
}

func Monthly(day, hour, minute int, loc *time.Location) Schedule {
	return calendar{day: day, weekday: -1, hour: hour, minute: minute, loc: orUTC(loc)}
}

func Yearly(month time.Month, day, hour, minute int, loc *time.Location) Schedule {
	return calendar{month: month, day: day, weekday: -1, hour: hour, minute: minute, loc: orUTC(loc)}
}

func (c calendar) Next(after time.Time) time.Time {
	a := after.In(c.loc)
	for i := 0; i <= 366*4; i++ {
		d := time.Date(a.Year(), a.Month(), a.Day()+i, c.hour, c.minute, 0, 0, c.loc)
		if !d.After(after) {
			continue
		}
		if c.month != 0 && d.Month() != c.month {
			continue
		}
		if c.day != 0 && d.Day() != c.day {
			continue
		}
		if c.weekday >= 0 && int(d.Weekday()) != c.weekday {
			continue
		}
		return d
	}
	return time.Time{}
}

func (c calendar) String() string {
	at := fmt.Sprintf("%02d:%02d %s", c.hour, c.minute, c.loc)
	switch {
	case c.month != 0:
		return fmt.Sprintf("yearly %s %d %s", c.month, c.day, at)
	case c.day != 0:
		return fmt.Sprintf("monthly day %d %s", c.day, at)
	case c.weekday >= 0:
		return fmt.Sprintf("weekly %s %s", time.Weekday(c.weekday), at)
	}
	return "daily " + at
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// Task is a scheduled sweep.
type Task func(ctx context.Context, now time.Time)

type entry struct {
	name     string
	schedule Schedule
	task     Task
}

// Scheduler runs each registered task on its own timer loop.
type Scheduler struct {
	entries []entry
	log     zerolog.Logger
	now     func() time.Time
}

func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		log: log.With().Str("component", "scheduler").Logger(),
		now: time.Now,
	}
}

func (s *Scheduler) Add(name string, schedule Schedule, task Task) {
	s.entries = append(s.entries, entry{name: name, schedule: schedule, task: task})
}

// Run blocks until ctx is done. A slow task delays only its own next run.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range s.entries {
		wg.Add(1)
		go func(e entry) {
			defer wg.Done()
			s.loop(ctx, e)
		}(e)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	log := s.log.With().Str("task", e.name).Logger()
	for {
		next := e.schedule.Next(s.now())
		if next.IsZero() {
			log.Error().Str("schedule", e.schedule.String()).Msg("schedule never fires")
			return
		}
		log.Debug().Time("next", next).Msg("scheduled")

		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		start := time.Now()
		s.runTask(ctx, e, next, log)
		log.Info().Dur("took", time.Since(start)).Msg("task finished")
	}
}

func (s *Scheduler) runTask(ctx context.Context, e entry, at time.Time, log zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("task panicked")
		}
	}()
	e.task(ctx, at)
}
