package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/onnwee/chat-copilot/telemetry"
)

// Task is one recurring announcement. MinEvents gates on chat activity since
// the task last fired, so reminders never post into a dead room. A Once task
// fires a single time After the scheduler started.
type Task struct {
	Name      string
	Interval  time.Duration
	MinEvents int
	Once      bool
	After     time.Duration
	Action    func(ctx context.Context, env *Env) string

	lastFired time.Time
	fired     bool
	events    int
}

// Scheduler runs tasks cooperatively: Due is called from the main loop between
// batches, so tasks can never race chat handling.
type Scheduler struct {
	tasks []*Task
	start time.Time
	now   func() time.Time
}

func NewScheduler(tasks ...*Task) *Scheduler {
	s := &Scheduler{tasks: tasks, now: time.Now}
	s.start = s.now()
	for _, t := range s.tasks {
		t.lastFired = s.start
	}
	return s
}

// NoteEvents informs the scheduler that n chat events were just processed.
func (s *Scheduler) NoteEvents(n int) {
	for _, t := range s.tasks {
		t.events += n
	}
}

// Due runs every task whose time has come and returns their announcements in
// task order. Tasks returning "" are counted as fired but post nothing.
func (s *Scheduler) Due(ctx context.Context, env *Env) []string {
	now := s.now()
	var out []string
	for _, t := range s.tasks {
		if !s.taskDue(t, now) {
			continue
		}
		t.lastFired = now
		t.fired = true
		t.events = 0
		telemetry.PeriodicFired.Inc()
		if text := t.Action(ctx, env); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func (s *Scheduler) taskDue(t *Task, now time.Time) bool {
	if t.Once {
		return !t.fired && now.Sub(s.start) >= t.After
	}
	if now.Sub(t.lastFired) < t.Interval {
		return false
	}
	return t.events >= t.MinEvents
}

// DefaultTasks builds the standard announcement set.
func DefaultTasks(growth *Growth) []*Task {
	return []*Task{
		{
			Name:  "intro",
			Once:  true,
			After: time.Minute,
			Action: func(ctx context.Context, env *Env) string {
				return fmt.Sprintf("🤖 Hey chat, %s here! I answer questions and run commands. Try !help.", env.BotName)
			},
		},
		{
			Name:      "mention-reminder",
			Interval:  15 * time.Minute,
			MinEvents: 10,
			Action: func(ctx context.Context, env *Env) string {
				return fmt.Sprintf("💡 Reminder: mention @%s or use !help if you want to chat with me.", env.BotName)
			},
		},
		{
			Name:     "viewer-callout",
			Interval: 30 * time.Minute,
			Action: func(ctx context.Context, env *Env) string {
				if growth == nil {
					return ""
				}
				return growth.Callout(3)
			},
		},
		{
			Name:     "goal-progress",
			Interval: time.Hour,
			Action: func(ctx context.Context, env *Env) string {
				if growth == nil {
					return ""
				}
				return growth.GoalProgress()
			},
		},
	}
}
