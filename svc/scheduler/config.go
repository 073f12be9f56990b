package scheduler

import "time"

type Config struct {
	Disabled bool          `env:"SCHEDULER_DISABLED" envDefault:"false"` // Disabled is the kill switch for all scheduled jobs.
	Timezone string        `env:"SCHEDULER_TIMEZONE" envDefault:"UTC"`   // Timezone is the IANA location the cron expressions are evaluated in.
	LockTTL  time.Duration `env:"SCHEDULER_LOCK_TTL" envDefault:"10m"`   // LockTTL bounds how long a crashed run blocks the next one.
	FanOut   int           `env:"SCHEDULER_FANOUT" envDefault:"8"`       // FanOut bounds how many subscriptions a job processes concurrently.

	RenewalReminderSchedule string `env:"RENEWAL_REMINDER_SCHEDULE" envDefault:"0 * * * *"`  // RenewalReminderSchedule is the cron expression for the renewal reminder job.
	ExpiryReminderSchedule  string `env:"EXPIRY_REMINDER_SCHEDULE" envDefault:"15 * * * *"`  // ExpiryReminderSchedule is the cron expression for the expiry reminder job.
	ExpirationSweepSchedule string `env:"EXPIRATION_SWEEP_SCHEDULE" envDefault:"30 * * * *"` // ExpirationSweepSchedule is the cron expression for the expiration sweep job.
	PendingReaperSchedule   string `env:"PENDING_REAPER_SCHEDULE" envDefault:"45 * * * *"`   // PendingReaperSchedule is the cron expression for the stale pending reaper.

	ReminderWindow time.Duration `env:"REMINDER_WINDOW" envDefault:"72h"` // ReminderWindow is how far ahead of expiry reminders go out.
	PendingTTL     time.Duration `env:"PENDING_TTL" envDefault:"48h"`     // PendingTTL is how long an unpaid pending subscription survives before the reaper expires it.
}
