// Package schedule runs recurring maintenance tasks.
//
// This package includes:
//   - Schedule interface for deciding when a task runs next
//   - Every() for fixed-interval schedules
//   - Daily() for daily schedules at a specific time
//   - Weekly() for weekly schedules on a specific day and time
//   - Cron() and ParseCron() for cron expression-based schedules
//   - Scheduler, which drives registered tasks until its context ends
package schedule
