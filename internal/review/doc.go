// Package review provides the business boundary for Ward's alert review
// system. It defines the Service (ranking, decision recording, lifecycle,
// audit), the Store interface (persistence), and the decision domain models.
package review
