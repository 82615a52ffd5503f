// Package notifications delivers job outcome events to operators.
//
// The default implementation publishes to an ntfy topic and degrades to a
// no-op when no topic is configured. The workflow depends only on the small
// Service interface.
package notifications
