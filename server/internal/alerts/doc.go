// Package alerts implements the rule engine and webhook delivery for floor
// efficiency alerts. Rules such as "efficiency < 60" or "band == low" are
// evaluated against each record whenever it changes; fired and resolved
// alerts are delivered to Teams, Slack, or generic HTTP webhooks.
package alerts
