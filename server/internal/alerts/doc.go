// Package alerts implements the rule evaluation engine and webhook delivery
// for shift quality alerts. Rules are evaluated against the summary of a
// freshly built shift report after every mutation of its container; webhooks
// are delivered to Teams, Slack or generic HTTP targets under a shared rate
// limit.
package alerts
