// Package notifications delivers pipeline notices to a mail drop folder and a
// chat webhook.
//
// The mail sink writes one JSON file per notice ({subject, body, html}) for an
// external mailer to pick up and enforces a daily quota. The webhook sink
// posts Discord-style {"content": ...} messages split into chunks below the
// platform limit. Per-event toggles come from config; with no sink configured
// the service is a no-op. Workflow code depends only on the Service interface.
package notifications
