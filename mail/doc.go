// Package mail delivers the recovery and email-verification messages.
//
// Messages are composed with github.com/emersion/go-message/mail and sent
// through net/smtp. LogMailer replaces delivery with a warning log line for
// deployments without a relay.
package mail
