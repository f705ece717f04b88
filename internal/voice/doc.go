// Package voice is the Twilio boundary of the receptionist.
//
// It turns webhook form posts into turn.Event values, verifies the
// X-Twilio-Signature header, and renders a turn.Instruction as TwiML.
// Nothing here makes pipeline decisions; those belong to package turn.
package voice
