// Package wire defines the message-framed protocol spoken between the
// broker and its executors.
//
// Every frame is a JSON envelope carrying a Kind discriminator. The set of
// kinds is closed: decoding switches exhaustively over Kind and rejects
// anything else, so adding a command is a type-checked change rather than ad
// hoc string matching at call sites.
package wire
