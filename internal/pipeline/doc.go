// Package pipeline runs one conversion request from an incoming file
// reference to a delivered animation.
//
// A request moves through an explicit state machine:
//
//	Received -> Validating -> Downloading -> Converting -> SizeChecking -> Delivering -> Completed
//
// Any non-terminal state may move to Failed. Download, conversion and
// delivery each get their own OperationTimeout budget, so a slow download
// never eats into the encoder's time. Whatever happens, the request's
// workspace is released before Handle returns and the user sees exactly one
// outcome message.
package pipeline
