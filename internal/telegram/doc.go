// Package telegram connects the conversion pipeline to the Telegram Bot API.
//
// The Bot long-polls for updates, answers /start and /help, and turns
// video, animation and document messages into pipeline requests. Each
// request runs in its own goroutine; a weighted semaphore bounds how many
// run at once, so a burst of uploads queues in the update loop instead of
// starting unbounded encoder processes.
//
// The conversation type implements pipeline.Conversation on top of
// tgbotapi: downloads go through the file endpoint with a size cap,
// animations are uploaded with their metadata, and a 413 or "too big"
// rejection is reported as delivery.ErrTooLarge.
package telegram
