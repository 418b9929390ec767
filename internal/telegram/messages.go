package telegram

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gifbot/internal/pipeline"
	"gifbot/internal/policy"
)

// WelcomeText answers /start.
const WelcomeText = "👋 Hi! I'm a Video to GIF converter bot.\n\n" +
	"Just send me any video file and I'll convert it to GIF format!"

// HelpText answers /help with the limits of pol filled in.
func HelpText(pol policy.Policy) string {
	return fmt.Sprintf("How to use this bot:\n\n"+
		"1. Send me any video file\n"+
		"2. Wait for processing\n"+
		"3. Receive your GIF!\n\n"+
		"Note: videos up to %s are accepted. GIFs keep the first %s, at most %d px wide.",
		humanize.IBytes(uint64(pol.MaxInputBytes)), pol.MaxDuration, pol.MaxWidth)
}

// requestFromMessage builds a pipeline request from a video, animation or
// document message. Other messages return false.
func requestFromMessage(msg *tgbotapi.Message) (pipeline.Request, bool) {
	if msg == nil || msg.Chat == nil {
		return pipeline.Request{}, false
	}

	req := pipeline.Request{ChatID: msg.Chat.ID}
	if msg.From != nil {
		req.UserID = msg.From.ID
		req.Username = msg.From.UserName
	}

	switch {
	case msg.Video != nil:
		v := msg.Video
		req.FileID = v.FileID
		req.FileName = v.FileName
		req.MIMEType = v.MimeType
		req.DeclaredSize = int64(v.FileSize)
		req.DeclaredDuration = time.Duration(v.Duration) * time.Second
		if req.MIMEType == "" {
			req.MIMEType = "video/mp4"
		}
	case msg.Animation != nil:
		a := msg.Animation
		req.FileID = a.FileID
		req.FileName = a.FileName
		req.MIMEType = a.MimeType
		req.DeclaredSize = int64(a.FileSize)
		req.DeclaredDuration = time.Duration(a.Duration) * time.Second
		if req.MIMEType == "" {
			req.MIMEType = "video/mp4"
		}
	case msg.Document != nil:
		d := msg.Document
		req.FileID = d.FileID
		req.FileName = d.FileName
		req.MIMEType = d.MimeType
		req.DeclaredSize = int64(d.FileSize)
	default:
		return pipeline.Request{}, false
	}

	return req, true
}
