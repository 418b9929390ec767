package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"

	"gifbot/internal/delivery"
	"gifbot/internal/logging"
	"gifbot/internal/pipeline"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// conversation is one chat as seen by a single request.
type conversation struct {
	bot     *Bot
	chatID  int64
	replyTo int
}

// withContext runs fn and returns early when ctx is done. tgbotapi calls do
// not take a context, so an abandoned call finishes in the background.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Fetch downloads a file by its Telegram file ID into dst. At most
// MaxInputBytes+1 bytes are written so an oversized file is detectable
// without reading all of it.
func (c *conversation) Fetch(ctx context.Context, fileID, dst string) (int64, error) {
	file, err := withContext(ctx, func() (tgbotapi.File, error) {
		return c.bot.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	})
	if err != nil {
		if isTooLarge(err) {
			return 0, fmt.Errorf("%w: %v", pipeline.ErrInputTooLarge, err)
		}
		return 0, fmt.Errorf("get file: %w", err)
	}

	url := fmt.Sprintf(c.bot.fileEndpoint, c.bot.api.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.bot.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Debug("failed to close download body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download: unexpected status %s", resp.Status)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}

	limit := c.bot.pol.MaxInputBytes
	var src io.Reader = resp.Body
	if limit > 0 {
		src = io.LimitReader(resp.Body, limit+1)
	}

	n, copyErr := io.Copy(out, src)
	closeErr := out.Close()
	if copyErr != nil {
		return n, fmt.Errorf("download: %w", copyErr)
	}
	if closeErr != nil {
		return n, closeErr
	}
	return n, nil
}

func (c *conversation) PostStatus(ctx context.Context, text string) (pipeline.StatusRef, error) {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ReplyToMessageID = c.replyTo

	sent, err := withContext(ctx, func() (tgbotapi.Message, error) {
		return c.bot.api.Send(msg)
	})
	if err != nil {
		return pipeline.StatusRef{}, err
	}
	return pipeline.StatusRef{MessageID: sent.MessageID}, nil
}

func (c *conversation) EditStatus(ctx context.Context, ref pipeline.StatusRef, text string) error {
	_, err := withContext(ctx, func() (*tgbotapi.APIResponse, error) {
		return c.bot.api.Request(tgbotapi.NewEditMessageText(c.chatID, ref.MessageID, text))
	})
	return err
}

func (c *conversation) DeleteStatus(ctx context.Context, ref pipeline.StatusRef) error {
	_, err := withContext(ctx, func() (*tgbotapi.APIResponse, error) {
		return c.bot.api.Request(tgbotapi.NewDeleteMessage(c.chatID, ref.MessageID))
	})
	return err
}

func (c *conversation) Reply(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ReplyToMessageID = c.replyTo

	_, err := withContext(ctx, func() (tgbotapi.Message, error) {
		return c.bot.api.Send(msg)
	})
	return err
}

// SendAnimation uploads a native animation with its metadata.
func (c *conversation) SendAnimation(ctx context.Context, u delivery.Upload) error {
	params := c.uploadParams(u)
	params.AddNonZero("width", u.Width)
	params.AddNonZero("height", u.Height)
	params.AddNonZero("duration", int(math.Round(u.Duration.Seconds())))

	files := []tgbotapi.RequestFile{{
		Name: "animation",
		Data: tgbotapi.FileBytes{Name: u.FileName, Bytes: u.Data},
	}}
	if len(u.Thumbnail) > 0 {
		params["thumbnail"] = "attach://thumbnail_file"
		files = append(files, tgbotapi.RequestFile{
			Name: "thumbnail_file",
			Data: tgbotapi.FileBytes{Name: "thumbnail.jpg", Bytes: u.Thumbnail},
		})
	}

	_, err := withContext(ctx, func() (*tgbotapi.APIResponse, error) {
		return c.bot.api.UploadFiles("sendAnimation", params, files)
	})
	return mapUploadError(err)
}

// SendAnimationAs uploads an animation with the payload's Content-Type set
// to u.MIMEType. tgbotapi always labels file parts as octet-stream, so the
// multipart body is built here.
func (c *conversation) SendAnimationAs(ctx context.Context, u delivery.Upload) error {
	params := c.uploadParams(u)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for key, value := range params {
		if err := w.WriteField(key, value); err != nil {
			return err
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="animation"; filename="%s"`, escapeQuotes(u.FileName)))
	header.Set("Content-Type", u.MIMEType)
	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := part.Write(u.Data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf(c.bot.endpoint, c.bot.api.Token, "sendAnimation")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.bot.api.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Debug("failed to close upload response: %v", err)
		}
	}()

	var apiResp tgbotapi.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		if resp.StatusCode == http.StatusRequestEntityTooLarge {
			return fmt.Errorf("%w: %s", delivery.ErrTooLarge, resp.Status)
		}
		return fmt.Errorf("decode sendAnimation response (%s): %w", resp.Status, err)
	}
	if !apiResp.Ok {
		return mapUploadError(&tgbotapi.Error{Code: apiResp.ErrorCode, Message: apiResp.Description})
	}
	return nil
}

// SendDocument uploads the payload as a generic file attachment.
func (c *conversation) SendDocument(ctx context.Context, u delivery.Upload) error {
	doc := tgbotapi.NewDocument(c.chatID, tgbotapi.FileBytes{Name: u.FileName, Bytes: u.Data})
	doc.Caption = u.Caption
	doc.ReplyToMessageID = c.replyTo

	_, err := withContext(ctx, func() (tgbotapi.Message, error) {
		return c.bot.api.Send(doc)
	})
	return mapUploadError(err)
}

func (c *conversation) uploadParams(u delivery.Upload) tgbotapi.Params {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", c.chatID)
	params.AddNonEmpty("caption", u.Caption)
	params.AddNonZero("reply_to_message_id", c.replyTo)
	return params
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// mapUploadError tags size rejections with delivery.ErrTooLarge.
func mapUploadError(err error) error {
	if err == nil {
		return nil
	}
	if isTooLarge(err) {
		return fmt.Errorf("%w: %v", delivery.ErrTooLarge, err)
	}
	return err
}

func isTooLarge(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusRequestEntityTooLarge {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "too big") || strings.Contains(msg, "too large")
}
