package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"gifbot/internal/logging"
	"gifbot/internal/pipeline"
	"gifbot/internal/policy"
)

// Handler processes one conversion request.
type Handler interface {
	Handle(ctx context.Context, req pipeline.Request, conv pipeline.Conversation) pipeline.Outcome
}

// Gate holds back new conversions, e.g. under memory pressure.
type Gate interface {
	Wait(ctx context.Context) error
}

// Options configures a Bot.
type Options struct {
	Token string
	// APIEndpoint is a Sprintf pattern taking the token and method name.
	// Empty uses the public Bot API.
	APIEndpoint string

	Policy        policy.Policy
	MaxConcurrent int

	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout int

	// Admission is consulted before each conversion is started. Nil admits
	// everything.
	Admission Gate

	// HTTPClient is used for API calls and downloads. Nil uses a default.
	HTTPClient *http.Client
	Debug      bool
}

// Bot receives updates and hands media messages to a Handler.
type Bot struct {
	api          *tgbotapi.BotAPI
	handler      Handler
	pol          policy.Policy
	sem          *semaphore.Weighted
	admission    Gate
	httpClient   *http.Client
	endpoint     string
	fileEndpoint string
	pollTimeout  int

	wg       sync.WaitGroup
	inFlight sync.Map
	polling  atomic.Bool
}

// botLogger routes tgbotapi's internal logging into the application logger.
type botLogger struct{}

func (botLogger) Println(v ...interface{}) {
	logging.Warn("telegram: %s", strings.TrimSpace(fmt.Sprintln(v...)))
}

func (botLogger) Printf(format string, v ...interface{}) {
	logging.Debug("telegram: "+format, v...)
}

// New connects to the Bot API and verifies the token.
func New(opts Options, handler Handler) (*Bot, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram token is required")
	}
	if handler == nil {
		return nil, errors.New("telegram handler is required")
	}

	endpoint := opts.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 60
	}

	if err := tgbotapi.SetLogger(botLogger{}); err != nil {
		logging.Debug("Failed to install telegram logger: %v", err)
	}

	api, err := tgbotapi.NewBotAPIWithClient(opts.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	api.Debug = opts.Debug

	return &Bot{
		api:          api,
		handler:      handler,
		pol:          opts.Policy,
		sem:          semaphore.NewWeighted(int64(maxConcurrent)),
		admission:    opts.Admission,
		httpClient:   client,
		endpoint:     endpoint,
		fileEndpoint: fileEndpointFor(endpoint),
		pollTimeout:  pollTimeout,
	}, nil
}

// fileEndpointFor derives the file download pattern from an API pattern.
func fileEndpointFor(apiEndpoint string) string {
	if apiEndpoint == tgbotapi.APIEndpoint {
		return tgbotapi.FileEndpoint
	}
	if idx := strings.LastIndex(apiEndpoint, "/bot%s/%s"); idx >= 0 {
		return apiEndpoint[:idx] + "/file/bot%s/%s"
	}
	return tgbotapi.FileEndpoint
}

// Username returns the bot's account name.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Run polls for updates until ctx is cancelled, then waits for in-flight
// requests to finish.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(u)

	logging.Info("Polling Telegram as @%s", b.Username())
	b.polling.Store(true)

	defer func() {
		b.polling.Store(false)
		b.api.StopReceivingUpdates()
		b.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			logging.Info("Stopping update loop, waiting for %d request(s)", b.InFlight())
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, update)
		}
	}
}

// Polling reports whether the update loop is running.
func (b *Bot) Polling() bool {
	return b.polling.Load()
}

// InFlight returns the number of requests currently being handled.
func (b *Bot) InFlight() int {
	n := 0
	b.inFlight.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	req, ok := requestFromMessage(msg)
	if !ok {
		return
	}
	req.ID = uuid.NewString()

	if b.admission != nil {
		if err := b.admission.Wait(ctx); err != nil {
			logging.Debug("Dropping update %d: %v", update.UpdateID, err)
			return
		}
	}

	// Blocks the update loop while every slot is busy
	if err := b.sem.Acquire(ctx, 1); err != nil {
		logging.Debug("Dropping update %d: %v", update.UpdateID, err)
		return
	}

	b.wg.Add(1)
	b.inFlight.Store(req.ID, time.Now())
	go func() {
		defer b.wg.Done()
		defer b.sem.Release(1)
		defer b.inFlight.Delete(req.ID)
		defer func() {
			if p := recover(); p != nil {
				logging.Error("Panic handling request %s: %v\n%s", req.ID, p, debug.Stack())
			}
		}()

		b.handler.Handle(ctx, req, b.conversation(msg))
	}()
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	var text string
	switch msg.Command() {
	case "start":
		text = WelcomeText
	case "help":
		text = HelpText(b.pol)
	default:
		return
	}
	if err := b.conversation(msg).Reply(ctx, text); err != nil {
		logging.Warn("Failed to answer /%s in chat %d: %v", msg.Command(), msg.Chat.ID, err)
	}
}

func (b *Bot) conversation(msg *tgbotapi.Message) *conversation {
	return &conversation{
		bot:     b,
		chatID:  msg.Chat.ID,
		replyTo: msg.MessageID,
	}
}
