package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"open-trivia-rounds/internal/app"
	"open-trivia-rounds/internal/domain"
	"open-trivia-rounds/internal/game"
)

const sessionCookieName = "session_id"

// WSConfig bounds how fast one connection may send commands.
type WSConfig struct {
	RPS   float64
	Burst int
}

type WSHandler struct {
	service  *app.GameService
	config   WSConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService, c WSConfig) *WSHandler {
	if c.RPS <= 0 {
		c.RPS = 10
	}
	if c.Burst <= 0 {
		c.Burst = 20
	}
	return &WSHandler{
		service: service,
		config:  c,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectCategoryPayload struct {
	CategoryID int  `json:"categoryId"`
	Random     bool `json:"random"`
}

type answerPayload struct {
	Outcome   string `json:"outcome"`
	ElapsedMs int64  `json:"elapsedMs"`
}

type skipPayload struct {
	ElapsedMs int64 `json:"elapsedMs"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the game use cases.
// The tab is identified by the sessionId query parameter, then the session
// cookie, and is otherwise given a fresh id.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tabID := r.URL.Query().Get("sessionId")
	if tabID == "" {
		if ck, err := r.Cookie(sessionCookieName); err == nil {
			tabID = ck.Value
		}
	}
	if tabID == "" {
		tabID = uuid.NewString()
	}
	header := http.Header{}
	header.Add("Set-Cookie", (&http.Cookie{
		Name:     sessionCookieName,
		Value:    tabID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}).String())

	conn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	h.service.Open(ctx, tabID)
	updates, cancel, err := h.service.Subscribe(ctx, tabID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: toErrorPayload(err)})
		return
	}
	defer cancel()
	log.Debug().Str("session", tabID).Msg("ws connected")

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("session", tabID).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					// session closed by the janitor or another connection
					_ = conn.Close()
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "session", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(h.config.RPS), h.config.Burst)
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if !limiter.Allow() {
			send <- errorMessage(errorPayload{Code: CodeRateLimited, Message: "too many messages, slow down"})
			continue
		}
		if reply, ok := h.dispatch(ctx, tabID, inbound); ok {
			send <- reply
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
	log.Debug().Str("session", tabID).Msg("ws disconnected")
}

// ServeWatch streams the updates of an existing session read-only. The
// session may be held by another instance.
func (h *WSHandler) ServeWatch(w http.ResponseWriter, r *http.Request) {
	tabID := r.URL.Query().Get("sessionId")
	if tabID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()
	updates, cancel, err := h.service.Subscribe(ctx, tabID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: toErrorPayload(err)})
		return
	}
	defer cancel()

	// watchers send nothing, reading only notices the close
	go func() {
		defer stop()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage[app.Update]{Type: "session", Payload: u}); err != nil {
				return
			}
		}
	}
}

// dispatch runs one command. Transitions reach the client through the
// subscription, so only reads and errors produce a direct reply.
func (h *WSHandler) dispatch(ctx context.Context, tabID string, in inboundMessage) (outboundMessage[any], bool) {
	var err error
	switch in.Type {
	case "start":
		var p app.StartParams
		if err := decode(in.Payload, &p); err != nil {
			return badMessage(in.Type), true
		}
		_, err = h.service.Start(ctx, tabID, p)
	case "selectCategory":
		var p selectCategoryPayload
		if err := decode(in.Payload, &p); err != nil {
			return badMessage(in.Type), true
		}
		choice := game.PickCategory(p.CategoryID)
		if p.Random {
			choice = game.RandomCategory()
		}
		_, err = h.service.SelectCategory(ctx, tabID, choice)
	case "beginQuestion":
		_, err = h.service.BeginQuestion(ctx, tabID)
	case "answer":
		var p answerPayload
		if err := decode(in.Payload, &p); err != nil {
			return badMessage(in.Type), true
		}
		outcome, perr := domain.ParseOutcome(p.Outcome)
		if perr != nil {
			return errorMessage(toErrorPayload(perr)), true
		}
		_, err = h.service.Answer(ctx, tabID, outcome, time.Duration(p.ElapsedMs)*time.Millisecond)
	case "skip":
		var p skipPayload
		if err := decode(in.Payload, &p); err != nil {
			return badMessage(in.Type), true
		}
		_, err = h.service.Skip(ctx, tabID, time.Duration(p.ElapsedMs)*time.Millisecond)
	case "completeRound":
		_, err = h.service.CompleteRound(ctx, tabID)
	case "advanceRound":
		_, err = h.service.AdvanceRound(ctx, tabID)
	case "finish":
		_, err = h.service.Finish(ctx, tabID)
	case "reset":
		_, err = h.service.Reset(ctx, tabID)
	case "questions":
		qs, qerr := h.service.Questions(ctx, tabID)
		if qerr != nil {
			return errorMessage(toErrorPayload(qerr)), true
		}
		return outboundMessage[any]{Type: "questions", Payload: presentQuestions(qs)}, true
	case "summary":
		s, serr := h.service.Summary(ctx, tabID)
		if serr != nil {
			return errorMessage(toErrorPayload(serr)), true
		}
		return outboundMessage[any]{Type: "summary", Payload: s}, true
	default:
		return errorMessage(errorPayload{Code: CodeBadMessage, Message: "unsupported message type"}), true
	}
	if err != nil {
		return errorMessage(toErrorPayload(err)), true
	}
	return outboundMessage[any]{}, false
}

// decode accepts an absent payload as the zero value.
func decode(raw json.RawMessage, into any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, into)
}

func errorMessage(p errorPayload) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: p}
}

func badMessage(typ string) outboundMessage[any] {
	return errorMessage(errorPayload{Code: CodeBadMessage, Message: "invalid " + typ + " payload"})
}
