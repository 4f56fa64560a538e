package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chat-live/internal/errs"
	"chat-live/internal/models"
	"chat-live/internal/registry"
	"chat-live/pkg/logger"

	"github.com/rs/zerolog"
)

// ErrorFrame renders err as an error frame answering requestID.
func ErrorFrame(requestID string, err error) []byte {
	data, _ := json.Marshal(models.ServerFrame{
		Type:      models.ServerFrameError,
		RequestID: requestID,
		Error:     &models.ErrorBody{Code: errs.Code(err), Message: err.Error()},
	})
	return data
}

// Dispatcher decodes the frames of one connection and drives its session.
// It implements websocket.FrameHandler.
type Dispatcher struct {
	ctx     context.Context
	session *Session
	conn    registry.Conn
	timeout time.Duration
	log     zerolog.Logger
}

// NewDispatcher binds a session to its connection. Operations run under ctx
// and are each bounded by timeout when it is positive.
func NewDispatcher(ctx context.Context, s *Session, conn registry.Conn, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		ctx:     ctx,
		session: s,
		conn:    conn,
		timeout: timeout,
		log:     logger.Module("dispatcher").With().Str("conn", string(s.ID())).Logger(),
	}
}

func (d *Dispatcher) HandleFrame(data []byte) {
	var f models.ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		d.reply(ErrorFrame("", fmt.Errorf("%w: malformed frame", errs.ErrInvalidRequest)))
		return
	}
	d.Handle(&f)
}

func (d *Dispatcher) HandleDisconnect() {
	d.session.Close()
}

// Handle runs one decoded request and writes its reply.
func (d *Dispatcher) Handle(f *models.ClientFrame) {
	ctx := d.ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	payload, err := d.dispatch(ctx, f)
	if err != nil {
		d.logFailure(f.Type, err)
		d.reply(ErrorFrame(f.RequestID, err))
		if errors.Is(err, errs.ErrAuthentication) {
			d.session.Close()
		}
		return
	}

	frameType := models.ServerFrameAck
	if f.Type == models.FramePing {
		frameType = models.ServerFramePong
	}
	data, err := json.Marshal(models.ServerFrame{Type: frameType, RequestID: f.RequestID, Payload: payload})
	if err != nil {
		d.log.Error().Err(err).Str("frame", string(f.Type)).Msg("encode reply")
		return
	}
	d.reply(data)
}

func (d *Dispatcher) dispatch(ctx context.Context, f *models.ClientFrame) (any, error) {
	s := d.session
	switch f.Type {
	case models.FrameAuthenticate:
		return s.Authenticate(ctx, f.Token)

	case models.FrameJoin:
		return nil, s.Join(f.PartnerID)

	case models.FrameLeave:
		return nil, s.Leave(f.PartnerID)

	case models.FrameSend:
		return s.Send(ctx, &models.MessageDraft{
			ReceiverID:          f.ReceiverID,
			Body:                f.Body,
			Kind:                f.Kind,
			Attachments:         f.Attachments,
			ConversationContext: f.Context,
		})

	case models.FrameTypingStart:
		return nil, s.TypingStart(ctx, f.PartnerID)

	case models.FrameTypingStop:
		return nil, s.TypingStop(ctx, f.PartnerID)

	case models.FrameMarkRead:
		n, err := s.MarkRead(ctx, f.PartnerID)
		if err != nil {
			return nil, err
		}
		return models.CountPayload{Count: n}, nil

	case models.FrameSetPresence:
		return nil, s.SetPresence(ctx, f.Status)

	case models.FrameHistory:
		return s.History(ctx, f.PartnerID, f.Page, f.PageSize)

	case models.FrameUnreadCount:
		n, err := s.UnreadCount(ctx)
		if err != nil {
			return nil, err
		}
		return models.UnreadPayload{Unread: n}, nil

	case models.FramePing:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: unknown frame type %q", errs.ErrInvalidRequest, f.Type)
}

func (d *Dispatcher) reply(frame []byte) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(d.ctx), 5*time.Second)
	defer cancel()
	if err := d.conn.Send(ctx, frame); err != nil {
		d.log.Debug().Err(err).Msg("reply not delivered")
	}
}

func (d *Dispatcher) logFailure(frame models.FrameType, err error) {
	var ev *zerolog.Event
	switch {
	case errors.Is(err, errs.ErrPersistence), errs.Code(err) == "internal_error":
		ev = d.log.Warn()
	default:
		ev = d.log.Debug()
	}
	ev.Err(err).Str("frame", string(frame)).Msg("request failed")
}
