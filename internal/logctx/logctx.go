// Package logctx enriches slog records with ship, channel and subscription
// attributes carried in the context. The wrapping handler is installed by the
// client constructor so that every log line produced inside a channel
// operation identifies which ship and channel it belongs to without the call
// sites threading those values by hand.
package logctx

import (
	"context"
	"log/slog"
)

type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if sd, ok := ctx.Value(shipDataKey{}).(*ShipData); ok {
		r.AddAttrs(slog.Group("ship",
			slog.String("name", sd.Name),
			slog.String("url", sd.URL),
		))
	}

	if cd, ok := ctx.Value(channelDataKey{}).(*ChannelData); ok {
		r.AddAttrs(slog.Group("chan",
			slog.String("uid", cd.UID),
		))
	}

	if sd, ok := ctx.Value(subDataKey{}).(*SubscriptionData); ok {
		r.AddAttrs(slog.Group("sub",
			slog.Uint64("id", sd.ID),
			slog.String("app", sd.App),
			slog.String("path", sd.Path),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type shipDataKey struct{}

type ShipData struct {
	Name string
	URL  string
}

func WithShipData(ctx context.Context, data *ShipData) context.Context {
	return context.WithValue(ctx, shipDataKey{}, data)
}

type channelDataKey struct{}

type ChannelData struct {
	UID string
}

func WithChannelData(ctx context.Context, data *ChannelData) context.Context {
	return context.WithValue(ctx, channelDataKey{}, data)
}

type subDataKey struct{}

type SubscriptionData struct {
	ID   uint64
	App  string
	Path string
}

func WithSubscriptionData(ctx context.Context, data *SubscriptionData) context.Context {
	return context.WithValue(ctx, subDataKey{}, data)
}
