package nats

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/previews"
	"github.com/nats-io/nats.go"
)

// AssetOps is what the consumers need from the asset service.
type AssetOps interface {
	DeleteOwnerAssets(ctx context.Context, ownerID string) (int, error)
	DeriveAndRecord(ctx context.Context, t previews.Task) error
}

type UserDeletedPayload struct {
	UserID string `json:"user_id"`
}

type Handlers struct {
	assets  AssetOps
	timeout time.Duration
}

func NewHandlers(assets AssetOps) *Handlers {
	return &Handlers{assets: assets, timeout: time.Minute}
}

// HandleUserDeleted removes every asset of the deleted user through the
// regular delete path.
func (h *Handlers) HandleUserDeleted(msg *nats.Msg) {
	var payload UserDeletedPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Printf("[NATS] users.deleted: invalid JSON: %v", err)
		term(msg)
		return
	}
	if payload.UserID == "" {
		log.Printf("[NATS] users.deleted: missing user_id")
		term(msg)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	deleted, err := h.assets.DeleteOwnerAssets(ctx, payload.UserID)
	if err != nil {
		log.Printf("[NATS] users.deleted: cleanup for %s stopped after %d assets: %v", payload.UserID, deleted, err)
		nak(msg)
		return
	}
	log.Printf("[NATS] deleted %d assets for user %s", deleted, payload.UserID)
	ack(msg)
}

// HandleDeriveRequested runs a queued thumbnail task. Failed derivations
// are acknowledged: the asset stays valid without a thumbnail.
func (h *Handlers) HandleDeriveRequested(msg *nats.Msg) {
	var task previews.Task
	if err := json.Unmarshal(msg.Data, &task); err != nil || task.StorageName == "" {
		log.Printf("[NATS] assets.derive: invalid payload: %v", err)
		term(msg)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.assets.DeriveAndRecord(ctx, task); err != nil {
		log.Printf("[NATS] assets.derive: %s: %v", task.StorageName, err)
	}
	ack(msg)
}

// ack safely acknowledges the message
func ack(msg *nats.Msg) {
	if err := msg.Ack(); err != nil {
		log.Printf("[NATS] failed to ack message: %v", err)
	}
}

// nak asks for redelivery
func nak(msg *nats.Msg) {
	if err := msg.Nak(); err != nil {
		log.Printf("[NATS] failed to nak message: %v", err)
	}
}

// term drops a message that can never succeed
func term(msg *nats.Msg) {
	if err := msg.Term(); err != nil {
		log.Printf("[NATS] failed to term message: %v", err)
	}
}
