package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/fintalk/server/internal/store"
	logx "github.com/fintalk/server/pkg/logger"
)

// CardStore is the cardholder persistence the card tools depend on.
type CardStore interface {
	FindByPhone(ctx context.Context, phone string) (*store.Cardholder, error)
	SetStatus(ctx context.Context, ch *store.Cardholder, status store.CardStatus) error
}

type cardInput struct {
	PhoneNumber string `json:"phone_number"`
}

// normalizePhone restores the "+" prefix that models tend to drop when
// echoing phone numbers back as tool arguments.
func normalizePhone(phone string) string {
	if !strings.HasPrefix(phone, "+") {
		return "+" + phone
	}
	return phone
}

// ===================================
// Credit Card Blocking Tool
// ===================================

type blockCardTool struct {
	cards CardStore
}

// NewBlockCreditCard builds the tool that blocks a cardholder's credit card
// by phone-number lookup. All outcomes, including lookup misses and database
// failures, are reported to the model as plain text.
func NewBlockCreditCard(cards CardStore) tool.InvokableTool {
	return &blockCardTool{cards: cards}
}

func (t *blockCardTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "block_credit_card",
		Desc: "Blocks a credit card associated with the given phone number. " +
			"Use this tool when the user requests to block their credit card, " +
			"reports a lost or stolen card, or asks to deactivate their card.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"phone_number": {
				Type:     "string",
				Desc:     "The phone number associated with the account (e.g., \"+1234567890\")",
				Required: true,
			},
		}),
	}, nil
}

func (t *blockCardTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in cardInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &in); err != nil {
		return fmt.Sprintf("Error blocking credit card: %v", err), nil
	}

	phone := normalizePhone(in.PhoneNumber)
	logx.Info().Str("phone", phone).Msg("attempting to block credit card")

	ch, err := t.cards.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logx.Warn().Str("phone", phone).Msg("no cardholder found")
			return fmt.Sprintf("No cardholder found with phone number: %s", phone), nil
		}
		logx.Error().Err(err).Msg("error blocking credit card")
		return fmt.Sprintf("Error blocking credit card: %v", err), nil
	}

	if ch.Status == store.StatusBlocked {
		logx.Info().Str("phone", phone).Msg("card is already blocked")
		return fmt.Sprintf(
			"Credit card for phone number %s is already blocked.\nCard ending in: %s\nUsername: %s",
			phone, ch.LastFour(), ch.Username,
		), nil
	}

	if err := t.cards.SetStatus(ctx, ch, store.StatusBlocked); err != nil {
		logx.Error().Err(err).Msg("error blocking credit card")
		return fmt.Sprintf("Error blocking credit card: %v", err), nil
	}

	logx.Info().Str("phone", phone).Msg("successfully blocked credit card")
	return fmt.Sprintf(
		"Successfully blocked credit card for phone number %s.\nCard ending in: %s\nUsername: %s\nBlocked at: %s",
		phone, ch.LastFour(), ch.Username, ch.UpdatedAt.Format(time.RFC3339Nano),
	), nil
}

// ===================================
// Credit Card Enabling Tool
// ===================================

type enableCardTool struct {
	cards CardStore
}

// NewEnableCreditCard builds the tool that reactivates a previously blocked
// credit card.
func NewEnableCreditCard(cards CardStore) tool.InvokableTool {
	return &enableCardTool{cards: cards}
}

func (t *enableCardTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "enable_credit_card",
		Desc: "Enables a previously blocked credit card associated with the given phone number. " +
			"Use this tool when the user requests to enable, unblock, or reactivate their " +
			"credit card, or asks to restore card functionality.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"phone_number": {
				Type:     "string",
				Desc:     "The phone number associated with the account (e.g., \"+1234567890\")",
				Required: true,
			},
		}),
	}, nil
}

func (t *enableCardTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in cardInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &in); err != nil {
		return fmt.Sprintf("Error enabling credit card: %v", err), nil
	}

	phone := normalizePhone(in.PhoneNumber)
	logx.Info().Str("phone", phone).Msg("attempting to enable credit card")

	ch, err := t.cards.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logx.Warn().Str("phone", phone).Msg("no cardholder found")
			return fmt.Sprintf("No cardholder found with phone number: %s", phone), nil
		}
		logx.Error().Err(err).Msg("error enabling credit card")
		return fmt.Sprintf("Error enabling credit card: %v", err), nil
	}

	if ch.Status == store.StatusActive {
		logx.Info().Str("phone", phone).Msg("card is already active")
		return fmt.Sprintf(
			"Credit card for phone number %s is already active.\nCard ending in: %s\nUsername: %s",
			phone, ch.LastFour(), ch.Username,
		), nil
	}

	if err := t.cards.SetStatus(ctx, ch, store.StatusActive); err != nil {
		logx.Error().Err(err).Msg("error enabling credit card")
		return fmt.Sprintf("Error enabling credit card: %v", err), nil
	}

	logx.Info().Str("phone", phone).Msg("successfully enabled credit card")
	return fmt.Sprintf(
		"Successfully enabled credit card for phone number %s.\nCard ending in: %s\nUsername: %s\nEnabled at: %s",
		phone, ch.LastFour(), ch.Username, ch.UpdatedAt.Format(time.RFC3339Nano),
	), nil
}
