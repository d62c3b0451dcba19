// Package notify delivers best-effort workflow notifications to a Microsoft Teams
// incoming webhook. Delivery failures are logged and reported through the boolean
// result; they never fail the workflow that triggered them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ngen-tools/ngen/internal/gitops"
)

const (
	messageCardTypeConstant              = "MessageCard"
	messageCardContextConstant           = "http://schema.org/extensions"
	defaultThemeColorConstant            = "0076D7"
	defaultDeliveryTimeoutConstant       = 10 * time.Second
	contentTypeHeaderNameConstant        = "Content-Type"
	jsonContentTypeConstant              = "application/json"
	notificationFailedMessageConstant    = "notification delivery failed"
	notificationRejectedMessageConstant  = "notification rejected by webhook"
	notificationDeliveredMessageConstant = "notification delivered"
	logFieldNotificationTitleConstant    = "title"
	logFieldStatusConstant               = "status"
)

type messageCardPayload struct {
	Type       string               `json:"@type"`
	Context    string               `json:"@context"`
	ThemeColor string               `json:"themeColor"`
	Summary    string               `json:"summary"`
	Title      string               `json:"title"`
	Text       string               `json:"text"`
	Sections   []messageCardSection `json:"sections,omitempty"`
}

type messageCardSection struct {
	Facts []messageCardFact `json:"facts"`
}

type messageCardFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TeamsNotifier posts workflow notifications as Teams message cards.
type TeamsNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ gitops.Notifier = (*TeamsNotifier)(nil)

// NewTeamsNotifier constructs a TeamsNotifier for the given webhook URL.
func NewTeamsNotifier(webhookURL string, httpClient *http.Client, logger *zap.Logger) *TeamsNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultDeliveryTimeoutConstant}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeamsNotifier{webhookURL: webhookURL, httpClient: httpClient, logger: logger}
}

// Notify posts the notification and reports delivery. Every failure path logs a
// warning and returns false without surfacing an error to the caller.
func (notifier *TeamsNotifier) Notify(executionContext context.Context, notification gitops.Notification) bool {
	if len(notifier.webhookURL) == 0 {
		return false
	}

	themeColor := notification.Color
	if len(themeColor) == 0 {
		themeColor = defaultThemeColorConstant
	}

	cardPayload := messageCardPayload{
		Type:       messageCardTypeConstant,
		Context:    messageCardContextConstant,
		ThemeColor: themeColor,
		Summary:    notification.Title,
		Title:      notification.Title,
		Text:       notification.Message,
	}
	if len(notification.Facts) > 0 {
		cardFacts := make([]messageCardFact, 0, len(notification.Facts))
		for factName, factValue := range notification.Facts {
			cardFacts = append(cardFacts, messageCardFact{Name: factName, Value: factValue})
		}
		cardPayload.Sections = []messageCardSection{{Facts: cardFacts}}
	}

	encodedPayload, encodeError := json.Marshal(cardPayload)
	if encodeError != nil {
		notifier.logger.Warn(
			notificationFailedMessageConstant,
			zap.String(logFieldNotificationTitleConstant, notification.Title),
			zap.Error(encodeError),
		)
		return false
	}

	request, requestError := http.NewRequestWithContext(executionContext, http.MethodPost, notifier.webhookURL, bytes.NewReader(encodedPayload))
	if requestError != nil {
		notifier.logger.Warn(
			notificationFailedMessageConstant,
			zap.String(logFieldNotificationTitleConstant, notification.Title),
			zap.Error(requestError),
		)
		return false
	}
	request.Header.Set(contentTypeHeaderNameConstant, jsonContentTypeConstant)

	response, deliveryError := notifier.httpClient.Do(request)
	if deliveryError != nil {
		notifier.logger.Warn(
			notificationFailedMessageConstant,
			zap.String(logFieldNotificationTitleConstant, notification.Title),
			zap.Error(deliveryError),
		)
		return false
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode >= http.StatusMultipleChoices {
		notifier.logger.Warn(
			notificationRejectedMessageConstant,
			zap.String(logFieldNotificationTitleConstant, notification.Title),
			zap.Int(logFieldStatusConstant, response.StatusCode),
		)
		return false
	}

	notifier.logger.Debug(
		notificationDeliveredMessageConstant,
		zap.String(logFieldNotificationTitleConstant, notification.Title),
	)
	return true
}
