package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rl1809/dapr-shop/internal/core/domain"
)

var subscribedTopics = []string{
	domain.TopicOrderCreated,
	domain.TopicOrderStatusUpdated,
	domain.TopicInventoryAlert,
}

var eventLabels = map[string]string{
	domain.TopicOrderCreated:       "order created",
	domain.TopicOrderStatusUpdated: "order status updated",
	domain.TopicInventoryAlert:     "inventory alert",
}

type Subscription struct {
	PubSubName string `json:"pubsubname"`
	Topic      string `json:"topic"`
	Route      string `json:"route"`
}

type eventAck struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// Subscriptions tells the sidecar which topics to push to this app.
func (h *HTTPHandler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	subs := make([]Subscription, 0, len(subscribedTopics))
	for _, topic := range subscribedTopics {
		subs = append(subs, Subscription{
			PubSubName: h.opts.PubSubName,
			Topic:      topic,
			Route:      "/dapr/events/" + topic,
		})
	}
	h.logger.Info("dapr subscriptions requested", zap.Int("count", len(subs)))
	writeJSON(w, http.StatusOK, subs)
}

// PushEvent receives a pushed event. A non-2xx answer makes the sidecar
// redeliver.
func (h *HTTPHandler) PushEvent(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	label, ok := eventLabels[topic]
	if !ok {
		writeJSON(w, http.StatusNotFound, eventAck{Success: false, Error: "Unknown topic " + topic})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, eventAck{Success: false, Error: "Failed to read " + label + " event"})
		return
	}

	if err := h.notifications.HandleEvent(r.Context(), topic, eventPayload(body)); err != nil {
		h.logger.Error("error handling "+label+" event", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, eventAck{
			Success: false,
			Error:   "Failed to process " + label + " event",
			Details: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, eventAck{Success: true, Message: "Processed " + label + " event"})
}

// eventPayload unwraps a CloudEvent envelope; anything else is taken as the
// raw event.
func eventPayload(body []byte) []byte {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return body
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) > 0 && data[0] == '{' {
		return data
	}
	return body
}
