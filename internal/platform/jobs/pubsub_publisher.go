// Package jobs publishes background work for out-of-process workers.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
)

// AdmitCardEmail asks the mail worker to send a candidate their admit card.
type AdmitCardEmail struct {
	JobID             string    `json:"jobId"`
	ApplicationNumber string    `json:"applicationNumber"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	Union             string    `json:"union"`
	ExamCenter        string    `json:"examCenter"`
	ExamShift         string    `json:"examShift"`
	AdmitCardURL      string    `json:"admitCardUrl,omitempty"`
	QueuedAt          time.Time `json:"queuedAt"`
}

// AdmitCardEmailPublisher sends AdmitCardEmail jobs to a Pub/Sub topic.
type AdmitCardEmailPublisher struct {
	topic *pubsub.Topic
}

// NewAdmitCardEmailPublisher wraps topic.
func NewAdmitCardEmailPublisher(topic *pubsub.Topic) (*AdmitCardEmailPublisher, error) {
	if topic == nil {
		return nil, errors.New("admit card email publisher: topic is required")
	}
	return &AdmitCardEmailPublisher{topic: topic}, nil
}

// PublishAdmitCardEmail publishes job and waits for the server message id.
// The worker dedupes on the applicationNumber attribute.
func (p *AdmitCardEmailPublisher) PublishAdmitCardEmail(ctx context.Context, job AdmitCardEmail) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal admit card email: %w", err)
	}
	attrs := map[string]string{"type": "admit_card_email"}
	for key, value := range map[string]string{
		"jobId":             job.JobID,
		"applicationNumber": job.ApplicationNumber,
	} {
		if value = strings.TrimSpace(value); value != "" {
			attrs[key] = value
		}
	}

	id, err := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish admit card email: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *AdmitCardEmailPublisher) Stop() {
	p.topic.Stop()
}
