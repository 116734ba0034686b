// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package notifier is the abstracted-away notification sink named in
// spec.M. The concrete Slack/webhook delivery mechanism is an
// external collaborator per spec.§1; this package owns the interface
// and the duplicate-suppression window spec.§6 requires of any
// implementation.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/duro-sh/duro/internal/metrics"
)

// Class enumerates the notification classes spec.§6 names.
type Class string

const (
	ClassSuccess Class = "success"
	ClassFailure Class = "failure"
	ClassLog     Class = "log"
)

// Notifier delivers one notification, identified by (title, class),
// with at-most-once-per-window semantics for identical calls.
type Notifier interface {
	Notify(ctx context.Context, text, title string, class Class) error
}

const suppressWindow = 10 * time.Minute

// WebhookNotifier posts to a single webhook URL, per-class channel
// routing resolved from config, and enforces the ten-minute duplicate
// suppression window spec.§6 requires.
type WebhookNotifier struct {
	url      string
	channels map[string]string // class -> channel
	client   *http.Client

	mu   sync.Mutex
	seen map[string]time.Time
}

// New returns a WebhookNotifier posting to url, routing by the
// class->channel map from the [notifier] config section.
func New(url string, channels map[string]string) *WebhookNotifier {
	return &WebhookNotifier{
		url:      url,
		channels: channels,
		client:   &http.Client{Timeout: 10 * time.Second},
		seen:     make(map[string]time.Time),
	}
}

// Notify delivers (text, title, class), suppressing an identical
// (title, class, text) call seen within the last ten minutes.
func (n *WebhookNotifier) Notify(ctx context.Context, text, title string, class Class) error {
	key := strings.Join([]string{string(class), title, text}, "\x00")

	n.mu.Lock()
	if last, ok := n.seen[key]; ok && time.Since(last) < suppressWindow {
		n.mu.Unlock()
		metrics.NotifierSuppressed.WithLabelValues(string(class)).Inc()
		return nil
	}
	n.seen[key] = time.Now()
	n.mu.Unlock()

	channel := n.channels[string(class)]
	body, err := json.Marshal(struct {
		Channel string `json:"channel"`
		Title   string `json:"title"`
		Text    string `json:"text"`
	}{channel, title, text})
	if err != nil {
		return errors.Wrap(err, "encoding notifier payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building notifier request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "delivering notification")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return errors.Errorf("notifier returned status %s", resp.Status)
	}
	return nil
}
