package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"agencycrm/internal/platform/config"
	"agencycrm/internal/platform/models"
)

const EventInviteCreated = "invite.created"

type Event struct {
	ID          string      `json:"id"`
	Event       string      `json:"event"`
	Timestamp   int64       `json:"timestamp"`
	WorkspaceID string      `json:"workspace_id"`
	Data        interface{} `json:"data"`
}

// InvitePayload carries what an external mailer needs to send the invite email.
type InvitePayload struct {
	InviteID      string `json:"invite_id"`
	WorkspaceID   string `json:"workspace_id"`
	WorkspaceName string `json:"workspace_name"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	Token         string `json:"token"`
	InvitedBy     string `json:"invited_by"`
	ExpiresAt     int64  `json:"expires_at"`
}

// Dispatcher posts signed events to the configured endpoints. Delivery runs in
// the background and failures are only logged.
type Dispatcher struct {
	endpoints []string
	secret    string
	timeout   time.Duration
	client    *http.Client
	now       func() time.Time
	wg        sync.WaitGroup
}

func NewDispatcher(cfg config.NotifyConfig) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		endpoints: cfg.Endpoints,
		secret:    cfg.Secret,
		timeout:   timeout,
		client:    &http.Client{},
		now:       time.Now,
	}
}

func (d *Dispatcher) Enabled() bool {
	return len(d.endpoints) > 0
}

// InviteCreated announces a new invite.
func (d *Dispatcher) InviteCreated(invite *models.TeamInvite, ws *models.Workspace, invitedBy string) {
	d.Dispatch(EventInviteCreated, invite.WorkspaceID, &InvitePayload{
		InviteID:      invite.ID,
		WorkspaceID:   invite.WorkspaceID,
		WorkspaceName: ws.Name,
		Email:         invite.Email,
		Role:          invite.Role,
		Token:         invite.Token,
		InvitedBy:     invitedBy,
		ExpiresAt:     invite.ExpiresAt,
	})
}

func (d *Dispatcher) Dispatch(eventType, workspaceID string, data interface{}) {
	if !d.Enabled() {
		return
	}

	event := &Event{
		ID:          "evt_" + uuid.NewString(),
		Event:       eventType,
		Timestamp:   d.now().Unix(),
		WorkspaceID: workspaceID,
		Data:        data,
	}

	for _, endpoint := range d.endpoints {
		d.wg.Add(1)
		go func(url string) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := d.Deliver(ctx, url, event); err != nil {
				log.Warn().Err(err).Str("endpoint", url).Str("event", event.Event).Str("delivery", event.ID).Msg("Notification delivery failed")
			}
		}(endpoint)
	}
}

// Deliver posts one event to url and waits for the response.
func (d *Dispatcher) Deliver(ctx context.Context, url string, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CRM-Signature", Sign(d.secret, payload))
	req.Header.Set("X-CRM-Event", event.Event)
	req.Header.Set("X-CRM-Delivery", event.ID)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
