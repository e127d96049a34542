// Package gmail reads candidate documents from Gmail message attachments.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kirillkom/paperflow/internal/core/domain"
	"github.com/kirillkom/paperflow/internal/infrastructure/resilience"
)

const (
	DefaultQuery      = "has:attachment (invoice OR payroll OR contract OR notification OR facture OR paie OR contrat)"
	DefaultMaxResults = 100
	userID            = "me"
)

type Config struct {
	CredentialsPath string
	TokenPath       string
	Query           string
	MaxResults      int64
}

func (c Config) normalize() Config {
	if strings.TrimSpace(c.Query) == "" {
		c.Query = DefaultQuery
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	return c
}

// Source implements ports.CandidateSource with a read-only Gmail scope.
// Messages stay in the mailbox; Release is a no-op.
type Source struct {
	service  *gmail.Service
	cfg      Config
	executor *resilience.Executor
}

// New builds the Gmail client from an OAuth client credentials file and an
// already issued token file.
func New(ctx context.Context, cfg Config, executor *resilience.Executor) (*Source, error) {
	credentials, err := os.ReadFile(cfg.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read gmail credentials: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(credentials, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gmail credentials: %w", err)
	}
	token, err := readToken(cfg.TokenPath)
	if err != nil {
		return nil, err
	}

	service, err := gmail.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return NewWithService(service, cfg, executor), nil
}

func NewWithService(service *gmail.Service, cfg Config, executor *resilience.Executor) *Source {
	return &Source{service: service, cfg: cfg.normalize(), executor: executor}
}

func readToken(path string) (*oauth2.Token, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gmail token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("failed to parse gmail token: %w", err)
	}
	return &token, nil
}

func (s *Source) ListMessages(ctx context.Context) ([]string, error) {
	var resp *gmail.ListMessagesResponse
	err := s.execute(ctx, "gmail.list", func(callCtx context.Context) error {
		var err error
		resp, err = s.service.Users.Messages.List(userID).
			Q(s.cfg.Query).
			MaxResults(s.cfg.MaxResults).
			Context(callCtx).
			Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func (s *Source) FetchDocuments(ctx context.Context, sourceID string) ([]domain.CandidateDocument, error) {
	var msg *gmail.Message
	err := s.execute(ctx, "gmail.get", func(callCtx context.Context) error {
		var err error
		msg, err = s.service.Users.Messages.Get(userID, sourceID).Format("full").Context(callCtx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if msg.Payload == nil {
		return []domain.CandidateDocument{}, nil
	}

	subject := header(msg.Payload, "Subject")
	receivedAt := time.UnixMilli(msg.InternalDate).UTC()

	parts := attachmentParts(msg.Payload)
	docs := make([]domain.CandidateDocument, 0, len(parts))
	for _, part := range parts {
		data, err := s.attachmentData(ctx, sourceID, part)
		if err != nil {
			return nil, err
		}
		docs = append(docs, domain.CandidateDocument{
			SourceID:     sourceID,
			AttachmentID: part.PartId,
			Filename:     part.Filename,
			MimeType:     part.MimeType,
			Subject:      subject,
			Data:         data,
			ReceivedAt:   receivedAt,
		})
	}
	return docs, nil
}

func (s *Source) Release(context.Context, domain.CandidateDocument) error {
	return nil
}

func (s *Source) attachmentData(ctx context.Context, messageID string, part *gmail.MessagePart) ([]byte, error) {
	if part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	var body *gmail.MessagePartBody
	err := s.execute(ctx, "gmail.attachment", func(callCtx context.Context) error {
		var err error
		body, err = s.service.Users.Messages.Attachments.Get(userID, messageID, part.Body.AttachmentId).Context(callCtx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %s: %w", part.Filename, err)
	}
	return decodeBody(body.Data)
}

func (s *Source) execute(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	if s.executor == nil {
		err = fn(ctx)
	} else {
		err = s.executor.Execute(ctx, op, fn, classifyGmailError)
	}
	if code, ok := gmailStatus(err); ok && (code == http.StatusUnauthorized || code == http.StatusForbidden) {
		return domain.WrapError(domain.ErrUnauthorized, op, err)
	}
	return resilience.MarkTemporary(op, err, classifyGmailError)
}

// attachmentParts walks the MIME tree depth first and keeps named parts with content.
func attachmentParts(part *gmail.MessagePart) []*gmail.MessagePart {
	if part == nil {
		return nil
	}
	var out []*gmail.MessagePart
	if part.Filename != "" && part.Body != nil && (part.Body.AttachmentId != "" || part.Body.Data != "") {
		out = append(out, part)
	}
	for _, child := range part.Parts {
		out = append(out, attachmentParts(child)...)
	}
	return out
}

func header(part *gmail.MessagePart, name string) string {
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// decodeBody accepts padded and unpadded base64url, Gmail emits both.
func decodeBody(data string) ([]byte, error) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err == nil {
		return decoded, nil
	}
	decoded, rawErr := base64.RawURLEncoding.DecodeString(data)
	if rawErr != nil {
		return nil, fmt.Errorf("failed to decode attachment body: %w", err)
	}
	return decoded, nil
}

var classifyGmailError = resilience.NewClassifier(gmailStatus)

// gmailStatus reports quota 403s as 429 so they are retried and surface as
// temporary instead of unauthorized.
func gmailStatus(err error) (int, bool) {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return 0, false
	}
	if apiErr.Code == http.StatusForbidden {
		for _, item := range apiErr.Errors {
			switch item.Reason {
			case "userRateLimitExceeded", "rateLimitExceeded":
				return http.StatusTooManyRequests, true
			}
		}
	}
	return apiErr.Code, true
}
