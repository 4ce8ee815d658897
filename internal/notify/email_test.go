package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{FromEmail: "bookings@example.com"}, nil)
	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "bookings@example.com"}, nil)
	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != DefaultFromName {
		t.Errorf("expected default from name %q, got %q", DefaultFromName, sender.fromName)
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}
	err := sender.Send(context.Background(), EmailMessage{To: "dana@example.com", Subject: "Test", Body: "Test body"})
	if err == nil {
		t.Error("expected error when client is nil")
	}
}

func TestStubEmailSender_Send(t *testing.T) {
	sender := NewStubEmailSender(nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "dana@example.com", Subject: "Booked", Body: "See you"}); err != nil {
		t.Errorf("stub sender should not return error, got: %v", err)
	}
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender_BuildsMessage(t *testing.T) {
	api := &fakeSES{}
	sender := NewSESSender(api, SESConfig{FromEmail: "bookings@example.com", FromName: "Polished"}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:       "dana@example.com",
		Subject:  "Your Pedicure is booked",
		Body:     "See you Tuesday",
		Category: "appointment.booked.v1",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	in := api.input
	if got := aws.ToString(in.FromEmailAddress); got != "Polished <bookings@example.com>" {
		t.Errorf("unexpected from: %s", got)
	}
	if len(in.Destination.ToAddresses) != 1 || in.Destination.ToAddresses[0] != "dana@example.com" {
		t.Errorf("unexpected recipients: %v", in.Destination.ToAddresses)
	}
	if got := aws.ToString(in.Content.Simple.Body.Text.Data); got != "See you Tuesday" {
		t.Errorf("unexpected body: %s", got)
	}
	if in.Content.Simple.Body.Html != nil {
		t.Error("html body should be omitted")
	}
	if len(in.EmailTags) != 1 || aws.ToString(in.EmailTags[0].Value) != "appointment_booked_v1" {
		t.Errorf("unexpected tags: %+v", in.EmailTags)
	}
}

func TestSESSender_WrapsError(t *testing.T) {
	boom := errors.New("throttled")
	sender := NewSESSender(&fakeSES{err: boom}, SESConfig{FromEmail: "bookings@example.com"}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "dana@example.com"}); !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}
