package call

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/acme/announcement-call/internal/config"
	"github.com/acme/announcement-call/internal/domain"
	"github.com/acme/announcement-call/internal/queue"
	"github.com/acme/announcement-call/internal/telephony"
	apperrors "github.com/acme/announcement-call/pkg/errors"
	"github.com/acme/announcement-call/pkg/logger"
)

// fakeClient records every call-control operation in order.
type fakeClient struct {
	ops []string

	createErr   error
	connectAt   int // poll attempt that reports connected; 0 means never
	pollErrs    map[int]error
	playErr     error
	hangUpErr   error
	polls       int
	lastCreate  telephony.CreateCallParams
	lastPlayURL string
}

func (f *fakeClient) CreateCall(_ context.Context, params telephony.CreateCallParams) (*telephony.CallConnection, error) {
	f.ops = append(f.ops, "create")
	f.lastCreate = params
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &telephony.CallConnection{ID: "conn-1", State: "connecting", From: params.From, To: params.To}, nil
}

func (f *fakeClient) GetCallConnectionProperties(_ context.Context, id string) (*telephony.CallConnection, error) {
	f.polls++
	f.ops = append(f.ops, "poll")
	if err := f.pollErrs[f.polls]; err != nil {
		return nil, err
	}
	state := "connecting"
	if f.connectAt > 0 && f.polls >= f.connectAt {
		state = telephony.StateConnected
	}
	return &telephony.CallConnection{ID: id, State: state}, nil
}

func (f *fakeClient) PlayMedia(_ context.Context, _ string, audioURL string) error {
	f.ops = append(f.ops, "play")
	f.lastPlayURL = audioURL
	return f.playErr
}

func (f *fakeClient) HangUp(context.Context, string) error {
	f.ops = append(f.ops, "hangup")
	return f.hangUpErr
}

func (f *fakeClient) count(op string) int {
	n := 0
	for _, o := range f.ops {
		if o == op {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	events []queue.CallEvent
}

func (p *recordingPublisher) PublishCallEvent(_ context.Context, e queue.CallEvent) error {
	p.events = append(p.events, e)
	return nil
}

type sleepRecorder struct {
	waits []time.Duration
	err   error
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return r.err
}

func testConfig() config.CommunicationConfig {
	return config.CommunicationConfig{
		FromPhoneNumber: "+15550000000",
		DefaultAudioURL: "http://localhost:7071/api/GetAudio",
		CallbackURL:     "https://example.test/api/CallEvents",
	}
}

func newTestService(client *fakeClient, cfg config.CommunicationConfig) (*Service, *sleepRecorder, *recordingPublisher) {
	pub := &recordingPublisher{}
	svc := NewService(client, pub, cfg, logger.Nop())
	rec := &sleepRecorder{}
	svc.sleep = rec.sleep
	return svc, rec, pub
}

func TestPlaceAnnouncementCallRequiresDestination(t *testing.T) {
	client := &fakeClient{connectAt: 1}
	svc, _, _ := newTestService(client, testConfig())

	_, err := svc.PlaceAnnouncementCall(context.Background(), domain.CallRequest{})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err.Error() != "toPhoneNumber is required" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if len(client.ops) != 0 {
		t.Fatalf("expected no external calls, got %v", client.ops)
	}
}

func TestPlaceAnnouncementCallSuccess(t *testing.T) {
	client := &fakeClient{connectAt: 3}
	svc, rec, pub := newTestService(client, testConfig())

	out, err := svc.PlaceAnnouncementCall(context.Background(), domain.CallRequest{DestinationNumber: "+15551234567"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := domain.CallOutcome{
		Success:          true,
		CallConnectionID: "conn-1",
		From:             "+15550000000",
		To:               "+15551234567",
		Message:          "Call initiated and audio playback started",
		AudioURL:         "http://localhost:7071/api/GetAudio",
	}
	if *out != want {
		t.Fatalf("unexpected outcome\n got: %+v\nwant: %+v", *out, want)
	}

	wantOps := []string{"create", "poll", "poll", "poll", "play", "hangup"}
	if len(client.ops) != len(wantOps) {
		t.Fatalf("unexpected ops %v", client.ops)
	}
	for i := range wantOps {
		if client.ops[i] != wantOps[i] {
			t.Fatalf("unexpected ops %v", client.ops)
		}
	}

	if client.lastCreate.CallbackURL != "https://example.test/api/CallEvents" || client.lastCreate.From != "+15550000000" {
		t.Fatalf("unexpected create params %+v", client.lastCreate)
	}
	if client.lastPlayURL != want.AudioURL {
		t.Fatalf("expected default audio url, got %q", client.lastPlayURL)
	}

	wantWaits := []time.Duration{PollInterval, PollInterval, PollInterval, PlaybackWait}
	if len(rec.waits) != len(wantWaits) {
		t.Fatalf("unexpected waits %v", rec.waits)
	}
	for i := range wantWaits {
		if rec.waits[i] != wantWaits[i] {
			t.Fatalf("unexpected waits %v", rec.waits)
		}
	}

	if len(pub.events) != 1 || pub.events[0].State != string(domain.CallStateCompleted) || !pub.events[0].Success {
		t.Fatalf("unexpected events %+v", pub.events)
	}
}

func TestPlaceAnnouncementCallUsesConfiguredDestinationAndRequestAudio(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultToPhoneNumber = "+15559999999"
	client := &fakeClient{connectAt: 1}
	svc, _, _ := newTestService(client, cfg)

	out, err := svc.PlaceAnnouncementCall(context.Background(), domain.CallRequest{AudioURL: "https://cdn.test/custom.mp3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.To != "+15559999999" || out.AudioURL != "https://cdn.test/custom.mp3" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if client.lastPlayURL != "https://cdn.test/custom.mp3" {
		t.Fatalf("unexpected play url %q", client.lastPlayURL)
	}
}

func TestPlaceAnnouncementCallCreateFailure(t *testing.T) {
	client := &fakeClient{createErr: errors.New("number not provisioned")}
	svc, rec, _ := newTestService(client, testConfig())

	_, err := svc.PlaceAnnouncementCall(context.Background(), domain.CallRequest{DestinationNumber: "+15551234567"})
	if !errors.Is(err, apperrors.ErrCallCreation) {
		t.Fatalf("expected call creation error, got %v", err)
	}
	if client.count("hangup") != 0 || client.count("poll") != 0 {
		t.Fatalf("expected no further operations, got %v", client.ops)
	}
	if len(rec.waits) != 0 {
		t.Fatalf("expected no waits, got %v", rec.waits)
	}
}

func TestPlaceAnnouncementCallConnectTimeout(t *testing.T) {
	client := &fakeClient{}
	svc, rec, pub := newTestService(client, testConfig())

	out, err := svc.PlaceAnnouncementCall(context.Background(), domain.CallRequest{DestinationNumber: "+15551234567"})
	if err != nil {
		t.Fatalf("connect timeout must not be an error, got %v", err)
	}
	if out.Success || out.CallConnectionID != "conn-1" || out.Message != "Call initiated but not established yet" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.AudioURL != "" {
		t.Fatalf("did not expect audio url on timeout")
	}
	if client.polls != MaxPollAttempts {
		t.Fatalf("expected %d polls, got %d", MaxPollAttempts, client.polls)
	}
	if client.count("play") != 0 || client.count("hangup") != 0 {
		t.Fatalf("expected no playback and no hangup, got %v", client.ops)
	}
	for _, w := range rec.waits {
		if w != PollInterval {
			t.Fatalf("unexpected wait %v", w)
		}
	}
	if len(rec.waits) != MaxPollAttempts {
		t.Fatalf("expected %d waits, got %d", MaxPollAttempts, len(rec.waits))
	}
	if len(pub.events) != 1 || pub.events[0].State != string(domain.CallStateConnectTimeout) {
		t.Fatalf("unexpected events %+v", pub.events)
	}
}

func TestPlaceAnnouncementCallPollErrorsAreNotFatal(t *testing.T) {
	client := &fakeClient{
		connectAt: 4,
		pollErrs: map[int]error{
			1: errors.New("transient"),
			2: errors.New("transient"),
		},
	}
	svc, _, _ := newTestService(client, testConfig())

	out, err := svc.PlaceAnnouncementCall(context.Background(), domain.CallRequest{DestinationNumber: "+15551234567"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected success after transient poll failures, got %+v", out)
	}
	if client.polls != 4 {
		t.Fatalf("expected 4 polls, got %d", client.polls)
	}
}

func TestPlaceAnnouncementCallPlaybackFailureHangsUpOnce(t *testing.T) {
	playErr := errors.New("file source unreachable")
	cases := map[string]error{
		"hangup ok":     nil,
		"hangup failed": errors.New("already disconnected"),
	}

	for name, hangUpErr := range cases {
		t.Run(name, func(t *testing.T) {
			client := &fakeClient{connectAt: 1, playErr: playErr, hangUpErr: hangUpErr}
			svc, rec, pub := newTestService(client, testConfig())

			_, err := svc.PlaceAnnouncementCall(context.Background(), domain.CallRequest{DestinationNumber: "+15551234567"})
			if !errors.Is(err, apperrors.ErrPlayback) || !errors.Is(err, playErr) {
				t.Fatalf("expected playback error, got %v", err)
			}
			if hangUpErr != nil && errors.Is(err, hangUpErr) {
				t.Fatalf("hangup error must not surface")
			}
			if client.count("hangup") != 1 {
				t.Fatalf("expected exactly one hangup, got %v", client.ops)
			}
			for _, w := range rec.waits {
				if w == PlaybackWait {
					t.Fatalf("did not expect playback wait after failed playback")
				}
			}
			if len(pub.events) != 1 || pub.events[0].State != string(domain.CallStatePlaybackFailed) {
				t.Fatalf("unexpected events %+v", pub.events)
			}
		})
	}
}

func TestPlaceAnnouncementCallHangUpFailureAfterPlaybackIsSwallowed(t *testing.T) {
	client := &fakeClient{connectAt: 1, hangUpErr: errors.New("gone")}
	svc, _, _ := newTestService(client, testConfig())

	out, err := svc.PlaceAnnouncementCall(context.Background(), domain.CallRequest{DestinationNumber: "+15551234567"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	if client.count("hangup") != 1 {
		t.Fatalf("expected one hangup, got %v", client.ops)
	}
}

func TestPlaceAnnouncementCallCancelledWhilePolling(t *testing.T) {
	client := &fakeClient{connectAt: 5}
	svc, rec, pub := newTestService(client, testConfig())
	rec.err = context.Canceled

	_, err := svc.PlaceAnnouncementCall(context.Background(), domain.CallRequest{DestinationNumber: "+15551234567"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if client.count("play") != 0 || client.count("hangup") != 0 {
		t.Fatalf("expected call to be left untouched, got %v", client.ops)
	}
	if len(pub.events) != 1 || pub.events[0].State != string(domain.CallStateFailed) {
		t.Fatalf("unexpected events %+v", pub.events)
	}
}

func TestSleepContextHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
