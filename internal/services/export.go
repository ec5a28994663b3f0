package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "family-calendar-backend/internal/errors"
	"family-calendar-backend/internal/models"
	"family-calendar-backend/internal/session"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventFetcher returns the caller's accessible events
type EventFetcher interface {
	Fetch(ctx context.Context) FetchResult
}

// objectPutter uploads objects
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// objectPresigner signs download URLs
type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ExportResponse points at an uploaded calendar file
type ExportResponse struct {
	DownloadURL string `json:"download_url"`
	Key         string `json:"key"`
	EventCount  int    `json:"event_count"`
	ExpiresIn   int    `json:"expires_in"`
}

// ExportService writes the caller's calendar to S3 as an iCalendar file
type ExportService struct {
	fetcher   EventFetcher
	client    objectPutter
	presigner objectPresigner
	bucket    string
	expiry    time.Duration
	now       func() time.Time
}

// S3Options configures the export bucket
type S3Options struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
	URLExpiry time.Duration
}

// NewExportService creates an export service for the given bucket. Static
// credentials are used when both keys are set, the default chain otherwise.
func NewExportService(ctx context.Context, fetcher EventFetcher, opts S3Options) (*ExportService, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newExportService(fetcher, client, s3.NewPresignClient(client), opts.Bucket, opts.URLExpiry), nil
}

func newExportService(fetcher EventFetcher, client objectPutter, presigner objectPresigner, bucket string, expiry time.Duration) *ExportService {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &ExportService{
		fetcher:   fetcher,
		client:    client,
		presigner: presigner,
		bucket:    bucket,
		expiry:    expiry,
		now:       time.Now,
	}
}

// ExportCalendar uploads the caller's accessible events and returns a
// time-limited download URL
func (s *ExportService) ExportCalendar(ctx context.Context) (resp *ExportResponse, err error) {
	defer guard("export calendar", &err)

	sess, ok := session.FromContext(ctx)
	if !ok {
		return nil, apperrors.Authentication("you must be signed in")
	}

	fetched := s.fetcher.Fetch(ctx)
	if fetched.Error != nil {
		return nil, apperrors.Persistence(*fetched.Error, nil)
	}

	body := renderICalendar(fetched.Events, s.now())
	key := fmt.Sprintf("exports/%s/%s.ics", sess.UserID, uuid.New().String())

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(body),
		ContentType: aws.String("text/calendar; charset=utf-8"),
	}); err != nil {
		log.Error().Err(err).Str("user_id", sess.UserID).Str("key", key).Msg("Failed to upload calendar export")
		return nil, apperrors.Persistence("could not upload calendar export", err)
	}

	request, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.expiry
	})
	if err != nil {
		return nil, apperrors.Persistence("could not generate download URL", err)
	}

	log.Info().
		Str("user_id", sess.UserID).
		Str("key", key).
		Int("events", len(fetched.Events)).
		Msg("Calendar exported")

	return &ExportResponse{
		DownloadURL: request.URL,
		Key:         key,
		EventCount:  len(fetched.Events),
		ExpiresIn:   int(s.expiry.Seconds()),
	}, nil
}

// renderICalendar renders events as an RFC 5545 calendar. All-day events use
// DATE values with an exclusive end; timed events combine the date with the
// HH:MM time of day in UTC.
func renderICalendar(events []models.Event, now time.Time) string {
	var b strings.Builder
	writeLine := func(line string) {
		b.WriteString(line)
		b.WriteString("\r\n")
	}

	writeLine("BEGIN:VCALENDAR")
	writeLine("VERSION:2.0")
	writeLine("PRODID:-//family-calendar//export//EN")
	writeLine("CALSCALE:GREGORIAN")
	stamp := now.UTC().Format("20060102T150405Z")

	for _, e := range events {
		writeLine("BEGIN:VEVENT")
		writeLine("UID:" + e.ID + "@family-calendar")
		writeLine("DTSTAMP:" + stamp)
		end := e.Date
		if e.EndDate != nil && !e.EndDate.IsZero() {
			end = *e.EndDate
		}
		if e.AllDay || e.Time == "" {
			writeLine("DTSTART;VALUE=DATE:" + e.Date.UTC().Format("20060102"))
			writeLine("DTEND;VALUE=DATE:" + end.UTC().AddDate(0, 0, 1).Format("20060102"))
		} else {
			start := withTimeOfDay(e.Date, e.Time)
			writeLine("DTSTART:" + start.Format("20060102T150405Z"))
			writeLine("DTEND:" + withTimeOfDay(end, e.Time).Add(time.Hour).Format("20060102T150405Z"))
		}
		writeLine("SUMMARY:" + escapeText(e.Name))
		if e.Description != "" {
			writeLine("DESCRIPTION:" + escapeText(e.Description))
		}
		if e.FamilyMember != "" {
			writeLine("ORGANIZER;CN=" + escapeParam(e.FamilyMember) + ":noreply@family-calendar")
		}
		writeLine("END:VEVENT")
	}

	writeLine("END:VCALENDAR")
	return b.String()
}

func withTimeOfDay(date time.Time, hhmm string) time.Time {
	d := date.UTC()
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
}

var textEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\r\n", `\n`, "\n", `\n`)

func escapeText(s string) string {
	return textEscaper.Replace(s)
}

func escapeParam(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "'") + `"`
}
