package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"

	"coachyard/backend/internal/config"
	"coachyard/backend/internal/email"
	"coachyard/backend/internal/models"
	"coachyard/backend/internal/services"
	"coachyard/backend/internal/storage"
	"coachyard/backend/internal/utils"
)

const (
	TypeEmailDelivery = "email:deliver"
	TypePhotoProcess  = "photo:process"
)

// EmailTaskPayload carries a fully composed plain-text email.
type EmailTaskPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// PhotoTaskPayload identifies an uploaded photo awaiting normalization.
type PhotoTaskPayload struct {
	S3Key     string `json:"s3_key"`
	ListingID string `json:"listing_id"`
	UserID    string `json:"user_id"`
}

// Client wraps the asynq client with typed enqueue helpers. It implements
// services.Notifier.
type Client struct {
	inner *asynq.Client
	cfg   *config.Config
}

// NewClient creates a task client against the shared Redis instance.
func NewClient(rdb *redis.Client, cfg *config.Config) *Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return &Client{inner: asynq.NewClient(clientOpt), cfg: cfg}
}

func (c *Client) Close() error {
	return c.inner.Close()
}

// NotifyNewMessage enqueues the new-message email for a conversation
// counterpart. The preview passed in is already redacted for the recipient.
func (c *Client) NotifyNewMessage(ctx context.Context, recipient *models.User, conv *models.Conversation, preview string, redacted bool) error {
	subject := fmt.Sprintf("New message on %s", c.cfg.AppName)
	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\r\n\r\n", recipient.Name)
	if redacted {
		body.WriteString("A buyer sent you a message about your listing.\r\n\r\n")
		fmt.Fprintf(&body, "%s\r\n\r\nUnlock messaging to read and reply to buyers.\r\n", preview)
	} else {
		fmt.Fprintf(&body, "You have a new message:\r\n\r\n%s\r\n", preview)
	}
	fmt.Fprintf(&body, "\r\nConversation: %s\r\n", conv.ID.String())

	payload, err := json.Marshal(EmailTaskPayload{
		To:      recipient.Email,
		Subject: subject,
		Body:    body.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}

	_, err = c.inner.EnqueueContext(ctx, asynq.NewTask(TypeEmailDelivery, payload), asynq.Queue("default"))
	if err != nil {
		return fmt.Errorf("failed to enqueue email task: %w", err)
	}
	return nil
}

// EnqueuePhotoProcess queues normalization of a confirmed photo upload.
func (c *Client) EnqueuePhotoProcess(ctx context.Context, listingID, userID utils.SixID, s3Key string) error {
	payload, err := json.Marshal(PhotoTaskPayload{
		S3Key:     s3Key,
		ListingID: listingID.String(),
		UserID:    userID.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal photo payload: %w", err)
	}

	_, err = c.inner.EnqueueContext(ctx, asynq.NewTask(TypePhotoProcess, payload), asynq.Queue("images"))
	if err != nil {
		return fmt.Errorf("failed to enqueue photo task: %w", err)
	}
	return nil
}

// TaskProcessor holds the dependencies the task handlers need.
type TaskProcessor struct {
	cfg            *config.Config
	emailSender    email.Sender
	storageService storage.IS3Storage
	listingService services.IListingService
	s3Client       *s3.Client
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	storageService storage.IS3Storage,
	listingService services.IListingService,
) *TaskProcessor {
	p := &TaskProcessor{
		cfg:            cfg,
		emailSender:    emailSender,
		storageService: storageService,
		listingService: listingService,
	}
	if storageService != nil {
		p.s3Client = storageService.Client()
	}
	return p
}

// SetupServer configures an Asynq server and its handler mux. The caller
// runs and shuts it down.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
				"images":   5,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	mux.HandleFunc(TypePhotoProcess, processor.HandlePhotoProcessTask)

	return srv, mux
}

// HandleEmailDeliveryTask wraps the payload in RFC-ish headers and hands it
// to the configured sender.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}

	fromAddress := p.cfg.SmtpFromAddress
	if fromAddress == "" {
		fromAddress = "noreply@example.com"
		log.Printf("Warning: SmtpFromAddress not configured, using fallback %s for email to %s", fromAddress, payload.To)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", payload.To))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", fromAddress))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", payload.Subject))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(payload.Body)
	sb.WriteString("\r\n")

	if err := p.emailSender.Send(ctx, []string{payload.To}, payload.Subject, []byte(sb.String())); err != nil {
		log.Printf("Email sending failed for %s: %v", payload.To, err)
		return err
	}

	return nil
}

// HandlePhotoProcessTask downloads an uploaded photo, caps its dimensions
// and size, writes the normalized JPEG back and attaches the key to the
// listing's gallery.
func (p *TaskProcessor) HandlePhotoProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload PhotoTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal photo task payload: %v: %w", err, asynq.SkipRetry)
	}

	listingID, err := utils.ParseSixID(payload.ListingID)
	if err != nil {
		log.Printf("Invalid ListingID in photo task payload: %s", payload.ListingID)
		return fmt.Errorf("invalid listing ID in payload: %w", asynq.SkipRetry)
	}
	userID, err := utils.ParseSixID(payload.UserID)
	if err != nil {
		log.Printf("Invalid UserID in photo task payload: %s", payload.UserID)
		return fmt.Errorf("invalid user ID in payload: %w", asynq.SkipRetry)
	}

	log.Printf("Processing photo task: S3Key=%s, ListingID=%s", payload.S3Key, payload.ListingID)

	getObjectOutput, err := p.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.cfg.AwsS3Bucket),
		Key:    aws.String(payload.S3Key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			log.Printf("S3 object %s not found, likely upload failed or key incorrect.", payload.S3Key)
			return fmt.Errorf("s3 object not found: %w", asynq.SkipRetry)
		}
		return fmt.Errorf("failed to download photo from S3: %w", err)
	}
	defer getObjectOutput.Body.Close()

	imgData, err := io.ReadAll(getObjectOutput.Body)
	if err != nil {
		return fmt.Errorf("failed to read photo data for key %s: %w", payload.S3Key, err)
	}

	maxSizeBytes := int64(p.cfg.ImageMaxSizeMB) * 1024 * 1024
	if int64(len(imgData)) > maxSizeBytes {
		log.Printf("Photo %s exceeds max size (%d > %d bytes). Skipping.", payload.S3Key, len(imgData), maxSizeBytes)
		return fmt.Errorf("photo exceeds max size: %w", asynq.SkipRetry)
	}

	img, format, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		log.Printf("Error decoding photo for key %s: %v", payload.S3Key, err)
		return fmt.Errorf("unsupported image format or corrupt image: %w", asynq.SkipRetry)
	}
	log.Printf("Decoded photo %s, format: %s, size: %dx%d", payload.S3Key, format, img.Bounds().Dx(), img.Bounds().Dy())

	maxWidth := uint(p.cfg.ImageMaxDimension)
	maxHeight := uint(p.cfg.ImageMaxDimension)
	needsResize := uint(img.Bounds().Dx()) > maxWidth || uint(img.Bounds().Dy()) > maxHeight

	processedKey := payload.S3Key
	var processedData []byte
	contentType := aws.ToString(getObjectOutput.ContentType)

	if needsResize {
		resizedImg := resize.Thumbnail(maxWidth, maxHeight, img, resize.Lanczos3)
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, resizedImg, &jpeg.Options{Quality: 85}); err != nil {
			return fmt.Errorf("failed to re-encode resized photo %s: %w", payload.S3Key, err)
		}
		processedData = buf.Bytes()
		contentType = "image/jpeg"
		log.Printf("Resized photo %s to %dx%d", payload.S3Key, resizedImg.Bounds().Dx(), resizedImg.Bounds().Dy())

		if int64(len(processedData)) > maxSizeBytes {
			log.Printf("Resized photo %s still exceeds max size. Skipping.", payload.S3Key)
			return fmt.Errorf("resized photo still exceeds max size: %w", asynq.SkipRetry)
		}

		_, err = p.s3Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(p.cfg.AwsS3Bucket),
			Key:         aws.String(processedKey),
			Body:        bytes.NewReader(processedData),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return fmt.Errorf("failed to upload processed photo %s: %w", processedKey, err)
		}
	}

	if err := p.listingService.AddImageToListing(ctx, listingID, userID, processedKey); err != nil {
		return fmt.Errorf("failed to attach photo %s to listing %s: %w", processedKey, payload.ListingID, err)
	}

	log.Printf("Photo task processed: Key=%s, ListingID=%s", processedKey, payload.ListingID)
	return nil
}
