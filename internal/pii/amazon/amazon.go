package amazon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
	"github.com/bricks-cloud/dkpii/internal/pii"
	"github.com/bricks-cloud/dkpii/internal/telemetry"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const Source = "amazon"

type Config struct {
	Region          string
	LanguageCode    string
	AccessKeyId     string
	SecretAccessKey string
	RequestTimeout  time.Duration
	ConnectTimeout  time.Duration
	MaxElapsedTime  time.Duration
}

type comprehendClient interface {
	DetectPiiEntities(ctx context.Context, params *comprehend.DetectPiiEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectPiiEntitiesOutput, error)
}

// Client detects PII with AWS Comprehend. Comprehend entity types are mapped
// onto the service's labels where an equivalent exists.
type Client struct {
	client comprehendClient
	cfg    Config
	log    *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	if len(cfg.AccessKeyId) != 0 && len(cfg.SecretAccessKey) != 0 {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyId, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return newClient(comprehend.NewFromConfig(awsCfg), cfg, log), nil
}

func newClient(c comprehendClient, cfg Config, log *zap.Logger) *Client {
	if len(cfg.LanguageCode) == 0 {
		cfg.LanguageCode = string(types.LanguageCodeEn)
	}

	return &Client{
		client: c,
		cfg:    cfg,
		log:    log,
	}
}

// entityTypes maps Comprehend types onto the labels used by the regex
// recognizers. Unmapped types are reported unchanged.
var entityTypes = map[types.PiiEntityType]string{
	types.PiiEntityTypeAddress: "DK_ADDRESS",
	types.PiiEntityTypePhone:   "DK_PHONE",
}

func entityType(t types.PiiEntityType) string {
	if mapped, ok := entityTypes[t]; ok {
		return mapped
	}

	return string(t)
}

func (c *Client) detect(content string) (*comprehend.DetectPiiEntitiesOutput, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.cfg.MaxElapsedTime

	return backoff.RetryWithData(func() (*comprehend.DetectPiiEntitiesOutput, error) {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
		defer cancel()

		output, err := c.client.DetectPiiEntities(ctx, &comprehend.DetectPiiEntitiesInput{
			LanguageCode: types.LanguageCode(c.cfg.LanguageCode),
			Text:         aws.String(content),
		})
		if err != nil {
			if isPermanent(err) {
				return nil, backoff.Permanent(err)
			}

			return nil, err
		}

		return output, nil
	}, b)
}

// isPermanent reports errors that retrying cannot fix.
func isPermanent(err error) bool {
	var ire *types.InvalidRequestException
	var tsle *types.TextSizeLimitExceededException
	var ule *types.UnsupportedLanguageException

	return errors.As(err, &ire) || errors.As(err, &tsle) || errors.As(err, &ule)
}

func (c *Client) Detect(input []string) (*pii.Result, error) {
	var wg sync.WaitGroup

	result := &pii.Result{
		Detections: make([]*pii.Detection, len(input)),
	}

	for index, text := range input {
		wg.Add(1)
		go func(t string, i int) {
			defer wg.Done()
			detection := &pii.Detection{
				Input:    t,
				Entities: []*pii.Entity{},
			}
			result.Detections[i] = detection

			if len(t) == 0 {
				return
			}

			start := time.Now()

			r, err := c.detect(t)
			if err != nil {
				c.log.Debug("error when detecting pii entities", zap.Error(err))
				telemetry.Incr("dkpii.amazon.detect.error", nil, 1)
				return
			}

			telemetry.Timing("dkpii.amazon.detect.latency", time.Since(start), nil, 1)

			offsets := byteOffsets(t)
			for _, detected := range r.Entities {
				if detected.BeginOffset == nil || detected.EndOffset == nil {
					continue
				}

				begin, end := int(*detected.BeginOffset), int(*detected.EndOffset)
				if begin < 0 || end > len(offsets)-1 || begin >= end {
					continue
				}

				entity := &pii.Entity{
					BeginOffset: offsets[begin],
					EndOffset:   offsets[end],
					Type:        entityType(detected.Type),
					Source:      Source,
				}
				entity.Text = t[entity.BeginOffset:entity.EndOffset]

				if detected.Score != nil {
					entity.Score = float64(*detected.Score)
				}

				detection.Entities = append(detection.Entities, entity)
			}
		}(text, index)
	}

	wg.Wait()

	return result, nil
}

// byteOffsets maps Comprehend's character offsets onto byte offsets.
func byteOffsets(text string) []int {
	offsets := []int{}
	for i := range text {
		offsets = append(offsets, i)
	}

	return append(offsets, len(text))
}
