package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/OFFIS-RIT/caseboard/backend/internal/util"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/ai"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// objectAPI is the part of *s3.Client the capture store uses.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

func NewS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(util.GetEnv("AWS_REGION")),
		config.WithBaseEndpoint(util.GetEnv("AWS_ENDPOINT")),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			util.GetEnv("AWS_ACCESS_KEY"),
			util.GetEnv("AWS_SECRET_KEY"),
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), nil
}

// CaptureFiles keeps capture screenshots in a bucket under
// captures/<investigationID>/.
type CaptureFiles struct {
	api            objectAPI
	client         *s3.Client
	bucket         string
	publicEndpoint string
}

type NewCaptureFilesParams struct {
	Client *s3.Client
	Bucket string
	// PublicEndpoint is the externally reachable S3 URL used for download
	// links. Links are not available when it is empty.
	PublicEndpoint string
}

func NewCaptureFiles(params NewCaptureFilesParams) *CaptureFiles {
	return &CaptureFiles{
		api:            params.Client,
		client:         params.Client,
		bucket:         params.Bucket,
		publicEndpoint: params.PublicEndpoint,
	}
}

func capturePrefix(investigationID string) string {
	return "captures/" + investigationID + "/"
}

// PutCaptureImage uploads a screenshot and returns its object key.
func (f *CaptureFiles) PutCaptureImage(
	ctx context.Context,
	investigationID, captureID, name string,
	file io.Reader,
) (string, error) {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ext == "" {
		ext = "png"
	}
	mimeType := mime.TypeByExtension("." + ext)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	key := fmt.Sprintf("%s%s.%s", capturePrefix(investigationID), captureID, ext)

	_, err := f.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(f.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload capture image to S3: %w", err)
	}
	return key, nil
}

func (f *CaptureFiles) GetFile(ctx context.Context, key string) ([]byte, string, error) {
	result, err := f.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get file from S3: %w", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return nil, "", fmt.Errorf("failed to read file contents: %w", err)
	}
	return buf.Bytes(), aws.ToString(result.ContentType), nil
}

// ImageDataURL loads a stored screenshot as a data URL for the vision model.
func (f *CaptureFiles) ImageDataURL(ctx context.Context, key string) (string, error) {
	data, contentType, err := f.GetFile(ctx, key)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = mime.TypeByExtension(path.Ext(key))
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: %s is %s", ai.ErrInvalidImage, key, contentType)
	}
	img := ai.Image{MIMEType: contentType, Base64: base64.StdEncoding.EncodeToString(data)}
	return img.DataURL(), nil
}

// DeleteInvestigationFiles removes every object stored for an investigation.
func (f *CaptureFiles) DeleteInvestigationFiles(ctx context.Context, investigationID string) error {
	prefix := capturePrefix(investigationID)
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(f.bucket),
		Prefix: aws.String(prefix),
	}

	for {
		listOutput, err := f.api.ListObjectsV2(ctx, listInput)
		if err != nil {
			return fmt.Errorf("failed to list objects in folder %s: %w", prefix, err)
		}
		if len(listOutput.Contents) == 0 {
			break
		}

		objectsToDelete := make([]types.ObjectIdentifier, 0, len(listOutput.Contents))
		for _, obj := range listOutput.Contents {
			objectsToDelete = append(objectsToDelete, types.ObjectIdentifier{Key: obj.Key})
		}

		_, err = f.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(f.bucket),
			Delete: &types.Delete{
				Objects: objectsToDelete,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects in folder %s: %w", prefix, err)
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}
	return nil
}

// DownloadLink presigns a short lived GET for key against the public
// endpoint.
func (f *CaptureFiles) DownloadLink(ctx context.Context, key string) (string, error) {
	if f.client == nil {
		return "", fmt.Errorf("download links need an S3 client")
	}
	publicURL, err := url.Parse(f.publicEndpoint)
	if err != nil || publicURL.Scheme == "" || publicURL.Host == "" {
		return "", fmt.Errorf("invalid AWS_PUBLIC_ENDPOINT: %s", f.publicEndpoint)
	}
	prefix := strings.TrimSuffix(publicURL.Path, "/")

	// The signature covers the Host header, so sign against the public host.
	presignClient := s3.NewFromConfig(
		aws.Config{
			Region:      f.client.Options().Region,
			Credentials: f.client.Options().Credentials,
			HTTPClient:  f.client.Options().HTTPClient,
		},
		func(o *s3.Options) {
			o.BaseEndpoint = aws.String(fmt.Sprintf("%s://%s", publicURL.Scheme, publicURL.Host))
			o.UsePathStyle = true
		},
	)

	out, err := s3.NewPresignClient(presignClient).PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(f.bucket),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(15*time.Minute),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate download link: %w", err)
	}

	if prefix != "" {
		signedURL, err := url.Parse(out.URL)
		if err != nil {
			return "", fmt.Errorf("failed to parse presigned url: %w", err)
		}
		signedURL.Path = prefix + signedURL.Path
		return signedURL.String(), nil
	}
	return out.URL, nil
}
